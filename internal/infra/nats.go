// README: NATS connection for corridor update fan-out.
package infra

import (
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NewNATS connects with unlimited reconnects; publishes are buffered while disconnected.
func NewNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Printf("[nats] reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats.Connect %s: %w", url, err)
	}
	return nc, nil
}
