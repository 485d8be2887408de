// README: NATS sink publishing corridor updates and cleared-signal events.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"greencorridor/internal/modules/corridor"
)

type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// UpdateSubject is the subject a corridor's snapshots are published on.
func UpdateSubject(snap corridor.Snapshot) string {
	return fmt.Sprintf(subjectUpdateFormat, snap.CorridorID)
}

func (p *NATSPublisher) Publish(_ context.Context, snap corridor.Snapshot) error {
	if p.conn == nil {
		return fmt.Errorf("not connected")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	errs := []error{p.conn.Publish(UpdateSubject(snap), payload)}

	for _, ev := range clearedEvents(snap) {
		raw, err := json.Marshal(ev)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, p.conn.Publish(SubjectSignalCleared, raw))
	}
	return errors.Join(errs...)
}
