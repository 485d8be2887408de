// README: Fan-out sink delivering each snapshot to every configured sink.
package broadcast

import (
	"context"
	"errors"

	"greencorridor/internal/modules/corridor"
)

type Fanout []corridor.Broadcaster

func (f Fanout) Publish(ctx context.Context, snap corridor.Snapshot) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Publish(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
