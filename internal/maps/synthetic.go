// README: Offline provider returning the deterministic synthetic route pair.
package maps

import (
	"context"

	"greencorridor/internal/modules/routing"
	"greencorridor/internal/types"
)

type SyntheticProvider struct{}

func (SyntheticProvider) FetchCandidateRoutes(_ context.Context, origin, destination types.Point) ([]routing.Route, error) {
	return routing.SyntheticPair(origin, destination), nil
}
