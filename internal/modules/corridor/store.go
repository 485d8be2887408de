// README: Corridor store backed by PostgreSQL (corridors and gps_logs).
package corridor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"greencorridor/internal/modules/routing"
	"greencorridor/internal/types"
)

// Store persists corridor state. All methods are safe for concurrent use.
type Store interface {
	Get(ctx context.Context, id types.ID) (*Corridor, error)
	MarkStarted(ctx context.Context, id types.ID, route routing.Route, predictedETA int64, at time.Time) error
	UpdateRoute(ctx context.Context, id types.ID, route routing.Route, predictedETA int64) error
	// UpdateETA records the latest live ETA without touching the planned prediction.
	UpdateETA(ctx context.Context, id types.ID, liveETA int64) error
	MarkCompleted(ctx context.Context, id types.ID, at time.Time) error
	AppendFix(ctx context.Context, fix PositionFix) error
	// AverageSpeedSince returns the mean positive reported speed of fixes after since.
	AverageSpeedSince(ctx context.Context, since time.Time) (float64, int, error)
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Corridor, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, criticality, congestion,
		       origin_lat, origin_lng, destination_lat, destination_lng,
		       route, predicted_eta, started_at, completed_at, version
		FROM corridors
		WHERE id = $1`, string(id),
	)

	var (
		c          Corridor
		crit, cong string
		rawRoute   []byte
		predicted  *int64
	)
	err := row.Scan(
		&c.ID, &crit, &cong,
		&c.Origin.Lat, &c.Origin.Lng, &c.Destination.Lat, &c.Destination.Lng,
		&rawRoute, &predicted, &c.StartedAt, &c.CompletedAt, &c.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Criticality = types.ParseCriticality(crit)
	c.Congestion = types.ParseCongestion(cong)
	if predicted != nil {
		c.PredictedETA = *predicted
	}
	if len(rawRoute) > 0 {
		var r routing.Route
		if err := json.Unmarshal(rawRoute, &r); err != nil {
			return nil, fmt.Errorf("decode route for %s: %w", id, err)
		}
		c.Route = &r
	}
	return &c, nil
}

func (s *PGStore) MarkStarted(ctx context.Context, id types.ID, route routing.Route, predictedETA int64, at time.Time) error {
	raw, err := json.Marshal(route)
	if err != nil {
		return err
	}
	return s.exec(ctx, `
		UPDATE corridors
		SET route = $1,
		    predicted_eta = $2,
		    started_at = COALESCE(started_at, $3),
		    status = 'in_progress',
		    version = version + 1
		WHERE id = $4 AND completed_at IS NULL`,
		raw, predictedETA, at, string(id))
}

func (s *PGStore) UpdateRoute(ctx context.Context, id types.ID, route routing.Route, predictedETA int64) error {
	raw, err := json.Marshal(route)
	if err != nil {
		return err
	}
	return s.exec(ctx, `
		UPDATE corridors
		SET route = $1, predicted_eta = $2, version = version + 1
		WHERE id = $3 AND completed_at IS NULL`,
		raw, predictedETA, string(id))
}

func (s *PGStore) UpdateETA(ctx context.Context, id types.ID, liveETA int64) error {
	return s.exec(ctx, `
		UPDATE corridors
		SET live_eta = $1
		WHERE id = $2 AND completed_at IS NULL`,
		liveETA, string(id))
}

func (s *PGStore) MarkCompleted(ctx context.Context, id types.ID, at time.Time) error {
	return s.exec(ctx, `
		UPDATE corridors
		SET completed_at = $1,
		    status = 'completed',
		    actual_duration = EXTRACT(EPOCH FROM ($1 - started_at))::BIGINT,
		    version = version + 1
		WHERE id = $2 AND completed_at IS NULL`,
		at, string(id))
}

func (s *PGStore) AppendFix(ctx context.Context, fix PositionFix) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO gps_logs (id, corridor_id, lat, lng, accuracy, speed, heading, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), string(fix.CorridorID),
		fix.Position.Lat, fix.Position.Lng,
		fix.Accuracy, fix.Speed, fix.Heading, fix.Timestamp,
	)
	return err
}

func (s *PGStore) AverageSpeedSince(ctx context.Context, since time.Time) (float64, int, error) {
	var (
		avg *float64
		n   int
	)
	err := s.db.QueryRow(ctx, `
		SELECT AVG(speed), COUNT(*)
		FROM (
			SELECT speed FROM gps_logs
			WHERE recorded_at >= $1 AND speed > 0
			ORDER BY recorded_at DESC
			LIMIT 100
		) recent`, since,
	).Scan(&avg, &n)
	if err != nil {
		return 0, 0, err
	}
	if avg == nil {
		return 0, 0, nil
	}
	return *avg, n, nil
}

func (s *PGStore) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrNotUpdated
	}
	return nil
}
