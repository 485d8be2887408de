// README: Bias model store backed by PostgreSQL (single active row, optimistic versioning).
package bias

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Active(ctx context.Context) (*Model, error) {
	row := s.db.QueryRow(ctx, `
        SELECT id, version,
               morning_bias, afternoon_bias, night_bias,
               morning_samples, afternoon_samples, night_samples,
               mean_absolute_error, mean_squared_error, total_predictions,
               updated_at
        FROM bias_models
        WHERE is_active
        ORDER BY id DESC
        LIMIT 1`)

	var m Model
	err := row.Scan(
		&m.ID, &m.Version,
		&m.Biases.Morning, &m.Biases.Afternoon, &m.Biases.Night,
		&m.Samples.Morning, &m.Samples.Afternoon, &m.Samples.Night,
		&m.Accuracy.MeanAbsoluteError, &m.Accuracy.MeanSquaredError, &m.Accuracy.TotalPredictions,
		&m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoActiveModel
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Save inserts the model when it has no ID yet, otherwise updates it if the stored
// version still matches. On success m.ID and m.Version reflect the stored row.
func (s *PGStore) Save(ctx context.Context, m *Model) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}
	if m.ID == 0 {
		row := s.db.QueryRow(ctx, `
            INSERT INTO bias_models (
                version, morning_bias, afternoon_bias, night_bias,
                morning_samples, afternoon_samples, night_samples,
                mean_absolute_error, mean_squared_error, total_predictions,
                is_active, updated_at
            ) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, $10)
            RETURNING id`,
			m.Biases.Morning, m.Biases.Afternoon, m.Biases.Night,
			m.Samples.Morning, m.Samples.Afternoon, m.Samples.Night,
			m.Accuracy.MeanAbsoluteError, m.Accuracy.MeanSquaredError, m.Accuracy.TotalPredictions,
			m.UpdatedAt,
		)
		if err := row.Scan(&m.ID); err != nil {
			return err
		}
		m.Version = 1
		return nil
	}

	tag, err := s.db.Exec(ctx, `
        UPDATE bias_models
        SET version = version + 1,
            morning_bias = $1, afternoon_bias = $2, night_bias = $3,
            morning_samples = $4, afternoon_samples = $5, night_samples = $6,
            mean_absolute_error = $7, mean_squared_error = $8, total_predictions = $9,
            updated_at = $10
        WHERE id = $11 AND version = $12`,
		m.Biases.Morning, m.Biases.Afternoon, m.Biases.Night,
		m.Samples.Morning, m.Samples.Afternoon, m.Samples.Night,
		m.Accuracy.MeanAbsoluteError, m.Accuracy.MeanSquaredError, m.Accuracy.TotalPredictions,
		m.UpdatedAt, m.ID, m.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrConflict
	}
	m.Version++
	return nil
}
