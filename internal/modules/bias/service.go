// README: Outcome learner; streams completed-trip errors into the active bias model.
package bias

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"
)

var (
	ErrNoActiveModel  = errors.New("no active bias model")
	ErrConflict       = errors.New("bias model version conflict")
	ErrInvalidOutcome = errors.New("invalid corridor outcome")
)

type Store interface {
	Active(ctx context.Context) (*Model, error)
	Save(ctx context.Context, m *Model) error
}

// MissTTL is how long Current keeps answering with the zero model after a failed
// lookup before asking the store again.
const MissTTL = 30 * time.Second

// Service is the single writer of the active model. Reads are served from a cached copy.
type Service struct {
	store Store
	loc   *time.Location

	now func() time.Time

	mu        sync.RWMutex
	cached    *Model
	missUntil time.Time
}

func NewService(store Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{store: store, loc: loc, now: time.Now}
}

// Current returns the active model, or an all-zero model when none exists or the store
// is unreachable. It never fails.
func (s *Service) Current(ctx context.Context) Model {
	now := s.now()
	s.mu.RLock()
	if s.cached != nil {
		m := *s.cached
		s.mu.RUnlock()
		return m
	}
	if now.Before(s.missUntil) {
		s.mu.RUnlock()
		return Model{}
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		return *s.cached
	}
	if now.Before(s.missUntil) {
		return Model{}
	}
	m, err := s.store.Active(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoActiveModel) {
			log.Printf("[bias] load active model: %v", err)
		}
		s.missUntil = now.Add(MissTTL)
		return Model{}
	}
	s.cached = m
	return *m
}

// Learn applies one completed-corridor outcome and persists the result. A missing
// active model is created with zero biases before the update.
func (s *Service) Learn(ctx context.Context, o Outcome) (Model, error) {
	if o.StartedAt.IsZero() || o.CompletedAt.Before(o.StartedAt) {
		return Model{}, ErrInvalidOutcome
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.Active(ctx)
	if errors.Is(err, ErrNoActiveModel) {
		current = &Model{}
	} else if err != nil {
		return Model{}, fmt.Errorf("load active bias model: %w", err)
	}

	o.StartedAt = o.StartedAt.In(s.loc)
	o.CompletedAt = o.CompletedAt.In(s.loc)
	bucket := BucketAt(o.StartedAt)

	next := Apply(*current, o)
	next.UpdatedAt = s.now()
	if err := s.store.Save(ctx, &next); err != nil {
		return Model{}, fmt.Errorf("save bias model: %w", err)
	}
	s.cached = &next
	log.Printf("[bias] corridor %s: bucket=%s error=%.1fs bias=%.2f n=%d",
		o.CorridorID, bucket, o.ActualSeconds()-o.PredictedETA,
		next.Biases.Get(bucket), next.Accuracy.TotalPredictions)
	return next, nil
}

// Apply is the pure streaming update: bias moves by LearningRate*error in the bucket of
// StartedAt, and MAE/MSE are updated as running means without retaining history.
func Apply(m Model, o Outcome) Model {
	errSec := o.ActualSeconds() - o.PredictedETA
	bucket := BucketAt(o.StartedAt)

	m.Biases.add(bucket, LearningRate*errSec)
	m.Samples.inc(bucket)

	n := float64(m.Accuracy.TotalPredictions + 1)
	m.Accuracy.MeanAbsoluteError += (math.Abs(errSec) - m.Accuracy.MeanAbsoluteError) / n
	m.Accuracy.MeanSquaredError += (errSec*errSec - m.Accuracy.MeanSquaredError) / n
	m.Accuracy.TotalPredictions++
	return m
}
