// README: Per-time-of-day bias model and the outcome record that trains it.
package bias

import (
	"time"

	"greencorridor/internal/types"
)

// LearningRate is the fixed step applied to each prediction error.
const LearningRate = 0.2

type Bucket string

const (
	BucketMorning   Bucket = "morning"
	BucketAfternoon Bucket = "afternoon"
	BucketNight     Bucket = "night"
)

// BucketAt classifies t by its wall-clock hour in t's own location:
// [06,12) morning, [12,18) afternoon, otherwise night.
func BucketAt(t time.Time) Bucket {
	h := t.Hour()
	switch {
	case h >= 6 && h < 12:
		return BucketMorning
	case h >= 12 && h < 18:
		return BucketAfternoon
	default:
		return BucketNight
	}
}

// Buckets holds one scalar per time bucket.
type Buckets struct {
	Morning   float64 `json:"morning"`
	Afternoon float64 `json:"afternoon"`
	Night     float64 `json:"night"`
}

func (b Buckets) Get(k Bucket) float64 {
	switch k {
	case BucketMorning:
		return b.Morning
	case BucketAfternoon:
		return b.Afternoon
	default:
		return b.Night
	}
}

func (b *Buckets) add(k Bucket, delta float64) {
	switch k {
	case BucketMorning:
		b.Morning += delta
	case BucketAfternoon:
		b.Afternoon += delta
	default:
		b.Night += delta
	}
}

type Samples struct {
	Morning   int64 `json:"morning"`
	Afternoon int64 `json:"afternoon"`
	Night     int64 `json:"night"`
}

func (s Samples) Get(k Bucket) int64 {
	switch k {
	case BucketMorning:
		return s.Morning
	case BucketAfternoon:
		return s.Afternoon
	default:
		return s.Night
	}
}

func (s *Samples) inc(k Bucket) {
	switch k {
	case BucketMorning:
		s.Morning++
	case BucketAfternoon:
		s.Afternoon++
	default:
		s.Night++
	}
}

type Accuracy struct {
	MeanAbsoluteError float64 `json:"mean_absolute_error"`
	MeanSquaredError  float64 `json:"mean_squared_error"`
	TotalPredictions  int64   `json:"total_predictions"`
}

// Model is the active bias-correction model. The zero value is a valid all-zero model.
type Model struct {
	ID        int64     `json:"id"`
	Version   int       `json:"version"`
	Biases    Buckets   `json:"biases"`
	Samples   Samples   `json:"samples"`
	Accuracy  Accuracy  `json:"accuracy"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BiasAt returns the bias for the bucket that contains t.
func (m Model) BiasAt(t time.Time) float64 {
	return m.Biases.Get(BucketAt(t))
}

// Outcome is a completed corridor as reported to the learner.
type Outcome struct {
	CorridorID   types.ID
	StartedAt    time.Time
	CompletedAt  time.Time
	PredictedETA float64 // seconds in force at completion
}

func (o Outcome) ActualSeconds() float64 {
	return o.CompletedAt.Sub(o.StartedAt).Seconds()
}
