// README: Firebase RTDB mirror of each corridor's live position for mobile map viewers.
package broadcast

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/db"

	"greencorridor/internal/modules/corridor"
)

// DefaultRTDBRoot is the node corridor entries are written under.
const DefaultRTDBRoot = "corridor_locations"

// Writer sets a value at an RTDB path.
type Writer interface {
	Set(ctx context.Context, path string, v any) error
}

type rtdbWriter struct {
	client *db.Client
}

// NewRTDBWriter adapts a Firebase RTDB client to Writer.
func NewRTDBWriter(client *db.Client) Writer {
	return rtdbWriter{client: client}
}

func (w rtdbWriter) Set(ctx context.Context, path string, v any) error {
	return w.client.NewRef(path).Set(ctx, v)
}

// rtdbCorridorEntry mirrors one corridor under /corridor_locations/{id}. Clients
// listen to that node directly.
type rtdbCorridorEntry struct {
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Status      string  `json:"status"`
	Criticality string  `json:"criticality"`
	ETASeconds  int64   `json:"eta_seconds"`
	ETA         string  `json:"eta"`
	Rerouted    bool    `json:"rerouted"`
	Timestamp   int64   `json:"timestamp"`
}

type RTDBMirror struct {
	w    Writer
	root string
}

func NewRTDBMirror(w Writer, root string) *RTDBMirror {
	if root == "" {
		root = DefaultRTDBRoot
	}
	return &RTDBMirror{w: w, root: root}
}

// Publish overwrites the corridor's entry. Before the first fix the position is the
// route origin.
func (m *RTDBMirror) Publish(ctx context.Context, snap corridor.Snapshot) error {
	entry := rtdbCorridorEntry{
		Status:      string(snap.Phase),
		Criticality: snap.Criticality.String(),
		ETASeconds:  snap.ETA.Seconds,
		ETA:         snap.ETA.Formatted,
		Rerouted:    snap.Rerouted,
		Timestamp:   snap.UpdatedAt.UnixMilli(),
	}
	switch {
	case snap.LastFix != nil:
		entry.Lat, entry.Lng = snap.LastFix.Position.Lat, snap.LastFix.Position.Lng
	case snap.Route.Usable():
		o := snap.Route.Origin()
		entry.Lat, entry.Lng = o.Lat, o.Lng
	}
	path := fmt.Sprintf("%s/%s", m.root, snap.CorridorID)
	if err := m.w.Set(ctx, path, entry); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
