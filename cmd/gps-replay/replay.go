// README: Drives a corridor through the API by replaying interpolated GPS fixes along a route.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"greencorridor/internal/geo"
	"greencorridor/internal/modules/corridor"
	"greencorridor/internal/types"
)

type fixPayload struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Speed     float64   `json:"speed"`
	Timestamp time.Time `json:"timestamp"`
}

type Replayer struct {
	baseURL    string
	httpc      *http.Client
	corridorID string

	speedMS  float64
	interval time.Duration
	// Fixes at or beyond deviateAt meters along the path are pushed deviateM meters east.
	deviateAt float64
	deviateM  float64
	realtime  bool
}

type Summary struct {
	Fixes    int
	Reroutes int
	LastETA  string
	Cleared  int
}

// Plan samples the path every speed*interval meters, always ending on the last waypoint.
func (r *Replayer) Plan(path []types.Point, start time.Time) []fixPayload {
	length := geo.PathLength(path)
	step := r.speedMS * r.interval.Seconds()
	if step <= 0 || len(path) < 2 {
		return nil
	}
	var out []fixPayload
	for i := 0; ; i++ {
		d := float64(i) * step
		if d > length {
			d = length
		}
		p := geo.Along(path, d)
		if r.deviateM != 0 && r.deviateAt > 0 && d >= r.deviateAt {
			p = geo.Offset(p, 0, r.deviateM)
		}
		out = append(out, fixPayload{
			Lat:       p.Lat,
			Lng:       p.Lng,
			Speed:     r.speedMS,
			Timestamp: start.Add(time.Duration(i) * r.interval),
		})
		if d >= length {
			return out
		}
	}
}

// Start begins tracking and returns the planned route.
func (r *Replayer) Start(ctx context.Context) (corridor.Snapshot, error) {
	var snap corridor.Snapshot
	err := r.call(ctx, http.MethodPost, "/api/corridors/"+r.corridorID+"/start", nil, &snap)
	return snap, err
}

// Drive posts every fix in order and summarizes the snapshots returned.
func (r *Replayer) Drive(ctx context.Context, fixes []fixPayload) (Summary, error) {
	var sum Summary
	for i, fix := range fixes {
		var snap corridor.Snapshot
		if err := r.call(ctx, http.MethodPost, "/api/corridors/"+r.corridorID+"/fixes", fix, &snap); err != nil {
			return sum, fmt.Errorf("fix %d: %w", i, err)
		}
		sum.Fixes++
		sum.LastETA = snap.ETA.Formatted
		sum.Cleared += len(snap.ClearedSignals)
		if snap.Rerouted {
			sum.Reroutes++
		}
		log.Printf("[replay] fix %d/%d phase=%s eta=%s off-route=%.0fm rerouted=%t cleared=%d",
			i+1, len(fixes), snap.Phase, snap.ETA.Formatted, snap.DeviationMeters, snap.Rerouted, len(snap.ClearedSignals))

		if r.realtime && i < len(fixes)-1 {
			select {
			case <-ctx.Done():
				return sum, ctx.Err()
			case <-time.After(r.interval):
			}
		}
	}
	return sum, nil
}

func (r *Replayer) Complete(ctx context.Context) (map[string]any, error) {
	var model map[string]any
	err := r.call(ctx, http.MethodPost, "/api/corridors/"+r.corridorID+"/complete", nil, &model)
	return model, err
}

// SeedSignals registers n RED signals spread evenly along the path.
func (r *Replayer) SeedSignals(ctx context.Context, path []types.Point, n int) error {
	length := geo.PathLength(path)
	for i := 1; i <= n; i++ {
		p := geo.Along(path, length*float64(i)/float64(n+1))
		body := map[string]any{
			"name":  fmt.Sprintf("replay signal %d", i),
			"lat":   p.Lat,
			"lng":   p.Lng,
			"state": "RED",
		}
		id := fmt.Sprintf("%s-sig-%d", r.corridorID, i)
		if err := r.call(ctx, http.MethodPut, "/api/signals/"+id, body, nil); err != nil {
			return fmt.Errorf("seed signal %s: %w", id, err)
		}
	}
	return nil
}

func (r *Replayer) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
