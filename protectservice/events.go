package protectservice

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// FetchLatestPerCamera returns at most one event per camera: the newest one
// inside the window [now - 2*pollInterval, now]. The doubled window overlaps
// the previous poll so jitter never drops an event at the boundary.
func (ps *ProtectService) FetchLatestPerCamera(ctx context.Context, cameras []Camera, session Session, style EndpointStyle) ([]MotionEvent, error) {
	raw, err := ps.fetchMotionEvents(ctx, session, style)
	if err != nil {
		return nil, err
	}
	return LatestPerCamera(raw, cameras), nil
}

func (ps *ProtectService) fetchMotionEvents(ctx context.Context, session Session, style EndpointStyle) ([]rawEvent, error) {
	end := ps.now()
	start := end.Add(-2 * ps.config.PollInterval())

	resp, err := ps.http.R().
		SetContext(ctx).
		SetHeaders(style.Headers(session)).
		SetQueryParams(map[string]string{
			"start": strconv.FormatInt(start.UnixMilli(), 10),
			"end":   strconv.FormatInt(end.UnixMilli(), 10),
			"type":  "motion",
		}).
		Get(style.APIURL + "/api/events")
	if err := classify("events", resp, err); err != nil {
		return nil, err
	}

	var events []rawEvent
	if err := json.Unmarshal(resp.Body(), &events); err != nil {
		return nil, fmt.Errorf("%w: events: %v", ErrAPI, err)
	}
	if ps.config.Debug {
		for _, ev := range events {
			log.Debug().Msgf("Event: %+v", ev)
		}
	}
	return events, nil
}

// LatestPerCamera correlates raw events with cameras. For each camera the
// event with the greatest start wins; a missing end only means the motion is
// still going. Events for unknown cameras are dropped. Output is in camera
// order.
func LatestPerCamera(events []rawEvent, cameras []Camera) []MotionEvent {
	latest := make(map[string]rawEvent, len(cameras))
	for _, ev := range events {
		cur, ok := latest[ev.Camera]
		if !ok || ev.Start > cur.Start {
			latest[ev.Camera] = ev
		}
	}

	out := make([]MotionEvent, 0, len(latest))
	for i := range cameras {
		ev, ok := latest[cameras[i].ID]
		if !ok {
			continue
		}
		out = append(out, MotionEvent{
			ID:        ev.ID,
			CameraID:  ev.Camera,
			Score:     ev.Score,
			Timestamp: time.UnixMilli(ev.Start),
			Camera:    &cameras[i],
		})
	}
	return out
}
