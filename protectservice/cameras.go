package protectservice

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// EnumerateCameras reads the bootstrap document. A missing "cameras" field
// usually means the session is no longer accepted, so callers should log in
// again on ErrAPI as well as ErrAuth.
func (ps *ProtectService) EnumerateCameras(ctx context.Context, session Session, style EndpointStyle) ([]Camera, error) {
	resp, err := ps.http.R().
		SetContext(ctx).
		SetHeaders(style.Headers(session)).
		Get(style.APIURL + "/api/bootstrap")
	if err := classify("bootstrap", resp, err); err != nil {
		return nil, err
	}

	var bootstrap rawBootstrap
	if err := json.Unmarshal(resp.Body(), &bootstrap); err != nil {
		return nil, fmt.Errorf("%w: bootstrap: %v", ErrAPI, err)
	}
	if bootstrap.Cameras == nil {
		return nil, fmt.Errorf("%w: bootstrap has no cameras field", ErrAPI)
	}

	log.Info().Msg("Cameras retrieved, enumerating motion sensors")
	cameras := make([]Camera, 0, len(*bootstrap.Cameras))
	for _, cam := range *bootstrap.Cameras {
		if ps.config.Debug {
			log.Debug().Msgf("Camera: %+v", cam)
		}
		cameras = append(cameras, cam.toCamera())
	}
	return cameras, nil
}

func (rc rawCamera) toCamera() Camera {
	streams := make([]Stream, 0, len(rc.Channels))
	for _, ch := range rc.Channels {
		// channels without an alias are not exposed over RTSP
		if ch.RTSPAlias == "" {
			continue
		}
		streams = append(streams, Stream{
			Name:   ch.Name,
			Alias:  ch.RTSPAlias,
			Width:  ch.Width,
			Height: ch.Height,
			FPS:    ch.FPS,
		})
	}
	SortStreams(streams)

	return Camera{
		ID:              rc.ID,
		Name:            rc.Name,
		IPAddress:       rc.Host,
		MACAddress:      rc.Mac,
		Model:           rc.Type,
		FirmwareVersion: rc.FirmwareVersion,
		Streams:         streams,
	}
}

// SortStreams orders streams ascending by pixel area.
func SortStreams(streams []Stream) {
	sort.SliceStable(streams, func(i, j int) bool {
		return streams[i].Area() < streams[j].Area()
	})
}

// HighestResolution returns the last stream, if any.
func (c Camera) HighestResolution() (Stream, bool) {
	if len(c.Streams) == 0 {
		return Stream{}, false
	}
	return c.Streams[len(c.Streams)-1], true
}
