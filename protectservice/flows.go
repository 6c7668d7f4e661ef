package protectservice

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// Flows keeps the session and camera list alive across poll cycles. Any
// ErrAuth or ErrAPI drops the session so the next cycle logs in again; an
// ErrAPI also drops the cached camera list.
type Flows struct {
	service  *ProtectService
	style    EndpointStyle
	username string
	password string

	mu      sync.Mutex
	session Session
	cameras []Camera
}

func NewFlows(service *ProtectService, style EndpointStyle, username, password string) *Flows {
	return &Flows{
		service:  service,
		style:    style,
		username: username,
		password: password,
	}
}

func (f *Flows) Style() EndpointStyle {
	return f.style
}

// Cameras returns the cached camera list, enumerating it when empty.
func (f *Flows) Cameras(ctx context.Context) ([]Camera, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cameras != nil {
		return f.cameras, nil
	}
	session, err := f.ensureSession(ctx)
	if err != nil {
		return nil, err
	}
	cameras, err := f.service.EnumerateCameras(ctx, session, f.style)
	if err != nil {
		f.dropSession(err)
		return nil, err
	}
	f.cameras = cameras
	return cameras, nil
}

// InvalidateCameras forces the next Cameras call to hit the controller.
func (f *Flows) InvalidateCameras() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cameras = nil
}

// LatestMotionEventPerCamera is one poll: make sure the session is usable,
// then fetch and correlate events for cameras.
func (f *Flows) LatestMotionEventPerCamera(ctx context.Context, cameras []Camera) ([]MotionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	session, err := f.ensureSession(ctx)
	if err != nil {
		return nil, err
	}
	events, err := f.service.FetchLatestPerCamera(ctx, cameras, session, f.style)
	if err != nil {
		f.dropSession(err)
		return nil, err
	}
	return events, nil
}

func (f *Flows) ensureSession(ctx context.Context) (Session, error) {
	if f.service.IsSessionValid(f.session) {
		return f.session, nil
	}
	session, err := f.service.Authenticate(ctx, f.username, f.password, f.style)
	if err != nil {
		return Session{}, err
	}
	f.session = session
	return session, nil
}

func (f *Flows) dropSession(err error) {
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrAPI) {
		log.Warn().Msgf("Dropping session after controller error: %v", err)
		f.session = Session{}
	}
	if errors.Is(err, ErrAPI) {
		f.cameras = nil
	}
}
