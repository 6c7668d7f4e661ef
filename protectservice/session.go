package protectservice

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// SessionTTL is how long a session is trusted after login. The dialects do
// not report expiry the same way, so sessions are retired client side.
const SessionTTL = 12 * time.Hour

// Authenticate logs in and returns a fresh session. Bad credentials (401/403)
// are not retried.
func (ps *ProtectService) Authenticate(ctx context.Context, username, password string, style EndpointStyle) (Session, error) {
	if username == "" || password == "" {
		return Session{}, fmt.Errorf("%w: username and password must be set", ErrConfig)
	}

	resp, err := ps.http.R().
		SetContext(ctx).
		SetHeaders(style.Headers(Session{})).
		SetBody(loginRequest{Username: username, Password: password}).
		Post(style.LoginURL())
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w: %v", ErrAuth, ErrTransport, err)
	}
	if isAuthRejection(resp) {
		return Session{}, fmt.Errorf("%w: controller rejected credentials for %q (status %d)", ErrAuth, username, resp.StatusCode())
	}
	if isTransient(resp, nil) {
		return Session{}, fmt.Errorf("%w: %w: login returned status %d", ErrAuth, ErrTransport, resp.StatusCode())
	}
	if resp.IsError() {
		return Session{}, fmt.Errorf("%w: login returned status %d", ErrAuth, resp.StatusCode())
	}

	authorization := resp.Header().Get("Authorization")
	if authorization == "" {
		return Session{}, fmt.Errorf("%w: login response carried no authorization header", ErrAuth)
	}

	log.Info().Msg("Authenticated, returning session")
	return Session{
		Authorization: authorization,
		CreatedAt:     ps.now(),
	}, nil
}

// IsSessionValid reports whether session is still inside its TTL.
func (ps *ProtectService) IsSessionValid(session Session) bool {
	if session.ValidAt(ps.now()) {
		return true
	}
	if session.CreatedAt.IsZero() {
		log.Warn().Msg("No previous session found, a new session must be created")
	} else {
		log.Warn().Msg("Session expired, a new session must be created")
	}
	return false
}

func (s Session) ValidAt(now time.Time) bool {
	if s.CreatedAt.IsZero() {
		return false
	}
	return now.Sub(s.CreatedAt) < SessionTTL
}
