package protectservice

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const csrfHeader = "X-CSRF-Token"

// EndpointStyle describes which API dialect the controller speaks. Build it
// with ResolveEndpointStyle, NewLegacyStyle or NewUnifiedStyle.
type EndpointStyle struct {
	BaseURL   string
	AuthURL   string
	APIURL    string
	IsLegacy  bool
	CSRFToken string

	dialect dialect
}

// dialect is the closed set of URL and header strategies.
type dialect interface {
	loginURL(style EndpointStyle) string
	headers(style EndpointStyle, session Session) map[string]string
}

type legacyDialect struct{}

func (legacyDialect) loginURL(style EndpointStyle) string {
	return style.AuthURL + "/api/auth"
}

func (legacyDialect) headers(_ EndpointStyle, session Session) map[string]string {
	h := map[string]string{"Content-Type": "application/json"}
	if session.Authorization != "" {
		h["Authorization"] = "Bearer " + session.Authorization
	}
	return h
}

type unifiedDialect struct{}

func (unifiedDialect) loginURL(style EndpointStyle) string {
	return style.AuthURL
}

func (unifiedDialect) headers(style EndpointStyle, _ Session) map[string]string {
	return map[string]string{
		"Content-Type": "application/json",
		csrfHeader:     style.CSRFToken,
	}
}

func NewLegacyStyle(baseURL string) EndpointStyle {
	base := strings.TrimRight(baseURL, "/")
	return EndpointStyle{
		BaseURL:  base,
		AuthURL:  base,
		APIURL:   base,
		IsLegacy: true,
		dialect:  legacyDialect{},
	}
}

func NewUnifiedStyle(baseURL, csrfToken string) EndpointStyle {
	base := strings.TrimRight(baseURL, "/")
	return EndpointStyle{
		BaseURL:   base,
		AuthURL:   base + "/api/auth/login",
		APIURL:    base + "/proxy/protect",
		CSRFToken: csrfToken,
		dialect:   unifiedDialect{},
	}
}

// LoginURL is where credentials are posted for this dialect.
func (s EndpointStyle) LoginURL() string {
	return s.strategy().loginURL(s)
}

// Headers returns the request headers for an API call made with session.
// Pass a zero Session for the login request itself.
func (s EndpointStyle) Headers(session Session) map[string]string {
	return s.strategy().headers(s, session)
}

func (s EndpointStyle) strategy() dialect {
	if s.dialect != nil {
		return s.dialect
	}
	if s.IsLegacy {
		return legacyDialect{}
	}
	return unifiedDialect{}
}

func (s EndpointStyle) String() string {
	if s.IsLegacy {
		return fmt.Sprintf("legacy (auth=%s api=%s)", s.AuthURL, s.APIURL)
	}
	return fmt.Sprintf("unifi-os (auth=%s api=%s)", s.AuthURL, s.APIURL)
}

// ResolveEndpointStyle probes baseURL once. The unified dialect announces
// itself with a CSRF token header on the plain GET; anything else is legacy.
// No retries happen here.
func ResolveEndpointStyle(ctx context.Context, baseURL string, timeout time.Duration) (EndpointStyle, error) {
	if timeout <= 0 || timeout > time.Second {
		timeout = time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})

	resp, err := client.R().SetContext(ctx).Get(baseURL)
	if err != nil {
		return EndpointStyle{}, fmt.Errorf("%w: %s: %v", ErrProbe, baseURL, err)
	}

	if token := resp.Header().Get(csrfHeader); token != "" {
		style := NewUnifiedStyle(baseURL, token)
		log.Info().Msgf("Controller speaks %v", style)
		return style, nil
	}
	style := NewLegacyStyle(baseURL)
	log.Info().Msgf("Controller speaks %v", style)
	return style, nil
}
