package protectservice

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// ProtectService talks to the controller HTTP API. Every call goes through a
// resty client that retries transport failures with exponential backoff.
type ProtectService struct {
	http   *resty.Client
	config ProtectConfig
	now    func() time.Time
}

func NewProtectService(config ProtectConfig) *ProtectService {
	backoff := config.Backoff()
	client := resty.New().
		SetTimeout(config.Timeout()).
		SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}). // controllers ship self-signed certs
		SetHeader("Accept", "application/json").
		SetRetryCount(config.MaxRetries).
		SetRetryWaitTime(backoff).
		SetRetryMaxWaitTime(backoff << max(config.MaxRetries, 0)).
		AddRetryCondition(isTransient)

	client.OnError(func(req *resty.Request, err error) {
		log.Debug().Msgf("Request to %s failed after %d attempt(s): %v", req.URL, req.Attempt, err)
	})

	return &ProtectService{
		http:   client,
		config: config,
		now:    time.Now,
	}
}

// isTransient limits retries to failures that may clear up on their own.
// A 4xx is the controller's final word and is returned as-is.
func isTransient(resp *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return false
	}
	code := resp.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func isAuthRejection(resp *resty.Response) bool {
	code := resp.StatusCode()
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// classify maps the result of an API call (not the login) onto the error
// taxonomy. Exhausted retries surface as ErrAPI wrapping ErrTransport. A nil
// return means resp is a usable 2xx.
func classify(what string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w: %s: %v", ErrAPI, ErrTransport, what, err)
	}
	if isAuthRejection(resp) {
		return fmt.Errorf("%w: %s: status %d", ErrAuth, what, resp.StatusCode())
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %w: %s: status %d", ErrAPI, ErrTransport, what, resp.StatusCode())
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %s: status %d", ErrAPI, what, resp.StatusCode())
	}
	return nil
}
