package platform

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 20 * time.Second
	defaultRate    = 10
	defaultBurst   = 5
)

// ThrottledTransport waits on a shared limiter before every round trip so
// login bursts and polling together stay under the configured request rate.
type ThrottledTransport struct {
	Base    http.RoundTripper
	Limiter *rate.Limiter
}

// RoundTrip implements http.RoundTripper.
func (t *ThrottledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// CloseIdleConnections forwards to the base transport when it supports it.
func (t *ThrottledTransport) CloseIdleConnections() {
	type closeIdler interface{ CloseIdleConnections() }
	if c, ok := t.Base.(closeIdler); ok {
		c.CloseIdleConnections()
	}
}

// NewHTTPClient returns a traced client whose requests are limited to
// perSecond with the given burst. Non-positive values fall back to defaults.
func NewHTTPClient(timeout time.Duration, perSecond float64, burst int) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if perSecond <= 0 {
		perSecond = defaultRate
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &ThrottledTransport{
			Base:    otelhttp.NewTransport(http.DefaultTransport),
			Limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		},
	}
}
