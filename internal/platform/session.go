package platform

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// Session is the stateful HTTP context of one authentication attempt: a
// cookie jar plus headers that are added to every request, notably the bearer
// authorization once a token is known. It has a single owner.
type Session struct {
	client *http.Client
	header http.Header

	closeOnce sync.Once
}

// NewSession creates a session with a fresh cookie jar. Transport, timeout and
// redirect policy are taken from base (nil means http.DefaultClient).
func NewSession(base *http.Client) (*Session, error) {
	if base == nil {
		base = http.DefaultClient
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("platform: create cookie jar: %w", err)
	}
	return &Session{
		client: &http.Client{
			Transport:     base.Transport,
			Timeout:       base.Timeout,
			CheckRedirect: base.CheckRedirect,
			Jar:           jar,
		},
		header: make(http.Header),
	}, nil
}

// HTTPClient returns the session's client. Session headers are only added by
// Do, not by requests sent directly through this client.
func (s *Session) HTTPClient() *http.Client {
	return s.client
}

// NoRedirectClient returns a client sharing the session's jar and transport
// that hands back redirect responses instead of following them.
func (s *Session) NoRedirectClient() *http.Client {
	c := *s.client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &c
}

// StopAtClient returns a client sharing the session's jar and transport that
// follows redirects until the next hop would satisfy stop; that redirect
// response is returned unfollowed.
func (s *Session) StopAtClient(stop func(*http.Request) bool) *http.Client {
	c := *s.client
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if stop(req) {
			return http.ErrUseLastResponse
		}
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		return nil
	}
	return &c
}

// SetHeader sets a header sent with every request made through Do.
func (s *Session) SetHeader(key, value string) {
	s.header.Set(key, value)
}

// Header returns a session header.
func (s *Session) Header(key string) string {
	return s.header.Get(key)
}

// SetBearer installs the bearer token and the authority header the API
// expects alongside it.
func (s *Session) SetBearer(token, authority string) {
	s.header.Set("Authorization", "Bearer "+token)
	if authority != "" {
		s.header.Set("Authority", authority)
	}
}

// Do sends req with the session headers. Headers already present on req win.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	for key, values := range s.header {
		if req.Header.Get(key) != "" {
			continue
		}
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return s.client.Do(req)
}

// Close releases idle connections. It is safe to call more than once.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		s.client.CloseIdleConnections()
	})
}
