// Package auth turns a credential into an authenticated platform session.
//
// Two login flows exist and they are not interchangeable: the federated
// SAML + OIDC/PKCE flow for institutional accounts and a direct e-mail and
// password login. The method is chosen once per process.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wolfman30/xbook/internal/markup"
	"github.com/wolfman30/xbook/internal/platform"
	"github.com/wolfman30/xbook/pkg/logging"
)

// Method selects the login flow.
type Method int

const (
	MethodFederatedSSO Method = iota
	MethodDirect
)

func (m Method) String() string {
	switch m {
	case MethodFederatedSSO:
		return "federated_sso"
	case MethodDirect:
		return "direct"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod accepts the configured names of the two login flows.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "federated_sso", "tud_sso", "sso":
		return MethodFederatedSSO, nil
	case "direct", "other":
		return MethodDirect, nil
	default:
		return 0, fmt.Errorf("auth: unknown method %q", s)
	}
}

// Credential is a login identifier (net-ID or e-mail) and its password.
type Credential struct {
	Identifier string
	Secret     string
}

// String hides the secret.
func (c Credential) String() string {
	return c.Identifier + ":***"
}

// LogValue implements slog.LogValuer so a credential never reaches the logs
// with its secret.
func (c Credential) LogValue() slog.Value {
	return slog.StringValue(c.Identifier)
}

// Result is the outcome of a successful login. MemberID is nil when the
// platform did not report one. ExpiresAt is zero when unknown.
type Result struct {
	Session   *platform.Session
	Token     string
	MemberID  *int64
	ExpiresAt time.Time
}

// Close releases the result's session.
func (r *Result) Close() {
	if r == nil {
		return
	}
	r.Session.Close()
}

// Error reports the login step that failed.
type Error struct {
	Step string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("auth: %s: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Authenticator performs one complete login. Every call starts from a fresh
// session; on failure no session is returned.
type Authenticator interface {
	Method() Method
	Authenticate(ctx context.Context, cred Credential) (*Result, error)
}

type options struct {
	logger    *logging.Logger
	extractor markup.Extractor
	endpoints Endpoints
}

// Option configures an Authenticator.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithExtractor sets the extractor used on federated login pages.
func WithExtractor(e markup.Extractor) Option {
	return func(o *options) {
		if e != nil {
			o.extractor = e
		}
	}
}

// WithEndpoints overrides the federated login endpoints.
func WithEndpoints(e Endpoints) Option {
	return func(o *options) {
		o.endpoints = e
	}
}

// New returns the authenticator for method. api is the booking platform
// client; its HTTP client (and so its throttle) is shared by every session.
func New(method Method, api *platform.Client, opts ...Option) (Authenticator, error) {
	if api == nil {
		return nil, fmt.Errorf("auth: platform client is required")
	}
	o := options{
		logger:    logging.Default(),
		extractor: markup.MarkerExtractor{},
		endpoints: DefaultEndpoints(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	switch method {
	case MethodFederatedSSO:
		return newFederated(api, o), nil
	case MethodDirect:
		return &DirectAuthenticator{api: api, logger: o.logger}, nil
	default:
		return nil, fmt.Errorf("auth: unsupported method %s", method)
	}
}
