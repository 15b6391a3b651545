package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	"github.com/wolfman30/xbook/internal/markup"
	"github.com/wolfman30/xbook/internal/platform"
	"github.com/wolfman30/xbook/pkg/logging"
)

var tracer = otel.Tracer("xbook.internal.auth")

// Endpoints are the fixed URLs and parameters of the federated login.
type Endpoints struct {
	AuthorizeURL string
	TokenURL     string
	WAYFURL      string
	IdPEntityID  string
	LoginURL     string
	ConsumeURL   string
	SSOURL       string
	RedirectURL  string
	ClientID     string

	// InitialState and InitialChallenge are the values the web frontend
	// sends on its first authorize request.
	InitialState     string
	InitialChallenge string

	// LoginTerminator and ConsumeTerminator end the SAMLResponse value on
	// the IdP login page and the assertion consumer page respectively.
	LoginTerminator   string
	ConsumeTerminator string
}

// DefaultEndpoints returns the production login endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		AuthorizeURL:      "https://connect.surfconext.nl/oidc/authorize",
		TokenURL:          "https://connect.surfconext.nl/oidc/token",
		WAYFURL:           "https://engine.surfconext.nl/authentication/idp/process-wayf",
		IdPEntityID:       "https://login.tudelft.nl/sso/saml2/idp/metadata.php",
		LoginURL:          "https://login.tudelft.nl/sso/module.php/core/loginuserpass.php",
		ConsumeURL:        "https://engine.surfconext.nl/authentication/sp/consume-assertion",
		SSOURL:            "https://connect.surfconext.nl/login/saml2/sso/oidcng",
		RedirectURL:       "https://x.tudelft.nl/oidc/auth-callback",
		ClientID:          "web-sporter-frontend.production.delft.delcom.nl",
		InitialState:      "gS8rpo7j35",
		InitialChallenge:  "2IQEGC4crEF7wPOr9McpbqIi64Z-Polhyn3WGqFOfdU",
		LoginTerminator:   `">`,
		ConsumeTerminator: `">`,
	}
}

var authStatePattern = regexp.MustCompile(`AuthState=([^"'&<>\s]+)`)

// FederatedAuthenticator runs the SAML + OIDC/PKCE login. Each step is a
// method taking the previous step's output; any unexpected response ends the
// attempt with an *Error naming the step.
type FederatedAuthenticator struct {
	api       *platform.Client
	endpoints Endpoints
	extractor markup.Extractor
	oauth     *oauth2.Config
	logger    *logging.Logger
}

func newFederated(api *platform.Client, o options) *FederatedAuthenticator {
	e := o.endpoints
	return &FederatedAuthenticator{
		api:       api,
		endpoints: e,
		extractor: o.extractor,
		logger:    o.logger,
		oauth: &oauth2.Config{
			ClientID:    e.ClientID,
			RedirectURL: e.RedirectURL,
			Scopes:      []string{"openid"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   e.AuthorizeURL,
				TokenURL:  e.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// Method implements Authenticator.
func (f *FederatedAuthenticator) Method() Method {
	return MethodFederatedSSO
}

// Authenticate implements Authenticator.
func (f *FederatedAuthenticator) Authenticate(ctx context.Context, cred Credential) (res *Result, err error) {
	ctx, span := tracer.Start(ctx, "auth.federated")
	defer span.End()
	span.SetAttributes(attribute.String("xbook.auth_method", MethodFederatedSSO.String()))

	sess, err := platform.NewSession(f.api.HTTPClient())
	if err != nil {
		return nil, &Error{Step: "session", Err: err}
	}
	defer func() {
		if err != nil {
			sess.Close()
		}
	}()

	f.logger.Info("authenticating", "method", MethodFederatedSSO.String(), "identifier", cred)

	idpID, err := f.authorize(ctx, sess)
	if err != nil {
		return nil, err
	}
	authState, err := f.selectIdP(ctx, sess, idpID)
	if err != nil {
		return nil, err
	}
	assertion, err := f.login(ctx, sess, cred, authState)
	if err != nil {
		return nil, err
	}
	assertion, err = f.consumeAssertion(ctx, sess, assertion)
	if err != nil {
		return nil, err
	}
	state, err := f.brokerSSO(ctx, sess, assertion)
	if err != nil {
		return nil, err
	}

	verifier := oauth2.GenerateVerifier()
	code, err := f.authorizePKCE(ctx, sess, state, verifier)
	if err != nil {
		return nil, err
	}
	tok, err := f.exchange(ctx, sess, code, verifier)
	if err != nil {
		return nil, err
	}
	sess.SetBearer(tok.AccessToken, f.api.Authority())

	memberID, err := resolveMember(ctx, f.api, sess)
	if err != nil {
		return nil, err
	}
	if memberID == nil {
		f.logger.Warn("account has no member id")
	}

	expires := TokenExpiry(tok.AccessToken)
	if expires.IsZero() {
		expires = tok.Expiry
	}
	return &Result{
		Session:   sess,
		Token:     tok.AccessToken,
		MemberID:  memberID,
		ExpiresAt: expires,
	}, nil
}

// authorize opens the authorize endpoint with the frontend's own state and
// challenge and returns the IdP discovery ID from the returned page.
func (f *FederatedAuthenticator) authorize(ctx context.Context, sess *platform.Session) (string, error) {
	const step = "authorize"
	ctx, span := tracer.Start(ctx, "auth.federated."+step)
	defer span.End()

	authURL := f.oauth.AuthCodeURL(f.endpoints.InitialState,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("code_challenge", f.endpoints.InitialChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL, nil)
	if err != nil {
		return "", &Error{Step: step, Err: err}
	}
	_, body, err := f.fetch(sess.HTTPClient(), req, step)
	if err != nil {
		return "", err
	}
	return f.extract(body, markup.HiddenInput("ID", `"/>`), step)
}

// selectIdP posts the discovery choice and returns the AuthState the IdP
// login form expects.
func (f *FederatedAuthenticator) selectIdP(ctx context.Context, sess *platform.Session, idpID string) (string, error) {
	const step = "wayf"
	ctx, span := tracer.Start(ctx, "auth.federated."+step)
	defer span.End()

	req, err := newFormRequest(ctx, f.endpoints.WAYFURL, url.Values{
		"ID":  {idpID},
		"idp": {f.endpoints.IdPEntityID},
	})
	if err != nil {
		return "", &Error{Step: step, Err: err}
	}
	resp, body, err := f.fetch(sess.HTTPClient(), req, step)
	if err != nil {
		return "", err
	}

	if state := resp.Request.URL.Query().Get("AuthState"); state != "" {
		return state, nil
	}
	if m := authStatePattern.FindStringSubmatch(body); m != nil {
		if state, err := url.QueryUnescape(m[1]); err == nil && state != "" {
			return state, nil
		}
	}
	return "", &Error{Step: step, Err: errors.New("no AuthState after discovery")}
}

// login submits the credential to the IdP and returns the first SAML
// assertion.
func (f *FederatedAuthenticator) login(ctx context.Context, sess *platform.Session, cred Credential, authState string) (string, error) {
	const step = "idp_login"
	ctx, span := tracer.Start(ctx, "auth.federated."+step)
	defer span.End()

	req, err := newFormRequest(ctx, f.endpoints.LoginURL, url.Values{
		"username":  {cred.Identifier},
		"password":  {cred.Secret},
		"AuthState": {authState},
	})
	if err != nil {
		return "", &Error{Step: step, Err: err}
	}
	_, body, err := f.fetch(sess.HTTPClient(), req, step)
	if err != nil {
		return "", err
	}
	return f.extract(body, markup.HiddenInput("SAMLResponse", f.endpoints.LoginTerminator), step)
}

// consumeAssertion hands the IdP assertion to the proxy and returns the
// re-wrapped assertion for the OIDC broker.
func (f *FederatedAuthenticator) consumeAssertion(ctx context.Context, sess *platform.Session, assertion string) (string, error) {
	const step = "consume_assertion"
	ctx, span := tracer.Start(ctx, "auth.federated."+step)
	defer span.End()

	req, err := newFormRequest(ctx, f.endpoints.ConsumeURL, url.Values{"SAMLResponse": {assertion}})
	if err != nil {
		return "", &Error{Step: step, Err: err}
	}
	_, body, err := f.fetch(sess.HTTPClient(), req, step)
	if err != nil {
		return "", err
	}
	return f.extract(body, markup.HiddenInput("SAMLResponse", f.endpoints.ConsumeTerminator), step)
}

// brokerSSO posts the assertion to the OIDC broker without following its
// redirect. The broker's cookies land in the jar and the redirect carries the
// state for the PKCE round.
func (f *FederatedAuthenticator) brokerSSO(ctx context.Context, sess *platform.Session, assertion string) (string, error) {
	const step = "broker_sso"
	ctx, span := tracer.Start(ctx, "auth.federated."+step)
	defer span.End()

	req, err := newFormRequest(ctx, f.endpoints.SSOURL, url.Values{"SAMLResponse": {assertion}})
	if err != nil {
		return "", &Error{Step: step, Err: err}
	}
	resp, err := sess.NoRedirectClient().Do(req)
	if err != nil {
		return "", &Error{Step: step, Err: &platform.TransportError{Op: step, Err: err}}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	loc, err := resp.Location()
	if err != nil {
		return "", &Error{Step: step, Err: fmt.Errorf("status %d without redirect", resp.StatusCode)}
	}
	state := loc.Query().Get("state")
	if state == "" {
		return "", &Error{Step: step, Err: errors.New("redirect has no state")}
	}
	return state, nil
}

// authorizePKCE repeats the authorize request with the broker's state and a
// challenge derived from verifier, following redirects up to the callback and
// returning its authorization code. The callback page is never fetched.
func (f *FederatedAuthenticator) authorizePKCE(ctx context.Context, sess *platform.Session, state, verifier string) (string, error) {
	const step = "pkce_authorize"
	ctx, span := tracer.Start(ctx, "auth.federated."+step)
	defer span.End()

	authURL := f.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL, nil)
	if err != nil {
		return "", &Error{Step: step, Err: err}
	}

	client := sess.StopAtClient(f.isCallback)
	resp, err := client.Do(req)
	if err != nil {
		return "", &Error{Step: step, Err: &platform.TransportError{Op: step, Err: err}}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if loc, err := resp.Location(); err == nil {
		if code := loc.Query().Get("code"); code != "" {
			return code, nil
		}
	}
	if code := resp.Request.URL.Query().Get("code"); code != "" {
		return code, nil
	}
	return "", &Error{Step: step, Err: fmt.Errorf("no authorization code (status %d)", resp.StatusCode)}
}

func (f *FederatedAuthenticator) exchange(ctx context.Context, sess *platform.Session, code, verifier string) (*oauth2.Token, error) {
	const step = "token"
	ctx, span := tracer.Start(ctx, "auth.federated."+step)
	defer span.End()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, sess.HTTPClient())
	tok, err := f.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, &Error{Step: step, Err: err}
	}
	if tok.AccessToken == "" {
		return nil, &Error{Step: step, Err: platform.ErrEmptyToken}
	}
	return tok, nil
}

func (f *FederatedAuthenticator) isCallback(req *http.Request) bool {
	target, err := url.Parse(f.endpoints.RedirectURL)
	if err != nil {
		return false
	}
	return req.URL.Host == target.Host && req.URL.Path == target.Path
}

func (f *FederatedAuthenticator) extract(body string, field markup.Field, step string) (string, error) {
	value, err := f.extractor.Extract(body, field)
	if err != nil {
		return "", &Error{Step: step, Err: err}
	}
	return value, nil
}

// fetch sends req, requires a 2xx final response and returns its body.
func (f *FederatedAuthenticator) fetch(client *http.Client, req *http.Request, step string) (*http.Response, string, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", &Error{Step: step, Err: &platform.TransportError{Op: step, Err: err}}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &Error{Step: step, Err: &platform.TransportError{Op: step, Err: err}}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &Error{Step: step, Err: &platform.StatusError{Op: step, StatusCode: resp.StatusCode, Body: truncate(body)}}
	}
	f.logger.Debug("login step complete", "step", step, "status", resp.StatusCode)
	return resp, string(body), nil
}

func newFormRequest(ctx context.Context, target string, form url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

func truncate(b []byte) string {
	if len(b) > 200 {
		b = b[:200]
	}
	return string(b)
}

var _ Authenticator = (*FederatedAuthenticator)(nil)
