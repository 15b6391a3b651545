package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/xbook/internal/markup"
	"github.com/wolfman30/xbook/internal/platform"
)

// fakeFederation serves every hop of the federated login from one server.
type fakeFederation struct {
	t      *testing.T
	server *httptest.Server

	mu        sync.Mutex
	challenge string
	token     string

	// knobs for failure cases
	omitID          bool
	authStateInBody bool
	tokenStatus     int
	accountBody     string
}

func newFakeFederation(t *testing.T) *fakeFederation {
	t.Helper()
	f := &fakeFederation{t: t, accountBody: `{"id":42}`}

	exp := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	f.token = signed

	r := chi.NewRouter()
	r.Get("/oidc/authorize", f.handleAuthorize)
	r.Post("/wayf", f.handleWAYF)
	r.Get("/idp/sso", f.handleIdPForm)
	r.Post("/idp/login", f.handleLogin)
	r.Post("/consume", f.handleConsume)
	r.Post("/sso", f.handleSSO)
	r.Get("/oidc/auth-callback", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("callback must not be fetched")
	})
	r.Post("/oidc/token", f.handleToken)
	r.Get("/api/auth", f.handleAccount)

	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeFederation) endpoints() Endpoints {
	base := f.server.URL
	e := DefaultEndpoints()
	e.AuthorizeURL = base + "/oidc/authorize"
	e.TokenURL = base + "/oidc/token"
	e.WAYFURL = base + "/wayf"
	e.LoginURL = base + "/idp/login"
	e.ConsumeURL = base + "/consume"
	e.SSOURL = base + "/sso"
	e.RedirectURL = base + "/oidc/auth-callback"
	return e
}

func (f *fakeFederation) client() *platform.Client {
	return platform.NewClient(f.server.URL+"/api", platform.WithHTTPClient(f.server.Client()))
}

func (f *fakeFederation) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("client_id") != DefaultEndpoints().ClientID || q.Get("response_type") != "code" ||
		q.Get("scope") != "openid" || q.Get("access_type") != "offline" || q.Get("code_challenge_method") != "S256" {
		http.Error(w, "bad authorize request", http.StatusBadRequest)
		return
	}

	switch q.Get("state") {
	case DefaultEndpoints().InitialState:
		if q.Get("code_challenge") != DefaultEndpoints().InitialChallenge {
			http.Error(w, "unexpected challenge", http.StatusBadRequest)
			return
		}
		if f.omitID {
			fmt.Fprint(w, `<html><form></form></html>`)
			return
		}
		fmt.Fprint(w, `<html><form method="post"><input type="hidden" name="ID" value="idp-id-1"/></form></html>`)
	case "broker-state":
		if _, err := r.Cookie("broker"); err != nil {
			http.Error(w, "missing broker cookie", http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		f.challenge = q.Get("code_challenge")
		f.mu.Unlock()
		http.Redirect(w, r, "/oidc/auth-callback?code=auth-code-1&state=broker-state", http.StatusFound)
	default:
		http.Error(w, "unknown state", http.StatusBadRequest)
	}
}

func (f *fakeFederation) handleWAYF(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	if r.PostForm.Get("ID") != "idp-id-1" || r.PostForm.Get("idp") != DefaultEndpoints().IdPEntityID {
		http.Error(w, "bad discovery", http.StatusBadRequest)
		return
	}
	if f.authStateInBody {
		fmt.Fprint(w, `<a href="/idp/login?AuthState=state%3Aabc">continue</a>`)
		return
	}
	http.Redirect(w, r, "/idp/sso?AuthState="+url.QueryEscape("state:abc"), http.StatusFound)
}

func (f *fakeFederation) handleIdPForm(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, `<form action="/idp/login"><input name="username"/></form>`)
}

func (f *fakeFederation) handleLogin(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	if r.PostForm.Get("AuthState") != "state:abc" {
		http.Error(w, "bad AuthState", http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("username") != "jdoe" || r.PostForm.Get("password") != "secret" {
		fmt.Fprint(w, `<p>Incorrect username or password</p>`)
		return
	}
	fmt.Fprint(w, `<form><input type="hidden" name="SAMLResponse" value="saml-one"></form>`)
}

func (f *fakeFederation) handleConsume(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	if r.PostForm.Get("SAMLResponse") != "saml-one" {
		http.Error(w, "bad assertion", http.StatusBadRequest)
		return
	}
	fmt.Fprint(w, `<form><input type="hidden" name="SAMLResponse" value="saml-two"></form>`)
}

func (f *fakeFederation) handleSSO(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	if r.PostForm.Get("SAMLResponse") != "saml-two" {
		http.Error(w, "bad assertion", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "broker", Value: "b1", Path: "/"})
	http.Redirect(w, r, "/oidc/authorize?state=broker-state&client_id=x", http.StatusFound)
}

func (f *fakeFederation) handleToken(w http.ResponseWriter, r *http.Request) {
	if f.tokenStatus != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.tokenStatus)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
		return
	}
	_ = r.ParseForm()
	form := r.PostForm
	f.mu.Lock()
	challenge := f.challenge
	f.mu.Unlock()

	sum := sha256.Sum256([]byte(form.Get("code_verifier")))
	if form.Get("grant_type") != "authorization_code" || form.Get("code") != "auth-code-1" ||
		form.Get("client_id") != DefaultEndpoints().ClientID ||
		base64.RawURLEncoding.EncodeToString(sum[:]) != challenge {
		http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"access_token":%q,"token_type":"Bearer","expires_in":3600}`, f.token)
}

func (f *fakeFederation) handleAccount(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+f.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	fmt.Fprint(w, f.accountBody)
}

func newFederatedAuth(t *testing.T, f *fakeFederation, opts ...Option) Authenticator {
	t.Helper()
	opts = append([]Option{WithEndpoints(f.endpoints())}, opts...)
	a, err := New(MethodFederatedSSO, f.client(), opts...)
	require.NoError(t, err)
	return a
}

func TestFederated_FullFlow(t *testing.T) {
	fake := newFakeFederation(t)
	a := newFederatedAuth(t, fake)

	res, err := a.Authenticate(context.Background(), Credential{Identifier: "jdoe", Secret: "secret"})
	require.NoError(t, err)
	defer res.Close()

	assert.Equal(t, fake.token, res.Token)
	require.NotNil(t, res.MemberID)
	assert.Equal(t, int64(42), *res.MemberID)
	assert.Equal(t, time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC), res.ExpiresAt.UTC())
	assert.Equal(t, "Bearer "+fake.token, res.Session.Header("Authorization"))
	assert.NotEmpty(t, res.Session.Header("Authority"))
}

func TestFederated_AuthStateFromBody(t *testing.T) {
	fake := newFakeFederation(t)
	fake.authStateInBody = true
	a := newFederatedAuth(t, fake)

	res, err := a.Authenticate(context.Background(), Credential{Identifier: "jdoe", Secret: "secret"})
	require.NoError(t, err)
	res.Close()
}

func TestFederated_GoqueryExtractor(t *testing.T) {
	fake := newFakeFederation(t)
	a := newFederatedAuth(t, fake, WithExtractor(markup.FormExtractor{}))

	res, err := a.Authenticate(context.Background(), Credential{Identifier: "jdoe", Secret: "secret"})
	require.NoError(t, err)
	res.Close()
}

func TestFederated_MemberIDAbsent(t *testing.T) {
	fake := newFakeFederation(t)
	fake.accountBody = `{"email":"jdoe@example.org"}`
	a := newFederatedAuth(t, fake)

	res, err := a.Authenticate(context.Background(), Credential{Identifier: "jdoe", Secret: "secret"})
	require.NoError(t, err)
	defer res.Close()
	assert.Nil(t, res.MemberID)
	assert.NotEmpty(t, res.Token)
}

func TestFederated_StepFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*fakeFederation)
		cred     Credential
		wantStep string
	}{
		{
			name:     "missing discovery id",
			setup:    func(f *fakeFederation) { f.omitID = true },
			cred:     Credential{Identifier: "jdoe", Secret: "secret"},
			wantStep: "authorize",
		},
		{
			name:     "wrong password",
			setup:    func(*fakeFederation) {},
			cred:     Credential{Identifier: "jdoe", Secret: "wrong"},
			wantStep: "idp_login",
		},
		{
			name:     "token endpoint rejects",
			setup:    func(f *fakeFederation) { f.tokenStatus = http.StatusBadRequest },
			cred:     Credential{Identifier: "jdoe", Secret: "secret"},
			wantStep: "token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeFederation(t)
			tt.setup(fake)
			a := newFederatedAuth(t, fake)

			res, err := a.Authenticate(context.Background(), tt.cred)
			require.Error(t, err)
			assert.Nil(t, res)

			var authErr *Error
			require.True(t, errors.As(err, &authErr), "want *Error, got %T", err)
			assert.Equal(t, tt.wantStep, authErr.Step)
		})
	}
}

func TestFederated_BrokerWithoutState(t *testing.T) {
	fake := newFakeFederation(t)
	e := fake.endpoints()
	// Point the broker step at an endpoint that answers 200 instead of redirecting.
	e.SSOURL = fake.server.URL + "/idp/sso"
	a, err := New(MethodFederatedSSO, fake.client(), WithEndpoints(e))
	require.NoError(t, err)

	_, err = a.Authenticate(context.Background(), Credential{Identifier: "jdoe", Secret: "secret"})
	var authErr *Error
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "broker_sso", authErr.Step)
}

func TestFederated_TransportFailure(t *testing.T) {
	fake := newFakeFederation(t)
	e := fake.endpoints()
	fake.server.Close()
	a, err := New(MethodFederatedSSO, fake.client(), WithEndpoints(e))
	require.NoError(t, err)

	_, err = a.Authenticate(context.Background(), Credential{Identifier: "jdoe", Secret: "secret"})
	var authErr *Error
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "authorize", authErr.Step)
	assert.True(t, platform.IsTransport(err))
}
