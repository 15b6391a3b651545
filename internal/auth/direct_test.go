package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/xbook/internal/platform"
)

func newDirectServer(t *testing.T, accountBody string) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/auth", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("email") != "jane@example.org" || r.PostForm.Get("password") != "pw" {
			http.Error(w, `{"message":"invalid credentials"}`, http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"access_token":"opaque-token"}`)
	})
	r.Get("/auth", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer opaque-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, accountBody)
	})
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func TestDirect_Authenticate(t *testing.T) {
	ts := newDirectServer(t, `{"id":7}`)
	a, err := New(MethodDirect, platform.NewClient(ts.URL, platform.WithHTTPClient(ts.Client())))
	require.NoError(t, err)
	assert.Equal(t, MethodDirect, a.Method())

	res, err := a.Authenticate(context.Background(), Credential{Identifier: "jane@example.org", Secret: "pw"})
	require.NoError(t, err)
	defer res.Close()

	assert.Equal(t, "opaque-token", res.Token)
	require.NotNil(t, res.MemberID)
	assert.Equal(t, int64(7), *res.MemberID)
	assert.True(t, res.ExpiresAt.IsZero(), "opaque tokens carry no expiry")
}

func TestDirect_NoMemberID(t *testing.T) {
	ts := newDirectServer(t, `{}`)
	a, err := New(MethodDirect, platform.NewClient(ts.URL, platform.WithHTTPClient(ts.Client())))
	require.NoError(t, err)

	res, err := a.Authenticate(context.Background(), Credential{Identifier: "jane@example.org", Secret: "pw"})
	require.NoError(t, err)
	defer res.Close()
	assert.Nil(t, res.MemberID)
}

func TestDirect_BadCredentials(t *testing.T) {
	ts := newDirectServer(t, `{"id":7}`)
	a, err := New(MethodDirect, platform.NewClient(ts.URL, platform.WithHTTPClient(ts.Client())))
	require.NoError(t, err)

	res, err := a.Authenticate(context.Background(), Credential{Identifier: "jane@example.org", Secret: "nope"})
	require.Error(t, err)
	assert.Nil(t, res)

	var authErr *Error
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "login", authErr.Step)

	var statusErr *platform.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}
