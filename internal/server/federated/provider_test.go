package federated

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newIdP(t *testing.T, userInfo map[string]any, status int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(userInfo)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testProvider(srv *httptest.Server, fields FieldMapping) *OAuthProvider {
	return NewOAuthProvider("test", &oauth2.Config{
		ClientID:     "cid",
		ClientSecret: "secret",
		RedirectURL:  "http://app/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  srv.URL + "/auth",
			TokenURL: srv.URL + "/token",
		},
	}, srv.URL+"/userinfo", fields)
}

func TestExchange_GoogleShape(t *testing.T) {
	srv := newIdP(t, map[string]any{
		"sub": "g-123", "email": "b@y.com", "email_verified": true, "name": "Bee",
	}, http.StatusOK)
	p := testProvider(srv, FieldMapping{Subject: "sub", Email: "email", EmailVerified: "email_verified", Name: "name"})

	id, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, &Identity{Provider: "test", Subject: "g-123", Email: "b@y.com", EmailVerified: true, Name: "Bee"}, id)
}

func TestExchange_NumericSubject(t *testing.T) {
	srv := newIdP(t, map[string]any{"id": 583231, "email": "octo@cat.com"}, http.StatusOK)
	p := testProvider(srv, FieldMapping{Subject: "id", Email: "email", Name: "name"})

	id, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "583231", id.Subject)
	assert.True(t, id.EmailVerified)
}

func TestExchange_UnverifiedEmail(t *testing.T) {
	srv := newIdP(t, map[string]any{"sub": "g-1", "email": "b@y.com", "email_verified": false}, http.StatusOK)
	p := testProvider(srv, FieldMapping{Subject: "sub", Email: "email", EmailVerified: "email_verified"})

	id, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.False(t, id.EmailVerified)
}

func TestExchange_Failures(t *testing.T) {
	fields := FieldMapping{Subject: "sub", Email: "email"}

	t.Run("bad code", func(t *testing.T) {
		srv := newIdP(t, map[string]any{"sub": "1", "email": "e@x.com"}, http.StatusOK)
		_, err := testProvider(srv, fields).Exchange(context.Background(), "bad-code")
		require.Error(t, err)
	})

	t.Run("empty code", func(t *testing.T) {
		srv := newIdP(t, nil, http.StatusOK)
		_, err := testProvider(srv, fields).Exchange(context.Background(), "")
		require.Error(t, err)
	})

	t.Run("userinfo status", func(t *testing.T) {
		srv := newIdP(t, map[string]any{}, http.StatusInternalServerError)
		_, err := testProvider(srv, fields).Exchange(context.Background(), "good-code")
		require.Error(t, err)
	})

	t.Run("missing email", func(t *testing.T) {
		srv := newIdP(t, map[string]any{"sub": "1", "email": nil}, http.StatusOK)
		_, err := testProvider(srv, fields).Exchange(context.Background(), "good-code")
		require.Error(t, err)
	})
}

func TestAuthCodeURL(t *testing.T) {
	srv := newIdP(t, nil, http.StatusOK)
	p := testProvider(srv, FieldMapping{})

	raw := p.AuthCodeURL("st-1")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "/auth", u.Path)
	assert.Equal(t, "st-1", u.Query().Get("state"))
	assert.Equal(t, "cid", u.Query().Get("client_id"))
	assert.Equal(t, "http://app/callback", u.Query().Get("redirect_uri"))
}

func TestBuiltInProviders(t *testing.T) {
	g := Google("id", "secret", "http://app/api/v1/auth/google/callback")
	assert.Equal(t, "google", g.Name())
	assert.Contains(t, g.AuthCodeURL("s"), "accounts.google.com")

	gh := GitHub("id", "secret", "http://app/api/v1/auth/github/callback")
	assert.Equal(t, "github", gh.Name())
	assert.Contains(t, gh.AuthCodeURL("s"), "github.com/login/oauth/authorize")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(GitHub("a", "b", "c"), Google("a", "b", "c"))

	p, err := r.Get("google")
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name())

	_, err = r.Get("facebook")
	require.ErrorIs(t, err, common.ErrorNotFound)

	assert.Equal(t, []string{"github", "google"}, r.Names())
}

func TestState(t *testing.T) {
	a, err := State()
	require.NoError(t, err)
	b, err := State()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64)
}
