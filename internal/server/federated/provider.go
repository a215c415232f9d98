// Package federated talks to external OAuth2 identity providers and turns
// their user info into an Identity. It makes no account decisions.
package federated

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

// Identity is what a provider vouches for after a successful exchange.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// FieldMapping names the user info JSON fields to read.
// An empty EmailVerified means the provider only returns verified emails.
type FieldMapping struct {
	Subject       string
	Email         string
	EmailVerified string
	Name          string
}

// OAuthProvider runs the authorization code flow and then reads the user
// info endpoint with the obtained token.
type OAuthProvider struct {
	name        string
	config      *oauth2.Config
	userInfoURL string
	fields      FieldMapping
	maxBody     int64
}

func NewOAuthProvider(name string, config *oauth2.Config, userInfoURL string, fields FieldMapping) *OAuthProvider {
	return &OAuthProvider{
		name:        name,
		config:      config,
		userInfoURL: userInfoURL,
		fields:      fields,
		maxBody:     1 << 20,
	}
}

// Google builds the "google" provider. Its userinfo endpoint returns
// sub/email/email_verified/name.
func Google(clientID, clientSecret, redirectURL string) *OAuthProvider {
	return NewOAuthProvider("google", &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
	}, "https://openidconnect.googleapis.com/v1/userinfo", FieldMapping{
		Subject:       "sub",
		Email:         "email",
		EmailVerified: "email_verified",
		Name:          "name",
	})
}

// GitHub builds the "github" provider. GitHub only exposes a public email
// on /user; accounts with a private email cannot sign in this way.
func GitHub(clientID, clientSecret, redirectURL string) *OAuthProvider {
	return NewOAuthProvider("github", &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     github.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       []string{"user:email"},
	}, "https://api.github.com/user", FieldMapping{
		Subject: "id",
		Email:   "email",
		Name:    "name",
	})
}

func (p *OAuthProvider) Name() string { return p.name }

func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *OAuthProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	if code == "" {
		return nil, errors.New("empty authorization code")
	}

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s token exchange: %w", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s user info: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s user info: unexpected status %d", p.name, resp.StatusCode)
	}

	var info map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, p.maxBody)).Decode(&info); err != nil {
		return nil, fmt.Errorf("%s user info decode: %w", p.name, err)
	}

	id := &Identity{
		Provider:      p.name,
		Subject:       stringField(info, p.fields.Subject),
		Email:         stringField(info, p.fields.Email),
		EmailVerified: true,
		Name:          stringField(info, p.fields.Name),
	}
	if p.fields.EmailVerified != "" {
		v, _ := info[p.fields.EmailVerified].(bool)
		id.EmailVerified = v
	}

	if id.Subject == "" || id.Email == "" {
		return nil, fmt.Errorf("%s user info missing subject or email", p.name)
	}
	return id, nil
}

func stringField(info map[string]any, name string) string {
	if name == "" {
		return ""
	}
	switch v := info[name].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// State returns a random value for the OAuth2 state parameter.
func State() (string, error) {
	return common.MakeRandHexString(32)
}
