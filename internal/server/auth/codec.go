// Package auth issues and verifies the signed bearer tokens used by the
// server and hashes account passwords.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenUse tells access and renewal tokens apart inside the claims.
type TokenUse string

const (
	UseAccess  TokenUse = "access"
	UseRenewal TokenUse = "renewal"
)

// Claims are the registered JWT claims plus the token use.
// Subject carries the account email.
type Claims struct {
	jwt.RegisteredClaims
	TokenUse TokenUse `json:"token_use,omitempty"`
}

// CodecConfig is copied into the Codec at construction and never read again.
type CodecConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RenewalTTL time.Duration
}

// Codec signs and verifies HS256 tokens with a single process-wide secret.
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	renewalTTL time.Duration
	now        func() time.Time
}

type Option func(*Codec)

// WithClock replaces time.Now; used by tests to move tokens past expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func NewCodec(cfg CodecConfig, opts ...Option) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("codec: empty secret")
	}
	if cfg.AccessTTL <= 0 || cfg.RenewalTTL <= 0 {
		return nil, errors.New("codec: token lifetimes must be positive")
	}
	if cfg.AccessTTL >= cfg.RenewalTTL {
		return nil, errors.New("codec: access lifetime must be shorter than renewal lifetime")
	}

	c := &Codec{
		secret:     append([]byte(nil), cfg.Secret...),
		accessTTL:  cfg.AccessTTL,
		renewalTTL: cfg.RenewalTTL,
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Codec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *Codec) RenewalTTL() time.Duration { return c.renewalTTL }

func (c *Codec) IssueAccess(subject string) (string, error) {
	return c.issue(subject, UseAccess, c.accessTTL)
}

func (c *Codec) IssueRenewal(subject string) (string, error) {
	return c.issue(subject, UseRenewal, c.renewalTTL)
}

func (c *Codec) issue(subject string, use TokenUse, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("codec: empty subject")
	}
	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		TokenUse: use,
	})

	return token.SignedString(c.secret)
}

// Verify checks signature and expiry and returns the subject. It accepts
// either token use; VerifyAccess and VerifyRenewal also pin the use.
// Every failure collapses to common.ErrTokenExpired or common.ErrInvalidToken.
func (c *Codec) Verify(tokenString string) (string, error) {
	claims, err := c.parse(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// VerifyAccess is Verify for tokens presented as request credentials.
// A renewal token fails with common.ErrInvalidToken.
func (c *Codec) VerifyAccess(tokenString string) (string, error) {
	return c.verifyUse(tokenString, UseAccess)
}

// VerifyRenewal is Verify for tokens presented to mint a new access token.
// An access token fails with common.ErrInvalidToken.
func (c *Codec) VerifyRenewal(tokenString string) (string, error) {
	return c.verifyUse(tokenString, UseRenewal)
}

func (c *Codec) verifyUse(tokenString string, use TokenUse) (string, error) {
	claims, err := c.parse(tokenString)
	if err != nil {
		return "", err
	}
	if claims.TokenUse != use {
		return "", common.ErrInvalidToken
	}
	return claims.Subject, nil
}

func (c *Codec) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

// SubjectOf reads the subject without checking the signature.
// Only call it on tokens that already passed Verify.
func (c *Codec) SubjectOf(tokenString string) (string, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return "", common.ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", common.ErrInvalidToken
	}
	return claims.Subject, nil
}
