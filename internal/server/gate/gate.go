// Package gate authenticates inbound requests. It never rejects a request:
// it reports who the caller is, or why it could not tell, and leaves the
// access decision to the handler.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type Reason string

const (
	ReasonPublicPath     Reason = "public_path"
	ReasonNoCredential   Reason = "no_credential"
	ReasonInvalidToken   Reason = "invalid_token"
	ReasonUnknownSubject Reason = "unknown_subject"
	ReasonLookupFailed   Reason = "lookup_failed"
	ReasonAuthenticated  Reason = "authenticated"
)

// Hint is what the session ledger said about the subject. It is advisory:
// an access token is accepted on its signature alone.
type Hint string

const (
	HintNone        Hint = ""
	HintLive        Hint = "live"
	HintAbsent      Hint = "absent"
	HintUnreachable Hint = "unreachable"
)

type Principal struct {
	Subject   string
	AccountID string
	Role      models.Role
}

func (p *Principal) HasRole(roles ...models.Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// Result is the outcome of Authenticate. Principal is set only when Reason
// is ReasonAuthenticated.
type Result struct {
	Principal  *Principal
	Reason     Reason
	LedgerHint Hint
}

func (r Result) Authenticated() bool {
	return r.Reason == ReasonAuthenticated && r.Principal != nil
}

// TokenVerifier accepts only access tokens; renewal tokens must fail.
type TokenVerifier interface {
	VerifyAccess(token string) (string, error)
}

type SessionChecker interface {
	Exists(ctx context.Context, subject string) (bool, error)
}

type AccountLoader interface {
	FindAccount(ctx context.Context, email string) (*models.Account, error)
}

type Gate struct {
	verifier TokenVerifier
	sessions SessionChecker
	accounts AccountLoader
	public   []string
	logger   logging.Logger
}

func New(verifier TokenVerifier, sessions SessionChecker, accounts AccountLoader, publicPaths []string, logger logging.Logger) *Gate {
	public := make([]string, len(publicPaths))
	copy(public, publicPaths)
	return &Gate{
		verifier: verifier,
		sessions: sessions,
		accounts: accounts,
		public:   public,
		logger:   logger.With("module", "gate"),
	}
}

// IsPublic reports whether path is on the allow-list. Entries ending in "*"
// match as prefixes.
func (g *Gate) IsPublic(path string) bool {
	for _, p := range g.public {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(path, prefix) {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}

// BearerToken extracts the token from an Authorization value. The scheme
// is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, common.BearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

func (g *Gate) Authenticate(ctx context.Context, path, authorization string) (res Result) {
	if g.IsPublic(path) {
		return Result{Reason: ReasonPublicPath}
	}

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error(ctx, "gate panic", "path", path, "panic", fmt.Sprint(r))
			res = Result{Reason: ReasonLookupFailed}
		}
	}()

	token, ok := BearerToken(authorization)
	if !ok {
		return Result{Reason: ReasonNoCredential}
	}

	subject, err := g.verifier.VerifyAccess(token)
	if err != nil {
		g.logger.Debug(ctx, "access token rejected", "path", path, "error", err)
		return Result{Reason: ReasonInvalidToken}
	}

	hint := g.ledgerHint(ctx, subject)

	account, err := g.accounts.FindAccount(ctx, subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			g.logger.Warn(ctx, "token subject has no account", "subject", subject)
			return Result{Reason: ReasonUnknownSubject, LedgerHint: hint}
		}
		g.logger.Error(ctx, "principal lookup failed", "subject", subject, "error", err)
		return Result{Reason: ReasonLookupFailed, LedgerHint: hint}
	}

	return Result{
		Principal: &Principal{
			Subject:   account.Email,
			AccountID: account.ID,
			Role:      account.Role,
		},
		Reason:     ReasonAuthenticated,
		LedgerHint: hint,
	}
}

func (g *Gate) ledgerHint(ctx context.Context, subject string) Hint {
	if g.sessions == nil {
		return HintNone
	}
	live, err := g.sessions.Exists(ctx, subject)
	switch {
	case err != nil:
		g.logger.Warn(ctx, "session ledger unreachable, accepting access token", "subject", subject, "error", err)
		return HintUnreachable
	case !live:
		g.logger.Warn(ctx, "no live session for access token", "subject", subject)
		return HintAbsent
	default:
		return HintLive
	}
}
