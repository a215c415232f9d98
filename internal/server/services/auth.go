// Package services contains server-side business logic. This file implements
// AuthService: registration, password and federated login, token refresh,
// logout and the password reset challenge.
package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/challenges"
	"github.com/dmitrijs2005/authkeeper/internal/server/federated"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/notifications"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/sessions"
)

// errLinkRace aborts the enrollment transaction when a concurrent first
// login for the same identity committed first.
var errLinkRace = errors.New("federated identity enrolled concurrently")

const (
	msgInvalidCredentials = "invalid credentials"
	msgSocialAccount      = "this email is registered via social login, please use it to continue"
	msgInvalidResetCode   = "invalid or expired reset code"
)

// AuthResult is returned by every operation that starts or extends a session.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	Email        string
	AccountID    string
	Role         models.Role
}

type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	codec       *auth.Codec
	hasher      auth.Hasher
	ledger      *sessions.Ledger
	challenges  *challenges.Store
	notifier    notifications.Dispatcher
	logger      logging.Logger
	now         func() time.Time
}

func NewAuthService(
	db *sql.DB,
	m repomanager.RepositoryManager,
	codec *auth.Codec,
	hasher auth.Hasher,
	ledger *sessions.Ledger,
	challenges *challenges.Store,
	notifier notifications.Dispatcher,
	logger logging.Logger,
) *AuthService {
	return &AuthService{
		db:          db,
		repomanager: m,
		codec:       codec,
		hasher:      hasher,
		ledger:      ledger,
		challenges:  challenges,
		notifier:    notifier,
		logger:      logger.With("module", "auth"),
		now:         time.Now,
	}
}

// Register creates a password account and its empty profile. No session is
// started.
func (s *AuthService) Register(ctx context.Context, email, password string, role models.Role) (*models.Account, error) {
	email = common.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, common.NewError(common.ErrorInvalidInput, "email and password are required")
	}
	if role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		return nil, common.NewError(common.ErrorInvalidInput, "unknown role")
	}

	if _, err := s.repomanager.Accounts(s.db).FindByEmail(ctx, email); err == nil {
		return nil, common.NewError(common.ErrorConflict, "user with this email already exists")
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, internal("account lookup failed", err)
	}

	if err := s.ensureNoFederatedLink(ctx, s.db, email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, common.WrapError(common.ErrorInvalidInput, "password cannot be used", err)
	}

	now := s.now()
	account := &models.Account{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		created, err := s.repomanager.Accounts(tx).Create(ctx, account)
		if err != nil {
			if errors.Is(err, common.ErrorConflict) {
				return common.NewError(common.ErrorConflict, "user with this email already exists")
			}
			return internal("account create failed", err)
		}
		account = created

		if _, err := s.repomanager.Profiles(tx).Create(ctx, &models.Profile{
			AccountID: account.ID,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return internal("profile create failed", err)
		}
		return nil
	})
	if err != nil {
		return nil, asServiceError(err)
	}

	s.notify(ctx, notifications.Welcome(email, "", now))
	s.logger.Info(ctx, "account registered", "account_id", account.ID, "role", string(account.Role))

	return account, nil
}

// Login checks the password and starts a new session, replacing any
// previous one for the same email.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = common.NormalizeEmail(email)

	account, err := s.repomanager.Accounts(s.db).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NewError(common.ErrorUnauthorized, msgInvalidCredentials)
		}
		return nil, internal("account lookup failed", err)
	}

	if account.PasswordHash == "" || !s.hasher.Compare(account.PasswordHash, password) {
		return nil, common.NewError(common.ErrorUnauthorized, msgInvalidCredentials)
	}

	if err := s.ensureNoFederatedLink(ctx, s.db, email); err != nil {
		return nil, err
	}

	return s.startSession(ctx, account)
}

// Refresh mints a new access token for a renewal token that is still the
// current one in the ledger. The renewal token itself is not rotated.
// An unreachable ledger fails the refresh.
func (s *AuthService) Refresh(ctx context.Context, renewalToken string) (*AuthResult, error) {
	subject, err := s.codec.VerifyRenewal(renewalToken)
	if err != nil {
		return nil, common.WrapError(common.ErrorUnauthorized, "invalid refresh token", err)
	}

	current, err := s.ledger.IsCurrent(ctx, subject, renewalToken)
	if err != nil {
		s.logger.Warn(ctx, "session ledger unreachable during refresh", "error", err)
		return nil, common.WrapError(common.ErrorUnauthorized, "session could not be confirmed", err)
	}
	if !current {
		return nil, common.NewError(common.ErrorUnauthorized, "refresh token is not recognized")
	}

	account, err := s.repomanager.Accounts(s.db).FindByEmail(ctx, subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NewError(common.ErrorUnauthorized, "refresh token is not recognized")
		}
		return nil, internal("account lookup failed", err)
	}

	access, err := s.codec.IssueAccess(subject)
	if err != nil {
		return nil, internal("token issue failed", err)
	}

	if err := s.ledger.Put(ctx, subject, renewalToken, s.codec.RenewalTTL()); err != nil {
		s.logger.Warn(ctx, "session ledger unreachable during refresh", "error", err)
		return nil, common.WrapError(common.ErrorUnauthorized, "session could not be confirmed", err)
	}

	return &AuthResult{
		AccessToken:  access,
		RefreshToken: renewalToken,
		Email:        subject,
		AccountID:    account.ID,
		Role:         account.Role,
	}, nil
}

// Logout revokes the session of subject. Revoking twice is fine.
func (s *AuthService) Logout(ctx context.Context, subject string) error {
	subject = common.NormalizeEmail(subject)
	if subject == "" {
		return common.NewError(common.ErrorInvalidInput, "subject is required")
	}
	if err := s.ledger.Delete(ctx, subject); err != nil {
		return internal("session revoke failed", err)
	}
	return nil
}

// RequestResetCode issues a reset code and hands it to the notifier.
// The code is also returned; transports must not echo it to untrusted
// callers.
func (s *AuthService) RequestResetCode(ctx context.Context, email string) (string, error) {
	email = common.NormalizeEmail(email)

	if _, err := s.repomanager.Accounts(s.db).FindByEmail(ctx, email); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.NewError(common.ErrorNotFound, "no user with that email")
		}
		return "", internal("account lookup failed", err)
	}

	code, err := s.challenges.Issue(ctx, email)
	if err != nil {
		return "", internal("reset code issue failed", err)
	}

	s.notify(ctx, notifications.PasswordReset(email, "", code, s.challenges.TTL(), s.now()))

	return code, nil
}

// ResetPassword sets a new password if code is the live reset code. The
// account write and the code redemption commit together; afterwards the
// session is revoked.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = common.NormalizeEmail(email)

	ok, err := s.challenges.Verify(ctx, email, code)
	if err != nil {
		return internal("reset code lookup failed", err)
	}
	if !ok {
		return common.NewError(common.ErrorInvalidInput, msgInvalidResetCode)
	}
	if newPassword == "" {
		return common.NewError(common.ErrorInvalidInput, "new password is required")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return common.WrapError(common.ErrorInvalidInput, "password cannot be used", err)
	}

	redeemed := false
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)

		account, err := repo.FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.NewError(common.ErrorInvalidInput, "user not found by this email")
			}
			return internal("account lookup failed", err)
		}

		account.PasswordHash = hash
		account.UpdatedAt = s.now()
		if _, err := repo.Save(ctx, account); err != nil {
			return internal("account update failed", err)
		}

		ok, err := s.challenges.Redeem(ctx, email, code)
		if err != nil {
			return internal("reset code redeem failed", err)
		}
		if !ok {
			return common.NewError(common.ErrorInvalidInput, msgInvalidResetCode)
		}
		redeemed = true
		return nil
	})
	if err != nil {
		if redeemed && errors.Is(err, dbx.ErrCommit) {
			if rerr := s.challenges.Restore(ctx, email, code); rerr != nil {
				s.logger.Error(ctx, "reset code restore failed", "error", rerr)
			}
		}
		return asServiceError(err)
	}

	if err := s.ledger.Delete(ctx, email); err != nil {
		s.logger.Error(ctx, "session revoke after password reset failed", "error", err)
		return internal("password updated but session revoke failed", err)
	}

	return nil
}

// FederatedLogin signs in with an identity vouched for by an external
// provider. A first login links the provider to the account with the same
// email, creating the account if needed. Once linked, the email no longer
// accepts password login.
func (s *AuthService) FederatedLogin(ctx context.Context, id *federated.Identity) (*AuthResult, error) {
	if id == nil || id.Provider == "" || id.Subject == "" {
		return nil, common.NewError(common.ErrorInvalidInput, "incomplete provider identity")
	}
	email := common.NormalizeEmail(id.Email)
	if email == "" {
		return nil, common.NewError(common.ErrorInvalidInput, "provider returned no email")
	}
	if !id.EmailVerified {
		return nil, common.NewError(common.ErrorUnauthorized, "provider email is not verified")
	}

	link, err := s.repomanager.FederatedLinks(s.db).FindByProviderSubject(ctx, id.Provider, id.Subject)
	if err == nil {
		account, err := s.repomanager.Accounts(s.db).FindByID(ctx, link.AccountID)
		if err != nil {
			return nil, internal("linked account lookup failed", err)
		}
		return s.startSession(ctx, account)
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, internal("federated link lookup failed", err)
	}

	account, created, err := s.enrollFederated(ctx, id, email)
	if errors.Is(err, errLinkRace) {
		return s.resumeFederated(ctx, id)
	}
	if err != nil {
		return nil, asServiceError(err)
	}

	if created {
		s.notify(ctx, notifications.Welcome(email, id.Name, s.now()))
	}
	s.logger.Info(ctx, "federated identity linked", "account_id", account.ID, "provider", id.Provider)

	return s.startSession(ctx, account)
}

// enrollFederated links id to the account for email, creating the account
// and its profile when there is none.
func (s *AuthService) enrollFederated(ctx context.Context, id *federated.Identity, email string) (*models.Account, bool, error) {
	var account *models.Account
	created := false
	now := s.now()

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		accounts := s.repomanager.Accounts(tx)

		existing, err := accounts.FindByEmail(ctx, email)
		switch {
		case err == nil:
			account = existing
		case errors.Is(err, common.ErrorNotFound):
			account, err = accounts.Create(ctx, &models.Account{
				Email:          email,
				Role:           models.RoleUser,
				EmailConfirmed: true,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
			if errors.Is(err, common.ErrorConflict) {
				return errLinkRace
			}
			if err != nil {
				return internal("account create failed", err)
			}
			if _, err := s.repomanager.Profiles(tx).Create(ctx, &models.Profile{
				AccountID:   account.ID,
				DisplayName: id.Name,
				CreatedAt:   now,
				UpdatedAt:   now,
			}); err != nil {
				return internal("profile create failed", err)
			}
			created = true
		default:
			return internal("account lookup failed", err)
		}

		if _, err := s.repomanager.FederatedLinks(tx).Create(ctx, &models.FederatedLink{
			AccountID:       account.ID,
			Provider:        id.Provider,
			ProviderSubject: id.Subject,
			Email:           email,
			CreatedAt:       now,
		}); err != nil {
			if errors.Is(err, common.ErrorConflict) {
				return errLinkRace
			}
			return internal("federated link create failed", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return account, created, nil
}

// resumeFederated starts a session for the link a concurrent login created.
func (s *AuthService) resumeFederated(ctx context.Context, id *federated.Identity) (*AuthResult, error) {
	link, err := s.repomanager.FederatedLinks(s.db).FindByProviderSubject(ctx, id.Provider, id.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NewError(common.ErrorConflict, "user with this email already exists")
		}
		return nil, internal("federated link lookup failed", err)
	}
	account, err := s.repomanager.Accounts(s.db).FindByID(ctx, link.AccountID)
	if err != nil {
		return nil, internal("linked account lookup failed", err)
	}
	s.logger.Info(ctx, "federated identity enrolled concurrently", "account_id", account.ID, "provider", id.Provider)
	return s.startSession(ctx, account)
}

// ChangeRole replaces the role of the account with email.
func (s *AuthService) ChangeRole(ctx context.Context, email string, role models.Role) (*models.Account, error) {
	email = common.NormalizeEmail(email)
	if !role.Valid() {
		return nil, common.NewError(common.ErrorInvalidInput, "unknown role")
	}

	repo := s.repomanager.Accounts(s.db)
	account, err := repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NewError(common.ErrorNotFound, "no user with that email")
		}
		return nil, internal("account lookup failed", err)
	}

	account.Role = role
	account.UpdatedAt = s.now()
	if _, err := repo.Save(ctx, account); err != nil {
		return nil, internal("account update failed", err)
	}
	return account, nil
}

// FindAccount loads the account behind a token subject.
func (s *AuthService) FindAccount(ctx context.Context, email string) (*models.Account, error) {
	account, err := s.repomanager.Accounts(s.db).FindByEmail(ctx, common.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NewError(common.ErrorNotFound, "no user with that email")
		}
		return nil, internal("account lookup failed", err)
	}
	return account, nil
}

// --- helpers below ---

func (s *AuthService) startSession(ctx context.Context, account *models.Account) (*AuthResult, error) {
	access, err := s.codec.IssueAccess(account.Email)
	if err != nil {
		return nil, internal("token issue failed", err)
	}
	renewal, err := s.codec.IssueRenewal(account.Email)
	if err != nil {
		return nil, internal("token issue failed", err)
	}
	if err := s.ledger.Put(ctx, account.Email, renewal, s.codec.RenewalTTL()); err != nil {
		return nil, internal("session could not be stored", err)
	}
	return &AuthResult{
		AccessToken:  access,
		RefreshToken: renewal,
		Email:        account.Email,
		AccountID:    account.ID,
		Role:         account.Role,
	}, nil
}

func (s *AuthService) ensureNoFederatedLink(ctx context.Context, db dbx.DBTX, email string) error {
	_, err := s.repomanager.FederatedLinks(db).FindByEmail(ctx, email)
	if err == nil {
		return common.NewError(common.ErrorConflict, msgSocialAccount)
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return internal("federated link lookup failed", err)
	}
	return nil
}

func (s *AuthService) notify(ctx context.Context, msg notifications.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Dispatch(ctx, msg); err != nil {
		s.logger.Warn(ctx, "notification dispatch failed", "type", string(msg.Type), "error", err)
	}
}

func internal(message string, cause error) error {
	return common.WrapError(common.ErrorInternal, message, cause)
}

// asServiceError keeps typed failures and turns anything else into an
// internal error.
func asServiceError(err error) error {
	var e *common.Error
	if errors.As(err, &e) {
		return e
	}
	return internal("transaction failed", err)
}
