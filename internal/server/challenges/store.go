// Package challenges issues and redeems the one-time numeric codes that
// authorize a password reset.
package challenges

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/kv"
)

const (
	CodeTTL = 10 * time.Minute

	minCode = 100000
	maxCode = 999999
)

type Store struct {
	store   kv.Store
	ttl     time.Duration
	newCode func() (string, error)
}

type Option func(*Store)

// WithTTL overrides CodeTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithCodeGenerator replaces the random 6-digit generator.
func WithCodeGenerator(f func() (string, error)) Option {
	return func(s *Store) { s.newCode = f }
}

func NewStore(store kv.Store, opts ...Option) *Store {
	s := &Store{
		store: store,
		ttl:   CodeTTL,
		newCode: func() (string, error) {
			return common.RandomDigits(minCode, maxCode)
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func key(subject string) string {
	return common.ResetCodeKeyPrefix + subject
}

func (s *Store) TTL() time.Duration { return s.ttl }

// Issue stores a fresh code for subject, replacing any earlier one.
func (s *Store) Issue(ctx context.Context, subject string) (string, error) {
	code, err := s.newCode()
	if err != nil {
		return "", fmt.Errorf("challenges generate: %w", err)
	}
	if err := s.store.Set(ctx, key(subject), code, s.ttl); err != nil {
		return "", fmt.Errorf("challenges put: %w", err)
	}
	return code, nil
}

// Verify compares code with the live code for subject without consuming it.
func (s *Store) Verify(ctx context.Context, subject, code string) (bool, error) {
	stored, ok, err := s.store.Get(ctx, key(subject))
	if err != nil {
		return false, fmt.Errorf("challenges get: %w", err)
	}
	if !ok || code == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(code)) == 1, nil
}

// Redeem deletes the code only if it still equals code. Of two concurrent
// redemptions of the same code exactly one reports true.
func (s *Store) Redeem(ctx context.Context, subject, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	ok, err := s.store.CompareAndDelete(ctx, key(subject), code)
	if err != nil {
		return false, fmt.Errorf("challenges redeem: %w", err)
	}
	return ok, nil
}

func (s *Store) Consume(ctx context.Context, subject string) error {
	if err := s.store.Delete(ctx, key(subject)); err != nil {
		return fmt.Errorf("challenges delete: %w", err)
	}
	return nil
}

// Restore puts a redeemed code back with a fresh TTL.
func (s *Store) Restore(ctx context.Context, subject, code string) error {
	if err := s.store.Set(ctx, key(subject), code, s.ttl); err != nil {
		return fmt.Errorf("challenges restore: %w", err)
	}
	return nil
}
