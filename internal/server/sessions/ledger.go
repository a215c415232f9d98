// Package sessions records the single live renewal token per subject.
// Overwriting the entry is what revokes the previous session.
package sessions

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/kv"
)

type Ledger struct {
	store kv.Store
}

func NewLedger(store kv.Store) *Ledger {
	return &Ledger{store: store}
}

func key(subject string) string {
	return common.RefreshTokenKeyPrefix + subject
}

// Put makes renewalToken the only current token for subject.
func (l *Ledger) Put(ctx context.Context, subject, renewalToken string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("sessions: ttl must be positive, got %s", ttl)
	}
	if err := l.store.Set(ctx, key(subject), renewalToken, ttl); err != nil {
		return fmt.Errorf("sessions put: %w", err)
	}
	return nil
}

// IsCurrent reports whether renewalToken is byte-for-byte the stored token.
// An error means the ledger could not be consulted.
func (l *Ledger) IsCurrent(ctx context.Context, subject, renewalToken string) (bool, error) {
	stored, ok, err := l.store.Get(ctx, key(subject))
	if err != nil {
		return false, fmt.Errorf("sessions get: %w", err)
	}
	if !ok {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(renewalToken)) == 1, nil
}

// Exists reports whether subject has a live session at all.
func (l *Ledger) Exists(ctx context.Context, subject string) (bool, error) {
	ok, err := l.store.Exists(ctx, key(subject))
	if err != nil {
		return false, fmt.Errorf("sessions exists: %w", err)
	}
	return ok, nil
}

// Delete revokes the session; deleting an absent session is not an error.
func (l *Ledger) Delete(ctx context.Context, subject string) error {
	if err := l.store.Delete(ctx, key(subject)); err != nil {
		return fmt.Errorf("sessions delete: %w", err)
	}
	return nil
}
