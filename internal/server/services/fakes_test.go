package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/kv"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/notifications"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/accounts"
	federatedrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/federated"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/profiles"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// --- in-memory repositories ---

type memAccounts struct {
	mu      sync.Mutex
	byEmail map[string]models.Account
	seq     int

	findErr error
	saveErr error
	onSave  func()
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byEmail: map[string]models.Account{}}
}

func (m *memAccounts) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	a, ok := m.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &a, nil
}

func (m *memAccounts) FindByID(ctx context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byEmail {
		if a.ID == id {
			a := a
			return &a, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memAccounts) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[a.Email]; ok {
		return nil, common.ErrorConflict
	}
	m.seq++
	a.ID = fmt.Sprintf("acc-%d", m.seq)
	m.byEmail[a.Email] = *a
	return a, nil
}

func (m *memAccounts) Save(ctx context.Context, a *models.Account) (*models.Account, error) {
	if m.onSave != nil {
		m.onSave()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	if _, ok := m.byEmail[a.Email]; !ok {
		return nil, common.ErrorNotFound
	}
	m.byEmail[a.Email] = *a
	return a, nil
}

func (m *memAccounts) get(email string) models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byEmail[email]
}

type memLinks struct {
	mu    sync.Mutex
	links []models.FederatedLink

	onCreate func(l *models.FederatedLink)
}

func (m *memLinks) FindByEmail(ctx context.Context, email string) (*models.FederatedLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.Email == email {
			l := l
			return &l, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memLinks) FindByProviderSubject(ctx context.Context, provider, subject string) (*models.FederatedLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.Provider == provider && l.ProviderSubject == subject {
			l := l
			return &l, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memLinks) Create(ctx context.Context, l *models.FederatedLink) (*models.FederatedLink, error) {
	if m.onCreate != nil {
		m.onCreate(l)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.links {
		if existing.Provider == l.Provider && existing.ProviderSubject == l.ProviderSubject {
			return nil, common.ErrorConflict
		}
	}
	l.ID = fmt.Sprintf("link-%d", len(m.links)+1)
	m.links = append(m.links, *l)
	return l, nil
}

type memProfiles struct {
	mu        sync.Mutex
	byAccount map[string]models.Profile
	createErr error
}

func newMemProfiles() *memProfiles {
	return &memProfiles{byAccount: map[string]models.Profile{}}
}

func (m *memProfiles) Create(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.byAccount[p.AccountID] = *p
	return p, nil
}

func (m *memProfiles) FindByAccountID(ctx context.Context, id string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byAccount[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &p, nil
}

func (m *memProfiles) Save(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byAccount[p.AccountID]; !ok {
		return nil, common.ErrorNotFound
	}
	m.byAccount[p.AccountID] = *p
	return p, nil
}

// fakeRepoManager hands out the same in-memory repositories for the pool
// and for transactions.
type fakeRepoManager struct {
	accounts *memAccounts
	links    *memLinks
	profiles *memProfiles
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{accounts: newMemAccounts(), links: &memLinks{}, profiles: newMemProfiles()}
}

func (f *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (f *fakeRepoManager) Accounts(dbx.DBTX) accounts.Repository { return f.accounts }

func (f *fakeRepoManager) FederatedLinks(dbx.DBTX) federatedrepo.Repository { return f.links }

func (f *fakeRepoManager) Profiles(dbx.DBTX) profiles.Repository { return f.profiles }

// --- key-value store that can be switched off ---

type flakyStore struct {
	kv.Store
	down atomic.Bool
}

var errStoreDown = fmt.Errorf("dial tcp: connection refused")

func (f *flakyStore) Set(ctx context.Context, k, v string, ttl time.Duration) error {
	if f.down.Load() {
		return errStoreDown
	}
	return f.Store.Set(ctx, k, v, ttl)
}

func (f *flakyStore) Get(ctx context.Context, k string) (string, bool, error) {
	if f.down.Load() {
		return "", false, errStoreDown
	}
	return f.Store.Get(ctx, k)
}

func (f *flakyStore) Exists(ctx context.Context, k string) (bool, error) {
	if f.down.Load() {
		return false, errStoreDown
	}
	return f.Store.Exists(ctx, k)
}

func (f *flakyStore) Delete(ctx context.Context, k string) error {
	if f.down.Load() {
		return errStoreDown
	}
	return f.Store.Delete(ctx, k)
}

func (f *flakyStore) CompareAndDelete(ctx context.Context, k, v string) (bool, error) {
	if f.down.Load() {
		return false, errStoreDown
	}
	return f.Store.CompareAndDelete(ctx, k, v)
}

// --- notifications ---

type recordingDispatcher struct {
	mu   sync.Mutex
	msgs []notifications.Message
	err  error
}

func (r *recordingDispatcher) Dispatch(ctx context.Context, msg notifications.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recordingDispatcher) last() notifications.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msgs[len(r.msgs)-1]
}

// --- db ---

func newSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
