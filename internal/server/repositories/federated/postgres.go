package federated

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectLink = `SELECT id, account_id, provider, provider_subject, email, created_at FROM federated_links`

func scanLink(row *sql.Row) (*models.FederatedLink, error) {
	l := &models.FederatedLink{}
	err := row.Scan(&l.ID, &l.AccountID, &l.Provider, &l.ProviderSubject, &l.Email, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return l, nil
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.FederatedLink, error) {
	return scanLink(r.db.QueryRowContext(ctx, selectLink+` WHERE email = $1 ORDER BY created_at LIMIT 1`, email))
}

func (r *PostgresRepository) FindByProviderSubject(ctx context.Context, provider, subject string) (*models.FederatedLink, error) {
	return scanLink(r.db.QueryRowContext(ctx, selectLink+` WHERE provider = $1 AND provider_subject = $2`, provider, subject))
}

func (r *PostgresRepository) Create(ctx context.Context, link *models.FederatedLink) (*models.FederatedLink, error) {
	query :=
		`INSERT INTO federated_links (account_id, provider, provider_subject, email, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		link.AccountID, link.Provider, link.ProviderSubject, link.Email, link.CreatedAt).Scan(&link.ID)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return link, nil
}
