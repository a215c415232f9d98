package profiles

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

func (r *PostgresRepository) Create(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	query :=
		`INSERT INTO profiles (account_id, display_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4)
		 `

	if _, err := r.db.ExecContext(ctx, query, p.AccountID, p.DisplayName, p.CreatedAt, p.UpdatedAt); err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) FindByAccountID(ctx context.Context, accountID string) (*models.Profile, error) {
	query :=
		`SELECT account_id, display_name, avatar_key, avatar_url, avatar_etag, created_at, updated_at
		 FROM profiles
		 WHERE account_id = $1
		 `

	p := &models.Profile{}
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(
		&p.AccountID, &p.DisplayName, &p.AvatarKey, &p.AvatarURL, &p.AvatarETag, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Save(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	query :=
		`UPDATE profiles
		 SET display_name = $2, avatar_key = $3, avatar_url = $4, avatar_etag = $5, updated_at = $6
		 WHERE account_id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, p.AccountID, p.DisplayName, p.AvatarKey, p.AvatarURL, p.AvatarETag, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return nil, common.ErrorNotFound
	}
	return p, nil
}
