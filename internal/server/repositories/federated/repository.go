package federated

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type Repository interface {
	// FindByEmail returns any link recorded for email.
	FindByEmail(ctx context.Context, email string) (*models.FederatedLink, error)
	FindByProviderSubject(ctx context.Context, provider, subject string) (*models.FederatedLink, error)
	Create(ctx context.Context, link *models.FederatedLink) (*models.FederatedLink, error)
}
