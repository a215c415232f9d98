package gate

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

// RequireAuth returns the principal or an Unauthorized error.
func RequireAuth(ctx context.Context) (*Principal, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return nil, common.NewError(common.ErrorUnauthorized, "authentication required")
	}
	return p, nil
}

// RequireRole is RequireAuth plus a role check; a wrong role is Forbidden.
func RequireRole(ctx context.Context, roles ...models.Role) (*Principal, error) {
	p, err := RequireAuth(ctx)
	if err != nil {
		return nil, err
	}
	if !p.HasRole(roles...) {
		return nil, common.NewError(common.ErrorForbidden, "insufficient role")
	}
	return p, nil
}
