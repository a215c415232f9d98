package gate

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Middleware attaches the principal, if any, and always calls next.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := g.Authenticate(r.Context(), r.URL.Path, r.Header.Get(common.AuthorizationHeaderName))
		if res.Authenticated() {
			r = r.WithContext(WithPrincipal(r.Context(), res.Principal))
		}
		next.ServeHTTP(w, r)
	})
}

// UnaryServerInterceptor is Middleware for gRPC. The credential comes from
// the "authorization" metadata key and the path is the full method name.
func (g *Gate) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		var authorization string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get("authorization"); len(values) > 0 {
				authorization = values[0]
			}
		}

		res := g.Authenticate(ctx, info.FullMethod, authorization)
		if res.Authenticated() {
			ctx = WithPrincipal(ctx, res.Principal)
		}
		return handler(ctx, req)
	}
}
