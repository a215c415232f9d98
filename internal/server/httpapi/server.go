// Package httpapi is the REST transport of authkeeper.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/federated"
	"github.com/dmitrijs2005/authkeeper/internal/server/gate"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

type AuthService interface {
	Register(ctx context.Context, email, password string, role models.Role) (*models.Account, error)
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
	Refresh(ctx context.Context, renewalToken string) (*services.AuthResult, error)
	Logout(ctx context.Context, subject string) error
	RequestResetCode(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	FederatedLogin(ctx context.Context, id *federated.Identity) (*services.AuthResult, error)
}

type AvatarService interface {
	CreateUploadURL(ctx context.Context, accountID, contentType string, contentLength int64) (*services.AvatarUpload, error)
	Commit(ctx context.Context, accountID, key, etag string) (*models.Profile, error)
	Delete(ctx context.Context, accountID string) error
}

type Options struct {
	// ExposeResetCode puts the reset code into the forgot-password response.
	ExposeResetCode bool
	// SecureCookies marks the OAuth state cookie Secure.
	SecureCookies bool
}

type Server struct {
	address   string
	auth      AuthService
	avatars   AvatarService
	providers *federated.Registry
	gate      *gate.Gate
	opts      Options
	logger    logging.Logger
}

func NewServer(address string, l logging.Logger, g *gate.Gate, auth AuthService, avatars AvatarService, providers *federated.Registry, opts Options) *Server {
	if providers == nil {
		providers = federated.NewRegistry()
	}
	return &Server{
		address:   address,
		auth:      auth,
		avatars:   avatars,
		providers: providers,
		gate:      g,
		opts:      opts,
		logger:    l.With("module", "http_server"),
	}
}

// Handler returns the router with the gate in front of every route.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.gate.Middleware)

	r.Get("/health", s.health)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", s.register)
		r.Post("/login", s.login)
		r.Post("/refresh", s.refresh)
		r.Post("/logout", s.logout)
		r.Post("/forgot-password", s.forgotPassword)
		r.Post("/reset-password", s.resetPassword)
		r.Get("/{provider}", s.oauthStart)
		r.Get("/{provider}/callback", s.oauthCallback)
	})

	r.Route("/api/v1/users/me/avatar", func(r chi.Router) {
		r.Post("/upload-url", s.avatarUploadURL)
		r.Post("/commit", s.avatarCommit)
		r.Delete("/", s.avatarDelete)
	})

	return r
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}
