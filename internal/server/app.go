// Package server wires the authkeeper infrastructure and services together
// and runs the HTTP and gRPC endpoints until a termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/challenges"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/federated"
	"github.com/dmitrijs2005/authkeeper/internal/server/gate"
	"github.com/dmitrijs2005/authkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/authkeeper/internal/server/kv"
	"github.com/dmitrijs2005/authkeeper/internal/server/notifications"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/server/sessions"

	gs "github.com/dmitrijs2005/authkeeper/internal/server/grpc"
)

type runner interface {
	Run(ctx context.Context) error
}

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	closers []io.Closer

	Auth    *services.AuthService
	Avatars *services.AvatarService

	httpServer runner
	grpcServer runner
}

// NewApp connects to every backing store, applies migrations and builds
// both servers. Close releases what was opened.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)
	app := &App{config: c, logger: logger}

	if err := app.init(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	c := app.config

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, db)

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return err
	}

	store, err := app.newStore()
	if err != nil {
		return err
	}

	codec, err := auth.NewCodec(auth.CodecConfig{
		Secret:     []byte(c.SecretKey),
		AccessTTL:  c.AccessTokenValidityDuration,
		RenewalTTL: c.RefreshTokenValidityDuration,
	})
	if err != nil {
		return err
	}

	ledger := sessions.NewLedger(store)
	app.Auth = services.NewAuthService(db, rm, codec, auth.NewBcryptHasher(), ledger,
		challenges.NewStore(store), notifications.NewLogDispatcher(app.logger), app.logger)

	objects, err := services.NewS3ObjectStore(ctx, services.S3Options{
		Region:       c.S3Region,
		User:         c.S3RootUser,
		Password:     c.S3RootPassword,
		Bucket:       c.S3Bucket,
		BaseEndpoint: c.S3BaseEndpoint,
	})
	if err != nil {
		return fmt.Errorf("s3 init error: %w", err)
	}
	app.Avatars = services.NewAvatarService(db, rm, objects, c.S3PublicBaseURL, app.logger)

	g := gate.New(codec, ledger, app.Auth, c.PublicPaths, app.logger)

	app.httpServer = httpapi.NewServer(c.EndpointAddrHTTP, app.logger, g, app.Auth, app.Avatars, app.providers(),
		httpapi.Options{
			ExposeResetCode: c.ExposeResetCode,
			SecureCookies:   strings.HasPrefix(c.OAuthRedirectBaseURL, "https://"),
		})
	app.grpcServer = gs.NewGRPCServer(c.EndpointAddrGRPC, app.logger, g)

	return nil
}

func (app *App) newStore() (kv.Store, error) {
	c := app.config
	if c.RedisAddr == "" {
		app.logger.Warn(context.Background(), "no redis address configured, sessions and reset codes are kept in memory")
		return kv.NewMemoryStore(), nil
	}

	client, err := kv.NewRedisClient(c.RedisAddr, c.RedisPassword, c.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("redis init error: %w", err)
	}
	app.closers = append(app.closers, client)
	return kv.NewRedisStore(client, c.StoreTimeout), nil
}

// providers enables each federated provider that has a client id.
func (app *App) providers() *federated.Registry {
	c := app.config
	base := strings.TrimRight(c.OAuthRedirectBaseURL, "/")

	var list []federated.Provider
	if c.GoogleClientID != "" {
		list = append(list, federated.Google(c.GoogleClientID, c.GoogleClientSecret, base+"/api/v1/auth/google/callback"))
	}
	if c.GitHubClientID != "" {
		list = append(list, federated.GitHub(c.GitHubClientID, c.GitHubClientSecret, base+"/api/v1/auth/github/callback"))
	}

	reg := federated.NewRegistry(list...)
	app.logger.Info(context.Background(), "federated providers", "enabled", strings.Join(reg.Names(), ","))
	return reg
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) start(ctx context.Context, cancelFunc context.CancelFunc, name string, s runner) {
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "server failed", "server", name, "error", err)
		cancelFunc()
	}
}

// Run serves until ctx is cancelled, a signal arrives or a server fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.start(ctx, cancelFunc, "http", app.httpServer)
	}()
	go func() {
		defer wg.Done()
		app.start(ctx, cancelFunc, "grpc", app.grpcServer)
	}()

	wg.Wait()

	app.logger.Info(ctx, "App stopped")
}

func (app *App) Close() error {
	var first error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	app.closers = nil
	return first
}
