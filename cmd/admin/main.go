// Command authkeeper-admin creates accounts and changes roles directly in
// the authkeeper database. It reads the same configuration as the server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/admin"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/challenges"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/kv"
	"github.com/dmitrijs2005/authkeeper/internal/server/notifications"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/server/sessions"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if _, _, err := admin.SplitArgs(os.Args[1:]); err != nil {
		return err
	}

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := logging.NewJSONLogger(os.Stderr, slog.LevelWarn)

	db, err := repomanager.OpenDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return err
	}

	codec, err := auth.NewCodec(auth.CodecConfig{
		Secret:     []byte(cfg.SecretKey),
		AccessTTL:  cfg.AccessTokenValidityDuration,
		RenewalTTL: cfg.RefreshTokenValidityDuration,
	})
	if err != nil {
		return err
	}

	// account and role changes never touch sessions or reset codes
	store := kv.NewMemoryStore()
	svc := services.NewAuthService(db, rm, codec, auth.NewBcryptHasher(), sessions.NewLedger(store),
		challenges.NewStore(store), notifications.NewLogDispatcher(logger), logger)

	return admin.NewApp(svc, os.Stdout).Execute(ctx, os.Args[1:])
}
