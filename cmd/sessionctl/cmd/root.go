package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kriptoproyek/backend/internal/config"
	"kriptoproyek/backend/internal/db"
	"kriptoproyek/backend/internal/logger"
	sessionrepo "kriptoproyek/backend/internal/session/repository"
	sessionservice "kriptoproyek/backend/internal/session/service"
)

// env is what every subcommand operates on.
type env struct {
	store     sessionrepo.Repository
	authority *sessionservice.Authority
	cfg       *config.Config
	log       *zap.Logger
	close     func()
}

// openEnv builds the session store and authority from the store settings alone; no
// signing secret is needed. Tests replace it.
var openEnv = func(ctx context.Context) (*env, error) {
	cfg, err := config.LoadStore()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return nil, err
	}
	var conn *sql.DB
	if cfg.SessionStore == config.StorePostgres {
		if conn, err = db.Open(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("db: %w", err)
		}
	}
	store, closeStore, err := sessionrepo.Open(cfg.SessionStore, conn, cfg.BoltPath)
	if err != nil {
		if conn != nil {
			_ = conn.Close()
		}
		return nil, err
	}
	authority, err := sessionservice.NewAuthority(store, cfg.JWTExpiry(), sessionservice.Options{
		StoreTimeout: cfg.StoreCallTimeout(),
		Logger:       log,
	})
	if err != nil {
		_ = closeStore()
		return nil, err
	}
	return &env{
		store:     store,
		authority: authority,
		cfg:       cfg,
		log:       log,
		close: func() {
			_ = closeStore()
			if conn != nil {
				_ = conn.Close()
			}
			_ = log.Sync()
		},
	}, nil
}

var rootCmd = &cobra.Command{
	Use:   "sessionctl",
	Short: "Inspect and revoke user sessions",
	Long: `sessionctl operates directly on the configured session store (SESSION_STORE,
DATABASE_URL, BOLT_PATH). With the memory store it only sees its own process.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withEnv opens the environment for the duration of fn.
func withEnv(cmd *cobra.Command, fn func(e *env) error) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()
	return fn(e)
}
