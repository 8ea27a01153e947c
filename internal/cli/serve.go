package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/fableloom/fableloom/internal/config"
	"github.com/fableloom/fableloom/internal/server"
	"github.com/fableloom/fableloom/pkg/cache"
	"github.com/fableloom/fableloom/pkg/engine"
	"github.com/fableloom/fableloom/pkg/session"
	"github.com/fableloom/fableloom/pkg/store"
)

// serveCommand creates the serve command for running the HTTP API server.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		configPath string
		addr       string
		noCache    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Run the HTTP API server.

The server exposes the authoring API (stories, pages, choices), the reading
API (parties), and per-story graph, layout, and map endpoints. Configuration
is read from a TOML file and FABLELOOM_* environment variables; flags take
precedence over both.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			c.Logger.SetLevel(logLevel(cfg.Log.Level))
			return c.runServe(cmd.Context(), cfg, noCache)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to TOML config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable layout and render caching")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, cfg config.Config, noCache bool) error {
	st, err := c.newStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close(context.Background())

	sessions, err := c.newSessionStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize session store: %w", err)
	}

	cch, err := c.newServeCache(cfg, noCache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}

	runner := engine.NewRunner(st, cch, nil, c.Logger)
	defer runner.Close()

	srv := server.New(cfg, st, sessions, runner, c.Logger)
	return srv.Run(ctx)
}

// newStore builds the configured persistence backend.
func (c *CLI) newStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "mongo":
		c.Logger.Info("using mongodb store", "database", cfg.Mongo.Database)
		return store.NewMongoStore(ctx, store.MongoConfig{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
		})
	default:
		c.Logger.Warn("using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), nil
	}
}

// newSessionStore builds the session backend: redis when an address is
// configured, in-process memory otherwise.
func (c *CLI) newSessionStore(ctx context.Context, cfg config.Config) (session.Store, error) {
	if cfg.Redis.Addr == "" {
		return session.NewMemoryStore(), nil
	}
	c.Logger.Info("using redis session store", "addr", cfg.Redis.Addr)
	return session.NewRedisStore(ctx, session.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func (c *CLI) newServeCache(cfg config.Config, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	if cfg.Server.CacheDir != "" {
		return cache.NewFileCache(cfg.Server.CacheDir)
	}
	return newCache(false)
}

func logLevel(s string) log.Level {
	switch s {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
