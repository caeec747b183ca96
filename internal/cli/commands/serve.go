package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/VForWaTer/metacatalog-api/internal/catalog/assembler"
	"github.com/VForWaTer/metacatalog-api/internal/catalog/repository"
	"github.com/VForWaTer/metacatalog-api/internal/catalog/search"
	"github.com/VForWaTer/metacatalog-api/internal/cli/config"
	"github.com/VForWaTer/metacatalog-api/internal/web/api"
	"github.com/VForWaTer/metacatalog-api/internal/web/cache"
	"github.com/VForWaTer/metacatalog-api/internal/web/ratelimit"
	"github.com/VForWaTer/metacatalog-api/internal/web/server"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type serveOptions struct {
	host      string
	port      int
	rootPath  string
	noMigrate bool
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the catalog API server",
		Long: `Start the HTTP API.

On startup the catalog schema is installed with default reference data
when it is missing, and pending migrations are applied. The server stops
gracefully on SIGINT or SIGTERM.`,
		Example: `  metacatalog serve
  metacatalog serve --port 8080 --root-path /api
  METACATALOG_URI=postgresql://user:pass@db/metacatalog metacatalog serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "override server.host")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "override server.port")
	cmd.Flags().StringVar(&opts.rootPath, "root-path", "", "override server.root_path")
	cmd.Flags().BoolVar(&opts.noMigrate, "no-migrate", false, "fail instead of installing or upgrading the schema")

	return cmd
}

func runServe(cmd *cobra.Command, root *rootOptions, opts *serveOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx, root)
	if err != nil {
		return err
	}
	cfg := a.cfg
	logger := a.logger

	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}
	if opts.rootPath != "" {
		cfg.Server.RootPath = opts.rootPath
	}

	if opts.noMigrate {
		st, err := readStatus(ctx, a.runner)
		if err == nil && !st.Installed {
			err = errNotInstalled
		}
		if err == nil && st.Current < st.Latest {
			err = fmt.Errorf("schema version %d is behind %d, run metacatalog migrate", st.Current, st.Latest)
		}
		if err != nil {
			a.close()
			return err
		}
	} else if err := ensureSchema(ctx, a.runner, logger); err != nil {
		a.close()
		return err
	}

	c, err := cache.New(ctx, cfg.CacheConfig())
	if err != nil {
		a.close()
		return err
	}

	schema := cfg.Schema()
	rankerOpts := []search.Option{search.WithLogger(logger)}
	if c != nil {
		rankerOpts = append(rankerOpts, search.WithCache(c, cfg.Search.CacheTTL))
	}
	ranker := search.NewRanker(schema, rankerOpts...)
	repo := repository.New(a.mgr, schema, ranker, logger)
	asm := assembler.New(a.mgr, repo, schema,
		assembler.WithLogger(logger),
		assembler.WithDatasourceReplace(cfg.Catalog.ReplaceDatasource),
	)

	limiter, closeLimiter, err := newWriteLimiter(cfg)
	if err != nil {
		if c != nil {
			c.Close()
		}
		a.close()
		return err
	}

	handler := api.New(repo, asm, a.mgr, c, api.Config{
		RootPath:              cfg.Server.RootPath,
		AllowAuthorDuplicates: cfg.Catalog.AllowAuthorDuplicates,
		CacheTTL:              cfg.Search.CacheTTL,
		WriteLimiter:          limiter,
	}, logger)

	srv, err := server.New(server.DefaultConfig(cfg.Addr(), handler.Server()))
	if err != nil {
		a.close()
		return err
	}

	gs := server.NewGracefulShutdown(srv, &server.ShutdownConfig{
		Timeout: cfg.Server.ShutdownTimeout,
		Logger:  logger,
	})
	if closeLimiter != nil {
		gs.RegisterHook(func(ctx context.Context) error { return closeLimiter() })
	}
	if c != nil {
		gs.RegisterHook(func(ctx context.Context) error { return c.Close() })
	}
	gs.RegisterHook(func(ctx context.Context) error {
		a.close()
		return nil
	})

	logger.Info("metacatalog API ready",
		zap.String("addr", cfg.Addr()),
		zap.String("root_path", cfg.Server.RootPath),
		zap.String("schema", schema.Name()),
		zap.String("cache", cfg.Search.Cache),
		zap.Int("write_limit", cfg.Server.WriteLimit),
	)
	return gs.Run(ctx)
}

// newWriteLimiter builds the POST rate limiter, or nil when server.write_limit is 0.
// The returned close func releases the limiter and its Redis client.
func newWriteLimiter(cfg *config.Config) (ratelimit.Limiter, func() error, error) {
	if cfg.Server.WriteLimit == 0 {
		return nil, nil, nil
	}

	rl, useRedis := cfg.RateLimitConfig()
	if !useRedis {
		l, err := ratelimit.NewMemory(rl)
		if err != nil {
			return nil, nil, err
		}
		return l, l.Close, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	l, err := ratelimit.NewRedis(client, rl)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return l, client.Close, nil
}
