package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/pvnkmrksk/magga/internal/api"
	"github.com/pvnkmrksk/magga/pkg/cache"
)

// newServeCmd creates the serve command.
func newServeCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP layout service",
		Long: `Run the HTTP layout service.

POST /api/draw takes a line graph with embedding options and responds with
the octilinear layout and its cost report. Finished layouts are persisted
and retrievable under /api/layouts/{id}.

With a Redis address configured, layouts are cached across instances;
with a Mongo URI configured, they are persisted there instead of process
memory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr, *configPath)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, else :8080)")
	return cmd
}

func runServe(ctx context.Context, addr string, configPath string) error {
	logger := loggerFromContext(ctx)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.Serve.Addr
	}

	var store api.LayoutStore
	if cfg.Serve.Mongo.URI != "" {
		s, err := api.NewMongoStore(ctx, cfg.Serve.Mongo)
		if err != nil {
			return err
		}
		defer s.Close(context.Background())
		store = s
		logger.Info("using mongo layout store", "db", cfg.Serve.Mongo.Database)
	}

	var layoutCache cache.Cache
	if cfg.Serve.Redis.Addr != "" {
		c, err := cache.NewRedisCache(ctx, cfg.Serve.Redis)
		if err != nil {
			return err
		}
		defer c.Close()
		layoutCache = c
		logger.Info("using redis layout cache", "addr", cfg.Serve.Redis.Addr)
	}

	return api.NewServer(store, layoutCache, logger).ListenAndServe(ctx, addr)
}
