package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/archive"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/assistant"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/config"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/guide"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/lifecycle"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/logger"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/pipeline"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/server"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		addr        string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the travel guide HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.Pipeline.Concurrency = concurrency
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Number of concurrently processed photos")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	store := lifecycle.NewStore()
	defer store.Close()

	var archiver pipeline.Archiver
	if cfg.Archive.Enabled {
		a, err := archive.New(ctx, cfg.Archive)
		if err != nil {
			return fmt.Errorf("failed to initialize archive: %w", err)
		}
		archiver = a
	}

	client := assistant.NewResilient(assistant.NewHTTPClient(cfg.Assistant))
	guideSvc := guide.New(client)

	orch := pipeline.New(cfg.Pipeline, store, guideSvc.OnPhotoProcessed, archiver)
	defer func() {
		orch.Wait()
		orch.Close()
	}()

	logger.Info("Serving on %s (concurrency %d)", cfg.Server.Addr, cfg.Pipeline.Concurrency)
	return server.New(cfg.Server, orch, store, guideSvc).Listen(ctx)
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}
