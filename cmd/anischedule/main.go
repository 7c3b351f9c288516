package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"anischedule/internal/anilist"
	"anischedule/internal/animeschedule"
	"anischedule/internal/changelog"
	"anischedule/internal/config"
	"anischedule/internal/domain"
	"anischedule/internal/feed"
	"anischedule/internal/httpapi"
	"anischedule/internal/maldubs"
	"anischedule/internal/resolver"
	"anischedule/internal/schedule"
	"anischedule/internal/store"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", "anischedule").Logger()
	log.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(logger).ExecuteContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("command failed")
	}
}

// components is the wired object graph a run needs. Construction is cheap;
// nothing dials out until a command runs.
type components struct {
	cfg     config.Config
	store   *store.Store
	changes *changelog.Log
	merger  *schedule.Merger
	season  *schedule.Seasonal
	updater *feed.Updater
}

func build(cfg config.Config, logger zerolog.Logger) *components {
	st := store.New(cfg.DataDir, logger.With().Str("component", "store").Logger())
	changes := changelog.New(logger)

	meta := anilist.NewClient(cfg.AniListURL, cfg.AniListToken, logger.With().Str("component", "anilist").Logger())
	timetables := animeschedule.NewClient(cfg.AnimeScheduleURL, cfg.AnimeScheduleToken, logger.With().Str("component", "animeschedule").Logger())
	dubs := maldubs.NewClient(cfg.DubListURL, logger.With().Str("component", "maldubs").Logger())
	res := resolver.New(meta, timetables, cfg.Heuristics.CompoundChunkSize, logger.With().Str("component", "resolver").Logger())

	return &components{
		cfg:     cfg,
		store:   st,
		changes: changes,
		merger:  schedule.NewMerger(timetables, res, dubs, st, changes, cfg.Heuristics, logger.With().Str("component", "merger").Logger()),
		season:  schedule.NewSeasonal(meta, st, logger.With().Str("component", "seasonal").Logger()),
		updater: feed.NewUpdater(timetables, st, changes, cfg.Heuristics, logger.With().Str("component", "feed").Logger()),
	}
}

func newRootCmd(logger zerolog.Logger) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "anischedule",
		Short:         "Reconciles anime airing schedules and emits episode feeds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file")

	load := func() (config.Config, error) {
		return config.Load(configPath)
	}

	root.AddCommand(
		newScheduleCmd(logger, load),
		newFeedCmd(logger, load),
		newRunCmd(logger, load),
		newServeCmd(logger, load),
	)
	return root
}

type loadFunc func() (config.Config, error)

func categoryArg(args []string) (domain.Category, error) {
	if len(args) == 0 {
		return domain.CategoryDub, nil
	}
	cat, err := domain.ParseCategory(args[0])
	if err != nil {
		return "", err
	}
	if cat == domain.CategoryHentai {
		return "", fmt.Errorf("the hentai feed is produced by the sub pipeline, run the sub category")
	}
	return cat, nil
}

func newScheduleCmd(logger zerolog.Logger, load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule [dub|sub]",
		Short: "Rebuild the airing schedule for a category",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := categoryArg(args)
			if err != nil {
				return err
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			c := build(cfg, logger)
			if err := runSchedule(cmd.Context(), c, cat); err != nil {
				return err
			}
			return c.store.WriteChanges(c.changes.Lines())
		},
	}
}

func newFeedCmd(logger zerolog.Logger, load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "feed [dub|sub]",
		Short: "Update the episode feed for a category from its schedule",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := categoryArg(args)
			if err != nil {
				return err
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			c := build(cfg, logger)
			if err := runFeed(cmd.Context(), c, cat); err != nil {
				return err
			}
			return c.store.WriteChanges(c.changes.Lines())
		},
	}
}

func newRunCmd(logger zerolog.Logger, load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Rebuild every schedule and feed in one pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			c := build(cfg, logger)
			for _, cat := range []domain.Category{domain.CategoryDub, domain.CategorySub} {
				if err := runSchedule(cmd.Context(), c, cat); err != nil {
					return err
				}
				if err := runFeed(cmd.Context(), c, cat); err != nil {
					return err
				}
			}
			return c.store.WriteChanges(c.changes.Lines())
		},
	}
}

func runSchedule(ctx context.Context, c *components, cat domain.Category) error {
	switch cat {
	case domain.CategoryDub:
		if err := c.cfg.RequireScheduleToken(); err != nil {
			return err
		}
		return c.merger.Run(ctx)
	case domain.CategorySub:
		return c.season.Run(ctx)
	}
	return fmt.Errorf("unknown category %q", cat)
}

func runFeed(ctx context.Context, c *components, cat domain.Category) error {
	switch cat {
	case domain.CategoryDub:
		if err := c.cfg.RequireScheduleToken(); err != nil {
			return err
		}
		return c.updater.RunDub(ctx)
	case domain.CategorySub:
		return c.updater.RunSub(ctx)
	}
	return fmt.Errorf("unknown category %q", cat)
}

func newServeCmd(logger zerolog.Logger, load loadFunc) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the persisted documents over read-only HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			st := store.New(cfg.DataDir, logger.With().Str("component", "store").Logger())
			srv := httpapi.NewServer(logger, st)

			httpServer := &http.Server{
				Addr:              addr,
				Handler:           srv.Router(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", addr).Msg("listening")
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}
			logger.Info().Msg("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	return cmd
}
