package commands

import (
	"context"
	"fmt"
	"log/slog"

	"member-activity/internal/config"
	"member-activity/internal/discord"
	"member-activity/internal/handles"
	"member-activity/internal/logging"
	"member-activity/internal/report"
	"member-activity/internal/services"
	"member-activity/internal/store"
)

// app holds what every subcommand needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  store.Backend
}

func loadApp() (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.NewLogger(cfg.App.Log.Level, cfg.App.Log.Format)
	slog.SetDefault(logger)

	backend, err := store.New(cfg.App.Database, logger)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, store: backend}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store failed", "error", err)
	}
}

func (a *app) policy() services.SnapshotPolicy {
	s := a.cfg.App.Snapshots
	// Validate has already parsed both days.
	baseline, _ := config.ParseWeekday(s.BaselineDay)
	comparison, _ := config.ParseWeekday(s.ComparisonDay)
	return services.SnapshotPolicy{
		BaselineDay:   baseline,
		ComparisonDay: comparison,
		TierPrefix:    s.TierPrefix,
		Regions:       s.Regions,
	}
}

// newRunner wires a runner. chat may be nil for commands that never scrape.
func (a *app) newRunner(chat services.ChatSource, opts ...services.RunnerOption) *services.Runner {
	c := a.cfg.App
	cfg := services.RunnerConfig{
		PageSize:     c.Discord.PageSize,
		PageDelay:    c.Discord.PageDelay,
		BatchSize:    c.Database.BatchSize,
		ProbeTimeout: c.Database.ProbeTimeout,
		Policy:       a.policy(),
		Generator: report.Generator{
			LeaderboardSize: c.Leaderboard.Size,
			ReportSize:      c.Leaderboard.ReportSize,
			TopContributors: c.Leaderboard.TopContributors,
		},
	}
	opts = append([]services.RunnerOption{
		services.WithReportSink(report.NewWriter(c.Output.Dir)),
		services.WithHandles(handles.NewFileSource(c.Snapshots.HandlesFile)),
	}, opts...)
	return services.NewRunner(chat, a.store, cfg, a.logger, opts...)
}

func (a *app) newSource(ctx context.Context) (*discord.Source, error) {
	src, err := discord.NewSource(a.cfg.App.Discord, a.logger)
	if err != nil {
		return nil, err
	}
	if _, err := src.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("discord login failed: %w", err)
	}
	return src, nil
}
