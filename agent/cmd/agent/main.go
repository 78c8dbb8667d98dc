package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/telepoll/telepoll/agent/internal/config"
	"github.com/telepoll/telepoll/agent/internal/forwarder"
	"github.com/telepoll/telepoll/agent/internal/scheduler"
	"github.com/telepoll/telepoll/agent/internal/scraper"
	"github.com/telepoll/telepoll/agent/internal/security"
	"github.com/telepoll/telepoll/agent/internal/selfmetrics"
	"github.com/telepoll/telepoll/agent/internal/status"
)

// certCheckInterval is how often client and endpoint certificates are
// re-examined.
const certCheckInterval = 12 * time.Hour

func main() {
	configPath := pflag.String("config", "config.yaml", "path to config file")
	logLevel := pflag.String("log-level", "info", "log level: debug|info|warn|error")
	pflag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("telepoll-agent starting", "config", *configPath, "log_level", level.String())

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"sink_address", cfg.Agent.SinkAddress,
		"sources", len(cfg.Agent.Sources),
		"collect_interval", cfg.Agent.CollectInterval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := selfmetrics.New()
	store := status.NewStore(cfg.Agent.Status.TTL)
	fwd := forwarder.New(cfg.Agent.SinkAddress, cfg.Agent.SinkTimeout)

	type collector struct {
		src  config.Source
		s    scraper.Scraper
		loop *scheduler.Loop
	}
	var collectors []collector
	for _, src := range cfg.Agent.Sources {
		s, err := scraper.New(src)
		if err != nil {
			slog.Error("skipping source, could not build scraper", "source", src.ID, "err", err)
			continue
		}
		var probe func() status.SessionInfo
		if r, ok := s.(scraper.SessionReporter); ok {
			probe = func() status.SessionInfo {
				return status.SessionInfo{State: r.SessionState().String(), Authentications: r.Authentications()}
			}
		}
		store.Track(src.ID, src.Type, probe)

		loop := scheduler.New(src.ID, cfg.Agent.CollectInterval, s.Scrape, fwd.Forward, registry, store)
		collectors = append(collectors, collector{src: src, s: s, loop: loop})
		slog.Info("registered source", "id", src.ID, "type", src.Type, "endpoint", src.Endpoint)
	}

	if len(collectors) == 0 {
		slog.Warn("no sources configured, agent will idle")
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, c := range collectors {
		g.Go(func() error { return c.loop.Run(gctx) })
	}

	if cfg.Agent.Status.Listen != "" {
		srv := status.NewServer(cfg.Agent.Status.Listen, store, registry, selfmetrics.ContentType(), cfg.Agent.Status.Auth)
		g.Go(auxiliary(gctx, "status server", srv.Run))
	}

	g.Go(func() error {
		store.Run(gctx)
		return nil
	})

	g.Go(func() error {
		security.Run(gctx, cfg.Agent.Sources, certCheckInterval, registry)
		return nil
	})

	// Hot reload re-applies naming tables; other changes need a restart.
	g.Go(auxiliary(gctx, "config watcher", func(ctx context.Context) error {
		return config.Watch(ctx, *configPath, func(updated *config.Config) {
			byID := make(map[string]config.Source, len(updated.Agent.Sources))
			for _, src := range updated.Agent.Sources {
				byID[src.ID] = src
			}
			for _, c := range collectors {
				u, ok := c.s.(scraper.NamingUpdater)
				if !ok {
					continue
				}
				if src, ok := byID[c.src.ID]; ok {
					u.SetNaming(src.Naming)
					slog.Info("naming tables reloaded", "source", c.src.ID)
				}
			}
		})
	}))

	if err := g.Wait(); err != nil {
		slog.Error("telepoll-agent stopped with error", "err", err)
		cancel()
		os.Exit(1)
	}
	slog.Info("telepoll-agent shutting down")
}

// auxiliary wraps a unit that is not part of collection. Its failure is
// logged and reported to the group as nil so the collectors keep running.
func auxiliary(ctx context.Context, name string, run func(context.Context) error) func() error {
	return func() error {
		if err := run(ctx); err != nil {
			slog.Error(name+" stopped", "err", err)
		}
		return nil
	}
}
