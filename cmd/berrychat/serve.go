package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/lhdbsbz/berrychat/internal/archive"
	"github.com/lhdbsbz/berrychat/internal/chat"
	"github.com/lhdbsbz/berrychat/internal/config"
	"github.com/lhdbsbz/berrychat/internal/gateway"
	"github.com/lhdbsbz/berrychat/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	Long:  `Starts the HTTP API and WebSocket push gateway. Each conversation gets its own transcript and backend session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		setupLogging(os.Stdout, cfg.Log.Level)
		slog.Info("berrychat starting", "version", version, "home", config.Home(), "config", config.Path())

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config) error {
	go config.Watch(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	store, err := archive.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("archive ready", "driver", cfg.Archive.Driver)

	// New conversations follow the live config; open ones keep what they started with.
	registry := gateway.NewRegistry(func() *chat.Controller {
		ctrl := chat.NewController(chat.OptionsFromConfig(config.Get(), m))
		ctrl.OnExchangeDone(archive.Recorder(store))
		return ctrl
	}, m)

	sweeper, err := gateway.NewSweeper(cfg.Gateway.SweepSchedule, registry, func() time.Duration {
		return config.Get().Gateway.IdleTimeout
	})
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	config.RegisterOnReload(func(c *config.Config) {
		setLevel(c.Log.Level)
		if err := sweeper.Reschedule(c.Gateway.SweepSchedule); err != nil {
			slog.Warn("sweep schedule not updated", "error", err)
		}
	})

	srv := gateway.NewServer(ctx, gateway.Options{
		Port:     cfg.Gateway.Port,
		Registry: registry,
		Archive:  store,
		Gatherer: reg,
		AuthToken: func() string {
			return config.Get().Gateway.Auth.Token
		},
	})
	return srv.Start(ctx)
}
