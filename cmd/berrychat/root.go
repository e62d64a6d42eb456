package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lhdbsbz/berrychat/internal/config"
)

const version = "0.1.0"

var logLevel = new(slog.LevelVar)

var rootCmd = &cobra.Command{
	Use:   "berrychat",
	Short: "berrychat - blueberry growing assistant client",
	Long: `berrychat talks to the blueberry assistant backend over WebSocket.
Run "berrychat chat" for a terminal conversation or "berrychat serve" for the HTTP/WebSocket gateway.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default $BERRYCHAT_HOME/config.yaml)")
}

// loadConfig resolves the config path, loads it and publishes it with config.Set.
// A missing file falls back to the embedded example.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flagPath, _ := cmd.Flags().GetString("config")
	path := config.ResolveConfigPath(flagPath)
	config.SetPath(path)

	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("config not found, using defaults", "path", path)
		cfg, err = config.LoadFromExample(filepath.Dir(path))
	}
	if err != nil {
		return nil, err
	}
	config.Set(cfg)
	return cfg, nil
}

// setupLogging installs the default slog text handler; the level can change on reload.
func setupLogging(w io.Writer, level string) {
	setLevel(level)
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})))
}

func setLevel(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		l = slog.LevelInfo
	}
	logLevel.Set(l)
}
