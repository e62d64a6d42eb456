package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const reloadDebounce = 200 * time.Millisecond

// Watch watches the config file with Viper (WatchConfig + OnConfigChange) and hot-reloads.
// Run in a goroutine. A reload that fails to parse or validate keeps the previous config.
// Conversations already open keep the settings they were created with.
func Watch(ctx context.Context) {
	path := Path()
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		slog.Warn("config watch initial read failed", "path", path, "error", err)
		return
	}

	reload := func() {
		cfg, err := Load(path)
		if err != nil {
			slog.Warn("config hot-reload rejected", "path", path, "error", err)
			return
		}
		prev := Get()
		Set(cfg)
		notifyReload(cfg)
		if prev != nil && prev.Backend.URL != cfg.Backend.URL {
			slog.Info("backend endpoint changed", "from", prev.Backend.URL, "to", cfg.Backend.URL)
		}
		slog.Info("config hot-reloaded", "path", path)
	}

	var (
		mu       sync.Mutex
		debounce *time.Timer
	)
	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		if filepath.Clean(e.Name) != filepath.Clean(path) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if debounce != nil {
			debounce.Stop()
		}
		debounce = time.AfterFunc(reloadDebounce, reload)
	})
	v.WatchConfig()

	<-ctx.Done()
	mu.Lock()
	if debounce != nil {
		debounce.Stop()
	}
	mu.Unlock()
}
