// Package archive keeps finished exchanges after their conversation is gone.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lhdbsbz/berrychat/internal/chat"
	"github.com/lhdbsbz/berrychat/internal/config"
)

// Store persists exchange records per session.
type Store interface {
	Append(ctx context.Context, rec chat.ExchangeRecord) error
	// Load returns the session's records oldest first; an unknown session yields none.
	Load(ctx context.Context, sessionID string) ([]chat.ExchangeRecord, error)
	Close() error
}

// Open builds the store selected by archive.driver.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.Archive.Driver {
	case config.ArchiveNone, "":
		return Nop{}, nil
	case config.ArchiveFile:
		return NewFileStore(config.ArchiveDir(cfg)), nil
	case config.ArchiveRedis:
		return DialRedis(cfg.Archive.RedisURL, cfg.Archive.TTL, cfg.Archive.MaxMessages)
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Archive.Driver)
	}
}

const appendTimeout = 5 * time.Second

// Recorder returns an exchange hook that archives each record. Failures are logged, never surfaced.
func Recorder(s Store) func(chat.ExchangeRecord) {
	return func(rec chat.ExchangeRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		defer cancel()
		if err := s.Append(ctx, rec); err != nil {
			slog.Warn("archive append failed", "session", rec.SessionID, "exchange", rec.ExchangeID, "error", err)
		}
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) Append(context.Context, chat.ExchangeRecord) error           { return nil }
func (Nop) Load(context.Context, string) ([]chat.ExchangeRecord, error) { return nil, nil }
func (Nop) Close() error                                                { return nil }
