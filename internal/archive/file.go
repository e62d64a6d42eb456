package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lhdbsbz/berrychat/internal/chat"
)

// Entry is a single line in a session's JSONL archive file.
type Entry struct {
	Type      string               `json:"type"` // "exchange"
	ID        string               `json:"id"`
	Timestamp time.Time            `json:"timestamp"`
	Exchange  *chat.ExchangeRecord `json:"exchange,omitempty"`
}

// FileStore appends one JSONL file per session under dir.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path returns the archive file for a session.
func (s *FileStore) Path(sessionID string) string {
	return filepath.Join(s.dir, filepath.Base(sessionID)+".jsonl")
}

func (s *FileStore) Append(ctx context.Context, rec chat.ExchangeRecord) error {
	if rec.SessionID == "" {
		return fmt.Errorf("archive: record without session id")
	}
	entry := Entry{
		Type:      "exchange",
		ID:        rec.ExchangeID,
		Timestamp: rec.StartedAt.Add(rec.Duration),
		Exchange:  &rec,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	f, err := os.OpenFile(s.Path(rec.SessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

func (s *FileStore) Load(ctx context.Context, sessionID string) ([]chat.ExchangeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.Path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	var out []chat.ExchangeRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue // skip malformed lines
		}
		if entry.Type == "exchange" && entry.Exchange != nil {
			out = append(out, *entry.Exchange)
		}
	}
	return out, scanner.Err()
}

func (s *FileStore) Close() error { return nil }
