package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dotsetgreg/planbot/pkg/logger"
	"github.com/dotsetgreg/planbot/pkg/utils"
)

const JSONFileName = "sent_reminders.json"

// JSONLedger keeps the key set in memory and rewrites the whole file on
// every change. It has its own lock, independent of the session store.
type JSONLedger struct {
	path string
	mu   sync.Mutex
	sent map[string]bool
}

func NewJSONLedger(dataDir string) (*JSONLedger, error) {
	l := &JSONLedger{
		path: filepath.Join(dataDir, JSONFileName),
		sent: make(map[string]bool),
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if err := json.Unmarshal(data, &l.sent); err != nil {
		logger.WarnCF("ledger", "Discarding unreadable ledger file", map[string]interface{}{
			"path":  l.path,
			"error": err.Error(),
		})
		l.sent = make(map[string]bool)
	}
	return l, nil
}

func (l *JSONLedger) Has(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sent[key], nil
}

func (l *JSONLedger) Mark(_ context.Context, key string, _, _ time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sent[key] {
		return nil
	}
	l.sent[key] = true
	if err := l.saveLocked(); err != nil {
		delete(l.sent, key)
		return err
	}
	return nil
}

func (l *JSONLedger) Cleanup(_ context.Context, now time.Time, retention time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var stale []string
	for key := range l.sent {
		at, err := OccursAt(key)
		if err != nil {
			continue
		}
		if now.Sub(at) > retention {
			stale = append(stale, key)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	for _, key := range stale {
		delete(l.sent, key)
	}
	if err := l.saveLocked(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

func (l *JSONLedger) Len(_ context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sent), nil
}

func (l *JSONLedger) Close() error { return nil }

func (l *JSONLedger) saveLocked() error {
	data, err := json.MarshalIndent(l.sent, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := utils.WriteFileAtomic(l.path, data, 0o644); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}
