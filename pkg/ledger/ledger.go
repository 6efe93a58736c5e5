// Package ledger records which reminders have already been delivered so the
// scheduler never sends the same one twice, including across restarts.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dotsetgreg/planbot/pkg/planner"
)

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"

	// NoEventID fills the event id slot for lines that carry none.
	NoEventID = "-"

	// DefaultRetention is how long past its occurrence a key is kept.
	DefaultRetention = 7 * 24 * time.Hour
)

// Ledger is a persisted set of sent-reminder keys.
type Ledger interface {
	Has(ctx context.Context, key string) (bool, error)
	// Mark records key after a successful send.
	Mark(ctx context.Context, key string, occursAt, sentAt time.Time) error
	// Cleanup evicts keys whose occurrence is more than retention before now
	// and returns how many were removed.
	Cleanup(ctx context.Context, now time.Time, retention time.Duration) (int, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// Key builds "{user}|{eventId}|{occursAt}[|{offsetTag}]".
func Key(user, eventID string, occursAt time.Time, offsetTag string) string {
	if eventID == "" {
		eventID = NoEventID
	}
	key := user + "|" + eventID + "|" + occursAt.Format(planner.TimeLayout)
	if offsetTag != "" {
		key += "|" + offsetTag
	}
	return key
}

// OccursAt extracts the embedded occurrence time from a key.
func OccursAt(key string) (time.Time, error) {
	parts := strings.Split(key, "|")
	if len(parts) < 3 {
		return time.Time{}, fmt.Errorf("ledger key %q: too few fields", key)
	}
	return planner.ParseTime(parts[2])
}

// Open returns the ledger backend named by backend, rooted at dataDir.
func Open(backend, dataDir string) (Ledger, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendJSON:
		return NewJSONLedger(dataDir)
	case BackendSQLite:
		return NewSQLiteLedger(dataDir)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", backend)
	}
}
