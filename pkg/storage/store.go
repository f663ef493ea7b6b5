// Package storage holds the latest published snapshot of each dashboard
// widget, in memory or in Redis.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Snapshot is the published state of one widget.
type Snapshot struct {
	Widget string `json:"widget"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
	// LastUpdated is when the view model was last fetched successfully;
	// zero means it is still the fallback.
	LastUpdated     time.Time `json:"lastUpdated"`
	PublishedAt     time.Time `json:"publishedAt"`
	IntervalSeconds int       `json:"intervalSeconds"`
	Epoch           uint64    `json:"epoch"`
	Error           *Error    `json:"error,omitempty"`

	// ViewModel is the widget's view model, already encoded.
	ViewModel json.RawMessage `json:"viewModel"`
}

// Error mirrors the adapter's last error.
type Error struct {
	Kind     string    `json:"kind"`
	Category string    `json:"category"`
	Status   int       `json:"status,omitempty"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// Stale reports whether the snapshot should be flagged as out of date at now:
// the last fetch failed (including while the retry is loading), or the data
// is older than two polling intervals.
func (s Snapshot) Stale(now time.Time) bool {
	switch {
	case s.Status == "Stale" || s.Status == "Failed":
		return true
	case s.Status == "Loading" && s.Error != nil:
		return true
	}
	if s.LastUpdated.IsZero() || s.IntervalSeconds <= 0 {
		return false
	}
	return now.Sub(s.LastUpdated) > 2*time.Duration(s.IntervalSeconds)*time.Second
}

type Store interface {
	Put(ctx context.Context, snapshot Snapshot) error
	GetLatest(ctx context.Context, widget string) (Snapshot, bool, error)
	// List returns all stored snapshots ordered by widget name.
	List(ctx context.Context) ([]Snapshot, error)
	Close() error
}

// validateName restricts widget names to characters that are safe in Redis
// keys and URL paths.
func validateName(name string) error {
	if name == "" {
		return errors.New("widget name required")
	}
	for _, c := range name {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_') {
			return fmt.Errorf("invalid widget name %q: only alphanumeric, hyphens, and underscores allowed", name)
		}
	}
	return nil
}
