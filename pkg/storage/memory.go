package storage

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps the latest snapshot per widget in a map. It is safe for
// concurrent use.
//
// With a TTL, a background goroutine evicts snapshots that have not been
// republished within the TTL, so widgets removed from the configuration
// disappear from listings. Close must be called to stop it.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
	ttl       time.Duration
	now       func() time.Time

	ticker   *time.Ticker
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates a store that keeps snapshots until they are replaced
// or deleted.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]Snapshot),
		now:       time.Now,
	}
}

// NewMemoryStoreWithTTL creates a store that evicts snapshots whose
// PublishedAt is older than ttl. Eviction runs every cleanupInterval
// (default one minute). A non-positive ttl disables eviction.
func NewMemoryStoreWithTTL(ttl, cleanupInterval time.Duration) *MemoryStore {
	s := NewMemoryStore()
	if ttl <= 0 {
		return s
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s.ttl = ttl
	s.ticker = time.NewTicker(cleanupInterval)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.runCleanup()
	return s
}

// Close stops the cleanup goroutine, if any, and waits for it to exit.
// It is idempotent.
func (s *MemoryStore) Close() error {
	if s.ticker == nil {
		return nil
	}
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
		s.ticker.Stop()
	})
	return nil
}

func (s *MemoryStore) runCleanup() {
	defer close(s.done)
	for {
		select {
		case <-s.ticker.C:
			s.evictExpired()
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for name, snap := range s.snapshots {
		if now.Sub(snap.PublishedAt) > s.ttl {
			delete(s.snapshots, name)
		}
	}
}

// Put replaces the snapshot stored under snapshot.Widget.
func (s *MemoryStore) Put(ctx context.Context, snapshot Snapshot) error {
	if err := validateName(snapshot.Widget); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.Widget] = snapshot
	return nil
}

// GetLatest returns the snapshot for widget and whether one exists.
func (s *MemoryStore) GetLatest(ctx context.Context, widget string) (Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, found := s.snapshots[widget]
	return snap, found, nil
}

// List returns every snapshot ordered by widget name.
func (s *MemoryStore) List(ctx context.Context) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]Snapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Snapshot) int { return strings.Compare(a.Widget, b.Widget) })
	return out, nil
}

// Len returns the number of stored snapshots.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// Delete removes the snapshot for widget and reports whether one existed.
func (s *MemoryStore) Delete(widget string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.snapshots[widget]
	delete(s.snapshots, widget)
	return existed
}
