package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/staybook/internal/clock"
)

// MemoryStore keeps entries in process. It is only correct for a single
// instance; multi-instance deployments use RedisStore.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
	opts    Options
	clock   clock.Clock
}

func NewMemoryStore(opts Options, clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &MemoryStore{
		entries: make(map[string]*Entry),
		opts:    opts.withDefaults(),
		clock:   clk,
	}
}

func memoryKey(scope, key string) string {
	return scope + "\x00" + key
}

func (s *MemoryStore) Begin(_ context.Context, scope, key, fingerprint string) (BeginResult, error) {
	now := s.clock.Now()
	id := memoryKey(scope, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if ok && !now.Before(entry.ExpiresAt) {
		delete(s.entries, id)
		ok = false
	}
	if !ok {
		s.entries[id] = &Entry{
			Key:         key,
			Fingerprint: fingerprint,
			State:       StatePending,
			CreatedAt:   now,
			ExpiresAt:   now.Add(s.opts.LockTTL),
		}
		return BeginResult{Outcome: OutcomeNew}, nil
	}

	if entry.Fingerprint != fingerprint {
		return BeginResult{Outcome: OutcomeConflict}, nil
	}

	switch entry.State {
	case StateCompleted:
		cached := *entry.Response
		cached.Body = append([]byte(nil), entry.Response.Body...)
		return BeginResult{Outcome: OutcomeReplay, Cached: &cached}, nil
	case StateOpen:
		entry.State = StatePending
		entry.ExpiresAt = now.Add(s.opts.LockTTL)
		return BeginResult{Outcome: OutcomeNew}, nil
	default:
		return BeginResult{Outcome: OutcomeInProgress}, nil
	}
}

func (s *MemoryStore) Complete(_ context.Context, scope, key, fingerprint string, resp Response) error {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[memoryKey(scope, key)]
	if !ok || entry.Fingerprint != fingerprint || !now.Before(entry.ExpiresAt) {
		return ErrNotReserved
	}
	if entry.State == StateCompleted {
		return nil
	}

	stored := resp
	stored.Body = append([]byte(nil), resp.Body...)
	entry.State = StateCompleted
	entry.Response = &stored
	entry.ExpiresAt = now.Add(s.opts.TTL)
	return nil
}

func (s *MemoryStore) Release(_ context.Context, scope, key, fingerprint string) error {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[memoryKey(scope, key)]
	if !ok || entry.Fingerprint != fingerprint || entry.State != StatePending {
		return nil
	}
	entry.State = StateOpen
	entry.ExpiresAt = now.Add(s.opts.TTL)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, scope, key string) (*Entry, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[memoryKey(scope, key)]
	if !ok || !now.Before(entry.ExpiresAt) {
		return nil, nil
	}
	out := *entry
	if entry.Response != nil {
		resp := *entry.Response
		resp.Body = append([]byte(nil), entry.Response.Body...)
		out.Response = &resp
	}
	return &out, nil
}

// Sweep drops expired entries and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps every interval until ctx is done.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 && onSweep != nil {
				onSweep(removed)
			}
		}
	}
}

var _ Store = (*MemoryStore)(nil)
