package otp

import (
	"context"
	"sync"
	"time"
)

type memoryKey struct {
	kind     Kind
	identity string
}

// MemoryStore is a process-local Store. Challenges do not survive a restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[memoryKey]Challenge
	now     func() time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[memoryKey]Challenge),
		now:     now,
	}
}

func (s *MemoryStore) Issue(_ context.Context, kind Kind, identity, code string, ttl time.Duration, payload Context) (Challenge, error) {
	issuedAt := s.now()
	ch := Challenge{
		Kind:      kind,
		Identity:  identity,
		Code:      code,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(ttl),
		Context:   payload,
	}

	s.mu.Lock()
	s.entries[memoryKey{kind, identity}] = ch
	s.mu.Unlock()

	return ch, nil
}

func (s *MemoryStore) Lookup(_ context.Context, kind Kind, identity string) (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.entries[memoryKey{kind, identity}]
	if !ok {
		return Challenge{}, ErrChallengeNotFound
	}
	return ch, nil
}

func (s *MemoryStore) Consume(_ context.Context, kind Kind, identity string) error {
	s.mu.Lock()
	delete(s.entries, memoryKey{kind, identity})
	s.mu.Unlock()
	return nil
}

// Sweep drops every expired challenge and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, ch := range s.entries {
		if ch.Expired(now) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RunSweeper calls Sweep every interval until ctx is done. onSweep, when
// set, sees the number removed and the number still held.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration, onSweep func(removed, remaining int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := s.Sweep()
			if onSweep != nil {
				onSweep(n, s.Len())
			}
		}
	}
}
