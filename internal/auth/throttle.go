package auth

import (
	"context"
	"sync"
	"time"
)

// AttemptStore keeps failed-login counters per username. Implementations must
// not double-count a single recorded failure under concurrent access.
type AttemptStore interface {
	Get(ctx context.Context, username string) (LoginAttempt, bool, error)
	Record(ctx context.Context, username string, at time.Time) error
	Clear(ctx context.Context, username string) error
}

// Throttle enforces temporary lockout after repeated failed logins. The
// lockout window slides from the most recent failure, not the first.
type Throttle struct {
	store     AttemptStore
	threshold int
	window    time.Duration
}

func NewThrottle(store AttemptStore, threshold int, window time.Duration) *Throttle {
	if threshold <= 0 {
		threshold = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}

	return &Throttle{store: store, threshold: threshold, window: window}
}

// CheckAllowed fails with ErrAccountLocked while the username is locked out.
// A counter whose window has elapsed is discarded.
func (t *Throttle) CheckAllowed(ctx context.Context, username string) error {
	attempt, ok, err := t.store.Get(ctx, username)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	lockedUntil := attempt.LastFailure.Add(t.window)
	if attempt.Count >= t.threshold {
		if remaining := time.Until(lockedUntil); remaining > 0 {
			return ErrAccountLocked{RetryAfter: remaining}
		}
		return t.store.Clear(ctx, username)
	}
	if time.Now().After(lockedUntil) {
		return t.store.Clear(ctx, username)
	}

	return nil
}

func (t *Throttle) RecordFailure(ctx context.Context, username string) error {
	return t.store.Record(ctx, username, time.Now().UTC())
}

func (t *Throttle) RecordSuccess(ctx context.Context, username string) error {
	return t.store.Clear(ctx, username)
}

// Window returns the configured lockout window. Stores use it to expire
// stale counters.
func (t *Throttle) Window() time.Duration {
	return t.window
}

// MemoryAttemptStore is the default single-instance store. Lockouts reset on
// process restart.
type MemoryAttemptStore struct {
	mu         sync.Mutex
	attempts   map[string]LoginAttempt
	window     time.Duration
	maxEntries int
}

func NewMemoryAttemptStore(window time.Duration) *MemoryAttemptStore {
	if window <= 0 {
		window = 15 * time.Minute
	}

	return &MemoryAttemptStore{
		attempts:   make(map[string]LoginAttempt),
		window:     window,
		maxEntries: 5000,
	}
}

func (s *MemoryAttemptStore) Get(_ context.Context, username string) (LoginAttempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[username]
	return attempt, ok, nil
}

func (s *MemoryAttemptStore) Record(_ context.Context, username string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt := s.attempts[username]
	attempt.Count++
	attempt.LastFailure = at
	s.attempts[username] = attempt

	if len(s.attempts) > s.maxEntries {
		threshold := at.Add(-s.window)
		for key, value := range s.attempts {
			if value.LastFailure.Before(threshold) {
				delete(s.attempts, key)
			}
		}
	}

	return nil
}

func (s *MemoryAttemptStore) Clear(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.attempts, username)
	return nil
}
