package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/errprop/errprop/pkg/propagation"
)

var (
	// ErrNotFound is returned for unknown or expired session ids.
	ErrNotFound = errors.New("store: session not found")

	// ErrLimitReached is returned by Create when MaxSessions live sessions exist.
	ErrLimitReached = errors.New("store: session limit reached")
)

// Options configures a Store.
type Options struct {
	// TTL is how long a session survives without being touched.
	TTL time.Duration

	// MaxSessions caps live sessions. Zero means unlimited.
	MaxSessions int

	// Policy is applied to every session's appends.
	Policy propagation.Policy

	// Seed is the first term of every new session.
	Seed propagation.Input
}

// Snapshot is a copy of a session's state, safe to use after the lock is
// released.
type Snapshot struct {
	ID        string
	Terms     []propagation.Term
	Result    propagation.Result
	CreatedAt time.Time
	UpdatedAt time.Time

	// Revision counts successful mutations. Touch leaves it unchanged.
	Revision uint64
}

// session is one calculator: its term list plus bookkeeping.
type session struct {
	id        string
	seq       *propagation.Sequence
	createdAt time.Time
	updatedAt time.Time
	revision  uint64
}

func (s *session) snapshot() Snapshot {
	return Snapshot{
		ID:        s.id,
		Terms:     s.seq.Terms(),
		Result:    s.seq.Result(),
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
		Revision:  s.revision,
	}
}

// Store is a thread-safe in-memory session store keyed by session id.
// A background goroutine (Run) periodically evicts sessions that have not
// been touched within the configured TTL.
type Store struct {
	mu      sync.RWMutex
	data    map[string]*session
	opts    Options
	onEvict []func(id string)

	now   func() time.Time // injectable for deterministic tests
	newID func() string
}

// New creates a Store with the given options.
func New(opts Options) *Store {
	return &Store{
		data:  make(map[string]*session),
		opts:  opts,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// OnEvict registers fn to be called with the id of every evicted session.
// Callbacks run outside the store lock.
func (s *Store) OnEvict(fn func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = append(s.onEvict, fn)
}

// SetPolicy replaces the append policy of every live session and of those
// created later.
func (s *Store) SetPolicy(p propagation.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Policy = p
	for _, sess := range s.data {
		sess.seq.SetPolicy(p)
	}
}

// Create starts a new session seeded with Options.Seed.
func (s *Store) Create() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts.MaxSessions > 0 && s.liveCount() >= s.opts.MaxSessions {
		return Snapshot{}, fmt.Errorf("%w (%d)", ErrLimitReached, s.opts.MaxSessions)
	}

	seq, err := propagation.NewSequence(s.opts.Seed, propagation.WithPolicy(s.opts.Policy))
	if err != nil {
		return Snapshot{}, fmt.Errorf("store: seed session: %w", err)
	}
	now := s.now()
	sess := &session{
		id:        s.newID(),
		seq:       seq,
		createdAt: now,
		updatedAt: now,
	}
	s.data[sess.id] = sess
	return sess.snapshot(), nil
}

// Get returns a snapshot of the session and whether a live one was found.
// It does not extend the session's lifetime.
func (s *Store) Get(id string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.live(id)
	if !ok {
		return Snapshot{}, false
	}
	return sess.snapshot(), true
}

// Touch marks the session as used now. It reports false for unknown or
// expired ids.
func (s *Store) Touch(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.live(id)
	if ok {
		sess.updatedAt = s.now()
	}
	return ok
}

// Update runs fn on the session's sequence under the store lock and marks the
// session as used. The returned snapshot reflects the state after fn, also
// when fn fails; the sequence guarantees a failed mutation changed nothing.
func (s *Store) Update(id string, fn func(*propagation.Sequence) error) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live(id)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	err := fn(sess.seq)
	sess.updatedAt = s.now()
	if err == nil {
		sess.revision++
	}
	return sess.snapshot(), err
}

// Delete removes the session. It reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return false
	}
	delete(s.data, id)
	return true
}

// List returns snapshots of every session whose UpdatedAt is within the TTL.
// Stale sessions that have not yet been evicted are excluded.
func (s *Store) List() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.opts.TTL)
	out := make([]Snapshot, 0, len(s.data))
	for _, sess := range s.data {
		if sess.updatedAt.After(cutoff) {
			out = append(out, sess.snapshot())
		}
	}
	return out
}

// Count returns the total number of sessions currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// LiveCount returns the number of sessions within the TTL without copying
// them.
func (s *Store) LiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveCount()
}

// Evict removes sessions whose UpdatedAt is older than now minus TTL and
// returns the number removed. OnEvict callbacks run after the lock is released.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	cutoff := now.Add(-s.opts.TTL)
	var removed []string
	for id, sess := range s.data {
		if !sess.updatedAt.After(cutoff) {
			delete(s.data, id)
			removed = append(removed, id)
		}
	}
	hooks := s.onEvict
	s.mu.Unlock()

	for _, id := range removed {
		for _, fn := range hooks {
			fn(id)
		}
	}
	return len(removed)
}

// Run starts the background TTL eviction loop. It ticks at half the TTL interval
// (minimum 1 second) so sessions are evicted promptly. Run blocks until ctx is
// cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.opts.TTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted idle sessions", "count", n)
			}
		}
	}
}

// live returns the session if it exists and is within the TTL. Callers hold mu.
func (s *Store) live(id string) (*session, bool) {
	sess, ok := s.data[id]
	if !ok {
		return nil, false
	}
	if !sess.updatedAt.After(s.now().Add(-s.opts.TTL)) {
		return nil, false
	}
	return sess, true
}

// liveCount counts sessions within the TTL. Callers hold mu.
func (s *Store) liveCount() int {
	cutoff := s.now().Add(-s.opts.TTL)
	n := 0
	for _, sess := range s.data {
		if sess.updatedAt.After(cutoff) {
			n++
		}
	}
	return n
}

// Policy returns the append policy currently applied to sessions.
func (s *Store) Policy() propagation.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts.Policy
}
