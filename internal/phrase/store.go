package phrase

import (
	"slices"
	"sync"
	"time"
)

// DefaultMaxTopicsPerUser is the topic quota applied when none is configured.
const DefaultMaxTopicsPerUser = 4

// Store is the shared phrase cache and quota ledger. Every method normalizes
// its topic argument and is safe for concurrent use.
type Store interface {
	// Get returns the cached phrase set for topic.
	Get(topic string) (Set, bool)

	// Put unconditionally replaces the cached set for topic.
	Put(topic string, set Set, userID string, mode Mode)

	// Entry returns the full cache entry for topic.
	Entry(topic string) (Entry, bool)

	// HasTopic reports whether userID already owns topic.
	HasTopic(userID, topic string) bool

	// Topics returns the topics owned by userID in insertion order.
	Topics(userID string) []string

	// RemainingSlots returns how many more topics userID may add. Never
	// negative.
	RemainingSlots(userID string) int

	// AddTopic appends topic to the ledger of userID. It returns true when
	// the topic is owned afterwards, and false without any mutation when the
	// quota is exhausted and the topic is new.
	AddTopic(userID, topic string) bool

	// Stats returns a snapshot of the store contents.
	Stats() Stats
}

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStoreOption configures a [MemStore].
type MemStoreOption func(*MemStore)

// WithMaxTopics sets the per-user topic quota. Values below 1 are ignored.
func WithMaxTopics(n int) MemStoreOption {
	return func(s *MemStore) {
		if n > 0 {
			s.maxTopics = n
		}
	}
}

// WithClock overrides the time source used for entry and quota timestamps.
func WithClock(now func() time.Time) MemStoreOption {
	return func(s *MemStore) {
		s.now = now
	}
}

// MemStore is a thread-safe, in-memory implementation of [Store]. Its
// contents live as long as the process; there is no eviction.
type MemStore struct {
	mu        sync.RWMutex
	entries   map[string]Entry
	quotas    map[string]*Quota
	maxTopics int
	now       func() time.Time
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore(opts ...MemStoreOption) *MemStore {
	s := &MemStore{
		entries:   make(map[string]Entry),
		quotas:    make(map[string]*Quota),
		maxTopics: DefaultMaxTopicsPerUser,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetMaxTopics changes the per-user quota at runtime. Existing ledgers are
// never shrunk; users above a lowered limit simply have no slots left.
func (s *MemStore) SetMaxTopics(n int) {
	if n < 1 {
		return
	}
	s.mu.Lock()
	s.maxTopics = n
	s.mu.Unlock()
}

// MaxTopics returns the current per-user quota.
func (s *MemStore) MaxTopics() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxTopics
}

// Get implements [Store.Get].
func (s *MemStore) Get(topic string) (Set, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[Normalize(topic)]
	if !ok {
		return nil, false
	}
	return e.Phrases, true
}

// Put implements [Store.Put].
func (s *MemStore) Put(topic string, set Set, userID string, mode Mode) {
	e := Entry{
		Phrases:     set.Normalized(),
		GeneratedAt: s.now(),
		GeneratedBy: userID,
		Mode:        mode,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[Normalize(topic)] = e
}

// Entry implements [Store.Entry].
func (s *MemStore) Entry(topic string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[Normalize(topic)]
	return e, ok
}

// HasTopic implements [Store.HasTopic].
func (s *MemStore) HasTopic(userID, topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotas[userID]
	if !ok {
		return false
	}
	return slices.Contains(q.Games, Normalize(topic))
}

// Topics implements [Store.Topics].
func (s *MemStore) Topics(userID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotas[userID]
	if !ok {
		return []string{}
	}
	return slices.Clone(q.Games)
}

// RemainingSlots implements [Store.RemainingSlots].
func (s *MemStore) RemainingSlots(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.maxTopics
	if q, ok := s.quotas[userID]; ok {
		n -= len(q.Games)
	}
	return max(n, 0)
}

// AddTopic implements [Store.AddTopic].
func (s *MemStore) AddTopic(userID, topic string) bool {
	key := Normalize(topic)

	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotas[userID]
	if !ok {
		s.quotas[userID] = &Quota{Games: []string{key}, CreatedAt: s.now()}
		return true
	}
	if slices.Contains(q.Games, key) {
		return true
	}
	if len(q.Games) >= s.maxTopics {
		return false
	}
	q.Games = append(q.Games, key)
	return true
}

// Quota returns a copy of the ledger of userID.
func (s *MemStore) Quota(userID string) (Quota, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotas[userID]
	if !ok {
		return Quota{}, false
	}
	return Quota{Games: slices.Clone(q.Games), CreatedAt: q.CreatedAt}, true
}

// Stats implements [Store.Stats].
func (s *MemStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return Stats{Topics: len(s.entries), Users: len(s.quotas), Keys: keys}
}
