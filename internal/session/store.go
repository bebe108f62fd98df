// Package session keeps the latest catchment result of each client session
// in memory. Sessions are isolated from each other; a new query supersedes
// the previous result of its session instead of mutating it.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/catchment/internal/catchment"
)

// Analyzer computes a catchment result.
type Analyzer interface {
	Analyze(ctx context.Context, q catchment.Query) (*catchment.Result, error)
	Normalize(q catchment.Query) (catchment.Query, error)
}

// Store is a concurrent-safe LRU of per-session results with TTL expiration.
type Store struct {
	mu          sync.RWMutex
	entries     map[string]*entry
	generations map[string]uint64 // only sessions with analyses in flight
	inflight    map[string]int
	order       []string // LRU order: front=oldest, back=newest
	maxSessions int
	ttl         time.Duration
	hits        atomic.Int64
	misses      atomic.Int64
}

type entry struct {
	result    *catchment.Result
	key       string
	createdAt time.Time
}

// Stats contains store statistics.
type Stats struct {
	Sessions    int     `json:"sessions"`
	MaxSessions int     `json:"max_sessions"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
}

// NewStore creates a Store holding at most maxSessions results for ttl.
func NewStore(maxSessions int, ttl time.Duration) *Store {
	return &Store{
		entries:     make(map[string]*entry),
		generations: make(map[string]uint64),
		inflight:    make(map[string]int),
		maxSessions: maxSessions,
		ttl:         ttl,
	}
}

// NewID returns a fresh session identifier.
func NewID() string { return uuid.NewString() }

// Get returns the current result of a session.
func (s *Store) Get(sessionID string) (*catchment.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(sessionID)
	if !ok {
		s.misses.Add(1)
		return nil, false
	}
	s.touch(sessionID)
	s.hits.Add(1)
	return e.result, true
}

// Put replaces the result of a session.
func (s *Store) Put(sessionID string, r *catchment.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bump(sessionID)
	s.put(sessionID, r)
}

// Invalidate discards the session's result. Any analysis started for the
// session before the call will not be stored.
func (s *Store) Invalidate(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidate(sessionID)
}

// Analyze returns the session's result for q, computing it when the session
// holds no result for the same query. A different query discards the
// previous result first. Failed analyses store nothing.
func (s *Store) Analyze(ctx context.Context, sessionID string, a Analyzer, q catchment.Query) (*catchment.Result, error) {
	q, err := a.Normalize(q)
	if err != nil {
		return nil, &catchment.AnalysisError{Stage: "validate query", Query: q, Err: err}
	}
	key := q.Key()

	s.mu.Lock()
	if e, ok := s.lookup(sessionID); ok && e.key == key {
		s.touch(sessionID)
		s.mu.Unlock()
		s.hits.Add(1)
		return e.result, nil
	}
	s.misses.Add(1)
	s.invalidate(sessionID)
	s.inflight[sessionID]++
	gen := s.generations[sessionID]
	s.mu.Unlock()

	res, err := a.Analyze(ctx, q)

	s.mu.Lock()
	defer s.mu.Unlock()
	stale := s.generations[sessionID] != gen
	s.release(sessionID)
	if err != nil {
		return nil, err
	}
	if stale {
		zap.L().Debug("session: dropping superseded result",
			zap.String("session", sessionID),
			zap.String("result", res.ID),
		)
		return res, nil
	}
	s.put(sessionID, res)
	return res, nil
}

// Stats returns store statistics.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	sessions := len(s.entries)
	maxSessions := s.maxSessions
	s.mu.RUnlock()

	hits := s.hits.Load()
	misses := s.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return Stats{
		Sessions:    sessions,
		MaxSessions: maxSessions,
		Hits:        hits,
		Misses:      misses,
		HitRate:     hitRate,
	}
}

// lookup returns a live entry, dropping it if expired. Callers hold mu.
func (s *Store) lookup(sessionID string) (*entry, bool) {
	e, ok := s.entries[sessionID]
	if !ok {
		return nil, false
	}
	if s.ttl > 0 && time.Since(e.createdAt) > s.ttl {
		delete(s.entries, sessionID)
		s.removeFromOrder(sessionID)
		return nil, false
	}
	return e, true
}

func (s *Store) put(sessionID string, r *catchment.Result) {
	if _, ok := s.entries[sessionID]; ok {
		s.removeFromOrder(sessionID)
	}
	for len(s.entries) >= s.maxSessions && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, oldest)
	}
	s.entries[sessionID] = &entry{result: r, key: r.Query.Key(), createdAt: time.Now()}
	s.order = append(s.order, sessionID)
}

func (s *Store) invalidate(sessionID string) {
	s.bump(sessionID)
	if _, ok := s.entries[sessionID]; ok {
		delete(s.entries, sessionID)
		s.removeFromOrder(sessionID)
	}
}

// bump marks results of analyses already in flight as superseded. Sessions
// with nothing in flight have nothing to supersede and keep no generation.
func (s *Store) bump(sessionID string) {
	if s.inflight[sessionID] > 0 {
		s.generations[sessionID]++
	}
}

func (s *Store) release(sessionID string) {
	if s.inflight[sessionID]--; s.inflight[sessionID] > 0 {
		return
	}
	delete(s.inflight, sessionID)
	delete(s.generations, sessionID)
}

func (s *Store) touch(sessionID string) {
	s.removeFromOrder(sessionID)
	s.order = append(s.order, sessionID)
}

// removeFromOrder removes a session from the LRU order slice.
func (s *Store) removeFromOrder(sessionID string) {
	for i, k := range s.order {
		if k == sessionID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
