package status

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/telepoll/telepoll/agent/internal/scheduler"
)

// uptimeWindow is the number of recent pass outcomes tracked for uptime %.
const uptimeWindow = 20

// SessionInfo is a point-in-time view of a source's token session.
type SessionInfo struct {
	State           string
	Authentications int
}

// Entry is the latest known state of one source.
type Entry struct {
	Source          string
	Type            string
	Session         string // session token state; empty for sources without a session
	Authentications int    // successful token exchanges since start
	LastStarted     time.Time
	LastDuration    time.Duration
	Collected       int
	Forwarded       int
	CollectError    string
	ForwardError    string
	UptimePct       float64
	UpdatedAt       time.Time
}

// OK reports whether the last pass completed without error.
func (e Entry) OK() bool {
	return e.CollectError == "" && e.ForwardError == ""
}

func (e *Entry) applySession(si SessionInfo) {
	e.Session = si.State
	e.Authentications = si.Authentications
}

type record struct {
	entry   Entry
	history []bool // pass outcomes, newest last
}

// Store is a thread-safe in-memory view of the last pass of every source,
// keyed by source ID. It implements scheduler.Observer. A background
// goroutine (Run) evicts entries that have not been updated within the TTL.
type Store struct {
	mu     sync.RWMutex
	data   map[string]*record
	types  map[string]string
	probes map[string]func() SessionInfo
	ttl    time.Duration
	now    func() time.Time // injectable for deterministic tests
}

// NewStore creates a Store with the given TTL.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		data:   make(map[string]*record),
		types:  make(map[string]string),
		probes: make(map[string]func() SessionInfo),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Track registers a source's type and an optional probe reporting its
// session. Reports for untracked sources are still stored.
func (s *Store) Track(source, sourceType string, sessionProbe func() SessionInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types[source] = sourceType
	if sessionProbe != nil {
		s.probes[source] = sessionProbe
	}
}

// RecordCycle implements scheduler.Observer.
func (s *Store) RecordCycle(rep scheduler.CycleReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[rep.Source]
	if !ok {
		rec = &record{}
		s.data[rep.Source] = rec
	}
	if len(rec.history) >= uptimeWindow {
		rec.history = rec.history[1:]
	}
	rec.history = append(rec.history, rep.OK())

	rec.entry = Entry{
		Source:       rep.Source,
		Type:         s.types[rep.Source],
		LastStarted:  rep.Started,
		LastDuration: rep.Duration,
		Collected:    rep.Collected,
		Forwarded:    rep.Forwarded,
		CollectError: errString(rep.CollectErr),
		ForwardError: errString(rep.ForwardErr),
		UptimePct:    uptimePct(rec.history),
		UpdatedAt:    s.now(),
	}
}

// Get returns the entry for source and whether one was found. The entry may
// be stale if the TTL has elapsed; see Stale.
func (s *Store) Get(source string) (Entry, bool) {
	s.mu.RLock()
	rec, ok := s.data[source]
	var e Entry
	if ok {
		e = rec.entry
	}
	probe := s.probes[source]
	s.mu.RUnlock()

	if ok && probe != nil {
		e.applySession(probe())
	}
	return e, ok
}

// List returns all entries updated within the TTL, sorted by source ID.
func (s *Store) List() []Entry {
	s.mu.RLock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]Entry, 0, len(s.data))
	for _, rec := range s.data {
		if rec.entry.UpdatedAt.After(cutoff) {
			out = append(out, rec.entry)
		}
	}
	probes := make(map[string]func() SessionInfo, len(s.probes))
	for id, p := range s.probes {
		probes[id] = p
	}
	s.mu.RUnlock()

	for i := range out {
		if p, ok := probes[out[i].Source]; ok {
			out[i].applySession(p())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// Stale reports whether e is older than the TTL.
func (s *Store) Stale(e Entry) bool {
	return !e.UpdatedAt.After(s.now().Add(-s.ttl))
}

// Count returns the total number of entries currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes entries whose UpdatedAt is older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, rec := range s.data {
		if !rec.entry.UpdatedAt.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
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
				slog.Debug("status: evicted stale entries", "count", n)
			}
		}
	}
}

func uptimePct(history []bool) float64 {
	if len(history) == 0 {
		return 100
	}
	var ok int
	for _, h := range history {
		if h {
			ok++
		}
	}
	return float64(ok) / float64(len(history)) * 100
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
