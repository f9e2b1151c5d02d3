// Package registry keeps in-memory run state per store slug: at most one
// active run per slug, monotonic counters updated from concurrent fetch
// callbacks, and set-once terminal fields.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shopindex/shopindex/internal/catalog"
	"github.com/shopindex/shopindex/internal/metrics"
)

// ErrRunActive is returned when a slug already has a run in flight.
type ErrRunActive struct {
	Slug  string
	RunID string
}

func (e *ErrRunActive) Error() string {
	return "run already active for store " + e.Slug
}

// Entry is the live state of one store's current or most recent run.
type Entry struct {
	mu sync.Mutex

	slug      string
	runID     string
	mode      string
	state     catalog.RunStatus
	stats     catalog.RunStats
	warning   string
	lastError string
	startedAt time.Time
	indexedAt *time.Time
	finished  bool
}

// Registry tracks entries by slug.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
	clock   catalog.Clock
}

// New constructs a registry. clock may be nil for wall time.
func New(clock catalog.Clock) *Registry {
	if clock == nil {
		clock = wallClock{}
	}
	return &Registry{entries: map[string]*Entry{}, clock: clock}
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Start claims the slug for a new run. It fails with ErrRunActive when a run
// for the slug has not reached a terminal state yet; the caller must retry
// later, requests are never queued.
func (r *Registry) Start(slug, mode string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[slug]; ok {
		existing.mu.Lock()
		active := !existing.finished
		runID := existing.runID
		existing.mu.Unlock()
		if active {
			return nil, &ErrRunActive{Slug: slug, RunID: runID}
		}
	}

	entry := &Entry{
		slug:      slug,
		runID:     uuid.NewString(),
		mode:      mode,
		state:     catalog.RunQueued,
		startedAt: r.clock.Now(),
	}
	r.entries[slug] = entry
	metrics.ObserveRun(string(catalog.RunQueued))
	metrics.RunStarted()
	return entry, nil
}

// Get returns the entry for slug, or nil when the slug has never run.
func (r *Registry) Get(slug string) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[slug]
}

// ActiveRuns counts entries that have not reached a terminal state.
func (r *Registry) ActiveRuns() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocked()
}

func (r *Registry) activeLocked() int {
	n := 0
	for _, e := range r.entries {
		e.mu.Lock()
		if !e.finished {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// RunID returns the run identifier.
func (e *Entry) RunID() string { return e.runID }

// Slug returns the store slug.
func (e *Entry) Slug() string { return e.slug }

// Mode returns the run mode (index or refresh).
func (e *Entry) Mode() string { return e.mode }

// MarkRunning moves the run out of queued. It is a no-op after a terminal
// state has been set.
func (e *Entry) MarkRunning() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return
	}
	e.state = catalog.RunRunning
	metrics.ObserveRun(string(catalog.RunRunning))
}

// AddStats accumulates counters. Deltas must be non-negative so racing
// writers can only move counters forward.
func (e *Entry) AddStats(delta catalog.RunStats) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.Discovered += delta.Discovered
	e.stats.SitemapsVisited += delta.SitemapsVisited
	e.stats.FeedProducts += delta.FeedProducts
	e.stats.Crawled += delta.Crawled
	e.stats.Indexed += delta.Indexed
	e.stats.SkippedUnchanged += delta.SkippedUnchanged
	e.stats.Errors += delta.Errors
}

// SetWarning records a non-fatal note surfaced on the status endpoint. Only
// the first warning sticks.
func (e *Entry) SetWarning(w string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.warning == "" {
		e.warning = w
	}
}

// Finish sets the terminal state exactly once; later calls are ignored.
func (e *Entry) Finish(state catalog.RunStatus, errText string, indexedAt *time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return
	}
	e.finished = true
	e.state = state
	e.lastError = errText
	if indexedAt != nil {
		e.indexedAt = indexedAt
	}
	metrics.ObserveRun(string(state))
	metrics.RunFinished()
}

// Finished reports whether the run reached a terminal state.
func (e *Entry) Finished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finished
}

// Stats returns a copy of the current counters.
func (e *Entry) Stats() catalog.RunStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Status renders the entry as the status-endpoint view.
func (e *Entry) Status() catalog.StoreStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	started := e.startedAt
	return catalog.StoreStatus{
		Slug:             e.slug,
		RunID:            e.runID,
		State:            e.state,
		Discovered:       e.stats.Discovered,
		Crawled:          e.stats.Crawled,
		SitemapsVisited:  e.stats.SitemapsVisited,
		SkippedUnchanged: e.stats.SkippedUnchanged,
		Warning:          e.warning,
		LastError:        e.lastError,
		StartedAt:        &started,
		LastIndexedAt:    e.indexedAt,
	}
}
