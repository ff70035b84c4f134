// Package quarantine removes listeners that keep failing.
//
// A Quarantine is installed as a bus' listener error handler. It counts
// failures per registration inside a sliding window; once a registration
// reaches the threshold it is unsubscribed and reported, so one broken
// listener cannot flood the logs on every emit.
//
//	q := quarantine.New(quarantine.DefaultConfig)
//	bus := eventflow.New(eventflow.WithListenerErrorHandler(q.Record))
package quarantine

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/randalmurphal/eventflow/pkg/eventflow"
)

// Config configures a Quarantine.
type Config struct {
	// FailureThreshold is the number of failures inside Window that
	// quarantines a listener.
	// Default: 3
	FailureThreshold int

	// Window is how long a failure counts toward the threshold.
	// Default: 1 minute
	Window time.Duration

	// PanicsOnly ignores returned errors and counts panics only.
	PanicsOnly bool

	// Clock measures the window.
	// Default: the wall clock
	Clock clock.Clock

	// Logger receives quarantine notices.
	// Default: slog.Default()
	Logger *slog.Logger

	// OnQuarantine is called after a listener has been unsubscribed.
	OnQuarantine func(err *eventflow.ListenerError, failures int)
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	FailureThreshold: 3,
	Window:           time.Minute,
}

// failureRecord tracks failures of one registration.
type failureRecord struct {
	eventType   string
	count       int
	firstSeenAt time.Time
	lastSeenAt  time.Time
}

// Quarantine tracks listener failures. It is safe for concurrent use.
type Quarantine struct {
	cfg Config

	mu          sync.Mutex
	records     map[eventflow.RegistrationID]*failureRecord
	quarantined map[eventflow.RegistrationID]time.Time
}

// New creates a Quarantine. Unset fields fall back to DefaultConfig.
func New(cfg Config) *Quarantine {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig.Window
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Quarantine{
		cfg:         cfg,
		records:     make(map[eventflow.RegistrationID]*failureRecord),
		quarantined: make(map[eventflow.RegistrationID]time.Time),
	}
}

// Record counts one failure. Its signature matches
// eventflow.WithListenerErrorHandler.
func (q *Quarantine) Record(err *eventflow.ListenerError) {
	if err == nil || (q.cfg.PanicsOnly && !err.Panicked()) {
		return
	}
	now := q.cfg.Clock.Now()

	q.mu.Lock()
	if _, done := q.quarantined[err.ListenerID]; done {
		q.mu.Unlock()
		return
	}
	rec, ok := q.records[err.ListenerID]
	if !ok || now.Sub(rec.firstSeenAt) > q.cfg.Window {
		rec = &failureRecord{eventType: err.EventType, firstSeenAt: now}
		q.records[err.ListenerID] = rec
	}
	rec.count++
	rec.lastSeenAt = now
	count := rec.count
	tripped := count >= q.cfg.FailureThreshold
	if tripped {
		delete(q.records, err.ListenerID)
		q.quarantined[err.ListenerID] = now
	}
	q.mu.Unlock()

	if !tripped {
		return
	}
	err.Subscription.Unsubscribe()
	q.cfg.Logger.Warn("listener quarantined",
		slog.String("event_type", err.EventType),
		slog.Uint64("listener_id", uint64(err.ListenerID)),
		slog.Int("failures", count),
		slog.Duration("window", q.cfg.Window),
	)
	if q.cfg.OnQuarantine != nil {
		q.cfg.OnQuarantine(err, count)
	}
}

// Failures returns the failures counted for id inside the current window.
func (q *Quarantine) Failures(id eventflow.RegistrationID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	rec, ok := q.records[id]
	if !ok || q.cfg.Clock.Now().Sub(rec.firstSeenAt) > q.cfg.Window {
		return 0
	}
	return rec.count
}

// IsQuarantined reports whether id has been quarantined.
func (q *Quarantine) IsQuarantined(id eventflow.RegistrationID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.quarantined[id]
	return ok
}

// Quarantined returns the quarantined registration IDs in ascending order.
func (q *Quarantine) Quarantined() []eventflow.RegistrationID {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]eventflow.RegistrationID, 0, len(q.quarantined))
	for id := range q.quarantined {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Prune drops failure records whose window has passed and returns how many
// were dropped.
func (q *Quarantine) Prune() int {
	now := q.cfg.Clock.Now()
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for id, rec := range q.records {
		if now.Sub(rec.lastSeenAt) > q.cfg.Window {
			delete(q.records, id)
			n++
		}
	}
	return n
}

// Reset forgets everything recorded about id. A quarantined listener stays
// unsubscribed; Reset only lets a new failure history start.
func (q *Quarantine) Reset(id eventflow.RegistrationID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.records, id)
	delete(q.quarantined, id)
}
