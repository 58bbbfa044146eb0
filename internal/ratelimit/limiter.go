// Package ratelimit implements sliding-window admission control for request
// submission: at most 5 requests per caller and 10 requests globally within a
// trailing 60-second window.
//
// The counting backend is pluggable via CounterStore so a single-process
// deployment can use the in-memory store while horizontally scaled
// deployments swap in the Redis store and share one set of counters.
//
// Policy notes:
//   - The per-caller check runs before the global check; when both would
//     deny, the reported reason is "per_ip".
//   - Any store failure fails open: the request is admitted and a failure
//     counter is incremented. Availability is deliberately preferred over
//     strict enforcement here.
package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Window and limit defaults, matching the public 5-per-caller /
// 10-global-per-minute contract.
const (
	DefaultWindow      = 60 * time.Second
	DefaultPerCaller   = 5
	DefaultGlobalLimit = 10

	// globalKey is the bucket shared by all callers.
	globalKey = "global"
)

// Denial reasons reported in Decision.Reason.
const (
	ReasonOK        = "ok"
	ReasonPerCaller = "per_ip"
	ReasonGlobal    = "global"
)

var (
	denials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_denials_total",
			Help: "Requests denied by the sliding-window limiter, by reason.",
		},
		[]string{"reason"},
	)

	storeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ratelimit_store_failures_total",
			Help: "Counter-store errors that caused the limiter to fail open.",
		},
	)
)

func init() {
	prometheus.MustRegister(denials, storeFailures)
}

// CounterStore tracks event timestamps per key inside a trailing window.
//
// Implementations must be safe for concurrent use. CountInWindow reports how
// many events for key fall in (now-window, now]; Record appends one event at
// t. Purge drops state older than before and may be a no-op for stores with
// server-side expiry.
type CounterStore interface {
	Record(key string, t time.Time) error
	CountInWindow(key string, now time.Time, window time.Duration) (int, error)
	Purge(before time.Time)
}

// Decision is the outcome of a single admission check.
type Decision struct {
	Allowed         bool   `json:"allowed"`
	Reason          string `json:"reason"`
	RemainingCaller int    `json:"remaining_per_ip"`
	RemainingGlobal int    `json:"remaining_global"`
}

// Limiter enforces the per-caller and global sliding-window limits over a
// CounterStore. The zero value is not usable; construct with New.
type Limiter struct {
	store       CounterStore
	window      time.Duration
	perCaller   int
	globalLimit int

	now func() time.Time // test seam
}

// New constructs a Limiter over store. Non-positive limits or window fall
// back to the package defaults.
func New(store CounterStore, window time.Duration, perCaller, globalLimit int) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if perCaller <= 0 {
		perCaller = DefaultPerCaller
	}
	if globalLimit <= 0 {
		globalLimit = DefaultGlobalLimit
	}
	return &Limiter{
		store:       store,
		window:      window,
		perCaller:   perCaller,
		globalLimit: globalLimit,
		now:         time.Now,
	}
}

// Check performs one admission decision for callerID (e.g. a source IP).
// On admission, the current timestamp is recorded under both the caller key
// and the global key. On any store error the limiter fails open.
func (l *Limiter) Check(callerID string) Decision {
	now := l.now()
	l.store.Purge(now.Add(-l.window))

	callerKey := "ip:" + callerID

	callerCount, err := l.store.CountInWindow(callerKey, now, l.window)
	if err != nil {
		return l.failOpen()
	}
	globalCount, err := l.store.CountInWindow(globalKey, now, l.window)
	if err != nil {
		return l.failOpen()
	}

	// Per-caller takes precedence over global when both would deny.
	if callerCount >= l.perCaller {
		denials.WithLabelValues(ReasonPerCaller).Inc()
		return Decision{
			Allowed:         false,
			Reason:          ReasonPerCaller,
			RemainingCaller: 0,
			RemainingGlobal: clampRemaining(l.globalLimit - globalCount),
		}
	}
	if globalCount >= l.globalLimit {
		denials.WithLabelValues(ReasonGlobal).Inc()
		return Decision{
			Allowed:         false,
			Reason:          ReasonGlobal,
			RemainingCaller: clampRemaining(l.perCaller - callerCount),
			RemainingGlobal: 0,
		}
	}

	if err := l.store.Record(callerKey, now); err != nil {
		return l.failOpen()
	}
	if err := l.store.Record(globalKey, now); err != nil {
		return l.failOpen()
	}

	return Decision{
		Allowed:         true,
		Reason:          ReasonOK,
		RemainingCaller: clampRemaining(l.perCaller - callerCount - 1),
		RemainingGlobal: clampRemaining(l.globalLimit - globalCount - 1),
	}
}

// failOpen admits the request despite a store failure.
func (l *Limiter) failOpen() Decision {
	storeFailures.Inc()
	return Decision{Allowed: true, Reason: ReasonOK}
}

func clampRemaining(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
