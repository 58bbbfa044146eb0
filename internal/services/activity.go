// Package services – activity sink
//
// This file implements the asynchronous activity feed. Events are queued on
// a bounded channel and written by a single background worker so that hot
// paths (request intake, token tracking, auto-purchase) never block on the
// database. Writes are best-effort: a full queue drops the event and a
// failed insert is logged and counted, but neither ever surfaces an error
// to the caller.
package services

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/1lyagent/agent-backend/internal/domain"
	"github.com/1lyagent/agent-backend/internal/repo"
)

var (
	activityDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "activity_events_dropped_total",
		Help: "Activity events dropped because the sink queue was full.",
	})
	activityWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "activity_write_failures_total",
		Help: "Activity events that failed to persist.",
	})
)

// truncateLimit caps prompt excerpts stored in the public feed.
const truncateLimit = 50

// TruncatePrompt clips s to max runes, appending an ellipsis marker when
// clipped. A non-positive max falls back to the default feed limit.
func TruncatePrompt(s string, max int) string {
	if max <= 0 {
		max = truncateLimit
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

// activityItem is one queued feed entry.
type activityItem struct {
	event     domain.ActivityEvent
	data      string
	requestID *string
}

// Sink is the asynchronous activity writer. Construct with NewSink and
// stop with Close; Log is safe for concurrent use.
type Sink struct {
	db    *gorm.DB
	queue chan activityItem

	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
}

// NewSink starts the background writer. size bounds the queue; a
// non-positive size uses a default of 256.
func NewSink(db *gorm.DB, size int) *Sink {
	if size <= 0 {
		size = 256
	}
	s := &Sink{
		db:      db,
		queue:   make(chan activityItem, size),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Log queues one feed entry. It never blocks and never returns an error;
// when the queue is full or the sink is closed the event is dropped and
// counted. Callers may keep logging after Close, so the queue channel is
// never closed.
func (s *Sink) Log(event domain.ActivityEvent, data string, requestID *string) {
	select {
	case <-s.closing:
		activityDropped.Inc()
		log.Warn().Str("event", string(event)).Msg("activity sink closed, dropping event")
		return
	default:
	}
	select {
	case s.queue <- activityItem{event: event, data: data, requestID: requestID}:
	default:
		activityDropped.Inc()
		log.Warn().Str("event", string(event)).Msg("activity sink queue full, dropping event")
	}
}

// Close stops the worker after draining queued events. Safe to call more
// than once, and Log remains safe to call afterwards.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		close(s.closing)
		<-s.done
	})
}

func (s *Sink) run() {
	defer close(s.done)
	for {
		select {
		case item := <-s.queue:
			s.write(item)
		case <-s.closing:
			for {
				select {
				case item := <-s.queue:
					s.write(item)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) write(item activityItem) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err := repo.InsertActivity(ctx, s.db, item.event, item.data, item.requestID)
	cancel()
	if err != nil {
		activityWriteFailures.Inc()
		log.Error().Err(err).Str("event", string(item.event)).Msg("activity insert failed")
	}
}
