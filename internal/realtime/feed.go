package realtime

import (
	"fmt"
	"sync"
	"time"

	"marketplace/internal/events"
	"marketplace/internal/metrics"

	"github.com/rs/zerolog"
)

// Feed owns one coalesced subscription per table.
type Feed struct {
	window time.Duration
	logger *zerolog.Logger

	mu     sync.RWMutex
	subs   map[string]*Coalescer
	closed bool
}

// NewFeed subscribes to every change on the bus.
func NewFeed(bus *events.EventBus, window time.Duration, logger *zerolog.Logger) *Feed {
	f := &Feed{
		window: window,
		logger: logger,
		subs:   make(map[string]*Coalescer),
	}
	bus.Subscribe(events.EventAnyChange, f.handle)
	return f
}

// Subscribe registers the refresh callback for a table. A table can only be
// subscribed once.
func (f *Feed) Subscribe(table string, refresh RefreshFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("feed is closed")
	}
	if _, ok := f.subs[table]; ok {
		return fmt.Errorf("table %s already subscribed", table)
	}
	f.subs[table] = NewCoalescer(table, f.window, func(b Batch) {
		metrics.IncRealtimeRefresh(b.Table)
		refresh(b)
	})
	return nil
}

func (f *Feed) handle(event *events.Event) error {
	change, err := event.Change()
	if err != nil {
		f.logger.Warn().Err(err).Str("type", event.Type).Msg("Dropping undecodable change event")
		return nil
	}

	f.mu.RLock()
	sub, ok := f.subs[change.Table]
	f.mu.RUnlock()
	if ok {
		sub.Add(change)
	}
	return nil
}

// Close flushes and tears down every subscription.
func (f *Feed) Close() {
	f.mu.Lock()
	subs := f.subs
	f.subs = make(map[string]*Coalescer)
	f.closed = true
	f.mu.Unlock()

	for _, sub := range subs {
		sub.Stop()
	}
}
