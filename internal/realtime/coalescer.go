// Package realtime turns row changes from the event bus into coalesced
// refresh batches and pushes them to WebSocket clients.
package realtime

import (
	"sync"
	"time"

	"marketplace/internal/events"
)

// Batch is one coalesced refresh: every change seen on a table within the
// window, one entry per record in first-seen order, holding its latest change.
type Batch struct {
	Table   string                 `json:"table"`
	Changes []events.ChangePayload `json:"changes"`
}

// IDs returns the affected record ids.
func (b Batch) IDs() []string {
	ids := make([]string, 0, len(b.Changes))
	for _, c := range b.Changes {
		ids = append(ids, c.RecordID)
	}
	return ids
}

type RefreshFunc func(Batch)

// Coalescer debounces changes for one table. The first change arms a timer;
// changes arriving before it fires join the same batch.
type Coalescer struct {
	table   string
	window  time.Duration
	refresh RefreshFunc

	mu      sync.Mutex
	order   []string
	pending map[string]events.ChangePayload
	timer   *time.Timer
	stopped bool
}

func NewCoalescer(table string, window time.Duration, refresh RefreshFunc) *Coalescer {
	return &Coalescer{
		table:   table,
		window:  window,
		refresh: refresh,
		pending: make(map[string]events.ChangePayload),
	}
}

func (c *Coalescer) Add(change events.ChangePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}

	if _, seen := c.pending[change.RecordID]; !seen {
		c.order = append(c.order, change.RecordID)
	}
	c.pending[change.RecordID] = change

	if c.window <= 0 {
		c.flushLocked()
		return
	}
	if c.timer == nil {
		c.timer = time.AfterFunc(c.window, c.Flush)
	}
}

// Flush delivers the pending batch now, if any.
func (c *Coalescer) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

func (c *Coalescer) flushLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if len(c.order) == 0 {
		return
	}

	batch := Batch{Table: c.table, Changes: make([]events.ChangePayload, 0, len(c.order))}
	for _, id := range c.order {
		batch.Changes = append(batch.Changes, c.pending[id])
	}
	c.order = nil
	c.pending = make(map[string]events.ChangePayload)

	// Called under the lock so batches for one table never interleave.
	c.refresh(batch)
}

// Stop flushes what is pending and drops later changes.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
	c.stopped = true
}
