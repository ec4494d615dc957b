package realtime

import (
	"sync"
	"testing"
	"time"

	"marketplace/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	batches []Batch
}

func (r *recorder) refresh(b Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
}

func (r *recorder) snapshot() []Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Batch(nil), r.batches...)
}

func change(id, status string) events.ChangePayload {
	return events.ChangePayload{Table: events.TableBookings, Op: events.OpUpdate, RecordID: id, Status: status}
}

func TestCoalescerMergesBurst(t *testing.T) {
	rec := &recorder{}
	c := NewCoalescer(events.TableBookings, 50*time.Millisecond, rec.refresh)

	c.Add(change("b1", "confirmed"))
	c.Add(change("b2", "pending"))
	c.Add(change("b1", "cancelled"))
	c.Add(change("b3", "completed"))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	// Give a stray second timer the chance to fire.
	time.Sleep(100 * time.Millisecond)
	batches := rec.snapshot()
	require.Len(t, batches, 1)
	assert.Equal(t, events.TableBookings, batches[0].Table)
	assert.Equal(t, []string{"b1", "b2", "b3"}, batches[0].IDs())
	assert.Equal(t, "cancelled", batches[0].Changes[0].Status)
}

func TestCoalescerSeparateWindows(t *testing.T) {
	rec := &recorder{}
	c := NewCoalescer(events.TableDisputes, 20*time.Millisecond, rec.refresh)

	c.Add(change("d1", "open"))
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	c.Add(change("d2", "open"))
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 5*time.Millisecond)

	batches := rec.snapshot()
	assert.Equal(t, []string{"d1"}, batches[0].IDs())
	assert.Equal(t, []string{"d2"}, batches[1].IDs())
}

func TestCoalescerFlushAndStop(t *testing.T) {
	rec := &recorder{}
	c := NewCoalescer(events.TableBookings, time.Hour, rec.refresh)

	c.Flush()
	assert.Empty(t, rec.snapshot())

	c.Add(change("b1", "pending"))
	c.Flush()
	require.Len(t, rec.snapshot(), 1)

	c.Add(change("b2", "pending"))
	c.Stop()
	require.Len(t, rec.snapshot(), 2)

	c.Add(change("b3", "pending"))
	c.Flush()
	assert.Len(t, rec.snapshot(), 2)
}

func TestCoalescerZeroWindowIsImmediate(t *testing.T) {
	rec := &recorder{}
	c := NewCoalescer(events.TableBookings, 0, rec.refresh)

	c.Add(change("b1", "pending"))
	c.Add(change("b2", "pending"))
	assert.Len(t, rec.snapshot(), 2)
}
