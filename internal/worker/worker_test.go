package worker

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/database"
	"marketplace/internal/models"
	"marketplace/internal/notify"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTask(kind string) *models.NotificationTask {
	return &models.NotificationTask{Kind: kind, RecipientID: "c1", ChatID: 100, Text: "Booking confirmed"}
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	n := &fakeNotifier{}
	worker := NewNotificationWorker(db, n, nil, RetryPolicy{}, 0, nil)

	ctx := context.Background()
	if err := worker.Enqueue(ctx, newTask("booking_confirmed")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != models.TaskStatusCompleted {
		t.Fatalf("expected status=completed, got %s", status)
	}
	if retryCount != 0 {
		t.Fatalf("expected retry_count=0, got %d", retryCount)
	}
	if nextRetry.Valid {
		t.Fatalf("expected next_retry_at NULL on success")
	}
	if n.count() != 1 {
		t.Fatalf("expected 1 delivery, got %d", n.count())
	}
}

// A task delivered from the queue is not sent again when the DB poll returns
// the same row, or when a stale copy shows up later.
func TestProcessTaskSkipsProcessed(t *testing.T) {
	db := newTestDB(t)
	n := &fakeNotifier{}
	worker := NewNotificationWorker(db, n, nil, RetryPolicy{}, 0, nil)

	ctx := context.Background()
	if err := worker.Enqueue(ctx, newTask("booking_confirmed")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	pending, err := db.GetPendingNotificationTasks(ctx, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending task, got %d (%v)", len(pending), err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)
	worker.processTask(ctx, &pending[0])
	worker.processTask(ctx, &task)

	if n.count() != 1 {
		t.Fatalf("expected 1 delivery, got %d", n.count())
	}
	if status, _, _ := loadTaskStatus(t, db, task.ID); status != models.TaskStatusCompleted {
		t.Fatalf("expected status=completed, got %s", status)
	}
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	n := &fakeNotifier{err: errors.New("boom")}
	worker := NewNotificationWorker(db, n, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, 0, nil)

	ctx := context.Background()
	if err := worker.Enqueue(ctx, newTask("booking_cancelled")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != models.TaskStatusRetry {
		t.Fatalf("expected status=retry, got %s", status)
	}
	if retryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", retryCount)
	}
	if !nextRetry.Valid || nextRetry.Time.Before(time.Now()) {
		t.Fatalf("expected next_retry_at in future, got %v", nextRetry)
	}

	pending, err := db.GetPendingNotificationTasks(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("task scheduled in the future must not be pending yet, got %d", len(pending))
	}
}

func TestProcessTaskFail(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	n := &fakeNotifier{err: errors.New("fatal")}
	worker := NewNotificationWorker(db, n, rdb, RetryPolicy{MaxRetries: 1}, 0, nil)

	ctx := context.Background()
	if err := worker.Enqueue(ctx, newTask("dispute_created")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, ok := worker.tryRedis(ctx)
	if !ok {
		t.Fatalf("expected task in redis queue")
	}
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != models.TaskStatusFailed {
		t.Fatalf("expected status=failed, got %s", status)
	}
	dead, err := mr.List(deadLetterKey)
	if err != nil || len(dead) != 1 {
		t.Fatalf("expected one dead letter, got %v (%v)", dead, err)
	}
}

func TestProcessTaskNoChatFailsImmediately(t *testing.T) {
	db := newTestDB(t)
	n := &fakeNotifier{err: notify.ErrNoChat}
	worker := NewNotificationWorker(db, n, nil, RetryPolicy{MaxRetries: 5}, 0, nil)

	ctx := context.Background()
	task := newTask("booking_completed")
	task.ChatID = 0
	if err := worker.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	queued, _ := worker.tryLocalQueue()
	worker.processTask(ctx, &queued)

	status, retryCount, _ := loadTaskStatus(t, db, queued.ID)
	if status != models.TaskStatusFailed || retryCount != 0 {
		t.Fatalf("expected failed without retries, got %s/%d", status, retryCount)
	}
}

func TestEnqueueValidation(t *testing.T) {
	db := newTestDB(t)
	worker := NewNotificationWorker(db, &fakeNotifier{}, nil, RetryPolicy{}, 0, nil)
	ctx := context.Background()

	t.Run("MissingKind", func(t *testing.T) {
		err := worker.Enqueue(ctx, &models.NotificationTask{RecipientID: "c1"})
		if !errors.Is(err, models.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("MissingRecipient", func(t *testing.T) {
		err := worker.Enqueue(ctx, &models.NotificationTask{Kind: "x"})
		if !errors.Is(err, models.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("Nil", func(t *testing.T) {
		if err := worker.Enqueue(ctx, nil); err == nil {
			t.Fatalf("expected error for nil task")
		}
	})
}

func TestEnqueueRedisDownFallsBackToMemory(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	mr.Close()

	worker := NewNotificationWorker(db, &fakeNotifier{}, rdb, RetryPolicy{}, 0, nil)
	if err := worker.Enqueue(context.Background(), newTask("booking_confirmed")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, ok := worker.tryLocalQueue(); !ok {
		t.Fatalf("expected task in local queue after redis failure")
	}
}

func TestStartDeliversAndStops(t *testing.T) {
	db := newTestDB(t)
	n := &fakeNotifier{}
	worker := NewNotificationWorker(db, n, nil, RetryPolicy{}, 10*time.Millisecond, nil)

	// Persisted directly: only the DB poll can find it.
	orphan := newTask("wallet_submitted")
	if err := db.CreateNotificationTask(context.Background(), orphan); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := worker.Enqueue(context.Background(), newTask("booking_confirmed")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for n.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("worker did not stop")
	}
	if n.count() != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n.count())
	}
	status, _, _ := loadTaskStatus(t, db, orphan.ID)
	if status != models.TaskStatusCompleted {
		t.Fatalf("expected polled task completed, got %s", status)
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	d1 := policy.NextDelay(1)
	d2 := policy.NextDelay(2)
	d3 := policy.NextDelay(5)

	if d1 != time.Second {
		t.Fatalf("attempt1 expected 1s, got %s", d1)
	}
	if d2 != 2*time.Second {
		t.Fatalf("attempt2 expected 2s, got %s", d2)
	}
	if d3 != 5*time.Second {
		t.Fatalf("attempt5 expected capped 5s, got %s", d3)
	}
	if d := policy.NextDelay(0); d != time.Second {
		t.Fatalf("attempt0 expected 1s, got %s", d)
	}

	limited := RetryPolicy{MaxRetries: 3}
	if limited.Exhausted(2) || !limited.Exhausted(3) {
		t.Fatalf("expected attempt 3 of 3 to be the last")
	}
}

func TestRetryPolicyFromConfig(t *testing.T) {
	p := RetryPolicyFromConfig(config.WorkerConfig{
		MaxRetries:    4,
		InitialDelay:  "500ms",
		MaxDelay:      "30s",
		BackoffFactor: 3,
	})
	if p.MaxRetries != 4 || p.InitialDelay != 500*time.Millisecond || p.MaxDelay != 30*time.Second || p.BackoffFactor != 3 {
		t.Fatalf("unexpected policy: %+v", p)
	}
	if d := p.NextDelay(2); d != 1500*time.Millisecond {
		t.Fatalf("attempt2 expected 1.5s, got %s", d)
	}
}

// Helpers

type fakeNotifier struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeNotifier) Deliver(ctx context.Context, task models.NotificationTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.db")
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	db, err := database.NewDB(path, &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM notification_queue WHERE id = ?`, id)
	if err := row.Scan(&status, &retryCount, &nextRetry); err != nil {
		t.Fatalf("scan task: %v", err)
	}
	return status, retryCount, nextRetry
}
