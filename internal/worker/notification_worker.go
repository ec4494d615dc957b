package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/metrics"
	"marketplace/internal/models"
	"marketplace/internal/notify"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	redisQueueKey = "notifications:queue"
	deadLetterKey = "notifications:deadletter"
)

// Notifier delivers a single notification.
type Notifier interface {
	Deliver(ctx context.Context, task models.NotificationTask) error
}

// NotificationWorker drains notification_queue. Tasks are persisted first and
// then scheduled through redis or the in-memory queue; the DB poll picks up
// whatever both of them lost.
type NotificationWorker struct {
	db           domain.NotificationRepository
	notifier     Notifier
	redis        *redis.Client
	retryPolicy  RetryPolicy
	queue        chan models.NotificationTask
	pollInterval time.Duration
	batchSize    int
	logger       *zerolog.Logger
}

func NewNotificationWorker(
	db domain.NotificationRepository,
	notifier Notifier,
	redisClient *redis.Client,
	retry RetryPolicy,
	pollInterval time.Duration,
	logger *zerolog.Logger,
) *NotificationWorker {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &NotificationWorker{
		db:           db,
		notifier:     notifier,
		redis:        redisClient,
		retryPolicy:  retry.withDefaults(),
		queue:        make(chan models.NotificationTask, models.NotificationQueueSize),
		pollInterval: pollInterval,
		batchSize:    20,
		logger:       logger,
	}
}

// Enqueue persists task and schedules it for delivery.
func (w *NotificationWorker) Enqueue(ctx context.Context, task *models.NotificationTask) error {
	if task == nil || task.Kind == "" {
		return fmt.Errorf("%w: notification kind is required", models.ErrValidation)
	}
	if task.RecipientID == "" {
		return fmt.Errorf("%w: notification recipient is required", models.ErrValidation)
	}
	task.Status = models.TaskStatusPending

	if err := w.db.CreateNotificationTask(ctx, task); err != nil {
		return fmt.Errorf("persist notification task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, *task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("Redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- *task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("In-memory queue full, task left to polling")
	}
	return nil
}

// Start runs the delivery loop until ctx is done.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Notification worker started")
	defer w.logger.Info().Msg("Notification worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.db.GetPendingNotificationTasks(ctx, w.batchSize)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("Failed to fetch pending notifications")
			}
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}
		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *NotificationWorker) sleep(ctx context.Context) {
	t := time.NewTimer(w.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *NotificationWorker) tryLocalQueue() (models.NotificationTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.NotificationTask{}, false
	}
}

func (w *NotificationWorker) tryRedis(ctx context.Context) (models.NotificationTask, bool) {
	if w.redis == nil {
		return models.NotificationTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return models.NotificationTask{}, false
		}
		w.logger.Error().Err(err).Msg("Redis BRPOP failed")
		return models.NotificationTask{}, false
	}
	if len(res) != 2 {
		return models.NotificationTask{}, false
	}
	var task models.NotificationTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("Failed to decode redis task")
		return models.NotificationTask{}, false
	}
	return task, true
}

func (w *NotificationWorker) processTask(ctx context.Context, task *models.NotificationTask) {
	// The same task can arrive from the queue and from the DB poll; the stored
	// row decides.
	stored, err := w.db.GetNotificationTask(ctx, task.ID)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to load notification task")
		return
	}
	if stored.Status == models.TaskStatusCompleted || stored.Status == models.TaskStatusFailed {
		w.logger.Debug().Int64("task_id", task.ID).Str("status", stored.Status).Msg("Notification already processed, skipping")
		return
	}
	task = stored

	err = w.notifier.Deliver(ctx, *task)
	switch {
	case err == nil:
		if err := w.db.UpdateNotificationTaskStatus(ctx, task.ID, models.TaskStatusCompleted, "", nil); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark notification completed")
		}
		metrics.IncNotification("sent")
	case errors.Is(err, notify.ErrNoChat):
		w.failTask(ctx, task, err)
	default:
		w.retryOrFail(ctx, task, err)
	}
}

func (w *NotificationWorker) retryOrFail(ctx context.Context, task *models.NotificationTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	next := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.db.UpdateNotificationTaskStatus(ctx, task.ID, models.TaskStatusRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark notification retry")
	}
	metrics.IncNotification("retry")
}

func (w *NotificationWorker) failTask(ctx context.Context, task *models.NotificationTask, cause error) {
	if err := w.db.UpdateNotificationTaskStatus(ctx, task.ID, models.TaskStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark notification failed")
	}
	metrics.IncNotification("failed")
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Str("kind", task.Kind).Msg("Notification moved to dead letter")
	w.pushDeadLetter(ctx, task)
}

func (w *NotificationWorker) pushRedis(ctx context.Context, task models.NotificationTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, redisQueueKey, data).Err()
}

func (w *NotificationWorker) pushDeadLetter(ctx context.Context, task *models.NotificationTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to encode dead letter")
		return
	}
	if err := w.redis.LPush(ctx, deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Dead letter push failed")
	}
}
