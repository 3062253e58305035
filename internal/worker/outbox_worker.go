package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/afiqaffendi/rbs/internal/metrics"
	"github.com/afiqaffendi/rbs/internal/models"
)

// DeadLetterKey is the Redis list that receives outbox events that exhausted their retries.
const DeadLetterKey = "outbox:deadletter"

// Publisher delivers one event to the broker.
type Publisher interface {
	Publish(ctx context.Context, eventType string, body []byte) error
}

// OutboxStore is the persistence the worker drains.
type OutboxStore interface {
	GetPendingOutboxTasks(ctx context.Context, limit int) ([]models.OutboxTask, error)
	UpdateOutboxTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// OutboxWorker relays committed outbox rows to the broker with exponential backoff.
type OutboxWorker struct {
	store        OutboxStore
	publisher    Publisher
	redis        *redis.Client
	retryPolicy  RetryPolicy
	wake         chan struct{}
	pollInterval time.Duration
	batchSize    int
	logger       *zerolog.Logger
}

// NewOutboxWorker fills zero settings with defaults. redisClient is optional and only
// used for the dead-letter list.
func NewOutboxWorker(store OutboxStore, publisher Publisher, redisClient *redis.Client, retry RetryPolicy, pollInterval time.Duration, batchSize int, logger *zerolog.Logger) *OutboxWorker {
	retry = retry.withDefaults()
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &OutboxWorker{
		store:        store,
		publisher:    publisher,
		redis:        redisClient,
		retryPolicy:  retry,
		wake:         make(chan struct{}, 1),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Wake asks the worker to poll now instead of waiting for the next tick. It never blocks.
func (w *OutboxWorker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Start launches main loop; stops when ctx is done.
func (w *OutboxWorker) Start(ctx context.Context) {
	w.logger.Info().Dur("poll_interval", w.pollInterval).Msg("Outbox worker started")
	defer w.logger.Info().Msg("Outbox worker stopped")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		case <-timer.C:
		}

		n, err := w.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("Outbox fetch failed")
		}

		next := w.pollInterval
		if n == w.batchSize {
			// More rows are probably waiting.
			next = 0
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(next)
	}
}

// RunOnce delivers one batch of due tasks and returns how many it handled.
func (w *OutboxWorker) RunOnce(ctx context.Context) (int, error) {
	tasks, err := w.store.GetPendingOutboxTasks(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	for i := range tasks {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks), nil
}

func (w *OutboxWorker) processTask(ctx context.Context, task *models.OutboxTask) {
	if !json.Valid([]byte(task.Payload)) {
		w.failTask(ctx, task, errors.New("payload is not valid JSON"))
		return
	}

	if err := w.publisher.Publish(ctx, task.EventType, []byte(task.Payload)); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.store.UpdateOutboxTaskStatus(ctx, task.ID, models.OutboxStatusDone, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Outbox mark done failed")
		return
	}
	metrics.IncOutbox(models.OutboxStatusDone)
	w.logger.Debug().Int64("task_id", task.ID).Str("event_type", task.EventType).Msg("Outbox event delivered")
}

func (w *OutboxWorker) retryOrFail(ctx context.Context, task *models.OutboxTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	nextDelay := w.retryPolicy.NextDelay(attempt)
	nextTime := w.retryPolicy.NextRetryAt(time.Now(), attempt)
	if err := w.store.UpdateOutboxTaskStatus(ctx, task.ID, models.OutboxStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Outbox mark retry failed")
		return
	}
	metrics.IncOutbox(models.OutboxStatusRetry)
	w.logger.Warn().
		Err(cause).
		Int64("task_id", task.ID).
		Int("attempt", attempt).
		Dur("next_delay", nextDelay).
		Msg("Outbox delivery failed, will retry")
}

func (w *OutboxWorker) failTask(ctx context.Context, task *models.OutboxTask, cause error) {
	if err := w.store.UpdateOutboxTaskStatus(ctx, task.ID, models.OutboxStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Outbox mark failed failed")
	}
	metrics.IncOutbox(models.OutboxStatusFailed)
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("event_type", task.EventType).Msg("Outbox event dead-lettered")
	w.pushDeadLetter(ctx, task, cause)
}

func (w *OutboxWorker) pushDeadLetter(ctx context.Context, task *models.OutboxTask, cause error) {
	if w.redis == nil {
		return
	}
	msg := cause.Error()
	dead := *task
	dead.Status = models.OutboxStatusFailed
	dead.LastError = &msg
	data, err := json.Marshal(dead)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Outbox encode deadletter failed")
		return
	}
	if err := w.redis.LPush(ctx, DeadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Outbox deadletter push failed")
	}
}
