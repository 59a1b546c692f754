package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultPrefix        = "spa_booking"
	defaultMaxRetries    = 3
	defaultBaseDelay     = 5 * time.Second
	defaultQueueTimeout  = 5 * time.Second
	defaultPollInterval  = time.Second
	defaultAlertQueueLen = 1000
)

// RedisQueue implements Queue interface using Redis
type RedisQueue struct {
	client          *redis.Client
	mainQueue       string
	delayedQueue    string
	processingQueue string
	metricsPrefix   string
	retryManager    *RetryManager
	dlqHandler      DLQHandler
	config          *RedisQueueConfig
	mu              sync.Mutex
	stopChan        chan struct{}
	stopOnce        sync.Once
	wg              sync.WaitGroup
}

// RedisQueueConfig contains configuration for RedisQueue
type RedisQueueConfig struct {
	// Все ключи очереди строятся от префикса
	Prefix string

	MaxRetries    int
	BaseDelay     time.Duration
	QueueTimeout  time.Duration
	PollInterval  time.Duration
	AlertQueueLen int
	EnableDLQ     bool
	EnableMetrics bool
}

// DefaultRedisQueueConfig returns default configuration
func DefaultRedisQueueConfig() *RedisQueueConfig {
	return &RedisQueueConfig{
		Prefix:        defaultPrefix,
		MaxRetries:    defaultMaxRetries,
		BaseDelay:     defaultBaseDelay,
		QueueTimeout:  defaultQueueTimeout,
		PollInterval:  defaultPollInterval,
		AlertQueueLen: defaultAlertQueueLen,
		EnableDLQ:     true,
		EnableMetrics: true,
	}
}

func (c *RedisQueueConfig) MainQueue() string       { return c.Prefix + ":tasks" }
func (c *RedisQueueConfig) DelayedQueue() string    { return c.Prefix + ":tasks:delayed" }
func (c *RedisQueueConfig) ProcessingQueue() string { return c.Prefix + ":tasks:processing" }
func (c *RedisQueueConfig) DLQ() string             { return c.Prefix + ":dlq" }

// NewRedisQueue builds a queue on an already connected client. A nil
// retryManager or dlqHandler is replaced by the default one.
func NewRedisQueue(client *redis.Client, cfg *RedisQueueConfig, retryManager *RetryManager, dlqHandler DLQHandler) (*RedisQueue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg == nil {
		cfg = DefaultRedisQueueConfig()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = defaultQueueTimeout
	}

	if retryManager == nil {
		retryManager = NewRetryManager(cfg.MaxRetries, cfg.BaseDelay)
	}
	if dlqHandler == nil && cfg.EnableDLQ {
		dlqHandler = NewDefaultDLQHandler(client, cfg.DLQ(), cfg.MainQueue())
	}

	q := &RedisQueue{
		client:          client,
		mainQueue:       cfg.MainQueue(),
		delayedQueue:    cfg.DelayedQueue(),
		processingQueue: cfg.ProcessingQueue(),
		metricsPrefix:   cfg.Prefix + ":metrics",
		retryManager:    retryManager,
		dlqHandler:      dlqHandler,
		config:          cfg,
		stopChan:        make(chan struct{}),
	}

	logrus.WithFields(logrus.Fields{
		"main":    q.mainQueue,
		"delayed": q.delayedQueue,
		"dlq":     cfg.DLQ(),
	}).Info("redis queue initialized")

	return q, nil
}

// Publish sends a task to the queue
func (r *RedisQueue) Publish(ctx context.Context, task *Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	if err := r.prepareTask(task); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	taskData, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{"task_id": task.ID, "type": task.Type})

	// Отложенные задачи хранятся в sorted set
	if task.ExecuteAt.After(time.Now()) {
		score := float64(task.ExecuteAt.UnixNano()) / 1e9
		if err := r.client.ZAdd(ctx, r.delayedQueue, &redis.Z{
			Score:  score,
			Member: taskData,
		}).Err(); err != nil {
			return fmt.Errorf("failed to publish delayed task: %w", err)
		}

		r.incrementMetric(ctx, "tasks_delayed")
		log.WithField("execute_at", task.ExecuteAt.Format(time.RFC3339)).Debug("task scheduled")
		return nil
	}

	if err := r.client.LPush(ctx, r.mainQueue, taskData).Err(); err != nil {
		return fmt.Errorf("failed to publish immediate task: %w", err)
	}

	r.incrementMetric(ctx, "tasks_queued")
	log.Debug("task published")
	return nil
}

// Subscribe starts consuming tasks from the queue
func (r *RedisQueue) Subscribe(ctx context.Context, handler func(context.Context, *Task) error) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	r.wg.Add(3)
	go r.processDelayedTasks(ctx)
	go r.processMainQueue(ctx, handler)
	go r.monitorQueueMetrics(ctx)

	logrus.Info("redis queue subscriber started")
	return nil
}

func (r *RedisQueue) processMainQueue(ctx context.Context, handler func(context.Context, *Task) error) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		default:
			if err := r.processNext(ctx, handler); err != nil {
				if ctx.Err() != nil {
					return
				}
				logrus.WithError(err).Error("queue processing failed")
				time.Sleep(time.Second)
			}
		}
	}
}

// processNext handles one task from the main queue
func (r *RedisQueue) processNext(ctx context.Context, handler func(context.Context, *Task) error) error {
	// Задача атомарно переносится в processing
	taskData, err := r.client.BRPopLPush(ctx, r.mainQueue, r.processingQueue, r.config.QueueTimeout).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to move task to processing queue: %w", err)
	}

	defer func() {
		if err := r.client.LRem(ctx, r.processingQueue, 1, taskData).Err(); err != nil {
			logrus.WithError(err).Warn("failed to remove task from processing queue")
		}
	}()

	var task Task
	if err := json.Unmarshal([]byte(taskData), &task); err != nil {
		r.moveToDLQ(ctx, taskData, fmt.Errorf("invalid task format: %w", err))
		return nil
	}

	log := logrus.WithFields(logrus.Fields{"task_id": task.ID, "type": task.Type})
	if err := r.executeTaskWithRetry(ctx, &task, handler); err != nil {
		log.WithError(err).WithField("attempts", task.Attempts).Error("task failed")
		if r.dlqHandler != nil {
			r.dlqHandler.HandleFailedTask(&task, err)
			r.incrementMetric(ctx, "tasks_dlq")
		}
		return nil
	}

	log.Debug("task completed")
	return nil
}

func (r *RedisQueue) processDelayedTasks(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.C:
			if err := r.moveReadyDelayedTasks(ctx); err != nil {
				logrus.WithError(err).Error("failed to process delayed tasks")
			}
		}
	}
}

// moveReadyDelayedTasks moves due tasks to the main queue. Each member is
// removed individually so a task published concurrently is not lost.
func (r *RedisQueue) moveReadyDelayedTasks(ctx context.Context) error {
	now := fmt.Sprintf("%f", float64(time.Now().UnixNano())/1e9)

	tasks, err := r.client.ZRangeByScore(ctx, r.delayedQueue, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to get delayed tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}

	moved := 0
	for _, taskData := range tasks {
		// ZRem решает, какой из процессов переносит задачу
		removed, err := r.client.ZRem(ctx, r.delayedQueue, taskData).Result()
		if err != nil {
			return fmt.Errorf("failed to claim delayed task: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := r.client.LPush(ctx, r.mainQueue, taskData).Err(); err != nil {
			return fmt.Errorf("failed to move delayed task: %w", err)
		}
		moved++
	}

	if moved > 0 {
		r.incrementMetricBy(ctx, "tasks_delayed_processed", int64(moved))
		logrus.WithField("count", moved).Debug("delayed tasks moved to main queue")
	}
	return nil
}

func (r *RedisQueue) executeTaskWithRetry(ctx context.Context, task *Task, handler func(context.Context, *Task) error) error {
	for {
		task.Attempts++
		startTime := time.Now()

		err := handler(ctx, task)
		if err == nil {
			r.recordTaskResult(ctx, task, "success", time.Since(startTime))
			return nil
		}
		r.recordTaskResult(ctx, task, "failure", time.Since(startTime))

		shouldRetry, delay := r.retryManager.ShouldRetry(task, err)
		if !shouldRetry {
			return err
		}

		logrus.WithFields(logrus.Fields{
			"task_id":     task.ID,
			"attempt":     task.Attempts,
			"max_retries": task.MaxRetries,
			"delay":       delay.String(),
		}).WithError(err).Warn("task failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stopChan:
			return err
		case <-time.After(delay):
		}
	}
}

// moveToDLQ stores a payload that could not be decoded
func (r *RedisQueue) moveToDLQ(ctx context.Context, taskData string, err error) {
	if !r.config.EnableDLQ || r.dlqHandler == nil {
		return
	}

	r.dlqHandler.HandleFailedTask(&Task{
		ID:        fmt.Sprintf("corrupted_%d", time.Now().UnixNano()),
		Type:      "corrupted",
		Data:      map[string]interface{}{"raw_data": taskData},
		CreatedAt: time.Now(),
	}, err)
	r.incrementMetric(ctx, "tasks_dlq")
}

// prepareTask validates the task and fills defaults
func (r *RedisQueue) prepareTask(task *Task) error {
	if task.ID == "" {
		task.ID = generateTaskID()
	}
	if err := task.Validate(); err != nil {
		return err
	}
	if task.MaxRetries == 0 {
		task.MaxRetries = r.config.MaxRetries
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if task.ExecuteAt.IsZero() {
		task.ExecuteAt = task.CreatedAt
	}
	return nil
}

func (r *RedisQueue) monitorQueueMetrics(ctx context.Context) {
	defer r.wg.Done()

	if !r.config.EnableMetrics {
		return
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.collectQueueMetrics(ctx)
		}
	}
}

func (r *RedisQueue) collectQueueMetrics(ctx context.Context) {
	stats, err := r.GetQueueStats(ctx)
	if err != nil {
		logrus.WithError(err).Warn("failed to collect queue metrics")
		return
	}

	if metricsData, err := json.Marshal(stats); err == nil {
		r.client.Set(ctx, r.metricsPrefix+":snapshot", metricsData, 2*time.Minute)
	}

	if r.config.AlertQueueLen > 0 && stats.MainQueue > int64(r.config.AlertQueueLen) {
		logrus.WithFields(logrus.Fields{
			"size":      stats.MainQueue,
			"threshold": r.config.AlertQueueLen,
		}).Warn("main queue size exceeds threshold")
	}
}

func (r *RedisQueue) incrementMetric(ctx context.Context, metric string) {
	r.incrementMetricBy(ctx, metric, 1)
}

func (r *RedisQueue) incrementMetricBy(ctx context.Context, metric string, value int64) {
	if !r.config.EnableMetrics {
		return
	}

	key := r.metricsPrefix + ":" + metric
	pipe := r.client.Pipeline()
	pipe.IncrBy(ctx, key, value)
	pipe.Expire(ctx, key, 24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		logrus.WithError(err).WithField("metric", metric).Debug("failed to update metric")
	}
}

func (r *RedisQueue) recordTaskResult(ctx context.Context, task *Task, outcome string, duration time.Duration) {
	if !r.config.EnableMetrics {
		return
	}
	r.incrementMetric(ctx, "tasks_"+outcome)
	r.incrementMetric(ctx, fmt.Sprintf("tasks_%s_%s", outcome, task.Type))
	r.client.HIncrBy(ctx, r.metricsPrefix+":task_timing_ms", string(task.Type), duration.Milliseconds())
}

// GetQueueStats returns current queue statistics
func (r *RedisQueue) GetQueueStats(ctx context.Context) (*QueueStats, error) {
	pipe := r.client.Pipeline()

	mainLen := pipe.LLen(ctx, r.mainQueue)
	delayedLen := pipe.ZCard(ctx, r.delayedQueue)
	processingLen := pipe.LLen(ctx, r.processingQueue)
	dlqLen := pipe.ZCard(ctx, r.config.DLQ())

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}

	return &QueueStats{
		MainQueue:       mainLen.Val(),
		DelayedQueue:    delayedLen.Val(),
		ProcessingQueue: processingLen.Val(),
		DLQ:             dlqLen.Val(),
		Timestamp:       time.Now(),
	}, nil
}

// GetDLQStats delegates to the DLQ handler
func (r *RedisQueue) GetDLQStats(ctx context.Context) (*DLQStats, error) {
	if r.dlqHandler == nil {
		return &DLQStats{}, nil
	}
	return r.dlqHandler.GetDLQStats(ctx)
}

// DLQ returns the dead letter handler, nil when disabled.
func (r *RedisQueue) DLQ() DLQHandler {
	return r.dlqHandler
}

// Close stops the consumers. The client is owned by the caller.
func (r *RedisQueue) Close() error {
	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()

	logrus.Info("redis queue closed")
	return nil
}

// HealthCheck performs a health check on the queue
func (r *RedisQueue) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}

// QueueStats contains statistics about queue state
type QueueStats struct {
	MainQueue       int64     `json:"main_queue"`
	DelayedQueue    int64     `json:"delayed_queue"`
	ProcessingQueue int64     `json:"processing_queue"`
	DLQ             int64     `json:"dlq"`
	Timestamp       time.Time `json:"timestamp"`
}

func generateTaskID() string {
	return fmt.Sprintf("task_%s_%d", uuid.NewString()[:8], rand.Int63())
}
