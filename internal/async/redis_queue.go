package async

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arquivotcm/fichas/internal/common"
)

// RedisQueue distributes jobs across processes through a Redis list,
// matching a deployment where submitters and workers are separate
// services. Producers LPUSH; each worker blocks on BRPOP.
type RedisQueue struct {
	client  *redis.Client
	key     string
	runner  Runner
	logger  *slog.Logger
	workers int
	timeout time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

type RedisOption func(*RedisQueue)

func RedisWithWorkers(n int) RedisOption {
	return func(q *RedisQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func RedisWithJobTimeout(d time.Duration) RedisOption {
	return func(q *RedisQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// NewRedisQueue connects, verifies the connection and starts the
// consumer pool. Pass a nil runner for a produce-only queue.
func NewRedisQueue(ctx context.Context, cfg common.RedisConfig, runner Runner, logger *slog.Logger, opts ...RedisOption) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	q := &RedisQueue{
		client:  client,
		key:     cfg.QueueKey,
		runner:  runner,
		logger:  logger,
		workers: 4,
		timeout: 10 * time.Minute,
	}
	for _, o := range opts {
		o(q)
	}
	if runner != nil {
		q.start()
	}
	return q, nil
}

func (q *RedisQueue) start() {
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func(workerID int) {
			defer q.wg.Done()
			q.logger.Info("redis worker started", "worker_id", workerID)
			q.consume(ctx, workerID)
			q.logger.Info("redis worker stopped", "worker_id", workerID)
		}(i + 1)
	}
}

func (q *RedisQueue) consume(ctx context.Context, workerID int) {
	for {
		res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			q.logger.Error("redis pop failed", "worker_id", workerID, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}
		// BRPOP returns [key, value]
		if len(res) < 2 {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			q.logger.Error("discarding malformed job payload", "worker_id", workerID, "error", err)
			continue
		}

		jobCtx, cancel := context.WithTimeout(context.Background(), q.timeout)
		err = q.runner.Run(jobCtx, job.JobID)
		cancel()
		if err != nil {
			q.logger.Error("processing failed", "worker_id", workerID, "job_id", job.JobID, "error", err)
		} else {
			q.logger.Info("processed job", "worker_id", workerID, "job_id", job.JobID)
		}
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", job.JobID)
		return ErrQueueClosed
	}
	q.mu.Unlock()

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job payload: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job to redis: %w", err)
	}
	q.logger.Info("queued job for processing", "job_id", job.JobID, "queue", q.key)
	return nil
}

func (q *RedisQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	if q.cancel != nil {
		q.cancel()
	}
	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("redis workers stopped, shutdown complete")
	}
	if err := q.client.Close(); err != nil {
		q.logger.Error("failed to close redis client", "error", err)
	}
}
