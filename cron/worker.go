package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	deadLetterRepo "staybook/database/repository/deadletter"
	"staybook/models"
	"staybook/services/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// DeadLetterWorker archives rejected inbound messages.
type DeadLetterWorker struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	opts   asynq.RedisClientOpt
	logger *zap.Logger
}

func NewDeadLetterWorker(redisOpts asynq.RedisClientOpt, repo deadLetterRepo.DeadLetterRepository, logger *zap.Logger) *DeadLetterWorker {
	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				tasks.DeadLetterQueue: 1,
			},
			Logger: logger.Sugar(),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeDeadLetterArchive, HandleDeadLetterTask(repo, logger))

	return &DeadLetterWorker{srv: srv, mux: mux, opts: redisOpts, logger: logger}
}

// Start runs the worker in the background, retrying startup a few times.
func (w *DeadLetterWorker) Start(ctx context.Context) {
	go w.monitorRedisConnection(ctx)

	go func() {
		w.logger.Info("Starting dead letter worker")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			err := w.srv.Start(w.mux)
			if err == nil {
				return
			}
			w.logger.Error("Dead letter worker failed to start",
				zap.Int("attempt", attempts),
				zap.Int("max_attempts", maxAttempts),
				zap.Error(err),
			)
			if attempts == maxAttempts {
				w.logger.Error("Giving up on dead letter worker; rejected messages stay queued in redis")
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempts*2) * time.Second):
			}
		}
	}()
}

func (w *DeadLetterWorker) Shutdown() {
	w.srv.Shutdown()
}

func HandleDeadLetterTask(repo deadLetterRepo.DeadLetterRepository, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var letter models.DeadLetter
		if err := json.Unmarshal(task.Payload(), &letter); err != nil {
			logger.Error("Invalid dead letter payload", zap.Error(err))
			return fmt.Errorf("decode dead letter: %v: %w", err, asynq.SkipRetry)
		}

		letter.ArchivedAt = time.Now().UTC()
		logger.Warn("Archiving dead letter",
			zap.String("id", letter.ID),
			zap.String("topic", letter.SourceTopic),
			zap.String("event_type", letter.EventType),
			zap.String("booking_id", letter.BookingID),
			zap.Int64("event_id", letter.EventID),
			zap.String("reason", letter.Reason),
		)

		if err := repo.Save(ctx, &letter); err != nil {
			logger.Error("Failed to archive dead letter", zap.String("id", letter.ID), zap.Error(err))
			return err
		}
		return nil
	}
}

// monitorRedisConnection pings Redis periodically to detect failures at runtime.
func (w *DeadLetterWorker) monitorRedisConnection(ctx context.Context) {
	client := redis.NewClient(&redis.Options{
		Addr:     w.opts.Addr,
		Password: w.opts.Password,
		DB:       w.opts.DB,
	})
	defer client.Close()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Ping(ctx).Err(); err != nil {
				w.logger.Warn("Dead letter queue redis connection lost", zap.Error(err))
			}
		}
	}
}
