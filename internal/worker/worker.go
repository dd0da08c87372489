package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/daybook/backend/internal/reflection"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/transcript"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	workerConcurrency     = 5
	workerShutdownTimeout = 30 * time.Second
)

var (
	errMissingRedisURL = errors.New("worker: redis url is required")
	errMissingRunner   = errors.New("worker: reflection runner is required")
)

// ReflectionRunner is the slice of the reflection service the worker calls.
type ReflectionRunner interface {
	Run(ctx context.Context, userID transcript.UserID, date transcript.Date, force bool) (reflection.Outcome, error)
}

// Worker consumes reflection tasks from Redis.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

// WorkerConfig wires the reflection worker. DefaultUserID serves scheduled
// tasks that carry no explicit uid.
type WorkerConfig struct {
	RedisURL      string
	Runner        ReflectionRunner
	Bucketer      transcript.Bucketer
	DefaultUserID string
	Logger        *zap.Logger
}

// NewWorker builds an asynq server with the reflection handler registered.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.RedisURL == "" {
		return nil, errMissingRedisURL
	}
	if cfg.Runner == nil {
		return nil, errMissingRunner
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     workerConcurrency,
		ShutdownTimeout: workerShutdownTimeout,
		Logger:          &asynqLoggerAdapter{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error("task execution failed",
				zap.String("task_type", task.Type()),
				zap.Int("retry_count", retried),
				zap.Int("max_retry", maxRetry),
				zap.Error(err))
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskDailyReflection, newReflectionHandler(cfg, logger))

	return &Worker{server: server, mux: mux, logger: logger}, nil
}

// Start runs the worker in non-blocking mode. Call Shutdown to stop.
func (w *Worker) Start() error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	w.logger.Info("worker started", zap.Int("concurrency", workerConcurrency))
	return nil
}

// Shutdown drains in-flight tasks and stops the worker.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

func newReflectionHandler(cfg WorkerConfig, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload reflectionTaskPayload
		if len(task.Payload()) > 0 {
			if err := json.Unmarshal(task.Payload(), &payload); err != nil {
				return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
			}
		}

		rawUserID := payload.UserID
		if rawUserID == "" {
			rawUserID = cfg.DefaultUserID
		}
		userID, err := transcript.NewUserID(rawUserID)
		if err != nil {
			logger.Error("reflection task has no usable user id", zap.Error(err))
			return fmt.Errorf("invalid user id: %w", asynq.SkipRetry)
		}

		date := cfg.Bucketer.ScheduledDate()
		if payload.Date != "" {
			parsed, err := transcript.NewDate(payload.Date)
			if err != nil {
				return fmt.Errorf("invalid date: %w", asynq.SkipRetry)
			}
			date = parsed
		}

		outcome, err := cfg.Runner.Run(ctx, userID, date, payload.Force)
		if err != nil {
			// Read and write failures are retryable; the run marker keeps a
			// retried day from being enriched twice.
			return err
		}

		logger.Info("reflection task finished",
			zap.String("user_id", userID.String()),
			zap.String("date", date.String()),
			zap.String("outcome", string(outcome)))
		return nil
	}
}
