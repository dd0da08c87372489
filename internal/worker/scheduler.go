package worker

import (
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

var errMissingSchedule = errors.New("worker: cron schedule is required")

// SchedulerConfig describes the periodic reflection trigger.
type SchedulerConfig struct {
	RedisURL string
	Schedule string
	Location *time.Location
	Logger   *zap.Logger
}

// StartScheduler registers the daily reflection task on a cron schedule and
// starts the scheduler. The returned stop function shuts it down.
func StartScheduler(cfg SchedulerConfig) (func(), error) {
	if cfg.RedisURL == "" {
		return nil, errMissingRedisURL
	}
	if cfg.Schedule == "" {
		return nil, errMissingSchedule
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: location,
		Logger:   &asynqLoggerAdapter{logger: logger},
	})

	// Empty payload: the handler resolves the default user and the scheduled
	// date at execution time. Unique keeps a double-started scheduler from
	// enqueueing the same evening twice.
	task := asynq.NewTask(
		TaskDailyReflection,
		nil,
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Retention(24*time.Hour),
		asynq.Unique(12*time.Hour),
	)

	entryID, err := scheduler.Register(cfg.Schedule, task)
	if err != nil {
		return nil, fmt.Errorf("register reflection schedule: %w", err)
	}

	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("start scheduler: %w", err)
	}

	logger.Info("scheduler started",
		zap.String("schedule", cfg.Schedule),
		zap.String("timezone", location.String()),
		zap.String("entry_id", entryID))

	return func() { scheduler.Shutdown() }, nil
}
