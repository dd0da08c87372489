package worker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TaskDailyReflection triggers the evening reflection pipeline. An empty
// payload means "the configured default user, for the scheduled date".
const TaskDailyReflection = "reflection:daily"

type reflectionTaskPayload struct {
	UserID string `json:"uid,omitempty"`
	Date   string `json:"date,omitempty"`
	Force  bool   `json:"force,omitempty"`
}

// NewDailyReflectionTask builds a reflection task for a specific user and day.
func NewDailyReflectionTask(userID, date string, force bool) (*asynq.Task, error) {
	payload, err := json.Marshal(reflectionTaskPayload{UserID: userID, Date: date, Force: force})
	if err != nil {
		return nil, fmt.Errorf("marshal reflection payload: %w", err)
	}
	return asynq.NewTask(
		TaskDailyReflection,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Retention(24*time.Hour),
	), nil
}

// Client enqueues reflection tasks from outside the worker loop.
type Client struct {
	inner *asynq.Client
}

// NewClient connects an enqueue-only asynq client to Redis.
func NewClient(redisURL string) (*Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Client{inner: asynq.NewClient(opt)}, nil
}

// EnqueueDailyReflection schedules one reflection run.
func (c *Client) EnqueueDailyReflection(userID, date string, force bool) error {
	task, err := NewDailyReflectionTask(userID, date, force)
	if err != nil {
		return err
	}
	if _, err := c.inner.Enqueue(task); err != nil {
		return fmt.Errorf("enqueue reflection task: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (c *Client) Close() error {
	return c.inner.Close()
}
