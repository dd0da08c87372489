package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestDrainRunsQueuedTasksInOrder(t *testing.T) {
	queue := NewQueue(Config{BufferSize: 8})

	var order []int
	for i := 0; i < 3; i++ {
		index := i
		accepted := queue.Enqueue(Task{
			Name: "record",
			Run: func(ctx context.Context) error {
				order = append(order, index)
				return nil
			},
		})
		if !accepted {
			t.Fatalf("expected task %d to be accepted", i)
		}
	}

	queue.Drain()
	if len(order) != 3 || order[0] != 0 || order[2] != 2 {
		t.Fatalf("unexpected execution order: %v", order)
	}
	if queue.Depth() != 0 {
		t.Fatalf("expected empty queue, got depth %d", queue.Depth())
	}
}

func TestEnqueueDropsWhenBufferFull(t *testing.T) {
	queue := NewQueue(Config{BufferSize: 1})

	blocked := Task{Name: "first", Run: func(ctx context.Context) error { return nil }}
	if !queue.Enqueue(blocked) {
		t.Fatalf("expected first task to be accepted")
	}
	if queue.Enqueue(blocked) {
		t.Fatalf("expected second task to be dropped")
	}
	if queue.Dropped() != 1 {
		t.Fatalf("expected one dropped task, got %d", queue.Dropped())
	}
}

func TestTaskFailureDoesNotStopQueue(t *testing.T) {
	queue := NewQueue(Config{BufferSize: 8})

	var completed atomic.Int32
	queue.Enqueue(Task{Name: "failing", Run: func(ctx context.Context) error {
		return errors.New("store unavailable")
	}})
	queue.Enqueue(Task{Name: "following", Run: func(ctx context.Context) error {
		completed.Add(1)
		return nil
	}})

	queue.Drain()
	if completed.Load() != 1 {
		t.Fatalf("expected following task to run after failure")
	}
}

func TestStartDrainsOnCancel(t *testing.T) {
	queue := NewQueue(Config{BufferSize: 8})
	ctx, cancel := context.WithCancel(context.Background())
	queue.Start(ctx)

	var completed atomic.Int32
	queue.Enqueue(Task{Name: "late", Run: func(ctx context.Context) error {
		completed.Add(1)
		return nil
	}})

	cancel()
	queue.Wait()
	if completed.Load() != 1 {
		t.Fatalf("expected queued task to run during shutdown drain")
	}
}
