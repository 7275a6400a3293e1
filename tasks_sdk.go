package vmplane

import (
	"context"
	"time"

	"pkt.systems/vmplane/internal/command"
)

const (
	TaskPending   = command.TaskPending
	TaskRunning   = command.TaskRunning
	TaskCompleted = command.TaskCompleted

	GuestStopped = command.GuestStopped
	GuestRunning = command.GuestRunning
)

// GetTask returns the current state of a task.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	return c.conn.GetTask(ctx, id)
}

// WaitTask polls a task with the client's timeout and interval. It
// panics with a *TaskTimeout when the task does not complete in time.
func (c *Client) WaitTask(ctx context.Context, id string) (Task, error) {
	return c.conn.WaitTask(ctx, id, c.timeout, c.interval)
}

// WaitTaskWithin polls a task with an explicit timeout and interval.
func (c *Client) WaitTaskWithin(ctx context.Context, id string, timeout, interval time.Duration) (Task, error) {
	return c.conn.WaitTask(ctx, id, timeout, interval)
}

// CatchTaskTimeout runs fn and converts a task timeout panic into a
// returned *TaskTimeout. Other panics propagate.
func CatchTaskTimeout(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			timeout, ok := r.(*TaskTimeout)
			if !ok {
				panic(r)
			}
			err = timeout
		}
	}()
	return fn()
}

// await waits for id and checks ref on the completed task.
func (c *Client) await(ctx context.Context, id string, err error, ref func(Task) string) (string, error) {
	if err != nil {
		return "", err
	}
	task, err := c.WaitTask(ctx, id)
	if err != nil {
		return "", err
	}
	if ref == nil {
		return "", nil
	}
	result := ref(task)
	if result == "" {
		return "", ErrMissingResult
	}
	return result, nil
}

func guestOf(t Task) string    { return t.Guest }
func snapshotOf(t Task) string { return t.Snapshot }
func volumeOf(t Task) string   { return t.Volume }
