package session

import (
	"context"
	"errors"
	"time"

	"pkt.systems/vmplane/internal/clock"
	"pkt.systems/vmplane/internal/command"
)

const (
	// DefaultTaskTimeout bounds WaitTask when no timeout is given.
	DefaultTaskTimeout = 300 * time.Second
	// DefaultTaskInterval is the pause between polls.
	DefaultTaskInterval = time.Second
)

// StartTask sends an async command and returns the task id.
func (c *Connector) StartTask(ctx context.Context, req command.Request) (string, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", ErrNoTaskID
	}
	return resp.ID, nil
}

// GetTask fetches the current state of a task.
func (c *Connector) GetTask(ctx context.Context, id string) (command.Task, error) {
	data, err := c.RequestCommand(ctx, command.New(command.TagGetTask, command.TaskRef{ID: id}))
	if errors.Is(err, ErrNoResponseData) {
		return command.Task{}, ErrNoTaskData
	}
	if err != nil {
		return command.Task{}, err
	}
	if data.Task == nil {
		return command.Task{}, ErrNoTaskData
	}
	return *data.Task, nil
}

// WaitTask polls a task until it completes. A query error is returned
// immediately, as is the error of a task that completed with one.
//
// WaitTask panics with a *TaskTimeout when the task has not completed
// after timeout of elapsed clock time. This is the only failure that is
// raised instead of returned. Cancelling ctx returns ctx.Err().
//
// Zero timeout or interval select the defaults.
func (c *Connector) WaitTask(ctx context.Context, id string, timeout, interval time.Duration) (command.Task, error) {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	if interval <= 0 {
		interval = DefaultTaskInterval
	}
	start := c.clock.Now()
	var last command.Task
	for clock.Since(c.clock, start) < timeout {
		task, err := c.GetTask(ctx, id)
		if err != nil {
			return command.Task{}, err
		}
		last = task
		if task.Completed() {
			if task.Error != "" {
				return task, &TaskError{Task: task, Message: task.Error}
			}
			return task, nil
		}
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-c.clock.After(interval):
		}
	}
	panic(&TaskTimeout{
		ID:      id,
		Timeout: timeout,
		Elapsed: clock.Since(c.clock, start),
		Last:    last,
	})
}

// ExecuteTask starts an async command and waits for its task.
func (c *Connector) ExecuteTask(ctx context.Context, req command.Request, timeout, interval time.Duration) (command.Task, error) {
	id, err := c.StartTask(ctx, req)
	if err != nil {
		return command.Task{}, err
	}
	return c.WaitTask(ctx, id, timeout, interval)
}
