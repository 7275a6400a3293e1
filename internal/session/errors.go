package session

import (
	"errors"
	"fmt"
	"time"

	"pkt.systems/vmplane/internal/authstore"
	"pkt.systems/vmplane/internal/command"
	"pkt.systems/vmplane/internal/transport"
)

var (
	// ErrUnauthenticated is returned when the backend rejects the
	// presented credentials.
	ErrUnauthenticated = transport.ErrUnauthenticated
	// ErrAuthorizationFailed is returned when a command is still rejected
	// after the single recovery attempt.
	ErrAuthorizationFailed = errors.New("authorization failed")
	// ErrNoResponseData is returned when a response lacks the expected payload.
	ErrNoResponseData = errors.New("no response data")
	// ErrNoTaskID is returned when an async command answers without a task id.
	ErrNoTaskID = errors.New("no task id")
	// ErrNoTaskData is returned when getTask answers without task data.
	ErrNoTaskData = errors.New("no task data")
	// ErrMissingResult is returned when a completed task lacks the
	// reference the operation promised.
	ErrMissingResult = errors.New("task result missing")
	// ErrInvalidTokenFormat is returned for undecodable key tokens.
	ErrInvalidTokenFormat = errors.New("invalid token format")
)

// ValidationError is returned when a token bundle is rejected.
type ValidationError = authstore.ValidationError

// CommandError carries an error string returned by the backend for an
// accepted request.
type CommandError struct {
	Type    command.Tag
	Message string
}

func (e *CommandError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// TaskError reports a task that completed with an error.
type TaskError struct {
	Task    command.Task
	Message string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s (%s) failed: %s", e.Task.ID, e.Task.Type, e.Message)
}

// TaskTimeout is the panic value raised by WaitTask when a task does not
// complete within its timeout. It is never returned as an error.
type TaskTimeout struct {
	ID      string
	Timeout time.Duration
	Elapsed time.Duration
	Last    command.Task
}

func (e *TaskTimeout) Error() string {
	return fmt.Sprintf("task %s did not complete within %s (last status %q, %d%%)",
		e.ID, e.Timeout, e.Last.Status, e.Last.Progress)
}
