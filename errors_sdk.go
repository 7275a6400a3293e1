package vmplane

import "pkt.systems/vmplane/internal/session"

var (
	ErrUnauthenticated     = session.ErrUnauthenticated
	ErrAuthorizationFailed = session.ErrAuthorizationFailed
	ErrNoResponseData      = session.ErrNoResponseData
	ErrNoTaskID            = session.ErrNoTaskID
	ErrNoTaskData          = session.ErrNoTaskData
	ErrMissingResult       = session.ErrMissingResult
	ErrInvalidTokenFormat  = session.ErrInvalidTokenFormat
)

type (
	// ValidationError reports a rejected token bundle.
	ValidationError = session.ValidationError
	// CommandError carries a backend error for an accepted request.
	CommandError = session.CommandError
	// TaskError reports a task that completed with an error.
	TaskError = session.TaskError
	// TaskTimeout is the panic value of a wait that timed out.
	TaskTimeout = session.TaskTimeout
)
