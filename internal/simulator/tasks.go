package simulator

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"pkt.systems/vmplane/internal/command"
)

// DefaultTaskPolls is how many getTask polls a task takes to complete.
const DefaultTaskPolls = 2

// ErrTaskNotFound is returned for an unknown task id.
var ErrTaskNotFound = errors.New("task not found")

type taskEntry struct {
	task  command.Task
	polls int
	apply func() error
}

// TaskQueue runs asynchronous commands. A task's effect is applied when
// it completes, which happens on the configured poll count.
type TaskQueue struct {
	polls int

	mu    sync.Mutex
	tasks map[string]*taskEntry
}

// NewTaskQueue returns a queue whose tasks complete after polls polls.
func NewTaskQueue(polls int) *TaskQueue {
	if polls <= 0 {
		polls = DefaultTaskPolls
	}
	return &TaskQueue{polls: polls, tasks: make(map[string]*taskEntry)}
}

// Submit registers a pending task. ref carries the resource ids the task
// reports.
func (q *TaskQueue) Submit(tag command.Tag, ref command.Task, apply func() error) command.Task {
	ref.ID = uuid.NewString()
	ref.Type = tag
	ref.Status = command.TaskPending
	ref.Progress = 0
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks[ref.ID] = &taskEntry{task: ref, apply: apply}
	return ref
}

// Poll advances a task by one step and returns its state.
func (q *TaskQueue) Poll(id string) (command.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.tasks[id]
	if !ok {
		return command.Task{}, ErrTaskNotFound
	}
	if entry.task.Completed() {
		return entry.task, nil
	}
	entry.polls++
	if entry.polls < q.polls {
		entry.task.Status = command.TaskRunning
		entry.task.Progress = entry.polls * 100 / q.polls
		return entry.task, nil
	}
	entry.task.Status = command.TaskCompleted
	entry.task.Progress = 100
	if entry.apply != nil {
		if err := entry.apply(); err != nil {
			entry.task.Error = err.Error()
		}
	}
	return entry.task, nil
}

// Pending counts tasks that have not completed.
func (q *TaskQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.tasks {
		if !e.task.Completed() {
			n++
		}
	}
	return n
}
