package session

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkt.systems/vmplane/internal/command"
	"pkt.systems/vmplane/internal/transport"
)

// taskFixture loads tokens directly so no renewal ticker competes with
// WaitTask for fake timers.
func taskFixture(t *testing.T, handle func(command.Request, int) any) (*fixture, *atomic.Int32) {
	t.Helper()
	f := newFixture(t)
	require.NoError(t, f.conn.LoadTokens(context.Background(), f.backend.issue("alice")))
	var polls atomic.Int32
	f.backend.set(func(s *stubBackend) {
		s.handle = func(req command.Request) any {
			n := 0
			if req.Type == command.TagGetTask {
				n = int(polls.Add(1))
			}
			return handle(req, n)
		}
	})
	return f, &polls
}

func taskResponse(task command.Task) command.Response {
	return command.Response{Data: &command.Data{Task: &task}}
}

func TestWaitTaskPanicsAtTimeout(t *testing.T) {
	f, polls := taskFixture(t, func(req command.Request, _ int) any {
		return taskResponse(command.Task{ID: "t1", Status: command.TaskRunning, Progress: 40})
	})

	type outcome struct {
		panicked any
		err      error
	}
	done := make(chan outcome, 1)
	go func() {
		var o outcome
		defer func() {
			o.panicked = recover()
			done <- o
		}()
		_, o.err = f.conn.WaitTask(context.Background(), "t1", 2*time.Second, time.Second)
	}()

	for i := 0; i < 2; i++ {
		f.clock.WaitForTimers(1)
		select {
		case <-done:
			t.Fatalf("WaitTask returned after %d interval(s)", i)
		default:
		}
		f.clock.Advance(time.Second)
	}

	var o outcome
	select {
	case o = <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("WaitTask did not time out")
	}
	require.NoError(t, o.err)
	timeout, ok := o.panicked.(*TaskTimeout)
	require.True(t, ok, "panic value %T", o.panicked)
	assert.Equal(t, "t1", timeout.ID)
	assert.Equal(t, 2*time.Second, timeout.Timeout)
	assert.Equal(t, 2*time.Second, timeout.Elapsed)
	assert.Equal(t, command.TaskRunning, timeout.Last.Status)
	assert.Equal(t, int32(2), polls.Load())
}

func TestWaitTaskReturnsTaskErrorAfterOnePoll(t *testing.T) {
	f, polls := taskFixture(t, func(req command.Request, _ int) any {
		return taskResponse(command.Task{ID: "t1", Status: command.TaskCompleted, Progress: 100, Error: "disk full"})
	})

	_, err := f.conn.WaitTask(context.Background(), "t1", 0, 0)
	var terr *TaskError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "disk full", terr.Message)
	assert.Equal(t, int32(1), polls.Load())
	assert.Zero(t, f.clock.PendingCount())
}

func TestWaitTaskCompletesAfterPolling(t *testing.T) {
	f, polls := taskFixture(t, func(req command.Request, n int) any {
		if n < 3 {
			return taskResponse(command.Task{ID: "t1", Status: command.TaskPending})
		}
		return taskResponse(command.Task{ID: "t1", Status: command.TaskCompleted, Progress: 100, Guest: "g1"})
	})

	result := make(chan command.Task, 1)
	go func() {
		task, err := f.conn.WaitTask(context.Background(), "t1", 10*time.Second, time.Second)
		assert.NoError(t, err)
		result <- task
	}()
	for i := 0; i < 2; i++ {
		f.clock.WaitForTimers(1)
		f.clock.Advance(time.Second)
	}
	select {
	case task := <-result:
		assert.Equal(t, "g1", task.Guest)
	case <-time.After(5 * time.Second):
		t.Fatalf("WaitTask did not complete")
	}
	assert.Equal(t, int32(3), polls.Load())
}

func TestWaitTaskQueryErrorReturnsImmediately(t *testing.T) {
	f, _ := taskFixture(t, func(req command.Request, _ int) any {
		return taskResponse(command.Task{ID: "t1", Status: command.TaskRunning})
	})
	f.backend.queue(http.StatusBadGateway)

	_, err := f.conn.WaitTask(context.Background(), "t1", time.Minute, time.Second)
	var serr *transport.StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusBadGateway, serr.Code)
}

func TestWaitTaskHonorsContext(t *testing.T) {
	f, _ := taskFixture(t, func(req command.Request, _ int) any {
		return taskResponse(command.Task{ID: "t1", Status: command.TaskRunning})
	})
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := f.conn.WaitTask(ctx, "t1", time.Minute, time.Second)
		result <- err
	}()
	f.clock.WaitForTimers(1)
	cancel()
	select {
	case err := <-result:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatalf("WaitTask ignored cancellation")
	}
}

func TestStartTaskAndGetTaskErrors(t *testing.T) {
	f, _ := taskFixture(t, func(req command.Request, _ int) any {
		switch req.Type {
		case command.TagCreateGuest:
			return command.Response{}
		case command.TagGetTask:
			return command.Response{Data: &command.Data{}}
		default:
			return command.Response{ID: "t9"}
		}
	})
	ctx := context.Background()

	_, err := f.conn.StartTask(ctx, command.New(command.TagCreateGuest, command.GuestSpec{Name: "x"}))
	require.ErrorIs(t, err, ErrNoTaskID)

	id, err := f.conn.StartTask(ctx, command.New(command.TagDeleteGuest, command.GuestRef{ID: "g"}))
	require.NoError(t, err)
	assert.Equal(t, "t9", id)

	_, err = f.conn.GetTask(ctx, "t9")
	require.ErrorIs(t, err, ErrNoTaskData)
}

func TestExecuteTask(t *testing.T) {
	f, _ := taskFixture(t, func(req command.Request, _ int) any {
		if req.Type == command.TagCreateSnapshot {
			return command.Response{ID: "t2"}
		}
		var ref command.TaskRef
		if err := req.Decode(&ref); err != nil || ref.ID != "t2" {
			return command.Response{Error: "unknown task"}
		}
		return taskResponse(command.Task{ID: "t2", Type: command.TagCreateSnapshot, Status: command.TaskCompleted, Snapshot: "s1"})
	})

	task, err := f.conn.ExecuteTask(context.Background(),
		command.New(command.TagCreateSnapshot, command.SnapshotSpec{Guest: "g1", Name: "before"}), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "s1", task.Snapshot)
}
