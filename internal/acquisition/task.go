package acquisition

import (
	"context"
	"sync"

	"github.com/si3lab/lidarlink/internal/instrument"
)

// Acquisition modes.
const (
	ModePush = "push"
	ModePoll = "poll"
)

// Strategy starts acquisition on an established connection.
type Strategy interface {
	// Mode returns ModePush or ModePoll.
	Mode() string

	// Start begins acquisition. Setup failures (for example subscription
	// creation) are returned and no task is left running.
	Start(ctx context.Context, conn instrument.Conn) (*Task, error)
}

// Task is one running acquisition unit bound to one connection.
//
// Stop returns only after the task's goroutine has exited and its
// teardown (subscription deletion) has completed.
type Task struct {
	mode   string
	cancel context.CancelFunc
	done   chan struct{}
	fatal  chan error

	failOnce sync.Once
}

func newTask(parent context.Context, mode string) (*Task, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &Task{
		mode:   mode,
		cancel: cancel,
		done:   make(chan struct{}),
		fatal:  make(chan error, 1),
	}, ctx
}

// Mode returns the acquisition mode.
func (t *Task) Mode() string {
	return t.mode
}

// Done is closed when the task's goroutine has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Fatal delivers at most one error when the task can no longer run on its
// connection. The session treats it as a lost link.
func (t *Task) Fatal() <-chan error {
	return t.fatal
}

// fail records a fatal error; only the first one is kept.
func (t *Task) fail(err error) {
	t.failOnce.Do(func() {
		t.fatal <- err
	})
}

// Stop cancels the task and waits for it to finish.
//
// Returns:
//   - error: ctx.Err() if ctx ends before the task has exited
func (t *Task) Stop(ctx context.Context) error {
	t.cancel()
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
