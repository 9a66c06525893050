package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chzyer/readline"

	"github.com/si3lab/lidarlink/internal/control"
	"github.com/si3lab/lidarlink/internal/instrument"
	"github.com/si3lab/lidarlink/internal/session"
)

// scriptReader replays lines, then reports end of input.
type scriptReader struct {
	lines  []string
	closed bool
}

func (r *scriptReader) Readline() (string, error) {
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	if line == "^C" {
		return "", readline.ErrInterrupt
	}
	return line, nil
}

func (r *scriptReader) Close() error {
	r.closed = true
	return nil
}

type fakeSession struct {
	mu   sync.Mutex
	cmds []session.Command
	err  error
	exec func(session.Command) (session.Result, bool)
}

func (s *fakeSession) Submit(cmd session.Command) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	cmd.ID = "cmd-1"
	s.cmds = append(s.cmds, cmd)
	if s.exec != nil && cmd.Reply != nil {
		if res, ok := s.exec(cmd); ok {
			res.ID, res.Kind, res.Name = cmd.ID, cmd.Kind, cmd.Name
			cmd.Reply <- res
		}
	}
	return cmd.ID, nil
}

func (s *fakeSession) Stats() session.Stats {
	return session.Stats{
		State:      session.StateConnected,
		URL:        "opc.tcp://lidar:4840",
		Mode:       "poll",
		Reconnects: 2,
	}
}

func (s *fakeSession) submitted() []session.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]session.Command(nil), s.cmds...)
}

func newTestConsole(sess *fakeSession, lines ...string) (*Console, *scriptReader, *bytes.Buffer) {
	reader := &scriptReader{lines: lines}
	out := &bytes.Buffer{}
	return newConsole(reader, out, control.New(2, 60), sess, 50*time.Millisecond), reader, out
}

func TestExecute_SubmitsAndPrintsResult(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		exec     func(session.Command) (session.Result, bool)
		wantKind session.CommandKind
		wantOut  string
	}{
		{
			name:     "invoke without output",
			line:     "invoke ServFixed",
			exec:     func(session.Command) (session.Result, bool) { return session.Result{}, true },
			wantKind: session.CommandInvoke,
			wantOut:  "invoke ServFixed ok",
		},
		{
			name: "read with value",
			line: "read lidar_get_state",
			exec: func(session.Command) (session.Result, bool) {
				return session.Result{Output: []any{int32(3)}}, true
			},
			wantKind: session.CommandRead,
			wantOut:  "read lidar_get_state = 3",
		},
		{
			name: "write failure",
			line: "write set_laser_enable true",
			exec: func(session.Command) (session.Result, bool) {
				return session.Result{Err: instrument.ErrNotConnected}, true
			},
			wantKind: session.CommandWrite,
			wantOut:  "write lidar_set_laser_enable failed",
		},
		{
			name:     "no result in time",
			line:     "window 5",
			wantKind: session.CommandSetWindow,
			wantOut:  "set-window queued as cmd-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &fakeSession{exec: tt.exec}
			c, _, out := newTestConsole(sess)

			if c.Execute(context.Background(), tt.line) {
				t.Fatal("Execute() asked to stop")
			}
			cmds := sess.submitted()
			if len(cmds) != 1 {
				t.Fatalf("submitted %d commands, want 1", len(cmds))
			}
			if cmds[0].Kind != tt.wantKind || cmds[0].Source != "console" {
				t.Errorf("command = %+v", cmds[0])
			}
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("output = %q, want %q", out.String(), tt.wantOut)
			}
		})
	}
}

func TestExecute_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		err     error
		wantOut string
	}{
		{name: "unknown verb", line: "reboot now", wantOut: "unknown request kind"},
		{name: "unknown method", line: "invoke Reboot", wantOut: "unknown method"},
		{name: "bad value", line: "write set_laser_prf fast", wantOut: "invalid argument"},
		{name: "window out of range", line: "window 0", wantOut: "invalid history window"},
		{name: "queue full", line: "invoke ServRandom", err: session.ErrCommandQueueFull, wantOut: "command queue full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &fakeSession{err: tt.err}
			c, _, out := newTestConsole(sess)

			if c.Execute(context.Background(), tt.line) {
				t.Fatal("Execute() asked to stop")
			}
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("output = %q, want %q", out.String(), tt.wantOut)
			}
			if len(sess.submitted()) != 0 {
				t.Error("rejected line should not reach the session")
			}
		})
	}
}

func TestExecute_LocalCommands(t *testing.T) {
	sess := &fakeSession{}
	c, _, out := newTestConsole(sess)
	ctx := context.Background()

	for _, line := range []string{"", "   ", "help", "status", "methods", "setpoints"} {
		if c.Execute(ctx, line) {
			t.Fatalf("Execute(%q) asked to stop", line)
		}
	}

	for _, want := range []string{
		"LIDAR Console Commands",
		"connected (poll)",
		"opc.tcp://lidar:4840",
		"reconnects: 2",
		"update_time",
		"<heartbeat>",
		"lidar_go_maintenace",
		"Boolean",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q", want)
		}
	}
	if len(sess.submitted()) != 0 {
		t.Error("local commands should not reach the session")
	}
}

type fakeLevels struct{ set []string }

func (f *fakeLevels) SetLevel(name string) error {
	if name == "loud" {
		return errors.New("unknown log level")
	}
	f.set = append(f.set, name)
	return nil
}

func TestExecute_LogLevel(t *testing.T) {
	sess := &fakeSession{}
	c, _, out := newTestConsole(sess)
	ctx := context.Background()

	c.Execute(ctx, "log debug")
	if !strings.Contains(out.String(), "cannot be changed") {
		t.Errorf("output without level control = %q", out.String())
	}

	levels := &fakeLevels{}
	c.SetLogLevels(levels)
	for _, line := range []string{"log DEBUG", "log", "log loud", "log warn extra"} {
		if c.Execute(ctx, line) {
			t.Fatalf("Execute(%q) asked to stop", line)
		}
	}

	if len(levels.set) != 1 || levels.set[0] != "DEBUG" {
		t.Errorf("levels set = %v", levels.set)
	}
	for _, want := range []string{"log level debug", "usage: log", "unknown log level"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q: %s", want, out.String())
		}
	}
	if len(sess.submitted()) != 0 {
		t.Error("log command should not reach the session")
	}
}

func TestExecute_Quit(t *testing.T) {
	sess := &fakeSession{}
	c, _, out := newTestConsole(sess)

	if !c.Execute(context.Background(), "QUIT") {
		t.Fatal("Execute(quit) should stop the console")
	}
	cmds := sess.submitted()
	if len(cmds) != 1 || cmds[0].Kind != session.CommandShutdown || cmds[0].Reply != nil {
		t.Errorf("commands = %+v", cmds)
	}
	if !strings.Contains(out.String(), "Exiting") {
		t.Errorf("output = %q", out.String())
	}
}

func TestExecute_QuitRejectedKeepsRunning(t *testing.T) {
	sess := &fakeSession{err: session.ErrClosed}
	c, _, _ := newTestConsole(sess)

	if c.Execute(context.Background(), "quit") {
		t.Error("console stopped although shutdown was not queued")
	}
}

func TestRun(t *testing.T) {
	sess := &fakeSession{exec: func(session.Command) (session.Result, bool) { return session.Result{}, true }}
	c, reader, _ := newTestConsole(sess, "invoke ServFixed", "^C", "", "quit", "invoke ServRandom")

	if err := c.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	cmds := sess.submitted()
	if len(cmds) != 2 || cmds[1].Kind != session.CommandShutdown {
		t.Errorf("commands = %+v", cmds)
	}
	if len(reader.lines) != 1 {
		t.Errorf("Run() read past quit, %d lines left", len(reader.lines))
	}
	if !reader.closed {
		t.Error("reader not closed")
	}
}

func TestRun_EndOfInputShutsDown(t *testing.T) {
	sess := &fakeSession{}
	c, _, _ := newTestConsole(sess)

	if err := c.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	cmds := sess.submitted()
	if len(cmds) != 1 || cmds[0].Kind != session.CommandShutdown {
		t.Errorf("commands = %+v", cmds)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	sess := &fakeSession{}
	c, _, _ := newTestConsole(sess, "invoke ServFixed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Run(ctx, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(sess.submitted()) != 0 {
		t.Error("cancelled console should not submit")
	}
}

func TestExecute_CancelledWhileWaiting(t *testing.T) {
	sess := &fakeSession{}
	reader := &scriptReader{}
	out := &bytes.Buffer{}
	c := newConsole(reader, out, control.New(2, 60), sess, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Execute(ctx, "invoke ServFixed")
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Execute() did not return after cancel")
	}
	if strings.Contains(out.String(), "queued as") {
		t.Error("cancelled wait should not report a timeout")
	}
}
