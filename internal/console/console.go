// Package console provides the interactive operator prompt.
//
// Each line is parsed into a control request, resolved against the
// catalogue and placed on the session's command channel, so typing a
// command never stalls acquisition. The console waits a bounded time for
// the result and prints it.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/si3lab/lidarlink/internal/control"
	"github.com/si3lab/lidarlink/internal/session"
)

const (
	defaultPrompt        = "lidar> "
	defaultResultTimeout = 10 * time.Second

	commandSource = "console"
)

// LineReader is the part of readline.Instance the console uses.
type LineReader interface {
	Readline() (string, error)
	Close() error
}

// Session is the part of session.Manager the console uses.
type Session interface {
	Submit(cmd session.Command) (string, error)
	Stats() session.Stats
}

// LevelSetter changes the process log level. *logging.Logger implements it.
type LevelSetter interface {
	SetLevel(name string) error
}

// Options configures a Console.
type Options struct {
	// Prompt is printed before each line. Default: "lidar> "
	Prompt string

	// ResultTimeout bounds the wait for a command result. Default: 10s
	ResultTimeout time.Duration

	// HistoryFile persists entered lines when set.
	HistoryFile string
}

// Console reads operator commands and submits them to the session.
type Console struct {
	reader    LineReader
	out       io.Writer
	catalogue *control.Catalogue
	session   Session
	levels    LevelSetter
	timeout   time.Duration
}

// New creates a console on the process terminal. The terminal is claimed
// immediately so log output can be routed through Stdout before the
// session exists.
//
// Parameters:
//   - catalogue: Resolves method and setpoint names
//   - opts: Prompt, result timeout and history file
//
// Returns:
//   - *Console: Ready to Run
//   - error: If the terminal cannot be set up
func New(catalogue *control.Catalogue, opts Options) (*Console, error) {
	prompt := opts.Prompt
	if prompt == "" {
		prompt = defaultPrompt
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		HistoryFile:     opts.HistoryFile,
		AutoComplete:    completer(catalogue),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return newConsole(rl, rl.Stdout(), catalogue, nil, opts.ResultTimeout), nil
}

func newConsole(reader LineReader, out io.Writer, catalogue *control.Catalogue, sess Session, timeout time.Duration) *Console {
	if timeout <= 0 {
		timeout = defaultResultTimeout
	}
	return &Console{
		reader:    reader,
		out:       out,
		catalogue: catalogue,
		session:   sess,
		timeout:   timeout,
	}
}

// Stdout returns a writer that does not disturb the prompt. Route log
// output through it while the console runs.
func (c *Console) Stdout() io.Writer {
	return c.out
}

// SetLogLevels enables the "log <level>" command.
func (c *Console) SetLogLevels(levels LevelSetter) {
	c.levels = levels
}

// Close releases the terminal and unblocks Run.
func (c *Console) Close() error {
	return c.reader.Close()
}

// Run reads lines until quit, end of input or ctx cancellation and submits
// them to sess. Quit and end of input submit a shutdown command.
func (c *Console) Run(ctx context.Context, sess Session) error {
	defer c.reader.Close()

	if sess != nil {
		c.session = sess
	}
	if c.session == nil {
		return errors.New("console: no session")
	}

	c.printHelp()

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := c.reader.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			c.Execute(ctx, "quit")
			return nil
		}

		if c.Execute(ctx, line) {
			return nil
		}
	}
}

// Execute handles one line and reports whether the console should stop.
func (c *Console) Execute(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	fields := strings.Fields(input)
	switch strings.ToLower(fields[0]) {
	case "log":
		c.setLogLevel(fields[1:])
		return false
	case "help", "?":
		c.printHelp()
		return false
	case "status":
		c.printStatus()
		return false
	case "methods":
		c.printMethods()
		return false
	case "setpoints":
		c.printSetpoints()
		return false
	}

	req, err := control.ParseLine(input)
	if err != nil {
		fmt.Fprintf(c.out, "error: %v (type 'help' for commands)\n", err)
		return false
	}
	cmd, err := c.catalogue.Build(req)
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return false
	}
	cmd.Source = commandSource

	if cmd.Kind == session.CommandShutdown {
		if _, err := c.session.Submit(cmd); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
			return false
		}
		fmt.Fprintln(c.out, "Exiting...")
		return true
	}

	reply := make(chan session.Result, 1)
	cmd.Reply = reply
	id, err := c.session.Submit(cmd)
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return false
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res := <-reply:
		c.printResult(res)
	case <-timer.C:
		fmt.Fprintf(c.out, "%s queued as %s, no result after %s\n", cmd.Kind, id, c.timeout)
	case <-ctx.Done():
	}
	return false
}

func (c *Console) setLogLevel(args []string) {
	if c.levels == nil {
		fmt.Fprintln(c.out, "error: log level cannot be changed")
		return
	}
	if len(args) != 1 {
		fmt.Fprintln(c.out, "error: usage: log <debug|info|warn|error>")
		return
	}
	if err := c.levels.SetLevel(args[0]); err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "log level %s\n", strings.ToLower(args[0]))
}

func (c *Console) printResult(res session.Result) {
	label := string(res.Kind)
	if res.Name != "" {
		label += " " + res.Name
	}
	if res.Err != nil {
		fmt.Fprintf(c.out, "%s failed: %v\n", label, res.Err)
		return
	}
	switch len(res.Output) {
	case 0:
		fmt.Fprintf(c.out, "%s ok\n", label)
	case 1:
		fmt.Fprintf(c.out, "%s = %v\n", label, res.Output[0])
	default:
		fmt.Fprintf(c.out, "%s = %v\n", label, res.Output)
	}
}

func (c *Console) printStatus() {
	st := c.session.Stats()
	fmt.Fprintf(c.out, "state:      %s (%s)\n", st.State, st.Mode)
	fmt.Fprintf(c.out, "url:        %s\n", st.URL)
	if !st.ConnectedAt.IsZero() {
		fmt.Fprintf(c.out, "connected:  %s\n", st.ConnectedAt.Format(time.RFC3339))
	}
	if st.LastError != "" {
		fmt.Fprintf(c.out, "last error: %s\n", st.LastError)
	}
	fmt.Fprintf(c.out, "reconnects: %d, losses: %d\n", st.Reconnects, st.Losses)
	fmt.Fprintf(c.out, "commands:   %d ok, %d failed, %d rejected, %d queued\n",
		st.CommandsExecuted, st.CommandsFailed, st.CommandsRejected, st.QueueDepth)
}

func (c *Console) printMethods() {
	for _, m := range c.catalogue.Methods() {
		params := make([]string, 0, len(m.Params))
		for _, p := range m.Params {
			params = append(params, "<"+p.Name+">")
		}
		fmt.Fprintf(c.out, "  %-16s %-28s %s\n", m.Name, strings.Join(params, " "), m.Description)
	}
}

func (c *Console) printSetpoints() {
	for _, s := range c.catalogue.Setpoints() {
		fmt.Fprintf(c.out, "  %-32s %-8s %s\n", s.Node, s.Hint, s.Category)
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
LIDAR Console Commands:
  invoke <method> [args...]  - Call a server method (see 'methods')
  write <setpoint> <value>   - Write a setpoint (see 'setpoints')
  read <node>                - Read any node by name
  window <minutes>           - Change the history retention window
  status                     - Show the session state
  log <level>                - Set log level (debug, info, warn, error)
  help                       - Show this help
  quit                       - Shut down`)
}

// completer offers verbs, method names and setpoint names.
func completer(catalogue *control.Catalogue) readline.AutoCompleter {
	var methods, setpoints []readline.PrefixCompleterInterface
	for _, m := range catalogue.Methods() {
		methods = append(methods, readline.PcItem(m.Name))
	}
	for _, s := range catalogue.Setpoints() {
		setpoints = append(setpoints, readline.PcItem(strings.TrimPrefix(s.Node, "lidar_")))
	}

	return readline.NewPrefixCompleter(
		readline.PcItem("invoke", methods...),
		readline.PcItem("write", setpoints...),
		readline.PcItem("read"),
		readline.PcItem("window"),
		readline.PcItem("status"),
		readline.PcItem("log",
			readline.PcItem("debug"),
			readline.PcItem("info"),
			readline.PcItem("warn"),
			readline.PcItem("error"),
		),
		readline.PcItem("methods"),
		readline.PcItem("setpoints"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}
