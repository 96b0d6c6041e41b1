package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ent0n29/outreach/internal/streamclient"
)

// Stream is the part of the event channel client the shell drives.
type Stream interface {
	State() streamclient.State
	ReconnectCount() int
	LastError() error
	Ping(message string) error
	Reconnect()
	Disconnect()
}

var errQuit = errors.New("quit")

// Shell is the line oriented operator interface.
type Shell struct {
	orch      *Orchestrator
	stream    Stream
	telemetry *Telemetry
	out       io.Writer
}

func NewShell(orch *Orchestrator, stream Stream, telemetry *Telemetry, out io.Writer) *Shell {
	return &Shell{orch: orch, stream: stream, telemetry: telemetry, out: out}
}

const shellHelp = `commands:
  poll                      drain new workflows now
  queue [contact]           list the active (or named) contact's queue
  contacts                  list contacts
  contact <id>              switch the active contact
  show <task>               show a task
  history                   list every task, rejected ones included
  edit <task>               open the editor
  set <task> <key> <value>  change an option in the editor
  save <task> | cancel <task>
  exec <task> [wait]        execute a task under review
  retry <task> [wait]       retry a failed task
  reject <task>
  ping [message]            send a liveness probe on the stream
  status                    stream state
  reconnect                 reconnect the stream
  telemetry | pause | resume | clear
  quit`

// Run reads commands from in until EOF, quit, or ctx is done.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	s.prompt()
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.Exec(ctx, scanner.Text()); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		s.prompt()
	}
	return scanner.Err()
}

func (s *Shell) prompt() {
	fmt.Fprintf(s.out, "[%s] > ", s.orch.ActiveContact())
}

func (s *Shell) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help", "?":
		fmt.Fprintln(s.out, shellHelp)
	case "quit", "exit":
		return errQuit
	case "poll":
		report, err := s.orch.Poll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%d workflows, %d new tasks, %d duplicates\n", report.Workflows, report.Added, report.Duplicates)
	case "queue":
		if len(args) > 0 {
			RenderQueue(s.out, s.orch.QueueFor(args[0]))
		} else {
			RenderQueue(s.out, s.orch.Queue())
		}
	case "history":
		RenderQueue(s.out, s.orch.History())
	case "contacts":
		RenderContacts(s.out, s.orch.Contacts())
	case "contact":
		if len(args) != 1 {
			return errors.New("usage: contact <id>")
		}
		return s.orch.SetActiveContact(args[0])
	case "show":
		if len(args) != 1 {
			return errors.New("usage: show <task>")
		}
		t, ok := s.orch.Task(args[0])
		if !ok {
			return fmt.Errorf("unknown task %q", args[0])
		}
		RenderTask(s.out, t)
	case "edit", "save", "cancel", "reject":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <task>", cmd)
		}
		return s.transition(cmd, args[0])
	case "set":
		if len(args) < 3 {
			return errors.New("usage: set <task> <key> <value>")
		}
		return s.orch.UpdateDraft(args[0], args[1], strings.Join(args[2:], " "))
	case "exec", "retry":
		if len(args) < 1 {
			return fmt.Errorf("usage: %s <task> [wait]", cmd)
		}
		return s.execute(ctx, cmd, args[0], len(args) > 1 && args[1] == "wait")
	case "ping":
		if s.stream == nil {
			return errors.New("no stream configured")
		}
		msg := strings.Join(args, " ")
		if msg == "" {
			msg = "ping from console"
		}
		return s.stream.Ping(msg)
	case "status":
		if s.stream == nil {
			return errors.New("no stream configured")
		}
		fmt.Fprintf(s.out, "stream %s, reconnect attempts %d", s.stream.State(), s.stream.ReconnectCount())
		if err := s.stream.LastError(); err != nil {
			fmt.Fprintf(s.out, ", last error: %v", err)
		}
		fmt.Fprintln(s.out)
	case "reconnect":
		if s.stream == nil {
			return errors.New("no stream configured")
		}
		s.stream.Reconnect()
	case "telemetry":
		RenderTelemetry(s.out, s.telemetry.Frames())
		if n := s.telemetry.Dropped(); n > 0 {
			fmt.Fprintf(s.out, "%d older frames dropped\n", n)
		}
	case "pause":
		s.telemetry.Pause()
	case "resume":
		s.telemetry.Resume()
	case "clear":
		s.telemetry.Clear()
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}

func (s *Shell) transition(cmd, taskID string) error {
	switch cmd {
	case "edit":
		return s.orch.Edit(taskID)
	case "save":
		return s.orch.Save(taskID)
	case "cancel":
		return s.orch.Cancel(taskID)
	default:
		return s.orch.Reject(taskID)
	}
}

func (s *Shell) execute(ctx context.Context, cmd, taskID string, wait bool) error {
	var (
		ex  *Execution
		err error
	)
	if cmd == "retry" {
		ex, err = s.orch.Retry(ctx, taskID)
	} else {
		ex, err = s.orch.Execute(ctx, taskID)
	}
	if err != nil {
		return err
	}
	if !wait {
		fmt.Fprintf(s.out, "%s executing (attempt %d)\n", ex.TaskID, ex.Attempt)
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.orch.opts.ExecutionTimeout+5*time.Second)
	defer cancel()
	t, err := ex.Wait(waitCtx)
	if err != nil {
		fmt.Fprintf(s.out, "%s %s: %v\n", ex.TaskID, t.State, err)
		return nil
	}
	fmt.Fprintf(s.out, "%s %s: %s\n", t.ID, t.State, t.LastResult.Message)
	return nil
}
