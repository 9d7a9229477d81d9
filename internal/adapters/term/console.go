package term

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/rs/zerolog/log"
)

// Controller is the part of session.Controller the console drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Toggle(ctx context.Context) error
	SubmitContext(ctx context.Context, text string) error
	Snapshot() domain.SessionState
}

const help = `commands:
  start            join a session
  stop             leave the session
  toggle           start when idle, stop otherwise
  context <text>   send the job description
  status           print the session state
  quit             stop and exit`

// Console reads commands line by line and applies them to a controller.
type Console struct {
	ctl     Controller
	surface *Surface
	pending sync.WaitGroup
}

func NewConsole(ctl Controller, surface *Surface) *Console {
	return &Console{ctl: ctl, surface: surface}
}

// Run processes in until quit, EOF or ctx cancellation, then stops the session.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer c.shutdown(cancel)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-readErr
			}
			if quit := c.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// shutdown leaves the session. Stop abandons a join in flight; cancel fails
// actions that had not begun yet, and the last Stop catches any that won anyway.
func (c *Console) shutdown(cancel context.CancelFunc) {
	c.stop()
	cancel()
	c.pending.Wait()
	c.stop()
}

func (c *Console) stop() {
	if err := c.ctl.Stop(context.Background()); err != nil {
		log.Warn().Err(err).Str("module", "term").Msg("stop on exit")
	}
}

func (c *Console) handle(ctx context.Context, line string) bool {
	// The argument is kept as typed; it becomes the context text.
	cmd, arg, _ := strings.Cut(strings.TrimLeft(line, " \t"), " ")
	switch strings.ToLower(strings.TrimSpace(cmd)) {
	case "":
	case "start":
		c.async(ctx, c.ctl.Start)
	case "stop":
		c.async(ctx, c.ctl.Stop)
	case "toggle":
		c.async(ctx, c.ctl.Toggle)
	case "context":
		if !c.surface.ContextInputVisible() {
			c.printf("not waiting for context")
			return false
		}
		c.async(ctx, func(ctx context.Context) error { return c.ctl.SubmitContext(ctx, arg) })
	case "status":
		st := c.ctl.Snapshot()
		c.printf("phase=%s session=%t attempt=%d", st.Phase, st.HasSession, st.Attempt)
		if st.LastError != "" {
			c.printf("last error: %s", st.LastError)
		}
	case "help", "?":
		c.printf("%s", help)
	case "quit", "exit":
		return true
	default:
		c.printf("unknown command %q, try help", cmd)
	}
	return false
}

// async runs action without blocking the prompt so that stop can interrupt a join.
func (c *Console) async(ctx context.Context, action func(context.Context) error) {
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		if err := action(ctx); err != nil && reportable(err) {
			c.printf("error: %v", err)
		}
	}()
}

// reportable filters errors the surface already showed as notices.
func reportable(err error) bool {
	if errors.Is(err, domain.ErrAbandoned) {
		return false
	}
	_, classified := domain.KindOf(err)
	return !classified
}

func (c *Console) printf(format string, args ...any) {
	c.surface.Printf(format, args...)
}
