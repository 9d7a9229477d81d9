// Package term renders a session on a terminal.
package term

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

const meterWidth = 20

var indicators = map[domain.Indicator]string{
	domain.IndicatorIdle:       "o",
	domain.IndicatorConnecting: "~",
	domain.IndicatorActive:     "*",
	domain.IndicatorError:      "x",
}

// Surface writes status lines and an optional level meter to out.
type Surface struct {
	mu  sync.Mutex
	out io.Writer

	meter      bool
	meterDrawn bool
	last       domain.Status
	controls   bool
	ctxVisible bool
}

var _ core.UISurface = (*Surface)(nil)

func New(out io.Writer, meter bool) *Surface {
	return &Surface{out: out, meter: meter, controls: true}
}

// ControlsEnabled mirrors the disabled buttons of the page.
func (s *Surface) ControlsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controls
}

func (s *Surface) ContextInputVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctxVisible
}

func (s *Surface) RenderStatus(st domain.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st == s.last {
		return
	}
	s.last = st
	s.linef("[%s] %s", indicators[st.Indicator], st.Text)
}

func (s *Surface) SetControlsEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls = enabled
}

func (s *Surface) SetContextInputVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if visible && !s.ctxVisible {
		s.linef("    describe the role: context <text>")
	}
	s.ctxVisible = visible
}

func (s *Surface) RenderLevels(l domain.LevelSnapshot) {
	if !s.meter {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.Idle {
		if s.meterDrawn {
			s.clearMeter()
		}
		return
	}
	fmt.Fprintf(s.out, "\rmic %s  agent %s", bar(l.RMS), bar(l.Remote))
	s.meterDrawn = true
}

func (s *Surface) Notify(n domain.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch n.Level {
	case domain.NoticeBlocking:
		s.linef("!!  %s", n.Message)
	default:
		s.linef("warning: %s", n.Message)
	}
}

// Printf prints a line of console output between status updates.
func (s *Surface) Printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linef(format, args...)
}

// linef prints a full line, first wiping any meter drawn in place.
func (s *Surface) linef(format string, args ...any) {
	if s.meterDrawn {
		s.clearMeter()
	}
	fmt.Fprintf(s.out, format+"\n", args...)
}

func (s *Surface) clearMeter() {
	fmt.Fprintf(s.out, "\r%s\r", strings.Repeat(" ", 2*meterWidth+16))
	s.meterDrawn = false
}

func bar(v float64) string {
	v = math.Max(0, math.Min(1, v))
	n := int(math.Round(v * meterWidth))
	return "[" + strings.Repeat("#", n) + strings.Repeat(".", meterWidth-n) + "]"
}
