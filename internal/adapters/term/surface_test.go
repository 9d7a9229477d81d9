package term

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dkeye/VoiceAgent/internal/app/session"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestSurface_Status(t *testing.T) {
	var out bytes.Buffer
	s := New(&out, false)
	p := session.NewStatusProjector(s, session.DefaultLabels())

	p.Sync(domain.SessionState{Phase: domain.PhaseIdle})
	p.Sync(domain.SessionState{Phase: domain.PhaseIdle})
	p.Sync(domain.SessionState{Phase: domain.PhaseConnecting})
	assert.False(t, s.ControlsEnabled())
	p.Sync(domain.SessionState{Phase: domain.PhaseAwaitingContext, HasSession: true})
	assert.True(t, s.ControlsEnabled())
	assert.True(t, s.ContextInputVisible())

	assert.Equal(t, strings.Join([]string{
		"[o] Ready to Connect",
		"[~] Connecting...",
		"[*] Connected - Awaiting Context",
		"    describe the role: context <text>",
		"",
	}, "\n"), out.String())
}

func TestSurface_Notify(t *testing.T) {
	var out bytes.Buffer
	s := New(&out, false)
	s.Notify(domain.Notice{Level: domain.NoticeBlocking, Message: "Could not connect: join session: refused"})
	s.Notify(domain.Notice{Level: domain.NoticeWarning, Message: "context not delivered"})
	assert.Equal(t, "!!  Could not connect: join session: refused\nwarning: context not delivered\n", out.String())
}

func TestSurface_Meter(t *testing.T) {
	var out bytes.Buffer
	s := New(&out, true)

	s.RenderLevels(domain.LevelSnapshot{RMS: 0.5, Remote: 1})
	assert.Equal(t, "\rmic [##########..........]  agent [####################]", out.String())

	out.Reset()
	s.RenderStatus(domain.Status{Text: "Ready to Connect", Indicator: domain.IndicatorIdle})
	assert.True(t, strings.HasPrefix(out.String(), "\r "), "meter is wiped before a status line")
	assert.True(t, strings.HasSuffix(out.String(), "\r[o] Ready to Connect\n"))

	out.Reset()
	s.RenderLevels(domain.LevelSnapshot{Idle: true})
	assert.Empty(t, out.String())
}

func TestSurface_MeterDisabled(t *testing.T) {
	var out bytes.Buffer
	New(&out, false).RenderLevels(domain.LevelSnapshot{RMS: 1})
	assert.Empty(t, out.String())
}

func TestBar(t *testing.T) {
	assert.Equal(t, "[....................]", bar(-1))
	assert.Equal(t, "[####################]", bar(2))
}
