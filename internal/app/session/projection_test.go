package session

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/dkeye/VoiceAgent/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject(t *testing.T) {
	labels := DefaultLabels()
	cases := []struct {
		state domain.SessionState
		want  domain.Status
	}{
		{domain.SessionState{Phase: domain.PhaseIdle}, domain.Status{Text: "Ready to Connect", Indicator: domain.IndicatorIdle}},
		{domain.SessionState{Phase: domain.PhaseIdle, LastError: "fetch token: x"}, domain.Status{Text: "Connection Failed", Indicator: domain.IndicatorError}},
		{domain.SessionState{Phase: domain.PhaseConnecting}, domain.Status{Text: "Connecting...", Indicator: domain.IndicatorConnecting}},
		{domain.SessionState{Phase: domain.PhaseAwaitingContext}, domain.Status{Text: "Connected - Awaiting Context", Indicator: domain.IndicatorActive}},
		{domain.SessionState{Phase: domain.PhaseActive}, domain.Status{Text: "Connected - Listening", Indicator: domain.IndicatorActive}},
		{domain.SessionState{Phase: domain.PhaseDisconnecting}, domain.Status{Text: "Disconnecting...", Indicator: domain.IndicatorConnecting}},
		{domain.SessionState{Phase: domain.PhaseFailed}, domain.Status{Text: "Connection Failed", Indicator: domain.IndicatorError}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Project(tc.state, labels), "phase %s", tc.state.Phase)
	}
}

func TestStatusProjector_FollowsController(t *testing.T) {
	f := newFixture(t, true)
	surface := &testutil.Surface{}
	f.ctl.Subscribe(NewStatusProjector(surface, DefaultLabels()))

	require.NoError(t, f.ctl.Start(context.Background()))
	require.NoError(t, f.ctl.SubmitContext(context.Background(), "platform engineer"))
	require.NoError(t, f.ctl.Stop(context.Background()))

	var texts []string
	for _, s := range surface.Statuses() {
		texts = append(texts, s.Text)
	}
	assert.Equal(t, []string{
		"Connecting...",
		"Connected - Awaiting Context",
		"Connected - Listening",
		"Disconnecting...",
		"Ready to Connect",
	}, texts)
	assert.Equal(t, []bool{false, true, true, false, true}, surface.Controls())
	assert.Equal(t, []bool{false, true, false, false, false}, surface.ContextVisible())
	assert.Empty(t, surface.Notices())
}

func TestStatusProjector_FailureNotice(t *testing.T) {
	f := newFixture(t, true)
	f.tokens.Err = errors.New("Token fetch failed: 503 Service Unavailable")
	surface := &testutil.Surface{}
	f.ctl.Subscribe(NewStatusProjector(surface, DefaultLabels()))

	require.Error(t, f.ctl.Start(context.Background()))

	notices := surface.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, domain.NoticeBlocking, notices[0].Level)
	assert.Equal(t, "Could not connect: fetch token: Token fetch failed: 503 Service Unavailable", notices[0].Message)

	statuses := surface.Statuses()
	require.NotEmpty(t, statuses)
	// Idle after a failure keeps showing the error until the next start.
	assert.Equal(t, domain.Status{Text: "Connection Failed", Indicator: domain.IndicatorError}, statuses[len(statuses)-1])
	controls := surface.Controls()
	assert.True(t, controls[len(controls)-1])
}

func TestStatusProjector_SendErrorIsWarning(t *testing.T) {
	f := newFixture(t, true)
	f.connector.PublishErr = errors.New("data channel closed")
	surface := &testutil.Surface{}
	f.ctl.Subscribe(NewStatusProjector(surface, DefaultLabels()))

	require.NoError(t, f.ctl.Start(context.Background()))
	require.Error(t, f.ctl.SubmitContext(context.Background(), "qa lead"))

	notices := surface.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, domain.NoticeWarning, notices[0].Level)
	assert.Contains(t, notices[0].Message, "data channel closed")
	statuses := surface.Statuses()
	assert.Equal(t, "Connected - Awaiting Context", statuses[len(statuses)-1].Text)
}

func TestStatusProjector_Sync(t *testing.T) {
	surface := &testutil.Surface{}
	p := NewStatusProjector(surface, DefaultLabels())
	p.Sync(domain.SessionState{Phase: domain.PhaseAwaitingContext, PendingContext: "in flight"})

	assert.Equal(t, []bool{true}, surface.Controls())
	assert.Equal(t, []bool{false}, surface.ContextVisible())
}
