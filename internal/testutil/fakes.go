// Package testutil holds in-memory collaborators for session tests.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

// Tokens is a scripted TokenService. When Block is set FetchToken waits on it.
type Tokens struct {
	mu    sync.Mutex
	Token string
	Err   error
	Block chan struct{}
	calls int
}

func (t *Tokens) FetchToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	t.calls++
	block := t.Block
	t.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return t.Token, t.Err
}

func (t *Tokens) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Capture is a CaptureStream that only emits frames pushed by the test.
type Capture struct {
	mu     sync.Mutex
	subs   map[int]chan core.AudioFrame
	nextID int
	closed int
}

func (c *Capture) Subscribe(buffer int) (<-chan core.AudioFrame, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs == nil {
		c.subs = make(map[int]chan core.AudioFrame)
	}
	id := c.nextID
	c.nextID++
	ch := make(chan core.AudioFrame, buffer)
	c.subs[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// Push delivers f to every subscriber without blocking.
func (c *Capture) Push(f core.AudioFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- f:
		default:
		}
	}
}

func (c *Capture) SampleRate() int { return 16000 }

func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	return nil
}

func (c *Capture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed > 0
}

// Input hands out Captures and remembers them.
type Input struct {
	mu       sync.Mutex
	Err      error
	acquired []*Capture
}

func (in *Input) Acquire(context.Context) (core.CaptureStream, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.Err != nil {
		return nil, in.Err
	}
	c := &Capture{}
	in.acquired = append(in.acquired, c)
	return c, nil
}

// Open returns the number of acquired captures not yet closed.
func (in *Input) Open() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	n := 0
	for _, c := range in.acquired {
		if !c.Closed() {
			n++
		}
	}
	return n
}

func (in *Input) Acquired() []*Capture {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]*Capture(nil), in.acquired...)
}

// Session is a scripted MediaSession.
type Session struct {
	mu            sync.Mutex
	MicErr        error
	PublishErr    error
	DisconnectErr error

	micEnabled   bool
	micCalls     int
	published    [][]byte
	publishOpts  []core.PublishOptions
	disconnected int
	onTrack      func(core.RemoteTrack)
}

func (s *Session) SetMicrophoneEnabled(_ context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.micCalls++
	if s.MicErr != nil {
		return s.MicErr
	}
	s.micEnabled = enabled
	return nil
}

func (s *Session) PublishData(_ context.Context, data []byte, opts core.PublishOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, append([]byte(nil), data...))
	s.publishOpts = append(s.publishOpts, opts)
	return s.PublishErr
}

func (s *Session) SetPublishErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PublishErr = err
}

func (s *Session) OnTrackSubscribed(fn func(core.RemoteTrack)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTrack = fn
}

// EmitTrack simulates the media service subscribing a remote track.
func (s *Session) EmitTrack(t core.RemoteTrack) {
	s.mu.Lock()
	fn := s.onTrack
	s.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}

func (s *Session) Disconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected++
	s.micEnabled = false
	return s.DisconnectErr
}

func (s *Session) MicEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.micEnabled
}

func (s *Session) MicCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.micCalls
}

func (s *Session) Published() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.published...)
}

func (s *Session) PublishOpts() []core.PublishOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.PublishOptions(nil), s.publishOpts...)
}

func (s *Session) Disconnected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

// Connector builds Sessions configured from its template fields.
type Connector struct {
	mu            sync.Mutex
	Err           error
	MicErr        error
	PublishErr    error
	DisconnectErr error

	calls    int
	url      string
	token    string
	opts     core.ConnectOptions
	sessions []*Session
}

func (c *Connector) Connect(_ context.Context, url, token string, opts core.ConnectOptions) (core.MediaSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.url, c.token, c.opts = url, token, opts
	if c.Err != nil {
		return nil, c.Err
	}
	s := &Session{MicErr: c.MicErr, PublishErr: c.PublishErr, DisconnectErr: c.DisconnectErr}
	c.sessions = append(c.sessions, s)
	return s, nil
}

func (c *Connector) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Last returns the URL, token and options of the last Connect call.
func (c *Connector) Last() (string, string, core.ConnectOptions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url, c.token, c.opts
}

// Session returns the i-th session created.
func (c *Connector) Session(i int) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= len(c.sessions) {
		return nil
	}
	return c.sessions[i]
}

// Track is a fixed RemoteTrack.
type Track struct {
	TrackID   string
	TrackKind core.TrackKind
	Value     float64
}

func (t *Track) ID() string           { return t.TrackID }
func (t *Track) Kind() core.TrackKind { return t.TrackKind }
func (t *Track) Level() float64       { return t.Value }

// Analyser counts Attach and Detach calls.
type Analyser struct {
	mu       sync.Mutex
	attached int
	detached int
}

func (a *Analyser) Attach(core.CaptureStream) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attached++
}

func (a *Analyser) Detach() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detached++
}

func (a *Analyser) Counts() (attached, detached int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attached, a.detached
}

// Surface records everything rendered on it.
type Surface struct {
	mu             sync.Mutex
	statuses       []domain.Status
	controls       []bool
	contextVisible []bool
	levels         []domain.LevelSnapshot
	notices        []domain.Notice
}

func (s *Surface) RenderStatus(st domain.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, st)
}

func (s *Surface) SetControlsEnabled(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls = append(s.controls, v)
}

func (s *Surface) SetContextInputVisible(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contextVisible = append(s.contextVisible, v)
}

func (s *Surface) RenderLevels(l domain.LevelSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels = append(s.levels, l)
}

func (s *Surface) Notify(n domain.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
}

func (s *Surface) Statuses() []domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Status(nil), s.statuses...)
}

func (s *Surface) Controls() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.controls...)
}

func (s *Surface) ContextVisible() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.contextVisible...)
}

func (s *Surface) Levels() []domain.LevelSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.LevelSnapshot(nil), s.levels...)
}

func (s *Surface) Notices() []domain.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Notice(nil), s.notices...)
}

// ErrConnFull is returned by a Conn with Full set.
var ErrConnFull = errors.New("conn full")

// Conn is an in-memory SignalConnection.
type Conn struct {
	mu     sync.Mutex
	Full   bool
	frames [][]byte
	closed bool
}

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	if c.Full {
		return ErrConnFull
	}
	c.frames = append(c.frames, append([]byte(nil), f...))
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Conn) SetFull(full bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Full = full
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Messages decodes every frame sent so far.
func (c *Conn) Messages() []domain.UIMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.UIMessage, 0, len(c.frames))
	for _, f := range c.frames {
		var m domain.UIMessage
		if err := json.Unmarshal(f, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// Types lists the message types sent so far, skipping level frames.
func (c *Conn) Types() []string {
	var out []string
	for _, m := range c.Messages() {
		if m.Type != domain.UILevels {
			out = append(out, m.Type)
		}
	}
	return out
}
