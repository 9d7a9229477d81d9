package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

var (
	ErrSignalClosed = errors.New("signalling connection closed")
	ErrPeerFailed   = errors.New("peer connection failed")
)

// ServerError is an error message sent by the media service.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return "media service: " + e.Message }

type sdpMessage struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type candidateMessage struct {
	Type          string `json:"type"`
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
}

func candidateFromInit(ci webrtc.ICECandidateInit) candidateMessage {
	msg := candidateMessage{Type: "candidate", Candidate: ci.Candidate}
	if ci.SDPMid != nil {
		msg.SDPMid = *ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		msg.SDPMLineIndex = *ci.SDPMLineIndex
	}
	return msg
}

func (m candidateMessage) init() webrtc.ICECandidateInit {
	ci := webrtc.ICECandidateInit{Candidate: m.Candidate}
	if m.SDPMid != "" {
		mid := m.SDPMid
		ci.SDPMid = &mid
	}
	idx := m.SDPMLineIndex
	ci.SDPMLineIndex = &idx
	return ci
}

// signalClient is the client side of the JSON signalling socket.
type signalClient struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	writeMu sync.Mutex

	answers    chan string
	candidates func(webrtc.ICECandidateInit)

	closeOnce sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	err       error
}

func newSignalClient(conn *websocket.Conn, logger zerolog.Logger, onCandidate func(webrtc.ICECandidateInit)) *signalClient {
	s := &signalClient{
		conn:       conn,
		logger:     logger,
		answers:    make(chan string, 1),
		candidates: onCandidate,
		done:       make(chan struct{}),
	}
	go s.readPump()
	return s
}

func (s *signalClient) sendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

func (s *signalClient) readPump() {
	defer s.shutdown(ErrSignalClosed)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Debug().Err(err).Msg("readPump read error")
			}
			return
		}
		if err := s.handleSignal(data); err != nil {
			s.shutdown(err)
			return
		}
	}
}

func (s *signalClient) handleSignal(data []byte) error {
	var env struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Error().Err(err).Msg("bad json")
		return nil
	}

	switch env.Type {
	case "answer":
		var m sdpMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("bad answer payload: %w", err)
		}
		select {
		case s.answers <- m.SDP:
		default:
			s.logger.Warn().Msg("unexpected second answer")
		}
	case "candidate":
		var m candidateMessage
		if err := json.Unmarshal(data, &m); err != nil {
			s.logger.Error().Err(err).Msg("bad candidate payload")
			return nil
		}
		if s.candidates != nil {
			s.candidates(m.init())
		}
	case "error":
		return &ServerError{Message: env.Error}
	case "leave":
		return ErrSignalClosed
	case "pong":
	default:
		s.logger.Warn().Str("type", env.Type).Msg("unknown signal")
	}
	return nil
}

// awaitAnswer returns the remote SDP answer, or the reason the socket closed.
func (s *signalClient) awaitAnswer(ctx context.Context) (string, error) {
	select {
	case sdpText := <-s.answers:
		return sdpText, nil
	case <-s.done:
		return "", s.Err()
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *signalClient) shutdown(err error) {
	s.closeOnce.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		close(s.done)
		_ = s.conn.Close()
	})
}

// Err returns why the signalling socket closed.
func (s *signalClient) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close sends leave and closes the socket.
func (s *signalClient) Close() error {
	var err error
	select {
	case <-s.done:
	default:
		err = s.sendJSON(map[string]string{"type": "leave"})
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.writeMu.Unlock()
	}
	s.shutdown(ErrSignalClosed)
	return err
}
