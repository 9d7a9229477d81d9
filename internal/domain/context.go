// Package domain contains entity without logic, just meta-data
package domain

import (
	"bytes"
	"encoding/json"
	"errors"
)

const (
	// ContextMessageType tags context payloads for the remote agent.
	ContextMessageType = "job_description"
	MaxContextLen      = 8 << 10
)

var (
	ErrContextTooLong = errors.New("context too long")
	ErrContextEmpty   = errors.New("context empty")
)

// ContextMessage is the one-shot payload sent over the reliable data channel.
// Its encoding is consumed verbatim by the remote agent.
type ContextMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// NewContextMessage validates user text and builds the payload. The text is
// carried as given; only the empty string is rejected.
func NewContextMessage(text string) (*ContextMessage, error) {
	if len(text) == 0 {
		return nil, ErrContextEmpty
	}
	if len(text) > MaxContextLen {
		return nil, ErrContextTooLong
	}
	return &ContextMessage{Type: ContextMessageType, Content: text}, nil
}

// Encode returns the UTF-8 JSON wire form without HTML escaping or a trailing newline.
func (m *ContextMessage) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
