package core

// SessionID identifies a client (browser cookie or terminal).
type SessionID string

// Frame is a raw serialized message for a UI transport.
type Frame []byte

// SignalConnection abstracts for a UI messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
