package core

import "context"

type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// ConnectOptions tunes a join.
type ConnectOptions struct {
	// AutoSubscribe subscribes to remote tracks as soon as they are published.
	AutoSubscribe bool
	// Microphone is published once the microphone is enabled.
	Microphone CaptureStream
}

type PublishOptions struct {
	Reliable bool
}

// MediaConnector joins a remote room. It is the entry point of the media SDK.
type MediaConnector interface {
	Connect(ctx context.Context, url, token string, opts ConnectOptions) (MediaSession, error)
}

// MediaSession is a joined room.
type MediaSession interface {
	// SetMicrophoneEnabled starts or stops publishing the local microphone.
	SetMicrophoneEnabled(ctx context.Context, enabled bool) error
	// PublishData sends one message on the data channel and returns once it was handed off.
	PublishData(ctx context.Context, data []byte, opts PublishOptions) error
	// OnTrackSubscribed sets a callback for remote tracks.
	OnTrackSubscribed(func(RemoteTrack))
	// Disconnect leaves the room and releases transport resources.
	Disconnect(ctx context.Context) error
}

// RemoteTrack is a subscribed remote track.
type RemoteTrack interface {
	ID() string
	Kind() TrackKind
	// Level returns the last observed audio level in [0,1].
	Level() float64
}
