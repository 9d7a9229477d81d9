package rtc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

const recorderSink = "recorder"

// newRecorder opens an Ogg file for an Opus track under dir.
// Other codecs cannot be muxed into Ogg and yield (nil, "", nil).
func newRecorder(dir string, codec webrtc.RTPCodecParameters) (*oggwriter.OggWriter, string, error) {
	if !strings.EqualFold(codec.MimeType, webrtc.MimeTypeOpus) {
		return nil, "", nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, "", fmt.Errorf("create recordings dir: %w", err)
	}
	name := fmt.Sprintf("agent-%s-%s.ogg", time.Now().UTC().Format("20060102T150405"), uuid.NewString()[:8])
	path := filepath.Join(dir, name)
	channels := codec.Channels
	if channels == 0 {
		channels = 2
	}
	w, err := oggwriter.New(path, codec.ClockRate, channels)
	if err != nil {
		return nil, "", fmt.Errorf("open recording: %w", err)
	}
	return w, path, nil
}
