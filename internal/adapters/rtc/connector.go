package rtc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Config tunes the media connector.
type Config struct {
	ICEServers     []string      `mapstructure:"ice_servers"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// RecordDir enables Ogg recording of remote Opus tracks.
	RecordDir string `mapstructure:"record_dir"`
}

// Connector joins sessions on the media service. It implements core.MediaConnector.
type Connector struct {
	cfg    Config
	api    *webrtc.API
	rtc    webrtc.Configuration
	dialer *websocket.Dialer
}

var _ core.MediaConnector = (*Connector)(nil)

func NewConnector(cfg Config) (*Connector, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 20 * time.Second
	}
	api, err := newAPI()
	if err != nil {
		return nil, err
	}
	rtcCfg := DefaultWebRTCConfig()
	if len(cfg.ICEServers) > 0 {
		rtcCfg.ICEServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}
	return &Connector{
		cfg: cfg,
		api: api,
		rtc: rtcCfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.DialTimeout,
		},
	}, nil
}

// signalURL appends the access token to the media service URL.
func signalURL(raw, token string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse media url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported media url scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect dials the signalling socket and negotiates the peer connection.
// It returns once the peer connection is up.
func (c *Connector) Connect(ctx context.Context, rawURL, token string, opts core.ConnectOptions) (core.MediaSession, error) {
	target, err := signalURL(rawURL, token)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, resp, err := c.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial media service: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("dial media service: %w", err)
	}

	logger := log.With().Str("module", "adapters.rtc").Str("media_url", rawURL).Logger()
	p, err := newPeer(c.api, c.rtc, logger)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	sig := newSignalClient(ws, logger, func(ci webrtc.ICECandidateInit) {
		if err := p.AddICECandidate(ci); err != nil {
			logger.Error().Err(err).Msg("add ice candidate")
		}
	})
	sess := newSession(p, sig, opts, c.cfg.RecordDir, logger)

	fail := func(err error) (core.MediaSession, error) {
		_ = sess.Disconnect(context.Background())
		return nil, err
	}

	p.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		if err := sig.sendJSON(candidateFromInit(ci)); err != nil {
			logger.Warn().Err(err).Msg("send candidate")
		}
	})
	offer, err := p.createOffer()
	if err != nil {
		return fail(err)
	}
	if err := sig.sendJSON(sdpMessage{Type: "offer", SDP: offer.SDP}); err != nil {
		return fail(fmt.Errorf("send offer: %w", err))
	}
	answer, err := sig.awaitAnswer(ctx)
	if err != nil {
		return fail(fmt.Errorf("await answer: %w", err))
	}
	if err := p.applyAnswer(answer); err != nil {
		return fail(err)
	}
	if err := p.waitConnected(ctx); err != nil {
		return fail(fmt.Errorf("connect peer: %w", err))
	}
	logger.Info().Bool("auto_subscribe", opts.AutoSubscribe).Msg("joined media session")
	return sess, nil
}
