package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/VoiceAgent/internal/adapters/audio"
	"github.com/dkeye/VoiceAgent/internal/adapters/rtc"
	"github.com/dkeye/VoiceAgent/internal/adapters/term"
	"github.com/dkeye/VoiceAgent/internal/adapters/token"
	"github.com/dkeye/VoiceAgent/internal/app/session"
	"github.com/dkeye/VoiceAgent/internal/app/visual"
	"github.com/dkeye/VoiceAgent/internal/config"
	"github.com/dkeye/VoiceAgent/internal/core"
)

// remoteReporter prints subscribed agent tracks.
type remoteReporter struct{ surface *term.Surface }

func (r remoteReporter) OnStateChanged(session.StateChange) {}

func (r remoteReporter) OnRemoteTrack(t core.RemoteTrack) {
	r.surface.Printf("agent track %s subscribed", t.ID())
}

func main() {
	flags := pflag.NewFlagSet("voicectl", pflag.ExitOnError)
	file := flags.String("config", config.DefaultFile(), "config file")
	meter := flags.Bool("meter", true, "draw a live level meter")
	flags.String("token.url", "", "token endpoint")
	flags.String("media.url", "", "media service url")
	flags.String("audio.driver", "", "capture driver: ffmpeg, file or tone")
	flags.String("audio.device", "", "capture device")
	flags.String("audio.path", "", "raw s16le file for the file driver")
	flags.String("media.record_dir", "", "record agent audio to this directory")
	flags.Bool("media.context_flow", true, "ask for a job description after joining")
	flags.String("log_level", "", "log level (default from config)")
	_ = flags.Parse(os.Args[1:])

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	cfg, err := config.LoadFrom(*file, flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	connector, err := rtc.NewConnector(cfg.Media.Config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up media connector")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	surface := term.New(os.Stdout, *meter)
	analyser := visual.NewAnalyser()
	ctl := session.NewController(
		token.New(cfg.Token.URL, cfg.Token.Timeout),
		connector,
		audio.NewInput(cfg.Audio),
		analyser,
		session.Options{
			ID:            "terminal",
			MediaURL:      cfg.Media.URL,
			AutoSubscribe: cfg.Media.AutoSubscribe,
			ContextFlow:   cfg.Media.ContextFlow,
		},
	)
	status := session.NewStatusProjector(surface, session.DefaultLabels())
	levels := visual.NewProjector(analyser, surface, visual.Config{LiveRate: 15, IdleRate: 1})
	ctl.Subscribe(status)
	ctl.Subscribe(levels)
	ctl.Subscribe(remoteReporter{surface: surface})

	go levels.Run(ctx)

	fmt.Println("voicectl: type help for commands")
	status.Sync(ctl.Snapshot())
	if err := term.NewConsole(ctl, surface).Run(ctx, os.Stdin); err != nil {
		log.Error().Err(err).Msg("read commands")
	}
	if err := ctl.Close(context.Background()); err != nil {
		log.Error().Err(err).Msg("close session")
	}
}
