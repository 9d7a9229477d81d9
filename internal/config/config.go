package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/VoiceAgent/internal/adapters/audio"
	"github.com/dkeye/VoiceAgent/internal/adapters/rtc"
	"github.com/dkeye/VoiceAgent/internal/app/visual"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "VOICEAGENT"

type TokenConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MediaConfig struct {
	URL           string `mapstructure:"url"`
	AutoSubscribe bool   `mapstructure:"auto_subscribe"`
	ContextFlow   bool   `mapstructure:"context_flow"`

	rtc.Config `mapstructure:",squash"`
}

type RateLimitConfig struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
	Burst    int           `mapstructure:"burst"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	Token     TokenConfig     `mapstructure:"token"`
	Media     MediaConfig     `mapstructure:"media"`
	Audio     audio.Config    `mapstructure:"audio"`
	Visual    visual.Config   `mapstructure:"visual"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "voiceagent-dev-secret")
	v.SetDefault("log_level", "info")

	v.SetDefault("token.url", "http://localhost:8000/api/token")
	v.SetDefault("token.timeout", "10s")

	v.SetDefault("media.url", "ws://localhost:7880")
	v.SetDefault("media.auto_subscribe", true)
	v.SetDefault("media.context_flow", true)
	v.SetDefault("media.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("media.dial_timeout", "10s")
	v.SetDefault("media.connect_timeout", "20s")
	v.SetDefault("media.record_dir", "")

	v.SetDefault("audio.driver", audio.DriverFFmpeg)
	v.SetDefault("audio.device", "")
	v.SetDefault("audio.path", "")
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.tone_hz", 440.0)
	v.SetDefault("audio.ffmpeg", "ffmpeg")

	v.SetDefault("visual.live_rate", 60)
	v.SetDefault("visual.idle_rate", 4)

	v.SetDefault("rate_limit.limit", 5)
	v.SetDefault("rate_limit.interval", "10s")
	v.SetDefault("rate_limit.burst", 5)
}

// DefaultFile is config/config.<CONFIG_ENV>.yaml, "dev" when unset.
func DefaultFile() string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return fmt.Sprintf("config/config.%s.yaml", env)
}

func Load() (*Config, error) {
	return LoadFrom(DefaultFile(), nil)
}

// LoadFrom reads fileName over the defaults. Environment variables
// (VOICEAGENT_MEDIA_URL, ...) and then flags, when given, take precedence.
// A missing file is not an error.
func LoadFrom(fileName string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if fileName != "" {
		v.SetConfigFile(fileName)
		if err := v.ReadInConfig(); err != nil {
			log.Warn().Str("module", "config").Str("file", fileName).Err(err).Msg("config file not loaded, using defaults")
		} else {
			log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Str("audio", cfg.Audio.Driver).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("invalid mode %q", c.Mode)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Token.URL == "" {
		return fmt.Errorf("token.url is required")
	}
	if c.Media.URL == "" {
		return fmt.Errorf("media.url is required")
	}
	if c.RateLimit.Limit <= 0 || c.RateLimit.Interval <= 0 {
		return fmt.Errorf("invalid rate_limit %d per %s", c.RateLimit.Limit, c.RateLimit.Interval)
	}
	return nil
}
