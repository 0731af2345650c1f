// Package config provides configuration loading from YAML files and the environment.
package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Discord    DiscordConfig    `yaml:"discord"`
	Spotify    SpotifyConfig    `yaml:"spotify"`
	Session    SessionConfig    `yaml:"session"`
	Playlist   PlaylistConfig   `yaml:"playlist"`
	Resolver   ResolverConfig   `yaml:"resolver"`
	Audio      AudioConfig      `yaml:"audio"`
	Soundboard SoundboardConfig `yaml:"soundboard"`
	YtDlp      YtDlpConfig      `yaml:"ytdlp"`
}

// DiscordConfig represents Discord bot configuration.
type DiscordConfig struct {
	Token         string `yaml:"token" env:"DISCORD_TOKEN" validate:"required"`
	GuildID       string `yaml:"guild_id" env:"DISCORD_GUILD_ID"` // Register commands for one guild only
	DeleteHistory int    `yaml:"delete_history" default:"50" validate:"gte=1,lte=100"`
}

// SpotifyConfig represents Spotify API configuration.
// Spotify links are unsupported when the credentials are empty.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" env:"SPOTIFY_CLIENT_ID" validate:"required_with=ClientSecret"`
	ClientSecret string `yaml:"client_secret" env:"SPOTIFY_CLIENT_SECRET" validate:"required_with=ClientID"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
}

// Enabled reports whether Spotify credentials are configured.
func (c SpotifyConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// SessionConfig represents per-guild session configuration.
type SessionConfig struct {
	IdleTimeoutSec       int `yaml:"idle_timeout_sec" default:"900" validate:"gte=1"`
	IdleCheckIntervalSec int `yaml:"idle_check_interval_sec" default:"60" validate:"gte=1"`
}

// IdleTimeout returns the idle timeout.
func (c SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSec) * time.Second
}

// IdleCheckInterval returns the idle monitor tick interval.
func (c SessionConfig) IdleCheckInterval() time.Duration {
	return time.Duration(c.IdleCheckIntervalSec) * time.Second
}

// PlaylistConfig represents playlist expansion configuration.
type PlaylistConfig struct {
	MaxItems int `yaml:"max_items" default:"200" validate:"gte=1,lte=1000"`
}

// ResolverConfig represents track resolution configuration.
// A zero rate_per_second is replaced by the default; set -1 to disable the limiter.
type ResolverConfig struct {
	MetadataTimeoutSec int     `yaml:"metadata_timeout_sec" default:"30" validate:"gte=1,lte=300"`
	RatePerSecond      float64 `yaml:"rate_per_second" default:"2" validate:"gte=-1"`
	Burst              int     `yaml:"burst" default:"4" validate:"gte=1"`
	MaxRetries         int     `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
}

// RateLimited reports whether resolver lookups are rate limited.
func (c ResolverConfig) RateLimited() bool {
	return c.RatePerSecond > 0
}

// MetadataTimeout returns the per-lookup timeout.
func (c ResolverConfig) MetadataTimeout() time.Duration {
	return time.Duration(c.MetadataTimeoutSec) * time.Second
}

// AudioConfig represents voice encoding configuration.
type AudioConfig struct {
	Bitrate        int `yaml:"bitrate" default:"96" validate:"gte=8,lte=512"` // kbps
	Volume         int `yaml:"volume" default:"256" validate:"gte=0,lte=512"` // 256 is unity
	BufferedFrames int `yaml:"buffered_frames" default:"100" validate:"gte=1,lte=1000"`
}

// SoundboardConfig represents soundboard configuration.
type SoundboardConfig struct {
	Dir        string `yaml:"dir" env:"SOUNDBOARD_DIR" default:"./audio/"`
	PerMessage int    `yaml:"per_message" default:"25" validate:"gte=1,lte=25"` // Discord allows 25 buttons per message
}

// YtDlpConfig represents yt-dlp configuration.
type YtDlpConfig struct {
	Install bool   `yaml:"install"` // Download yt-dlp on startup
	Proxy   string `yaml:"proxy" env:"YTDLP_PROXY"`
}

// Load loads configuration from a YAML file.
// A missing file is not an error. Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, errors.Wrap(err, "failed to read config file")
	}

	// Override with environment variables
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse environment")
	}

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied and no credentials.
func Default() *Config {
	var cfg Config
	_ = defaults.Set(&cfg)
	return &cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}
