package sys

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const DefaultConfigFile = "minstrel.toml"

type Config struct {
	Discord  DiscordConfig  `toml:"discord"`
	Database DatabaseConfig `toml:"database"`
	Cache    CacheConfig    `toml:"cache"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Player   PlayerConfig   `toml:"player"`
	Status   StatusConfig   `toml:"status"`
	Log      LogConfig      `toml:"log"`
}

type DiscordConfig struct {
	Token   string `toml:"token"`
	GuildID string `toml:"guild_id"`
}

type DatabaseConfig struct {
	URL string `toml:"url"`
}

type CacheConfig struct {
	Dir      string `toml:"dir"`
	AssetExt string `toml:"asset_ext"`
}

type PipelineConfig struct {
	YtdlpPath          string   `toml:"ytdlp_path"`
	FFmpegPath         string   `toml:"ffmpeg_path"`
	DownloadTimeout    Duration `toml:"download_timeout"`
	TranscodeTimeout   Duration `toml:"transcode_timeout"`
	DownloadsPerMinute int      `toml:"downloads_per_minute"`
	Bitrate            int      `toml:"bitrate"`
	Proxy              string   `toml:"proxy"`
}

type PlayerConfig struct {
	DefaultStart           int      `toml:"default_start"`
	DefaultLength          int      `toml:"default_length"`
	ClearQueueOnDisconnect bool     `toml:"clear_queue_on_disconnect"`
	SkipKeywords           []string `toml:"skip_keywords"`
}

type StatusConfig struct {
	Addr string `toml:"addr"`
	// Secret signs API tokens. Empty leaves the guild routes open.
	Secret string `toml:"secret"`
}

type LogConfig struct {
	File   bool `toml:"file"`
	Silent bool `toml:"silent"`
}

// Duration decodes TOML strings like "5m" or "90s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

var GlobalConfig *Config

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{URL: "sqlite://./data.db"},
		Cache: CacheConfig{
			Dir:      "./cache",
			AssetExt: "webm",
		},
		Pipeline: PipelineConfig{
			YtdlpPath:          "yt-dlp",
			FFmpegPath:         "ffmpeg",
			DownloadTimeout:    Duration{5 * time.Minute},
			TranscodeTimeout:   Duration{2 * time.Minute},
			DownloadsPerMinute: 12,
			Bitrate:            64000,
		},
	}
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()

	if c.Database.URL == "" {
		c.Database.URL = d.Database.URL
	}

	if c.Cache.Dir == "" {
		c.Cache.Dir = d.Cache.Dir
	}
	if c.Cache.AssetExt == "" {
		c.Cache.AssetExt = d.Cache.AssetExt
	}
	c.Cache.AssetExt = strings.TrimPrefix(c.Cache.AssetExt, ".")

	if c.Pipeline.YtdlpPath == "" {
		c.Pipeline.YtdlpPath = d.Pipeline.YtdlpPath
	}
	if c.Pipeline.FFmpegPath == "" {
		c.Pipeline.FFmpegPath = d.Pipeline.FFmpegPath
	}
	if c.Pipeline.DownloadTimeout.Duration == 0 {
		c.Pipeline.DownloadTimeout = d.Pipeline.DownloadTimeout
	}
	if c.Pipeline.TranscodeTimeout.Duration == 0 {
		c.Pipeline.TranscodeTimeout = d.Pipeline.TranscodeTimeout
	}
	if c.Pipeline.DownloadsPerMinute == 0 {
		c.Pipeline.DownloadsPerMinute = d.Pipeline.DownloadsPerMinute
	}
	if c.Pipeline.Bitrate == 0 {
		c.Pipeline.Bitrate = d.Pipeline.Bitrate
	}
}

// Validate ensures the configuration is usable for running the bot.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return errors.New(MsgConfigMissingToken)
	}

	// Snowflakes are 17 to 20 digits
	if id := c.Discord.GuildID; id != "" {
		if len(id) < 17 || len(id) > 20 {
			return fmt.Errorf("invalid guild_id %q: must be a valid Snowflake", id)
		}
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			return fmt.Errorf("invalid guild_id %q: must be numeric", id)
		}
	}

	if c.Player.DefaultStart < 0 || c.Player.DefaultLength < 0 {
		return errors.New("player default_start and default_length must not be negative")
	}
	if c.Pipeline.DownloadsPerMinute < 0 {
		return errors.New("pipeline downloads_per_minute must not be negative")
	}

	if !strings.HasPrefix(c.Database.URL, "sqlite://") &&
		!strings.HasPrefix(c.Database.URL, "postgres://") &&
		!strings.HasPrefix(c.Database.URL, "postgresql://") {
		return fmt.Errorf("unsupported database url %q: use sqlite:// or postgres://", c.Database.URL)
	}

	return nil
}

// LoadConfig reads .env, the TOML file at path (or ./minstrel.toml when path
// is empty and the file exists), applies defaults and environment overrides.
// It does not validate; callers that need a token call Validate.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	cfg := &Config{}

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	} else if explicit {
		return nil, err
	}

	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)

	if cfg.Log.Silent || cfg.Log.File {
		InitLogger(cfg.Log.Silent, cfg.Log.File)
	}

	GlobalConfig = cfg
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		cfg.Discord.Token = v
	}
	if v := os.Getenv("GUILD_ID"); v != "" {
		cfg.Discord.GuildID = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("YOUTUBE_PROXY"); v != "" {
		cfg.Pipeline.Proxy = v
	}
	if v := os.Getenv("STATUS_ADDR"); v != "" {
		cfg.Status.Addr = v
	}
	if v := os.Getenv("STATUS_SECRET"); v != "" {
		cfg.Status.Secret = v
	}
	if v, err := strconv.ParseBool(os.Getenv("SILENT")); err == nil {
		cfg.Log.Silent = v
	}
	if v, err := strconv.ParseBool(os.Getenv("CLEAR_QUEUE_ON_DISCONNECT")); err == nil {
		cfg.Player.ClearQueueOnDisconnect = v
	}
}
