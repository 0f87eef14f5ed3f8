// Package config builds the single immutable configuration value the worker
// runs with. Values come from compiled defaults, an optional YAML overlay
// (CONFIG_FILE) and finally environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"televid/internal/pkg/errors"
	"televid/internal/worker/util"
)

// Worker loop modes.
const (
	ModeDrain  = "drain"
	ModeSingle = "single"
)

// Fade styles understood by the composition builder.
const (
	FadeSequential = "sequential"
	FadeIn         = "fade_in"
)

// Queue transports.
const (
	TransportREST  = "rest"
	TransportRedis = "redis"
)

// Config is constructed once at process start and passed by value.
type Config struct {
	WorkDir string `yaml:"work_dir"`

	Log         Log         `yaml:"log"`
	Worker      Worker      `yaml:"worker"`
	Queue       Queue       `yaml:"queue"`
	Telegram    Telegram    `yaml:"telegram"`
	Download    Download    `yaml:"download"`
	Delivery    Delivery    `yaml:"delivery"`
	Deploy      Deploy      `yaml:"deploy"`
	Storage     Storage     `yaml:"storage"`
	Status      Status      `yaml:"status"`
	Encoder     Encoder     `yaml:"encoder"`
	Composition Composition `yaml:"composition"`
	Caption     Caption     `yaml:"caption"`
}

type Log struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
	Service   string `yaml:"service"`
}

type Worker struct {
	Mode         string        `yaml:"mode"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type Queue struct {
	Transport string        `yaml:"transport"`
	Name      string        `yaml:"name"`
	RESTURL   string        `yaml:"rest_url"`
	RESTToken string        `yaml:"-"`
	RedisAddr string        `yaml:"redis_addr"`
	Timeout   time.Duration `yaml:"timeout"`
}

type Telegram struct {
	APIBase  string `yaml:"api_base"`
	BotToken string `yaml:"-"`
}

type Download struct {
	Timeout     time.Duration `yaml:"timeout"`
	ChunkSize   int           `yaml:"chunk_size"`
	BearerToken string        `yaml:"-"`
}

type Delivery struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type Deploy struct {
	Endpoint  string        `yaml:"endpoint"`
	Token     string        `yaml:"-"`
	ServiceID string        `yaml:"service_id"`
	Timeout   time.Duration `yaml:"timeout"`
}

type Storage struct {
	// Provider is "", "localfs" or "gdrive". Empty disables storage:// inputs
	// and output archiving.
	Provider       string `yaml:"provider"`
	LocalRoot      string `yaml:"local_root"`
	ArchiveOutputs bool   `yaml:"archive_outputs"`

	GDriveClientID     string `yaml:"-"`
	GDriveClientSecret string `yaml:"-"`
	GDriveRefreshToken string `yaml:"-"`
	GDriveFolderID     string `yaml:"gdrive_folder_id"`
}

type Status struct {
	// Addr enables the status server when non-empty, e.g. ":8080".
	Addr string `yaml:"addr"`
}

type Encoder struct {
	FFmpegPath     string        `yaml:"ffmpeg_path"`
	FFprobePath    string        `yaml:"ffprobe_path"`
	ComposeTimeout time.Duration `yaml:"compose_timeout"`
	FrameTimeout   time.Duration `yaml:"frame_timeout"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
}

type Composition struct {
	Width           int     `yaml:"width"`
	Height          int     `yaml:"height"`
	FPS             int     `yaml:"fps"`
	BackgroundColor string  `yaml:"background_color"`
	ImageDuration   float64 `yaml:"image_duration"`
	MediaFade       float64 `yaml:"media_fade"`
	CaptionFade     float64 `yaml:"caption_fade"`
	MusicFadeOut    float64 `yaml:"music_fade_out"`
	MediaYOffset    int     `yaml:"media_y_offset"`
	FadeStyle       string  `yaml:"fade_style"`

	VideoCodec   string `yaml:"video_codec"`
	Preset       string `yaml:"preset"`
	Tune         string `yaml:"tune"`
	AudioCodec   string `yaml:"audio_codec"`
	AudioBitrate string `yaml:"audio_bitrate"`
	PixelFormat  string `yaml:"pixel_format"`
}

type Caption struct {
	FontPath        string  `yaml:"font_path"`
	FontSize        float64 `yaml:"font_size"`
	LineSpacing     int     `yaml:"line_spacing"`
	WrapWidth       int     `yaml:"wrap_width"`
	TopPaddingLines int     `yaml:"top_padding_lines"`
	StrokeWidth     int     `yaml:"stroke_width"`
	TextColor       string  `yaml:"text_color"`
	OutlineColor    string  `yaml:"outline_color"`
	ShadowColor     string  `yaml:"shadow_color"`
	ShadowOffsetX   int     `yaml:"shadow_offset_x"`
	ShadowOffsetY   int     `yaml:"shadow_offset_y"`
	BlurRadius      int     `yaml:"blur_radius"`
}

// Load resolves defaults, the optional YAML file named by CONFIG_FILE and
// environment overrides, then validates the result.
func Load() (Config, error) {
	cfg := Defaults()

	if path := util.Env("CONFIG_FILE", ""); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "config.load", "read config file")
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "config.load", "parse config file")
	}
	return nil
}

func (c *Config) applyEnv() {
	c.WorkDir = util.Env("WORK_DIR", c.WorkDir)

	c.Log.Level = util.Env("LOG_LEVEL", c.Log.Level)
	c.Log.Format = util.Env("LOG_FORMAT", c.Log.Format)
	c.Log.AddSource = util.BoolEnv("LOG_SOURCE", c.Log.AddSource)
	c.Log.Service = util.Env("SERVICE_NAME", c.Log.Service)

	c.Worker.Mode = util.Env("WORKER_MODE", c.Worker.Mode)
	c.Worker.IdleTimeout = util.DurationEnv("IDLE_TIMEOUT", c.Worker.IdleTimeout)
	c.Worker.PollInterval = util.DurationEnv("POLL_INTERVAL", c.Worker.PollInterval)

	c.Queue.Transport = util.Env("QUEUE_TRANSPORT", c.Queue.Transport)
	c.Queue.Name = util.Env("JOB_QUEUE_NAME", c.Queue.Name)
	c.Queue.RESTURL = strings.TrimRight(util.Env("UPSTASH_REDIS_REST_URL", c.Queue.RESTURL), "/")
	c.Queue.RESTToken = util.Env("UPSTASH_REDIS_REST_TOKEN", c.Queue.RESTToken)
	c.Queue.RedisAddr = util.Env("REDIS_ADDR", c.Queue.RedisAddr)

	c.Telegram.APIBase = strings.TrimRight(util.Env("TELEGRAM_API_BASE", c.Telegram.APIBase), "/")
	c.Telegram.BotToken = util.Env("BOT_TOKEN", c.Telegram.BotToken)

	c.Download.BearerToken = util.Env("MEDIA_AUTH_TOKEN", c.Download.BearerToken)

	if base := util.Env("WORKER_PUBLIC_URL", ""); base != "" {
		c.Delivery.URL = strings.TrimRight(base, "/") + "/submit-result"
	}
	c.Delivery.URL = util.Env("DELIVERY_URL", c.Delivery.URL)

	c.Deploy.Endpoint = util.Env("RAILWAY_GRAPHQL_URL", c.Deploy.Endpoint)
	c.Deploy.Token = util.Env("RAILWAY_API_TOKEN", c.Deploy.Token)
	c.Deploy.ServiceID = util.Env("RAILWAY_SERVICE_ID", c.Deploy.ServiceID)

	c.Storage.Provider = util.Env("STORAGE_PROVIDER", c.Storage.Provider)
	c.Storage.LocalRoot = util.Env("STORAGE_LOCAL_ROOT", c.Storage.LocalRoot)
	c.Storage.ArchiveOutputs = util.BoolEnv("ARCHIVE_OUTPUTS", c.Storage.ArchiveOutputs)
	c.Storage.GDriveClientID = util.Env("GDRIVE_CLIENT_ID", c.Storage.GDriveClientID)
	c.Storage.GDriveClientSecret = util.Env("GDRIVE_CLIENT_SECRET", c.Storage.GDriveClientSecret)
	c.Storage.GDriveRefreshToken = util.Env("GDRIVE_REFRESH_TOKEN", c.Storage.GDriveRefreshToken)
	c.Storage.GDriveFolderID = util.Env("GDRIVE_FOLDER_ID", c.Storage.GDriveFolderID)

	c.Status.Addr = util.Env("STATUS_ADDR", c.Status.Addr)
	if port := util.Env("PORT", ""); port != "" && c.Status.Addr == "" {
		c.Status.Addr = ":" + port
	}

	c.Encoder.FFmpegPath = util.Env("FFMPEG_PATH", c.Encoder.FFmpegPath)
	c.Encoder.FFprobePath = util.Env("FFPROBE_PATH", c.Encoder.FFprobePath)
	c.Encoder.ComposeTimeout = util.DurationEnv("COMPOSE_TIMEOUT", c.Encoder.ComposeTimeout)

	c.Composition.FadeStyle = util.Env("FADE_STYLE", c.Composition.FadeStyle)

	c.Caption.FontPath = util.Env("CAPTION_FONT_PATH", c.Caption.FontPath)
}

// Validate rejects values no component can work with.
func (c Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.WorkDir != "", "work_dir is required")
	check(c.Worker.Mode == ModeDrain || c.Worker.Mode == ModeSingle, "worker.mode must be %q or %q, got %q", ModeDrain, ModeSingle, c.Worker.Mode)
	check(c.Worker.IdleTimeout > 0, "worker.idle_timeout must be positive")
	check(c.Worker.PollInterval > 0, "worker.poll_interval must be positive")

	switch c.Queue.Transport {
	case TransportREST:
		check(c.Queue.RESTURL != "", "UPSTASH_REDIS_REST_URL is required for the rest transport")
	case TransportRedis:
		check(c.Queue.RedisAddr != "", "REDIS_ADDR is required for the redis transport")
	default:
		check(false, "queue.transport must be %q or %q, got %q", TransportREST, TransportRedis, c.Queue.Transport)
	}
	check(c.Queue.Name != "", "queue.name is required")
	check(c.Delivery.URL != "", "WORKER_PUBLIC_URL or DELIVERY_URL is required")

	check(c.Composition.Width > 0 && c.Composition.Height > 0, "composition size must be positive")
	check(c.Composition.Width%2 == 0 && c.Composition.Height%2 == 0, "composition size must be even for yuv420p")
	check(c.Composition.FPS > 0, "composition.fps must be positive")
	check(c.Composition.ImageDuration > 0, "composition.image_duration must be positive")
	check(c.Composition.MediaFade > 0, "composition.media_fade must be positive")
	check(c.Composition.CaptionFade > 0, "composition.caption_fade must be positive")
	check(c.Composition.MusicFadeOut >= 0, "composition.music_fade_out must not be negative")
	check(c.Composition.FadeStyle == FadeSequential || c.Composition.FadeStyle == FadeIn,
		"composition.fade_style must be %q or %q, got %q", FadeSequential, FadeIn, c.Composition.FadeStyle)

	check(c.Caption.FontPath != "", "caption.font_path is required")
	check(c.Caption.FontSize > 0, "caption.font_size must be positive")
	check(c.Caption.WrapWidth > 0, "caption.wrap_width must be positive")
	check(c.Caption.TopPaddingLines >= 0, "caption.top_padding_lines must not be negative")
	check(c.Caption.StrokeWidth >= 0, "caption.stroke_width must not be negative")
	check(c.Caption.BlurRadius >= 0, "caption.blur_radius must not be negative")

	check(c.Encoder.ComposeTimeout > 0 && c.Encoder.FrameTimeout > 0 && c.Encoder.ProbeTimeout > 0,
		"encoder timeouts must be positive")

	switch c.Storage.Provider {
	case "":
		check(!c.Storage.ArchiveOutputs, "archive_outputs needs a storage provider")
	case "localfs":
		check(c.Storage.LocalRoot != "", "STORAGE_LOCAL_ROOT is required for localfs")
	case "gdrive":
		check(c.Storage.GDriveClientID != "" && c.Storage.GDriveClientSecret != "" && c.Storage.GDriveRefreshToken != "",
			"GDRIVE_CLIENT_ID, GDRIVE_CLIENT_SECRET and GDRIVE_REFRESH_TOKEN are required for gdrive")
	default:
		check(false, "unknown storage provider: %s", c.Storage.Provider)
	}

	if len(problems) > 0 {
		return errors.Validation("invalid configuration: " + strings.Join(problems, "; ")).
			WithField("problems", problems)
	}
	return nil
}
