package config

import "time"

// Defaults returns the baseline configuration. Secrets are never defaulted.
func Defaults() Config {
	return Config{
		WorkDir: "work",
		Log: Log{
			Level:   "info",
			Format:  "json",
			Service: "televid-worker",
		},
		Worker: Worker{
			Mode:         ModeDrain,
			IdleTimeout:  60 * time.Second,
			PollInterval: 3 * time.Second,
		},
		Queue: Queue{
			Transport: TransportREST,
			Name:      "job_queue",
			Timeout:   5 * time.Second,
		},
		Telegram: Telegram{
			APIBase: "https://api.telegram.org",
		},
		Download: Download{
			Timeout:   30 * time.Second,
			ChunkSize: 8192,
		},
		Delivery: Delivery{
			Timeout: 60 * time.Second,
		},
		Deploy: Deploy{
			Endpoint: "https://backboard.railway.app/graphql/v2",
			Timeout:  15 * time.Second,
		},
		Encoder: Encoder{
			FFmpegPath:     "ffmpeg",
			FFprobePath:    "ffprobe",
			ComposeTimeout: 300 * time.Second,
			FrameTimeout:   30 * time.Second,
			ProbeTimeout:   30 * time.Second,
		},
		Composition: Composition{
			Width:           1080,
			Height:          1920,
			FPS:             30,
			BackgroundColor: "black",
			ImageDuration:   12,
			MediaFade:       3,
			CaptionFade:     11,
			MusicFadeOut:    3,
			MediaYOffset:    0,
			FadeStyle:       FadeSequential,
			VideoCodec:      "libx264",
			Preset:          "ultrafast",
			Tune:            "zerolatency",
			AudioCodec:      "aac",
			AudioBitrate:    "192k",
			PixelFormat:     "yuv420p",
		},
		Caption: Caption{
			FontPath:        "ZalandoSans-Medium.ttf",
			FontSize:        40,
			LineSpacing:     5,
			WrapWidth:       30,
			TopPaddingLines: 0,
			StrokeWidth:     2,
			TextColor:       "#FFFFFF",
			OutlineColor:    "#000000",
			ShadowColor:     "#000000",
			BlurRadius:      20,
		},
	}
}
