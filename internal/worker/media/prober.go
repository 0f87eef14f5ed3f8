// Package media reports the dimensions and duration of an acquired asset.
package media

import (
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/webp"

	"televid/internal/pkg/errors"
	"televid/internal/worker/encoder"
)

// Asset is an acquired, probed media file.
type Asset struct {
	Path     string
	IsImage  bool
	Width    int
	Height   int
	Duration float64
	HasAudio bool
}

// StreamProber is the slice of the encoder the prober needs.
type StreamProber interface {
	Probe(ctx context.Context, path string) (*encoder.StreamInfo, error)
}

type Prober struct {
	streams       StreamProber
	imageDuration float64
}

func NewProber(streams StreamProber, imageDuration float64) *Prober {
	return &Prober{streams: streams, imageDuration: imageDuration}
}

// ProbeImage reads the stored frame size from the image header. EXIF
// orientation is ignored because the encoder scales the stored frame. The
// duration is the configured still-image duration.
func (p *Prober) ProbeImage(path string) (*Asset, error) {
	const op = "media.probe_image"

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeProbe, op, "open image").WithField("path", path)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeProbe, op, "decode image header").
			WithField("path", path)
	}
	return p.check(&Asset{
		Path:     path,
		IsImage:  true,
		Width:    cfg.Width,
		Height:   cfg.Height,
		Duration: p.imageDuration,
	})
}

func (p *Prober) ProbeVideo(ctx context.Context, path string) (*Asset, error) {
	info, err := p.streams.Probe(ctx, path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeProbe, "media.probe_video", "ffprobe failed").
			WithField("path", path)
	}
	return p.check(&Asset{
		Path:     path,
		Width:    info.Width,
		Height:   info.Height,
		Duration: info.Duration,
		HasAudio: info.HasAudio,
	})
}

func (p *Prober) check(a *Asset) (*Asset, error) {
	if a.Width <= 0 || a.Height <= 0 || a.Duration <= 0 {
		return nil, errors.Newf(errors.CodeProbe, "unusable media: %dx%d, %.3fs", a.Width, a.Height, a.Duration).
			WithField("path", a.Path)
	}
	return a, nil
}
