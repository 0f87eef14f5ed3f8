package composition

import (
	"fmt"
	"math"

	"televid/internal/config"
	"televid/internal/pkg/errors"
)

// Input indices in every plan.
const (
	canvasInput  = 0
	mediaInput   = 1
	captionInput = 2
	musicInput   = 3
)

// Request is everything the builder needs for one job.
type Request struct {
	MediaPath     string
	MediaIsImage  bool
	MediaWidth    int
	MediaHeight   int
	MediaHasAudio bool
	// Duration is the output duration in seconds.
	Duration float64

	CaptionPath string
	// MusicPath replaces any source audio when set.
	MusicPath string

	ApplyFade  bool
	OutputPath string
}

type Builder struct {
	cfg config.Composition
}

func NewBuilder(cfg config.Composition) *Builder {
	return &Builder{cfg: cfg}
}

// ScaledHeight is the media height after scaling to canvasWidth, truncated.
func ScaledHeight(width, height, canvasWidth int) int {
	return int(float64(height) * (float64(canvasWidth) / float64(width)))
}

// MediaY is the top edge that vertically centers a layer of scaledHeight,
// shifted by offset.
func MediaY(canvasHeight, scaledHeight, offset int) int {
	return int(float64(canvasHeight)/2-float64(scaledHeight)/2) + offset
}

// Build produces the plan for req using the configured fade style.
func (b *Builder) Build(req Request) (*Plan, error) {
	const op = "composition.build"

	if req.MediaWidth <= 0 || req.MediaHeight <= 0 {
		return nil, errors.Newf(errors.CodeEncode, "invalid media dimensions %dx%d", req.MediaWidth, req.MediaHeight).
			WithField("op", op)
	}
	if req.Duration <= 0 || math.IsNaN(req.Duration) || math.IsInf(req.Duration, 0) {
		return nil, errors.Newf(errors.CodeEncode, "invalid duration %v", req.Duration).WithField("op", op)
	}

	p := &Plan{
		Inputs:     b.inputs(req),
		VideoLabel: "final_v",
		Duration:   req.Duration,
		OutputPath: req.OutputPath,
		Encoding: Encoding{
			Width:        b.cfg.Width,
			Height:       b.cfg.Height,
			FPS:          b.cfg.FPS,
			VideoCodec:   b.cfg.VideoCodec,
			Preset:       b.cfg.Preset,
			Tune:         b.cfg.Tune,
			AudioCodec:   b.cfg.AudioCodec,
			AudioBitrate: b.cfg.AudioBitrate,
			PixelFormat:  b.cfg.PixelFormat,
		},
	}

	y := MediaY(b.cfg.Height, ScaledHeight(req.MediaWidth, req.MediaHeight, b.cfg.Width), b.cfg.MediaYOffset)

	switch b.cfg.FadeStyle {
	case config.FadeIn:
		p.Chains = b.fadeInChains(req, y)
	case config.FadeSequential, "":
		p.Chains = b.sequentialChains(req, y)
	default:
		return nil, errors.Newf(errors.CodeValidation, "unknown fade style: %s", b.cfg.FadeStyle)
	}

	if audio, ok := b.audioChain(req); ok {
		p.Chains = append(p.Chains, audio)
		p.AudioLabel = audio.Out
	}
	return p, nil
}

func (b *Builder) inputs(req Request) []Input {
	d := req.Duration
	ins := []Input{
		{Format: "lavfi", Source: fmt.Sprintf("color=c=%s:s=%s:d=%s", b.cfg.BackgroundColor, b.size(), formatSeconds(d))},
		{Loop: req.MediaIsImage, Duration: d, Source: req.MediaPath},
		{Loop: true, Duration: d, Source: req.CaptionPath},
	}
	if req.MusicPath != "" {
		ins = append(ins, Input{Source: req.MusicPath})
	}
	return ins
}

func (b *Builder) size() string {
	return fmt.Sprintf("%dx%d", b.cfg.Width, b.cfg.Height)
}

func (b *Builder) blackLayer(d, fade float64, out string) Chain {
	return Chain{
		Filters: []string{
			fmt.Sprintf("color=c=black:s=%s:d=%s", b.size(), formatSeconds(d)),
			"format=rgba",
			fmt.Sprintf("fade=t=out:st=0:d=%s:alpha=1", formatSeconds(fade)),
		},
		Out: out,
	}
}

// sequentialChains: media on canvas, black un-mask for the media, caption,
// then a second black un-mask over everything.
func (b *Builder) sequentialChains(req Request, y int) []Chain {
	chains := []Chain{
		{
			In:      []string{stream(mediaInput, "v")},
			Filters: []string{fmt.Sprintf("scale=%d:-1", b.cfg.Width), "setpts=PTS-STARTPTS"},
			Out:     "scaled_media",
		},
		{
			In:      []string{stream(canvasInput, "v"), "scaled_media"},
			Filters: []string{fmt.Sprintf("overlay=(W-w)/2:%d", y)},
			Out:     "base_scene",
		},
	}

	captionOverlay := "overlay=(W-w)/2:(H-h)/2"
	if !req.ApplyFade {
		return append(chains, Chain{
			In:      []string{"base_scene", stream(captionInput, "v")},
			Filters: []string{captionOverlay},
			Out:     "final_v",
		})
	}

	return append(chains,
		b.blackLayer(req.Duration, b.cfg.MediaFade, "media_fade_layer"),
		Chain{In: []string{"base_scene", "media_fade_layer"}, Filters: []string{"overlay=0:0"}, Out: "scene_after_media_fade"},
		Chain{In: []string{"scene_after_media_fade", stream(captionInput, "v")}, Filters: []string{captionOverlay}, Out: "scene_with_text"},
		b.blackLayer(req.Duration, b.cfg.CaptionFade, "caption_fade_layer"),
		Chain{In: []string{"scene_with_text", "caption_fade_layer"}, Filters: []string{"overlay=0:0"}, Out: "final_v"},
	)
}

// fadeInChains: media and caption each ramp their own alpha in and are
// composited onto the canvas in one pass.
func (b *Builder) fadeInChains(req Request, y int) []Chain {
	media := []string{fmt.Sprintf("scale=%d:-1", b.cfg.Width), "setpts=PTS-STARTPTS"}
	caption := []string{"format=rgba"}
	if req.ApplyFade {
		media = append(media, "format=rgba", fmt.Sprintf("fade=t=in:st=0:d=%s:alpha=1", formatSeconds(b.cfg.MediaFade)))
		caption = append(caption, fmt.Sprintf("fade=t=in:st=0:d=%s:alpha=1", formatSeconds(b.cfg.CaptionFade)))
	}

	return []Chain{
		{In: []string{stream(mediaInput, "v")}, Filters: media, Out: "media_layer"},
		{In: []string{stream(captionInput, "v")}, Filters: caption, Out: "caption_layer"},
		{In: []string{stream(canvasInput, "v"), "media_layer"}, Filters: []string{fmt.Sprintf("overlay=(W-w)/2:%d", y)}, Out: "scene_with_media"},
		{In: []string{"scene_with_media", "caption_layer"}, Filters: []string{"overlay=(W-w)/2:(H-h)/2"}, Out: "final_v"},
	}
}

func (b *Builder) audioChain(req Request) (Chain, bool) {
	d := req.Duration
	if req.MusicPath != "" {
		fade := math.Min(b.cfg.MusicFadeOut, d)
		filters := []string{
			fmt.Sprintf("atrim=0:%s", formatSeconds(d)),
			"asetpts=PTS-STARTPTS",
		}
		if fade > 0 {
			filters = append(filters, fmt.Sprintf("afade=t=out:st=%s:d=%s", formatSeconds(math.Max(0, d-fade)), formatSeconds(fade)))
		}
		return Chain{In: []string{stream(musicInput, "a")}, Filters: filters, Out: "final_a"}, true
	}
	if !req.MediaIsImage && req.MediaHasAudio {
		return Chain{In: []string{stream(mediaInput, "a")}, Filters: []string{"asetpts=PTS-STARTPTS"}, Out: "final_a"}, true
	}
	return Chain{}, false
}

func stream(index int, kind string) string {
	return fmt.Sprintf("%d:%s", index, kind)
}
