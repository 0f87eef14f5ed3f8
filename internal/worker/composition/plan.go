// Package composition turns a probed media asset and a rendered caption
// into a declarative encoder plan: ordered inputs, a filter graph and fixed
// output encoding.
package composition

import (
	"strconv"
	"strings"
)

// Input is one encoder input.
type Input struct {
	// Format forces the demuxer, e.g. "lavfi" for generated sources.
	Format string
	// Loop repeats a still image for Duration seconds.
	Loop     bool
	Duration float64
	Source   string
}

func (in Input) args() []string {
	var args []string
	if in.Format != "" {
		args = append(args, "-f", in.Format)
	}
	if in.Loop {
		args = append(args, "-loop", "1", "-t", formatSeconds(in.Duration))
	}
	return append(args, "-i", in.Source)
}

// Chain is one filter chain: labeled inputs, comma-joined filters and
// labeled outputs.
type Chain struct {
	In      []string
	Filters []string
	Out     string
}

func (c Chain) String() string {
	var b strings.Builder
	for _, l := range c.In {
		b.WriteString("[" + l + "]")
	}
	b.WriteString(strings.Join(c.Filters, ","))
	if c.Out != "" {
		b.WriteString("[" + c.Out + "]")
	}
	return b.String()
}

// Encoding holds the fixed output parameters.
type Encoding struct {
	Width        int
	Height       int
	FPS          int
	VideoCodec   string
	Preset       string
	Tune         string
	AudioCodec   string
	AudioBitrate string
	PixelFormat  string
}

// Plan is the full description handed to the encoder.
type Plan struct {
	Inputs     []Input
	Chains     []Chain
	VideoLabel string
	// AudioLabel is empty for a silent output.
	AudioLabel string
	Encoding   Encoding
	Duration   float64
	OutputPath string
}

// FilterComplex joins the chains with ';'.
func (p *Plan) FilterComplex() string {
	parts := make([]string, len(p.Chains))
	for i, c := range p.Chains {
		parts[i] = c.String()
	}
	return strings.Join(parts, ";")
}

// HasAudio reports whether the plan maps an audio stream.
func (p *Plan) HasAudio() bool { return p.AudioLabel != "" }

// Args renders the plan as an ffmpeg argument list (without the binary).
func (p *Plan) Args() []string {
	args := []string{"-y"}
	for _, in := range p.Inputs {
		args = append(args, in.args()...)
	}

	args = append(args, "-filter_complex", p.FilterComplex(), "-map", "["+p.VideoLabel+"]")
	if p.HasAudio() {
		args = append(args, "-map", "["+p.AudioLabel+"]")
	}

	e := p.Encoding
	args = append(args, "-c:v", e.VideoCodec, "-preset", e.Preset)
	if e.Tune != "" {
		args = append(args, "-tune", e.Tune)
	}
	if p.HasAudio() {
		args = append(args, "-c:a", e.AudioCodec, "-b:a", e.AudioBitrate)
	}
	args = append(args,
		"-r", strconv.Itoa(e.FPS),
		"-pix_fmt", e.PixelFormat,
		"-t", formatSeconds(p.Duration),
		p.OutputPath,
	)
	return args
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
