package encoder

import (
	"context"
	"encoding/json"
	"strconv"

	"televid/internal/pkg/errors"
)

// probeResult matches the ffprobe JSON output structure.
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

// Probe reports the first video stream's size and duration, falling back to
// the container duration when the stream has none.
func (f *FFmpeg) Probe(ctx context.Context, path string) (*StreamInfo, error) {
	const op = "encoder.probe"

	args := []string{
		"-v", "error",
		"-show_entries", "stream=codec_type,width,height,duration:format=duration",
		"-of", "json",
		path,
	}
	out, err := f.run(ctx, op, f.probeTimeout, f.ffprobePath, args)
	if err != nil {
		return nil, err
	}
	return parseProbe(out)
}

func parseProbe(data []byte) (*StreamInfo, error) {
	const op = "encoder.parse_probe"

	var probe probeResult
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeProbe, op, "decode ffprobe output")
	}

	info := &StreamInfo{}
	foundVideo := false
	for _, s := range probe.Streams {
		switch s.CodecType {
		case "video":
			if foundVideo {
				continue
			}
			foundVideo = true
			info.Width = s.Width
			info.Height = s.Height
			if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
				info.Duration = d
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if !foundVideo {
		return nil, errors.New(errors.CodeProbe, "no video stream").WithField("op", op)
	}
	if info.Duration <= 0 {
		if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			info.Duration = d
		}
	}
	return info, nil
}
