// Package encoder is the narrow capability the job runner needs from the
// external video tooling.
package encoder

import (
	"context"

	"televid/internal/worker/composition"
)

// StreamInfo is what a probe reports about a media file.
type StreamInfo struct {
	Width    int
	Height   int
	Duration float64
	HasAudio bool
}

type Client interface {
	// Compose realizes plan and returns the written output path.
	Compose(ctx context.Context, plan *composition.Plan) (string, error)
	Probe(ctx context.Context, path string) (*StreamInfo, error)
	// ExtractFrame writes the single frame at the given second to out.
	ExtractFrame(ctx context.Context, in, out string, at float64) (string, error)
}
