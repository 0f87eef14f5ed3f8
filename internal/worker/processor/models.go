package processor

import (
	"context"

	jobv1 "televid/internal/contracts/job/v1"
	"televid/internal/worker/caption"
	"televid/internal/worker/media"
)

// JobKind is the job variant. It decides how media is acquired, whether a
// preview frame is required and what the delivery carries.
type JobKind string

const (
	KindTelegram JobKind = jobv1.KindTelegram
	KindURL      JobKind = jobv1.KindURL
)

// RequiresFrame reports whether delivery needs a preview frame.
func (k JobKind) RequiresFrame() bool { return k == KindTelegram }

// AllowsMusic reports whether a music_url is honored.
func (k JobKind) AllowsMusic() bool { return k == KindURL }

// Stage is a Job Runner step.
type Stage string

const (
	StageParsing          Stage = "parsing"
	StageAcquiring        Stage = "acquiring"
	StageProbing          Stage = "probing"
	StageRenderingCaption Stage = "rendering_caption"
	StageComposing        Stage = "composing"
	StageExtractingFrame  Stage = "extracting_frame"
	StageSubmitting       Stage = "submitting"
	StageCleaningUp       Stage = "cleaning_up"
	StageDone             Stage = "done"
)

// RefKind says where a media reference is served from.
type RefKind int

const (
	RefTelegram RefKind = iota
	RefURL
	RefStorage
)

// Ref locates one remote input.
type Ref struct {
	Kind RefKind
	// Value is a file id, a URL or a storage object key.
	Value string
}

// Job is a validated descriptor.
type Job struct {
	Descriptor jobv1.Descriptor
	ID         string
	Kind       JobKind
	Media      Ref
	// Music is nil when the job has no background track.
	Music *Ref
}

func (j *Job) IsImage() bool { return j.Descriptor.MediaType == jobv1.MediaImage }

// Result is what a finished composition produced.
type Result struct {
	VideoPath string
	// FramePath is empty for kinds without a preview frame.
	FramePath string
}

// Acquirer downloads one reference into dir as name plus a detected
// extension. track is called with the final path before the file is
// created.
type Acquirer interface {
	Acquire(ctx context.Context, ref Ref, dir, name string, track func(string)) (string, error)
}

type Prober interface {
	ProbeImage(path string) (*media.Asset, error)
	ProbeVideo(ctx context.Context, path string) (*media.Asset, error)
}

type CaptionRenderer interface {
	Render(text, path string) (*caption.Asset, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, job *Job, res Result) error
}
