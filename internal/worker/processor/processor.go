// Package processor runs one job end to end: acquire, probe, render the
// caption, compose, extract a preview frame, deliver, clean up.
package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"televid/internal/pkg/errors"
	"televid/internal/pkg/logger"
	"televid/internal/ports"
	"televid/internal/worker/composition"
	"televid/internal/worker/encoder"
	"televid/internal/worker/media"
)

// errorExcerpt is how much of a failure message is logged.
const errorExcerpt = 1000

type Deps struct {
	WorkDir   string
	Acquirer  Acquirer
	Prober    Prober
	Captions  CaptionRenderer
	Builder   *composition.Builder
	Encoder   encoder.Client
	Deliverer Deliverer
	// Archive, when set, receives a copy of every delivered video.
	Archive ports.StorageProvider
	Log     *logger.Logger
}

type Processor struct {
	workDir   string
	acquirer  Acquirer
	prober    Prober
	captions  CaptionRenderer
	builder   *composition.Builder
	encoder   encoder.Client
	deliverer Deliverer
	archive   ports.StorageProvider
	log       *logger.Logger
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Processor{
		workDir:   d.WorkDir,
		acquirer:  d.Acquirer,
		prober:    d.Prober,
		captions:  d.Captions,
		builder:   d.Builder,
		encoder:   d.Encoder,
		deliverer: d.Deliverer,
		archive:   d.Archive,
		log:       log.WithComponent("processor"),
	}
}

// ProcessJob runs payload to completion. A returned error has already been
// logged; callers only count it.
func (p *Processor) ProcessJob(ctx context.Context, payload string) error {
	job, err := ParseJob(payload)
	if err != nil {
		return p.failJob(p.log.FromContext(ctx), StageParsing, err)
	}

	ctx = logger.ContextWithJobID(ctx, job.ID)
	log := p.log.FromContext(ctx).WithFields(map[string]any{"kind": string(job.Kind)})
	start := time.Now()

	dir := filepath.Join(p.workDir, "jobs", job.ID)
	cleanup := NewCleanup(dir, log)
	defer cleanup.Run()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return p.failJob(log, StageAcquiring, errors.Wrap(err, "processor.workdir", "create job directory"))
	}

	log.Info("processing job", "media_type", job.Descriptor.MediaType, "apply_fade", job.Descriptor.ApplyFade)

	res, stage, err := p.run(ctx, log, job, dir, cleanup)
	if err != nil {
		return p.failJob(log, stage, err)
	}

	if p.archive != nil {
		if out, err := archiveVideo(ctx, p.archive, job.ID, res.VideoPath); err != nil {
			log.Warn("archive failed", "error", err.Error())
		} else {
			log.Info("output archived", "object_key", out.ObjectKey, "provider", p.archive.Provider())
		}
	}

	log.WithStage(string(StageDone)).Info("job completed", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (p *Processor) run(ctx context.Context, log *logger.Logger, job *Job, dir string, cleanup *Cleanup) (Result, Stage, error) {
	var res Result

	log.WithStage(string(StageAcquiring)).Debug("stage started")
	mediaPath, err := p.acquirer.Acquire(ctx, job.Media, dir, "media_"+job.ID, cleanup.Track)
	if err != nil {
		return res, StageAcquiring, errors.WrapWithCode(err, errors.CodeAcquisition, "processor.acquire", "media download failed")
	}
	var musicPath string
	if job.Music != nil {
		musicPath, err = p.acquirer.Acquire(ctx, *job.Music, dir, "music_"+job.ID, cleanup.Track)
		if err != nil {
			return res, StageAcquiring, errors.WrapWithCode(err, errors.CodeAcquisition, "processor.acquire", "music download failed")
		}
	}

	log.WithStage(string(StageProbing)).Debug("stage started")
	asset, err := p.probe(ctx, job, mediaPath)
	if err != nil {
		return res, StageProbing, errors.WrapWithCode(err, errors.CodeProbe, "processor.probe", "could not get media dimensions")
	}
	log.Debug("media probed", "width", asset.Width, "height", asset.Height, "duration_s", asset.Duration, "has_audio", asset.HasAudio)

	log.WithStage(string(StageRenderingCaption)).Debug("stage started")
	captionPath := cleanup.File(fmt.Sprintf("caption_%s.png", job.ID))
	capAsset, err := p.captions.Render(job.Descriptor.CaptionText, captionPath)
	if err != nil {
		return res, StageRenderingCaption, errors.WrapWithCode(err, errors.CodeRender, "processor.caption", "caption render failed")
	}
	log.Debug("caption rendered", "width", capAsset.Width, "height", capAsset.Height, "text_height", capAsset.TextHeight)

	log.WithStage(string(StageComposing)).Debug("stage started")
	outputPath := cleanup.File(fmt.Sprintf("output_%s.mp4", job.ID))
	plan, err := p.builder.Build(composition.Request{
		MediaPath:     asset.Path,
		MediaIsImage:  asset.IsImage,
		MediaWidth:    asset.Width,
		MediaHeight:   asset.Height,
		MediaHasAudio: asset.HasAudio,
		Duration:      asset.Duration,
		CaptionPath:   capAsset.Path,
		MusicPath:     musicPath,
		ApplyFade:     job.Descriptor.ApplyFade,
		OutputPath:    outputPath,
	})
	if err != nil {
		return res, StageComposing, errors.WrapWithCode(err, errors.CodeEncode, "processor.plan", "build composition")
	}
	res.VideoPath, err = p.encoder.Compose(ctx, plan)
	if err != nil {
		return res, StageComposing, errors.WrapWithCode(err, errors.CodeEncode, "processor.compose", "ffmpeg compose failed")
	}

	if job.Kind.RequiresFrame() {
		log.WithStage(string(StageExtractingFrame)).Debug("stage started")
		framePath := cleanup.File(fmt.Sprintf("frame_%s.jpg", job.ID))
		res.FramePath, err = p.encoder.ExtractFrame(ctx, res.VideoPath, framePath, asset.Duration/2)
		if err != nil {
			return res, StageExtractingFrame, errors.WrapWithCode(err, errors.CodeEncode, "processor.frame", "frame extraction failed")
		}
	}

	log.WithStage(string(StageSubmitting)).Debug("stage started")
	if err := p.deliverer.Deliver(ctx, job, res); err != nil {
		return res, StageSubmitting, errors.WrapWithCode(err, errors.CodeDelivery, "processor.deliver", "submit result failed")
	}
	log.Info("result submitted")

	return res, StageCleaningUp, nil
}

func (p *Processor) probe(ctx context.Context, job *Job, path string) (*media.Asset, error) {
	if job.IsImage() {
		return p.prober.ProbeImage(path)
	}
	return p.prober.ProbeVideo(ctx, path)
}

func (p *Processor) failJob(log *logger.Logger, stage Stage, cause error) error {
	code := errors.GetCode(cause)
	attrs := []any{
		"code", string(code),
		"timeout", errors.IsTimeout(cause),
		"error", TailString(cause.Error(), errorExcerpt),
	}

	var e *errors.Error
	if errors.As(cause, &e) {
		attrs = append(attrs, "op", e.Op)
		if code == errors.CodeInternal {
			attrs = append(attrs, "stack", e.StackTrace())
		}
	}
	if stderr, ok := errors.GetFields(cause)["stderr"].(string); ok && stderr != "" {
		attrs = append(attrs, "stderr", TailString(stderr, errorExcerpt))
	}

	log.WithStage(string(stage)).Error("job failed", attrs...)
	return cause
}
