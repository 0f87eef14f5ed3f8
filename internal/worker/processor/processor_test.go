package processor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"televid/internal/config"
	"televid/internal/pkg/errors"
	"televid/internal/pkg/logger"
	"televid/internal/ports"
	"televid/internal/worker/caption"
	"televid/internal/worker/composition"
	"televid/internal/worker/encoder"
	"televid/internal/worker/media"
)

type fakeAcquirer struct {
	err   error
	calls []Ref
}

func (f *fakeAcquirer) Acquire(ctx context.Context, ref Ref, dir, name string, track func(string)) (string, error) {
	f.calls = append(f.calls, ref)
	if f.err != nil {
		return "", f.err
	}
	p := filepath.Join(dir, name+".bin")
	track(p)
	return p, os.WriteFile(p, []byte("media"), 0o644)
}

type fakeProber struct {
	asset media.Asset
	err   error
}

func (f *fakeProber) ProbeImage(path string) (*media.Asset, error) {
	if f.err != nil {
		return nil, f.err
	}
	a := f.asset
	a.Path, a.IsImage = path, true
	return &a, nil
}

func (f *fakeProber) ProbeVideo(ctx context.Context, path string) (*media.Asset, error) {
	if f.err != nil {
		return nil, f.err
	}
	a := f.asset
	a.Path = path
	return &a, nil
}

type fakeCaptions struct{}

func (fakeCaptions) Render(text, path string) (*caption.Asset, error) {
	if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
		return nil, err
	}
	return &caption.Asset{Path: path, Width: 200, Height: 100, TextWidth: 120, TextHeight: 20}, nil
}

type fakeEncoder struct {
	composeErr error
	frameErr   error
	plans      []*composition.Plan
	frameAt    float64
}

func (f *fakeEncoder) Compose(ctx context.Context, plan *composition.Plan) (string, error) {
	f.plans = append(f.plans, plan)
	// Partial output exists even when encoding fails.
	if err := os.WriteFile(plan.OutputPath, []byte("mp4"), 0o644); err != nil {
		return "", err
	}
	if f.composeErr != nil {
		return "", f.composeErr
	}
	return plan.OutputPath, nil
}

func (f *fakeEncoder) Probe(ctx context.Context, path string) (*encoder.StreamInfo, error) {
	return nil, errors.New(errors.CodeProbe, "unused")
}

func (f *fakeEncoder) ExtractFrame(ctx context.Context, in, out string, at float64) (string, error) {
	f.frameAt = at
	if f.frameErr != nil {
		return "", f.frameErr
	}
	return out, os.WriteFile(out, []byte("jpg"), 0o644)
}

type fakeDeliverer struct {
	err       error
	delivered []Result
	jobs      []*Job
}

func (f *fakeDeliverer) Deliver(ctx context.Context, job *Job, res Result) error {
	if f.err != nil {
		return f.err
	}
	for _, p := range []string{res.VideoPath, res.FramePath} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return err
		}
	}
	f.jobs = append(f.jobs, job)
	f.delivered = append(f.delivered, res)
	return nil
}

type fakeArchive struct {
	err  error
	keys []string
}

func (f *fakeArchive) Provider() string { return "fake" }

func (f *fakeArchive) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if f.err != nil {
		return ports.PutObjectOutput{}, f.err
	}
	f.keys = append(f.keys, in.ObjectKey)
	return ports.PutObjectOutput{ObjectKey: in.ObjectKey}, nil
}

func (f *fakeArchive) GetObject(ctx context.Context, key string) (rc io.ReadCloser, contentType string, size int64, err error) {
	return nil, "", 0, errors.New(errors.CodeUnavailable, "unused")
}

type harness struct {
	workDir   string
	logs      *bytes.Buffer
	acquirer  *fakeAcquirer
	prober    *fakeProber
	encoder   *fakeEncoder
	deliverer *fakeDeliverer
	processor *Processor
}

func newHarness(t *testing.T, style string, archive ports.StorageProvider) *harness {
	t.Helper()
	h := &harness{
		workDir:   t.TempDir(),
		logs:      &bytes.Buffer{},
		acquirer:  &fakeAcquirer{},
		prober:    &fakeProber{asset: media.Asset{Width: 1920, Height: 1080, Duration: 8, HasAudio: true}},
		encoder:   &fakeEncoder{},
		deliverer: &fakeDeliverer{},
	}
	comp := config.Defaults().Composition
	comp.FadeStyle = style

	h.processor = New(Deps{
		WorkDir:   h.workDir,
		Acquirer:  h.acquirer,
		Prober:    h.prober,
		Captions:  fakeCaptions{},
		Builder:   composition.NewBuilder(comp),
		Encoder:   h.encoder,
		Deliverer: h.deliverer,
		Archive:   archive,
		Log:       logger.New(logger.Config{Level: "debug", Output: h.logs}),
	})
	return h
}

// record returns the first log record with the given message.
func (h *harness) record(t *testing.T, msg string) map[string]any {
	t.Helper()
	sc := bufio.NewScanner(bytes.NewReader(h.logs.Bytes()))
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		if rec["msg"] == msg {
			return rec
		}
	}
	t.Fatalf("no %q log record in:\n%s", msg, h.logs.String())
	return nil
}

func (h *harness) assertNoJobFiles(t *testing.T, jobID string) {
	t.Helper()
	if _, err := os.Stat(filepath.Join(h.workDir, "jobs", jobID)); !os.IsNotExist(err) {
		t.Errorf("expected job directory to be removed, stat err = %v", err)
	}
}

const telegramPayload = `{"job_id":"tg1","chat_id":987654,"file_id":"AgADBAAD","media_type":"video","caption_text":"hello there","apply_fade":true}`

func TestProcessTelegramJob(t *testing.T) {
	h := newHarness(t, config.FadeSequential, nil)

	if err := h.processor.ProcessJob(context.Background(), telegramPayload); err != nil {
		t.Fatalf("ProcessJob() error: %v", err)
	}

	if len(h.deliverer.delivered) != 1 {
		t.Fatalf("expected one delivery, got %d", len(h.deliverer.delivered))
	}
	res := h.deliverer.delivered[0]
	if res.FramePath == "" {
		t.Error("telegram job must deliver a preview frame")
	}
	if h.encoder.frameAt != 4 {
		t.Errorf("expected midpoint frame at 4s, got %v", h.encoder.frameAt)
	}
	if got := h.deliverer.jobs[0].Descriptor.ChatID; got != "987654" {
		t.Errorf("expected chat id 987654, got %s", got)
	}

	// media, caption, output, frame
	rec := h.record(t, "cleanup completed")
	if rec["files"] != float64(4) || rec["tracked"] != float64(4) {
		t.Errorf("expected 4 files cleaned, got files=%v tracked=%v", rec["files"], rec["tracked"])
	}
	h.assertNoJobFiles(t, "tg1")
	h.record(t, "job completed")
}

func TestProcessURLJobWithMusic(t *testing.T) {
	h := newHarness(t, config.FadeIn, nil)
	h.prober.asset = media.Asset{Width: 1080, Height: 1080, Duration: 12}

	payload := `{"job_id":"u1","media_url":"https://cdn.example.com/a.jpg","media_type":"image",
		"caption_text":"hi","apply_fade":true,"music_url":"storage://tracks/song.mp3"}`
	if err := h.processor.ProcessJob(context.Background(), payload); err != nil {
		t.Fatalf("ProcessJob() error: %v", err)
	}

	if len(h.acquirer.calls) != 2 {
		t.Fatalf("expected media and music acquisitions, got %d", len(h.acquirer.calls))
	}
	if h.acquirer.calls[1].Kind != RefStorage || h.acquirer.calls[1].Value != "tracks/song.mp3" {
		t.Errorf("unexpected music ref: %+v", h.acquirer.calls[1])
	}
	if h.deliverer.delivered[0].FramePath != "" {
		t.Error("url jobs do not carry a frame")
	}

	plan := h.encoder.plans[0]
	if !plan.HasAudio() || len(plan.Inputs) != 4 {
		t.Errorf("expected music input and audio mapping, got %d inputs", len(plan.Inputs))
	}
	if !strings.Contains(plan.FilterComplex(), "fade=t=in") {
		t.Errorf("expected fade_in style graph: %s", plan.FilterComplex())
	}

	// media, music, caption, output
	if rec := h.record(t, "cleanup completed"); rec["files"] != float64(4) {
		t.Errorf("expected 4 files cleaned, got %v", rec["files"])
	}
	h.assertNoJobFiles(t, "u1")
}

func TestProcessEncoderTimeout(t *testing.T) {
	h := newHarness(t, config.FadeSequential, nil)
	h.encoder.composeErr = errors.Timeout("encoder.compose").WithField("stderr", "frame=  10 fps=0.0")

	err := h.processor.ProcessJob(context.Background(), telegramPayload)
	if !errors.IsCode(err, errors.CodeEncode) {
		t.Fatalf("expected encode failure, got %v", err)
	}
	if !errors.IsTimeout(err) {
		t.Error("expected timeout flag to survive wrapping")
	}
	if len(h.deliverer.delivered) != 0 {
		t.Error("nothing should be delivered after an encoder timeout")
	}

	rec := h.record(t, "job failed")
	if rec["stage"] != string(StageComposing) || rec["timeout"] != true {
		t.Errorf("unexpected failure record: %v", rec)
	}
	if rec["job_id"] != "tg1" {
		t.Errorf("expected job_id on failure record, got %v", rec["job_id"])
	}
	// media, caption, partial output
	if rec := h.record(t, "cleanup completed"); rec["files"] != float64(3) {
		t.Errorf("expected partial output removed too, got files=%v", rec["files"])
	}
	h.assertNoJobFiles(t, "tg1")
}

func TestProcessAcquisitionFailure(t *testing.T) {
	h := newHarness(t, config.FadeSequential, nil)
	h.acquirer.err = errors.New(errors.CodeUnavailable, "connection refused")

	err := h.processor.ProcessJob(context.Background(), telegramPayload)
	if !errors.IsCode(err, errors.CodeAcquisition) {
		t.Fatalf("expected acquisition failure, got %v", err)
	}
	if len(h.encoder.plans) != 0 {
		t.Error("encoder must not run after a failed acquisition")
	}
	if rec := h.record(t, "cleanup completed"); rec["files"] != float64(0) {
		t.Errorf("expected nothing to clean, got %v", rec["files"])
	}
	h.assertNoJobFiles(t, "tg1")
}

func TestProcessProbeAndFrameFailures(t *testing.T) {
	t.Run("probe", func(t *testing.T) {
		h := newHarness(t, config.FadeSequential, nil)
		h.prober.err = errors.New(errors.CodeProbe, "no video stream")
		if err := h.processor.ProcessJob(context.Background(), telegramPayload); !errors.IsCode(err, errors.CodeProbe) {
			t.Fatalf("expected probe failure, got %v", err)
		}
		h.assertNoJobFiles(t, "tg1")
	})

	t.Run("frame", func(t *testing.T) {
		h := newHarness(t, config.FadeSequential, nil)
		h.encoder.frameErr = errors.New(errors.CodeEncode, "no frame")
		err := h.processor.ProcessJob(context.Background(), telegramPayload)
		if !errors.IsCode(err, errors.CodeEncode) {
			t.Fatalf("expected encode failure, got %v", err)
		}
		if len(h.deliverer.delivered) != 0 {
			t.Error("telegram job must not be delivered without a frame")
		}
	})

	t.Run("delivery", func(t *testing.T) {
		h := newHarness(t, config.FadeSequential, nil)
		h.deliverer.err = errors.New(errors.CodeDelivery, "collector returned 502")
		if err := h.processor.ProcessJob(context.Background(), telegramPayload); !errors.IsCode(err, errors.CodeDelivery) {
			t.Fatalf("expected delivery failure, got %v", err)
		}
		if rec := h.record(t, "cleanup completed"); rec["files"] != float64(4) {
			t.Errorf("expected 4 files cleaned, got %v", rec["files"])
		}
	})
}

func TestProcessInternalFailureLogsStack(t *testing.T) {
	h := newHarness(t, config.FadeSequential, nil)
	// A file where the jobs directory should be.
	if err := os.WriteFile(filepath.Join(h.workDir, "jobs"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	err := h.processor.ProcessJob(context.Background(), telegramPayload)
	if !errors.IsCode(err, errors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}

	rec := h.record(t, "job failed")
	if rec["stage"] != string(StageAcquiring) || rec["op"] != "processor.workdir" {
		t.Errorf("unexpected failure record: %v", rec)
	}
	if stack, _ := rec["stack"].(string); !strings.Contains(stack, "processor") {
		t.Errorf("expected stack trace on internal failure, got %q", rec["stack"])
	}
}

func TestProcessDottedJobIDKeepsJobsRoot(t *testing.T) {
	h := newHarness(t, config.FadeSequential, nil)
	other := filepath.Join(h.workDir, "jobs", "other", "media.mp4")
	if err := os.MkdirAll(filepath.Dir(other), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(other, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	payload := strings.Replace(telegramPayload, `"job_id":"tg1"`, `"job_id":"..."`, 1)
	if err := h.processor.ProcessJob(context.Background(), payload); err != nil {
		t.Fatalf("ProcessJob() error: %v", err)
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("another job's files were removed: %v", err)
	}
	h.assertNoJobFiles(t, "input")
}

func TestProcessInvalidPayload(t *testing.T) {
	h := newHarness(t, config.FadeSequential, nil)

	err := h.processor.ProcessJob(context.Background(), `{"job_id": 12`)
	if !errors.IsCode(err, errors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(h.acquirer.calls) != 0 {
		t.Error("nothing should be acquired for an invalid payload")
	}
	rec := h.record(t, "job failed")
	if rec["stage"] != string(StageParsing) {
		t.Errorf("expected parsing stage, got %v", rec["stage"])
	}
	if _, ok := rec["stack"]; ok {
		t.Error("validation failures should not carry a stack trace")
	}
}

func TestProcessArchivesOutput(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		archive := &fakeArchive{}
		h := newHarness(t, config.FadeSequential, archive)
		if err := h.processor.ProcessJob(context.Background(), telegramPayload); err != nil {
			t.Fatalf("ProcessJob() error: %v", err)
		}
		if len(archive.keys) != 1 || archive.keys[0] != "renders/tg1/output.mp4" {
			t.Errorf("unexpected archive keys: %v", archive.keys)
		}
	})

	t.Run("failure is not fatal", func(t *testing.T) {
		archive := &fakeArchive{err: errors.New(errors.CodeUnavailable, "quota exceeded")}
		h := newHarness(t, config.FadeSequential, archive)
		if err := h.processor.ProcessJob(context.Background(), telegramPayload); err != nil {
			t.Fatalf("archive failure should not fail the job: %v", err)
		}
		h.record(t, "archive failed")
		h.assertNoJobFiles(t, "tg1")
	})
}
