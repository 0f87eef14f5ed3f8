package encoder

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"time"

	"televid/internal/config"
	"televid/internal/pkg/errors"
	"televid/internal/pkg/logger"
	"televid/internal/worker/composition"
)

// stderrTail is how much encoder stderr is kept on a failure.
const stderrTail = 4096

// FFmpeg drives the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	ffmpegPath     string
	ffprobePath    string
	composeTimeout time.Duration
	frameTimeout   time.Duration
	probeTimeout   time.Duration
	log            *logger.Logger
}

func NewFFmpeg(cfg config.Encoder, log *logger.Logger) *FFmpeg {
	if log == nil {
		log = logger.NewDefault()
	}
	return &FFmpeg{
		ffmpegPath:     cfg.FFmpegPath,
		ffprobePath:    cfg.FFprobePath,
		composeTimeout: cfg.ComposeTimeout,
		frameTimeout:   cfg.FrameTimeout,
		probeTimeout:   cfg.ProbeTimeout,
		log:            log.WithComponent("encoder"),
	}
}

func (f *FFmpeg) Compose(ctx context.Context, plan *composition.Plan) (string, error) {
	args := plan.Args()
	f.log.Debug("running ffmpeg compose", "args", args)

	start := time.Now()
	if _, err := f.run(ctx, "encoder.compose", f.composeTimeout, f.ffmpegPath, args); err != nil {
		return "", err
	}
	f.log.Info("compose finished",
		"output", plan.OutputPath,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return plan.OutputPath, nil
}

func (f *FFmpeg) ExtractFrame(ctx context.Context, in, out string, at float64) (string, error) {
	args := []string{"-y", "-i", in, "-ss", strconv.FormatFloat(at, 'f', 3, 64), "-vframes", "1", out}
	if _, err := f.run(ctx, "encoder.extract_frame", f.frameTimeout, f.ffmpegPath, args); err != nil {
		return "", err
	}
	return out, nil
}

// run executes bin with a deadline, returning stdout. Failures carry the
// stderr tail in the "stderr" field; deadline hits also carry timeout=true.
func (f *FFmpeg) run(ctx context.Context, op string, timeout time.Duration, bin string, args []string) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	tail := tailString(stderr.Bytes(), stderrTail)
	if runCtx.Err() == context.DeadlineExceeded {
		return nil, errors.Timeout(op).
			WithField("timeout_s", timeout.Seconds()).
			WithField("stderr", tail)
	}
	if ctx.Err() != nil {
		return nil, errors.Wrap(ctx.Err(), op, "canceled")
	}

	wrapped := errors.WrapWithCode(err, errors.CodeEncode, op, "process failed").
		WithField("stderr", tail)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		wrapped.WithField("exit_code", exitErr.ExitCode())
	}
	return nil, wrapped
}

func tailString(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
