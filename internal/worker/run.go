package worker

import (
	"context"
	"runtime/debug"
	"time"

	"televid/internal/config"
	jobv1 "televid/internal/contracts/job/v1"
	"televid/internal/pkg/errors"
	"televid/internal/pkg/logger"
	"televid/internal/worker/deploy"
	"televid/internal/worker/queue"
)

// Run drives the queue until it is drained (or polled once in single mode),
// then stops the deployment. The stopper is called exactly once, also when
// ctx is canceled.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	l := &loop{
		cfg:         d.Worker,
		queue:       d.Queue,
		proc:        d.Processor,
		stopper:     d.Stopper,
		stopTimeout: d.StopTimeout,
		state:       d.State,
		log:         log.WithComponent("worker"),
	}
	if l.state == nil {
		l.state = NewState(d.Worker.Mode)
	}
	if l.stopTimeout <= 0 {
		l.stopTimeout = 15 * time.Second
	}

	defer l.shutdown(ctx)

	l.log.Info("worker started",
		"mode", l.cfg.Mode,
		"idle_timeout_s", l.cfg.IdleTimeout.Seconds(),
		"poll_interval_s", l.cfg.PollInterval.Seconds(),
	)

	if l.cfg.Mode == config.ModeSingle {
		if payload := l.poll(ctx); payload != "" {
			l.process(ctx, payload)
		} else {
			l.log.Info("queue empty, nothing to do")
		}
		return ctx.Err()
	}

	first, ok := l.waitForFirstJob(ctx)
	if !ok {
		return ctx.Err()
	}

	l.state.setPhase(PhaseDraining)
	l.log.Info("first job received, draining queue")
	for payload := first; payload != ""; payload = l.poll(ctx) {
		l.process(ctx, payload)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	l.log.Info("queue drained")
	return ctx.Err()
}

type loop struct {
	cfg         config.Worker
	queue       queue.Queue
	proc        JobProcessor
	stopper     deploy.Stopper
	stopTimeout time.Duration
	state       *State
	log         *logger.Logger
}

// waitForFirstJob polls every poll interval until a payload arrives or the
// idle timeout passes.
func (l *loop) waitForFirstJob(ctx context.Context) (string, bool) {
	l.state.setPhase(PhaseWaiting)
	deadline := time.Now().Add(l.cfg.IdleTimeout)

	for {
		if payload := l.poll(ctx); payload != "" {
			return payload, true
		}
		if ctx.Err() != nil {
			return "", false
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			l.log.Info("idle timeout reached without a job", "idle_timeout_s", l.cfg.IdleTimeout.Seconds())
			return "", false
		}

		wait := l.cfg.PollInterval
		if wait > remaining {
			wait = remaining
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", false
		case <-t.C:
		}
	}
}

// poll pops one payload. Errors are logged and reported as an empty queue.
func (l *loop) poll(ctx context.Context) string {
	if ctx.Err() != nil {
		return ""
	}
	l.state.recordPoll()

	payload, err := l.queue.Pop(ctx)
	if err != nil {
		if ctx.Err() == nil {
			l.log.WithError(err).Warn("queue poll failed", "code", string(errors.GetCode(err)))
		}
		return ""
	}
	return payload
}

func (l *loop) process(ctx context.Context, payload string) {
	jobID := peekJobID(payload)
	jobCtx := ctx
	jobLog := l.log
	if jobID != "" {
		jobCtx = logger.ContextWithJobID(ctx, jobID)
		jobLog = l.log.WithJobID(jobID)
	}

	jobLog.Info("job dequeued")
	start := time.Now()

	err := l.runJob(jobCtx, jobLog, payload)
	l.state.recordJob(jobID, err)

	if err != nil {
		jobLog.Warn("job finished with failure", "duration_ms", time.Since(start).Milliseconds())
		return
	}
	jobLog.Info("job finished", "duration_ms", time.Since(start).Milliseconds())
}

// runJob isolates the loop from a panicking job.
func (l *loop) runJob(ctx context.Context, log *logger.Logger, payload string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.CodeInternal, "job panicked: %v", r)
			log.Error("job panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	return l.proc.ProcessJob(ctx, payload)
}

func (l *loop) shutdown(ctx context.Context) {
	l.state.setPhase(PhaseShuttingDown)
	snap := l.state.Snapshot()
	l.log.Info("worker shutting down",
		"processed", snap.Processed,
		"failed", snap.Failed,
		"polls", snap.Polls,
	)

	if l.stopper != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.stopTimeout)
		if err := l.stopper.Stop(stopCtx); err != nil {
			l.log.WithError(err).Error("deployment stop failed")
		}
		cancel()
	}
	l.state.setPhase(PhaseStopped)
}

// peekJobID reads the job id for log enrichment. Invalid payloads yield "";
// the processor reports them.
func peekJobID(payload string) string {
	d, err := jobv1.Decode([]byte(payload))
	if err != nil {
		return ""
	}
	return d.JobID
}
