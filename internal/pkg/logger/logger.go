// Package logger is the worker's slog front end. Every record carries the
// service name; job records also carry job_id and, inside the pipeline, the
// stage that emitted them.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type contextKey string

const (
	// RequestIDKey holds the status server request id.
	RequestIDKey contextKey = "request_id"
	// JobIDKey holds the id of the job being processed.
	JobIDKey contextKey = "job_id"
)

// Record keys shared by the worker packages.
const (
	KeyService   = "service"
	KeyComponent = "component"
	KeyJobID     = "job_id"
	KeyStage     = "stage"
	KeyError     = "error"
)

type Logger struct {
	*slog.Logger
}

type Config struct {
	Level       string // debug, info, warn or error
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	ServiceName string
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: os.Stdout, ServiceName: "televid-worker"}
}

func New(cfg Config) *Logger {
	h := newHandler(cfg)
	if cfg.ServiceName != "" {
		h = h.WithAttrs([]slog.Attr{slog.String(KeyService, cfg.ServiceName)})
	}
	return &Logger{Logger: slog.New(h)}
}

func NewDefault() *Logger {
	return New(DefaultConfig())
}

func newHandler(cfg Config) slog.Handler {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		AddSource:   cfg.AddSource,
		ReplaceAttr: utcTime,
	}
	if cfg.Format == "text" {
		return slog.NewTextHandler(out, opts)
	}
	return slog.NewJSONHandler(out, opts)
}

// utcTime renders record timestamps as RFC 3339 in UTC.
func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
	}
	return a
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.with(string(RequestIDKey), requestID)
}

func (l *Logger) WithJobID(jobID string) *Logger {
	return l.with(KeyJobID, jobID)
}

func (l *Logger) WithComponent(component string) *Logger {
	return l.with(KeyComponent, component)
}

// WithStage tags records with the pipeline stage that emits them.
func (l *Logger) WithStage(stage string) *Logger {
	return l.with(KeyStage, stage)
}

// WithError is a no-op for a nil err.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with(KeyError, err.Error())
}

func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l.with(args...)
}

// FromContext attaches the request and job ids stored in ctx.
func (l *Logger) FromContext(ctx context.Context) *Logger {
	out := l
	if id, _ := ctx.Value(RequestIDKey).(string); id != "" {
		out = out.WithRequestID(id)
	}
	if id, _ := ctx.Value(JobIDKey).(string); id != "" {
		out = out.WithJobID(id)
	}
	return out
}

// LogFatal logs at error level and exits with status 1.
func (l *Logger) LogFatal(msg string, err error, args ...any) {
	l.WithError(err).Error(msg, args...)
	os.Exit(1)
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func ContextWithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// parseLevel falls back to info for unknown names.
func parseLevel(level string) slog.Level {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "warning" {
		name = "warn"
	}
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lv
}
