package worker

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"televid/internal/config"
	"televid/internal/pkg/logger"
)

func TestRunStopsWhenQueueNeverAnswers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(10 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := config.Defaults()
	cfg.WorkDir = t.TempDir()
	cfg.Queue.RESTURL = srv.URL
	cfg.Queue.Timeout = 100 * time.Millisecond
	cfg.Delivery.URL = srv.URL + "/submit-result"
	cfg.Worker.IdleTimeout = 200 * time.Millisecond
	cfg.Worker.PollInterval = 20 * time.Millisecond

	var buf bytes.Buffer
	d, err := NewDeps(context.Background(), cfg, logger.New(logger.Config{Output: &buf}))
	if err != nil {
		t.Fatalf("NewDeps() error: %v", err)
	}
	defer d.Close()

	s := &countingStopper{}
	d.Stopper = s

	done := make(chan error, 1)
	go func() { done <- Run(context.Background(), d) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run still blocked on a queue that never answers")
	}

	if s.calls != 1 {
		t.Errorf("expected one stop call, got %d", s.calls)
	}
	if d.State.Snapshot().Polls < 2 {
		t.Errorf("expected repeated bounded polls, got %d", d.State.Snapshot().Polls)
	}
}
