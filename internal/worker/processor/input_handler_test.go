package processor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"televid/internal/adapters/storage/localfs"
	"televid/internal/config"
	"televid/internal/pkg/errors"
	"televid/internal/pkg/logger"
)

func newTelegramServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/botTOKEN/getFile":
			if r.URL.Query().Get("file_id") == "missing" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: invalid file_id"}`))
				return
			}
			_, _ = w.Write([]byte(`{"ok":true,"result":{"file_path":"videos/file_7.mp4"}}`))
		case "/file/botTOKEN/videos/file_7.mp4":
			_, _ = w.Write([]byte(strings.Repeat("v", 20000)))
		default:
			http.NotFound(w, r)
		}
	}))
}

func trackInto(dst *[]string) func(string) {
	return func(p string) { *dst = append(*dst, p) }
}

func TestAcquireTelegram(t *testing.T) {
	srv := newTelegramServer(t)
	defer srv.Close()

	ih := NewInputHandler(
		config.Telegram{APIBase: srv.URL, BotToken: "TOKEN"},
		config.Download{Timeout: 5 * time.Second, ChunkSize: 8192},
		srv.Client(), nil,
	)

	dir := t.TempDir()
	var tracked []string
	p, err := ih.Acquire(context.Background(), Ref{Kind: RefTelegram, Value: "abc"}, dir, "media_j1", trackInto(&tracked))
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if p != filepath.Join(dir, "media_j1.mp4") {
		t.Errorf("unexpected path %s", p)
	}
	if len(tracked) != 1 || tracked[0] != p {
		t.Errorf("expected path tracked before creation, got %v", tracked)
	}
	if st, err := os.Stat(p); err != nil || st.Size() != 20000 {
		t.Errorf("unexpected file: %v, %v", st, err)
	}
}

func TestAcquireTelegramErrors(t *testing.T) {
	srv := newTelegramServer(t)
	defer srv.Close()
	dl := config.Download{Timeout: 5 * time.Second}

	ih := NewInputHandler(config.Telegram{APIBase: srv.URL, BotToken: "TOKEN"}, dl, srv.Client(), nil)
	_, err := ih.Acquire(context.Background(), Ref{Kind: RefTelegram, Value: "missing"}, t.TempDir(), "m", nil)
	if !errors.IsCode(err, errors.CodeAcquisition) || !strings.Contains(err.Error(), "invalid file_id") {
		t.Errorf("expected getFile failure, got %v", err)
	}

	ih = NewInputHandler(config.Telegram{APIBase: srv.URL}, dl, srv.Client(), nil)
	if _, err := ih.Acquire(context.Background(), Ref{Kind: RefTelegram, Value: "abc"}, t.TempDir(), "m", nil); err == nil {
		t.Error("expected error without bot token")
	}
}

func TestAcquireURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer media-secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		switch r.URL.Path {
		case "/photo.png":
			_, _ = w.Write([]byte("png"))
		case "/render":
			w.Header().Set("Content-Type", "video/mp4")
			_, _ = w.Write([]byte("mp4"))
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	ih := NewInputHandler(config.Telegram{}, config.Download{Timeout: 5 * time.Second, BearerToken: "media-secret"}, srv.Client(), nil)
	dir := t.TempDir()

	p, err := ih.Acquire(context.Background(), Ref{Kind: RefURL, Value: srv.URL + "/photo.png?x=1"}, dir, "media_a", nil)
	if err != nil || filepath.Base(p) != "media_a.png" {
		t.Errorf("expected extension from url path, got %s, %v", p, err)
	}

	p, err = ih.Acquire(context.Background(), Ref{Kind: RefURL, Value: srv.URL + "/render"}, dir, "media_b", nil)
	if err != nil || filepath.Base(p) != "media_b.mp4" {
		t.Errorf("expected extension from content type, got %s, %v", p, err)
	}

	_, err = ih.Acquire(context.Background(), Ref{Kind: RefURL, Value: srv.URL + "/private"}, dir, "media_c", nil)
	if !errors.IsCode(err, errors.CodeAcquisition) {
		t.Errorf("expected acquisition failure on 403, got %v", err)
	}
}

func TestAcquireURLStalledTransfer(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ih := NewInputHandler(config.Telegram{}, config.Download{Timeout: 200 * time.Millisecond}, srv.Client(), nil)

	dir := t.TempDir()
	var tracked []string
	_, err := ih.Acquire(context.Background(), Ref{Kind: RefURL, Value: srv.URL + "/slow"}, dir, "media_s", trackInto(&tracked))
	if !errors.IsTimeout(err) {
		t.Fatalf("expected idle timeout, got %v", err)
	}
	if len(tracked) != 1 {
		t.Errorf("partial file should be tracked for cleanup, got %v", tracked)
	}
}

func TestAcquireStorage(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "tracks"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "tracks", "song.mp3"), []byte("ID3"), 0o644); err != nil {
		t.Fatal(err)
	}

	ih := NewInputHandler(config.Telegram{}, config.Download{}, nil, localfs.New(root))
	p, err := ih.Acquire(context.Background(), Ref{Kind: RefStorage, Value: "tracks/song.mp3"}, t.TempDir(), "music_j", nil)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if data, _ := os.ReadFile(p); string(data) != "ID3" || filepath.Ext(p) != ".mp3" {
		t.Errorf("unexpected copy %s: %q", p, data)
	}

	noStorage := NewInputHandler(config.Telegram{}, config.Download{}, nil, nil)
	if _, err := noStorage.Acquire(context.Background(), Ref{Kind: RefStorage, Value: "tracks/song.mp3"}, t.TempDir(), "m", nil); !errors.IsCode(err, errors.CodeAcquisition) {
		t.Errorf("expected acquisition failure without provider, got %v", err)
	}
}

func TestAcquireIntoCleanupSet(t *testing.T) {
	srv := newTelegramServer(t)
	defer srv.Close()

	ih := NewInputHandler(config.Telegram{APIBase: srv.URL, BotToken: "TOKEN"}, config.Download{}, srv.Client(), nil)

	dir := filepath.Join(t.TempDir(), "jobs", "j7")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	var logs strings.Builder
	cleanup := NewCleanup(dir, logger.New(logger.Config{Output: &logs}))

	p, err := ih.Acquire(context.Background(), Ref{Kind: RefTelegram, Value: "abc"}, dir, "media_j7", cleanup.Track)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if cleanup.Tracked() != 1 {
		t.Fatalf("expected the download to be tracked, got %d", cleanup.Tracked())
	}
	if removed := cleanup.Run(); removed != 1 {
		t.Errorf("expected 1 removed file, got %d", removed)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Errorf("downloaded file should be gone, stat err: %v", err)
	}
}
