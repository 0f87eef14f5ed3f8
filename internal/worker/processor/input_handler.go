package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"televid/internal/config"
	"televid/internal/pkg/errors"
	"televid/internal/ports"
)

// InputHandler acquires job media from Telegram, plain URLs or the
// configured storage provider.
type InputHandler struct {
	hc        *http.Client
	apiBase   string
	botToken  string
	bearer    string
	timeout   time.Duration
	chunkSize int
	sp        ports.StorageProvider
}

func NewInputHandler(tg config.Telegram, dl config.Download, hc *http.Client, sp ports.StorageProvider) *InputHandler {
	if hc == nil {
		hc = http.DefaultClient
	}
	chunk := dl.ChunkSize
	if chunk <= 0 {
		chunk = 8192
	}
	timeout := dl.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &InputHandler{
		hc:        hc,
		apiBase:   tg.APIBase,
		botToken:  tg.BotToken,
		bearer:    dl.BearerToken,
		timeout:   timeout,
		chunkSize: chunk,
		sp:        sp,
	}
}

func (ih *InputHandler) Acquire(ctx context.Context, ref Ref, dir, name string, track func(string)) (string, error) {
	switch ref.Kind {
	case RefTelegram:
		return ih.acquireTelegram(ctx, ref.Value, dir, name, track)
	case RefURL:
		return ih.acquireURL(ctx, ref.Value, dir, name, track)
	case RefStorage:
		return ih.acquireStorage(ctx, ref.Value, dir, name, track)
	default:
		return "", errors.Newf(errors.CodeAcquisition, "unknown reference kind %d", ref.Kind)
	}
}

type telegramFile struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		FilePath string `json:"file_path"`
	} `json:"result"`
}

func (ih *InputHandler) acquireTelegram(ctx context.Context, fileID, dir, name string, track func(string)) (string, error) {
	const op = "processor.acquire_telegram"
	if ih.botToken == "" {
		return "", errors.New(errors.CodeAcquisition, "BOT_TOKEN is not configured").WithField("op", op)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, ih.timeout)
	defer cancel()

	infoURL := fmt.Sprintf("%s/bot%s/getFile?file_id=%s", ih.apiBase, ih.botToken, url.QueryEscape(fileID))
	req, err := http.NewRequestWithContext(lookupCtx, http.MethodGet, infoURL, nil)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeAcquisition, op, "build getFile request")
	}
	res, err := ih.hc.Do(req)
	if err != nil {
		return "", ih.requestError(lookupCtx, err, op, "getFile request failed")
	}
	defer res.Body.Close()

	var info telegramFile
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&info); err != nil {
		return "", errors.WrapWithCode(err, errors.CodeAcquisition, op, "decode getFile response").
			WithField("status", res.StatusCode)
	}
	if res.StatusCode != http.StatusOK || !info.OK || info.Result.FilePath == "" {
		return "", errors.Newf(errors.CodeAcquisition, "getFile failed: %s", info.Description).
			WithField("status", res.StatusCode).
			WithField("file_id", fileID)
	}

	fileURL := fmt.Sprintf("%s/file/bot%s/%s", ih.apiBase, ih.botToken, info.Result.FilePath)
	return ih.download(ctx, op, fileURL, "", ExtFromPath(info.Result.FilePath), dir, name, track)
}

func (ih *InputHandler) acquireURL(ctx context.Context, rawURL, dir, name string, track func(string)) (string, error) {
	return ih.download(ctx, "processor.acquire_url", rawURL, ih.bearer, ExtFromPath(rawURL), dir, name, track)
}

func (ih *InputHandler) acquireStorage(ctx context.Context, key, dir, name string, track func(string)) (string, error) {
	const op = "processor.acquire_storage"
	if ih.sp == nil {
		return "", errors.New(errors.CodeAcquisition, "storage:// reference but no storage provider configured").
			WithField("object_key", key)
	}

	rc, contentType, _, err := ih.sp.GetObject(ctx, key)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeAcquisition, op, "get object").WithField("object_key", key)
	}
	defer rc.Close()

	ext := ExtFromPath(key)
	if ext == "" {
		ext = ExtFromMime(contentType)
	}
	return ih.save(ctx, op, rc, dir, name+ext, track, nil)
}

// download streams a GET response to disk. The idle timer is reset on every
// chunk, so only a stalled transfer times out.
func (ih *InputHandler) download(ctx context.Context, op, rawURL, bearer, ext, dir, name string, track func(string)) (string, error) {
	dlCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	idle := newIdleTimer(ih.timeout, cancel)
	defer idle.Stop()

	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeAcquisition, op, "build download request")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := ih.hc.Do(req)
	if err != nil {
		return "", ih.idleError(ctx, idle, err, op, "download request failed")
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", errors.Newf(errors.CodeAcquisition, "download returned %d", res.StatusCode).
			WithField("op", op).
			WithField("url", redactURL(rawURL))
	}

	if ext == "" {
		ext = ExtFromMime(res.Header.Get("Content-Type"))
	}
	p, err := ih.save(ctx, op, res.Body, dir, name+ext, track, idle)
	if err != nil {
		return "", ih.idleError(ctx, idle, err, op, "download interrupted")
	}
	return p, nil
}

func (ih *InputHandler) save(ctx context.Context, op string, r io.Reader, dir, filename string, track func(string), idle *idleTimer) (string, error) {
	p := filepath.Join(dir, filename)
	if track != nil {
		track(p)
	}

	f, err := os.Create(p)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeAcquisition, op, "create local file")
	}
	defer f.Close()

	buf := make([]byte, ih.chunkSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if idle != nil {
				idle.Touch()
			}
			if _, werr := f.Write(buf[:n]); werr != nil {
				return "", errors.WrapWithCode(werr, errors.CodeAcquisition, op, "write local file")
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", errors.WrapWithCode(rerr, errors.CodeAcquisition, op, "read body")
		}
	}
	if err := f.Close(); err != nil {
		return "", errors.WrapWithCode(err, errors.CodeAcquisition, op, "close local file")
	}
	return p, nil
}

func (ih *InputHandler) requestError(ctx context.Context, err error, op, msg string) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.Timeout(op)
	}
	return errors.WrapWithCode(err, errors.CodeAcquisition, op, msg)
}

func (ih *InputHandler) idleError(parent context.Context, idle *idleTimer, err error, op, msg string) error {
	if idle.Fired() && parent.Err() == nil {
		return errors.Timeout(op).WithField("idle_timeout_s", ih.timeout.Seconds())
	}
	return errors.WrapWithCode(err, errors.CodeAcquisition, op, msg)
}

// redactURL drops the query string, which may carry credentials.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

type idleTimer struct {
	mu      sync.Mutex
	d       time.Duration
	t       *time.Timer
	fired   bool
	onFire  func()
	stopped bool
}

func newIdleTimer(d time.Duration, onFire func()) *idleTimer {
	it := &idleTimer{d: d, onFire: onFire}
	it.t = time.AfterFunc(d, it.fire)
	return it
}

func (it *idleTimer) fire() {
	it.mu.Lock()
	if it.stopped {
		it.mu.Unlock()
		return
	}
	it.fired = true
	it.mu.Unlock()
	it.onFire()
}

func (it *idleTimer) Touch() {
	it.mu.Lock()
	defer it.mu.Unlock()
	if !it.stopped && !it.fired {
		it.t.Reset(it.d)
	}
}

func (it *idleTimer) Fired() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.fired
}

func (it *idleTimer) Stop() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.stopped = true
	it.t.Stop()
}
