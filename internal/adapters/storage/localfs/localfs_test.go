package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"televid/internal/pkg/errors"
	"televid/internal/ports"
)

func TestPutGetRoundTrip(t *testing.T) {
	root := t.TempDir()
	fs := New(root)
	ctx := context.Background()

	out, err := fs.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   "renders/job1/output.mp4",
		ContentType: "video/mp4",
		Reader:      strings.NewReader("video-bytes"),
	})
	if err != nil {
		t.Fatalf("PutObject() error: %v", err)
	}
	if out.ObjectKey != "renders/job1/output.mp4" || out.Size != int64(len("video-bytes")) {
		t.Errorf("unexpected output: %+v", out)
	}
	if _, err := os.Stat(filepath.Join(root, "renders", "job1", "output.mp4")); err != nil {
		t.Errorf("expected file under root: %v", err)
	}

	rc, ct, size, err := fs.GetObject(ctx, "renders/job1/output.mp4")
	if err != nil {
		t.Fatalf("GetObject() error: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "video-bytes" || size != int64(len(body)) {
		t.Errorf("unexpected body %q size %d", body, size)
	}
	if ct != "video/mp4" {
		t.Errorf("expected video/mp4, got %s", ct)
	}
}

func TestGetObjectSniffsContentType(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "blob"), []byte("\x89PNG\r\n\x1a\nrest"), 0o644); err != nil {
		t.Fatal(err)
	}
	rc, ct, _, err := New(root).GetObject(context.Background(), "blob")
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	if ct != "image/png" {
		t.Errorf("expected sniffed image/png, got %s", ct)
	}
	if b, _ := io.ReadAll(rc); !strings.HasPrefix(string(b), "\x89PNG") {
		t.Error("reader should be rewound after sniffing")
	}
}

func TestKeysCannotEscapeRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "root")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(parent, "secret"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	fs := New(root)

	for _, key := range []string{"", "  ", "/"} {
		if _, _, _, err := fs.GetObject(context.Background(), key); !errors.IsCode(err, errors.CodeValidation) {
			t.Errorf("GetObject(%q) expected validation error, got %v", key, err)
		}
	}

	// ../secret is clamped to root/secret, which does not exist.
	if _, _, _, err := fs.GetObject(context.Background(), "../secret"); err == nil {
		t.Error("expected ../secret to stay inside root")
	}

	if _, err := fs.PutObject(context.Background(), ports.PutObjectInput{
		ObjectKey: "../../escape.txt",
		Reader:    strings.NewReader("x"),
	}); err != nil {
		t.Fatalf("PutObject() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "escape.txt")); err != nil {
		t.Errorf("expected clamped write inside root: %v", err)
	}
}
