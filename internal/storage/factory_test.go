package storage

import (
	"context"
	"testing"

	"televid/internal/config"
)

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	p, err := NewProvider(ctx, config.Storage{})
	if err != nil || p != nil {
		t.Fatalf("expected no provider, got %v, %v", p, err)
	}

	p, err = NewProvider(ctx, config.Storage{Provider: "localfs", LocalRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("NewProvider(localfs) error: %v", err)
	}
	if p.Provider() != "localfs" {
		t.Errorf("expected localfs, got %s", p.Provider())
	}

	p, err = NewProvider(ctx, config.Storage{
		Provider:           "gdrive",
		GDriveClientID:     "id",
		GDriveClientSecret: "secret",
		GDriveRefreshToken: "refresh",
	})
	if err != nil {
		t.Fatalf("NewProvider(gdrive) error: %v", err)
	}
	if p.Provider() != "gdrive" {
		t.Errorf("expected gdrive, got %s", p.Provider())
	}

	if _, err := NewProvider(ctx, config.Storage{Provider: "s3"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestGDriveOAuth(t *testing.T) {
	conf := GDriveOAuth(config.Storage{GDriveClientID: "id", GDriveClientSecret: "secret"}, "http://127.0.0.1:9/callback")
	if conf.ClientID != "id" || conf.ClientSecret != "secret" {
		t.Errorf("unexpected credentials: %+v", conf)
	}
	if len(conf.Scopes) != 1 || conf.Scopes[0] != "https://www.googleapis.com/auth/drive.file" {
		t.Errorf("expected drive.file scope only, got %v", conf.Scopes)
	}
	if conf.RedirectURL != "http://127.0.0.1:9/callback" {
		t.Errorf("unexpected redirect: %s", conf.RedirectURL)
	}
}
