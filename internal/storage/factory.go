package storage

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"televid/internal/adapters/storage/gdrive"
	"televid/internal/adapters/storage/localfs"
	"televid/internal/config"
	"televid/internal/pkg/errors"
)

// NewProvider builds the configured provider. An empty provider name returns
// (nil, nil): storage:// inputs and archiving are then unavailable.
func NewProvider(ctx context.Context, cfg config.Storage) (Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "localfs":
		return localfs.New(cfg.LocalRoot), nil
	case "gdrive":
		return newGDriveProvider(ctx, cfg)
	default:
		return nil, errors.Newf(errors.CodeValidation, "unknown storage provider: %s", cfg.Provider)
	}
}

// GDriveOAuth is the OAuth client shared by the provider and the
// gdrive-auth command. Archiving only touches files the worker created.
func GDriveOAuth(cfg config.Storage, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.GDriveClientID,
		ClientSecret: cfg.GDriveClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
		RedirectURL:  redirectURL,
	}
}

func newGDriveProvider(ctx context.Context, cfg config.Storage) (Provider, error) {
	tok := &oauth2.Token{RefreshToken: cfg.GDriveRefreshToken}
	httpClient := GDriveOAuth(cfg, "").Client(ctx, tok)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "storage.gdrive", "create drive service")
	}

	return gdrive.NewClient(srv, cfg.GDriveFolderID), nil
}
