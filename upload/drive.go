// Package upload stores finished recordings in Google Drive.
package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/EasterCompany/dex-scribe-service/interfaces"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Drive uploads files into a Drive folder with a service account.
type Drive struct {
	srv      *drive.Service
	folderID string
}

// NewDrive creates a Drive uploader from a service account credentials file.
func NewDrive(ctx context.Context, credentialsFile, folderID string) (*Drive, error) {
	return NewDriveWith(ctx, folderID,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveFileScope),
	)
}

// NewDriveWith creates a Drive uploader with explicit client options.
func NewDriveWith(ctx context.Context, folderID string, opts ...option.ClientOption) (*Drive, error) {
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not create drive service: %w", err)
	}
	return &Drive{srv: srv, folderID: folderID}, nil
}

// Upload stores path as displayName and makes it readable by link.
func (d *Drive) Upload(ctx context.Context, path, displayName string) (*interfaces.UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	defer f.Close()

	if displayName == "" {
		displayName = filepath.Base(path)
	}
	meta := &drive.File{Name: displayName}
	if d.folderID != "" {
		meta.Parents = []string{d.folderID}
	}

	created, err := d.srv.Files.Create(meta).
		Media(f, googleapi.ContentType("audio/mpeg")).
		Fields("id", "webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	if created.Id == "" {
		return nil, fmt.Errorf("upload response has no file id")
	}

	_, err = d.srv.Permissions.Create(created.Id, &drive.Permission{Role: "reader", Type: "anyone"}).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("could not share file %s: %w", created.Id, err)
	}

	link := created.WebViewLink
	if link == "" {
		link = fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id)
	}
	return &interfaces.UploadResult{ID: created.Id, ViewURL: link}, nil
}

// MeetingFileName returns meeting-YYYY-MM-DD-HH-MM-SS.mp3 for t.
func MeetingFileName(t time.Time) string {
	return fmt.Sprintf("meeting-%s.mp3", t.Format("2006-01-02-15-04-05"))
}
