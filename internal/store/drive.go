package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ppiankov/factharvest/internal/model"
)

const csvMimeType = "text/csv"

// driveFiles is the part of the Drive API the store needs
type driveFiles interface {
	Find(ctx context.Context, folderID, name string) (id string, found bool, err error)
	Download(ctx context.Context, id string) (io.ReadCloser, error)
	Create(ctx context.Context, folderID, name string, content io.Reader) error
	Update(ctx context.Context, id string, content io.Reader) error
}

// DriveStore keeps the corpus as a CSV file in a Google Drive folder
type DriveStore struct {
	files    driveFiles
	folderID string
	fileName string
}

// NewDriveStore connects to Drive with the service account credentials
// file, or with application default credentials when none is configured
func NewDriveStore(ctx context.Context, cfg model.DriveStoreConfig) (*DriveStore, error) {
	opts := []option.ClientOption{option.WithScopes(drive.DriveScope)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return newDriveStore(&driveService{svc: svc}, cfg), nil
}

func newDriveStore(files driveFiles, cfg model.DriveStoreConfig) *DriveStore {
	return &DriveStore{files: files, folderID: cfg.FolderID, fileName: cfg.FileName}
}

// ReadAll downloads and decodes the corpus file; a missing file is an
// empty corpus
func (s *DriveStore) ReadAll(ctx context.Context) ([]model.Row, error) {
	id, found, err := s.files.Find(ctx, s.folderID, s.fileName)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", s.fileName, err)
	}
	if !found {
		return nil, nil
	}

	body, err := s.files.Download(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", s.fileName, err)
	}
	defer func() { _ = body.Close() }()

	return DecodeRows(body)
}

// WriteAll uploads the whole corpus as a single media upload, replacing the
// file content or creating the file
func (s *DriveStore) WriteAll(ctx context.Context, rows []model.Row) error {
	var buf bytes.Buffer
	if err := EncodeRows(&buf, rows); err != nil {
		return err
	}

	id, found, err := s.files.Find(ctx, s.folderID, s.fileName)
	if err != nil {
		return fmt.Errorf("find %s: %w", s.fileName, err)
	}
	if found {
		if err := s.files.Update(ctx, id, &buf); err != nil {
			return fmt.Errorf("update %s: %w", s.fileName, err)
		}
		return nil
	}
	if err := s.files.Create(ctx, s.folderID, s.fileName, &buf); err != nil {
		return fmt.Errorf("create %s: %w", s.fileName, err)
	}
	return nil
}

func (s *DriveStore) Close() error { return nil }

// driveService adapts *drive.Service to driveFiles
type driveService struct {
	svc *drive.Service
}

func (d *driveService) Find(ctx context.Context, folderID, name string) (string, bool, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		escapeQuery(name), escapeQuery(folderID))
	list, err := d.svc.Files.List().
		Q(q).
		Fields("files(id, name)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", false, err
	}
	if len(list.Files) == 0 {
		return "", false, nil
	}
	return list.Files[0].Id, true, nil
}

func (d *driveService) Download(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := d.svc.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (d *driveService) Create(ctx context.Context, folderID, name string, content io.Reader) error {
	file := &drive.File{
		Name:     name,
		Parents:  []string{folderID},
		MimeType: csvMimeType,
	}
	_, err := d.svc.Files.Create(file).
		Media(content, googleapi.ContentType(csvMimeType)).
		Context(ctx).
		Do()
	return err
}

func (d *driveService) Update(ctx context.Context, id string, content io.Reader) error {
	_, err := d.svc.Files.Update(id, &drive.File{}).
		Media(content, googleapi.ContentType(csvMimeType)).
		Context(ctx).
		Do()
	return err
}

// escapeQuery escapes a literal for the Drive files.list query language
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
