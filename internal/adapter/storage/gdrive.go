package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/semmidev/backdrop/internal/config"
	"github.com/semmidev/backdrop/internal/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// GDriveStorage stores backups in a single Drive folder. Drive has no
// paths, so only the base name of a remote path is used.
type GDriveStorage struct {
	service  *drive.Service
	folderID string
}

func NewGDrive(ctx context.Context, cfg *config.GDriveConfig) (*GDriveStorage, error) {
	opt, err := gdriveAuth(ctx, cfg)
	if err != nil {
		return nil, err
	}

	service, err := drive.NewService(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &GDriveStorage{
		service:  service,
		folderID: cfg.FolderID,
	}, nil
}

// gdriveAuth prefers a service account key and falls back to an OAuth
// client with a token saved by "backdrop auth gdrive".
func gdriveAuth(ctx context.Context, cfg *config.GDriveConfig) (option.ClientOption, error) {
	if cfg.CredentialsFile != "" {
		return option.WithCredentialsFile(cfg.CredentialsFile), nil
	}

	secret, err := os.ReadFile(cfg.ClientSecretFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(secret, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret: %w", err)
	}

	raw, err := os.ReadFile(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read token file: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("unable to parse token file: %w", err)
	}

	return option.WithTokenSource(oauthCfg.TokenSource(ctx, &token)), nil
}

func (g *GDriveStorage) Name() string {
	return "gdrive"
}

func (g *GDriveStorage) Upload(ctx context.Context, localPath string, remotePath string) (domain.RemoteEntry, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return domain.RemoteEntry{}, domain.NewOpError(domain.ErrUpload, "open", localPath, err)
	}
	defer file.Close()

	target, err := freeName(ctx, "/"+path.Base(remotePath), g.exists)
	if err != nil {
		return domain.RemoteEntry{}, domain.NewOpError(domain.ErrUpload, "probe", remotePath, err)
	}

	fileMetadata := &drive.File{
		Name:    path.Base(target),
		Parents: []string{g.folderID},
	}

	created, err := g.service.Files.Create(fileMetadata).
		Media(file).
		Fields("id, name, modifiedTime").
		Context(ctx).
		Do()
	if err != nil {
		return domain.RemoteEntry{}, domain.NewOpError(domain.ErrUpload, "create", target, err)
	}

	entry, err := driveEntry(created)
	if err != nil {
		return domain.RemoteEntry{}, domain.NewOpError(domain.ErrUpload, "parse", target, err)
	}
	return entry, nil
}

func (g *GDriveStorage) exists(ctx context.Context, remotePath string) (bool, error) {
	ids, err := g.findIDs(ctx, path.Base(remotePath))
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

// List returns the files of the backup folder across every result page.
func (g *GDriveStorage) List(ctx context.Context, dir string) ([]domain.RemoteEntry, error) {
	query := fmt.Sprintf("'%s' in parents and trashed=false and mimeType != 'application/vnd.google-apps.folder'", g.folderID)

	var files []*drive.File
	err := g.service.Files.List().
		Q(query).
		Fields("nextPageToken, files(id, name, modifiedTime)").
		PageSize(1000).
		Context(ctx).
		Pages(ctx, func(page *drive.FileList) error {
			files = append(files, page.Files...)
			return nil
		})
	if err != nil {
		return nil, domain.NewOpError(domain.ErrList, "list files", dir, err)
	}

	entries := make([]domain.RemoteEntry, 0, len(files))
	for _, f := range files {
		entry, err := driveEntry(f)
		if err != nil {
			return nil, domain.NewOpError(domain.ErrList, "parse listing", dir, err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// Delete removes the single file named like remotePath. Drive allows
// duplicate names, so more than one match is an error rather than a guess.
func (g *GDriveStorage) Delete(ctx context.Context, remotePath string) error {
	ids, err := g.findIDs(ctx, path.Base(remotePath))
	if err != nil {
		return domain.NewOpError(domain.ErrDelete, "find", remotePath, err)
	}
	switch len(ids) {
	case 0:
		return domain.NewOpError(domain.ErrDelete, "find", remotePath, os.ErrNotExist)
	case 1:
	default:
		return domain.NewOpError(domain.ErrDelete, "find", remotePath,
			fmt.Errorf("%d files share this name", len(ids)))
	}

	return g.deleteID(ctx, remotePath, ids[0])
}

// DeleteEntry removes the file a listing returned, by its Drive ID.
func (g *GDriveStorage) DeleteEntry(ctx context.Context, dir string, entry domain.RemoteEntry) error {
	remotePath := domain.JoinRemote(dir, entry.Name)
	if entry.ID == "" {
		return g.Delete(ctx, remotePath)
	}
	return g.deleteID(ctx, remotePath, entry.ID)
}

func (g *GDriveStorage) deleteID(ctx context.Context, remotePath, id string) error {
	if err := g.service.Files.Delete(id).Context(ctx).Do(); err != nil {
		return domain.NewOpError(domain.ErrDelete, "delete", remotePath, err)
	}
	return nil
}

func (g *GDriveStorage) findIDs(ctx context.Context, name string) ([]string, error) {
	query := fmt.Sprintf("'%s' in parents and name='%s' and trashed=false", g.folderID, driveQuote(name))

	fileList, err := g.service.Files.List().
		Q(query).
		Fields("files(id)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(fileList.Files))
	for _, f := range fileList.Files {
		ids = append(ids, f.Id)
	}
	return ids, nil
}

func driveEntry(f *drive.File) (domain.RemoteEntry, error) {
	modified, err := time.Parse(time.RFC3339, f.ModifiedTime)
	if err != nil {
		return domain.RemoteEntry{}, fmt.Errorf("file %q has malformed modifiedTime %q: %w", f.Name, f.ModifiedTime, err)
	}
	return domain.RemoteEntry{Name: f.Name, ModifiedAt: modified, ID: f.Id}, nil
}

func driveQuote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
