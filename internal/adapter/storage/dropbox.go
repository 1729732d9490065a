package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/semmidev/backdrop/internal/config"
	"github.com/semmidev/backdrop/internal/domain"
	"golang.org/x/oauth2"
)

// Files above this size go through an upload session; single requests are
// capped at 150 MiB by the API.
const (
	dropboxSessionThreshold = 128 << 20
	dropboxChunkSize        = 64 << 20
)

type DropboxStorage struct {
	client           files.Client
	sessionThreshold int64
	chunkSize        int64
}

func NewDropbox(ctx context.Context, cfg *config.DropboxConfig) (*DropboxStorage, error) {
	return newDropbox(ctx, cfg, dropbox.OAuthEndpoint(""), nil)
}

// newDropbox builds the client against the given OAuth endpoint. A nil
// urls keeps the SDK's production hosts.
func newDropbox(ctx context.Context, cfg *config.DropboxConfig, endpoint oauth2.Endpoint, urls func(hostType, namespace, route string) string) (*DropboxStorage, error) {
	if cfg.AppKey == "" || cfg.AppSecret == "" || cfg.AccessToken == "" {
		return nil, fmt.Errorf("%w: dropbox app key, app secret and access token are required", domain.ErrConfiguration)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.AppKey,
		ClientSecret: cfg.AppSecret,
		Endpoint:     endpoint,
	}

	token := &oauth2.Token{AccessToken: cfg.AccessToken}
	if cfg.RefreshToken != "" {
		// The configured access token has no known expiry. Treat it as
		// expired so the first request exchanges the refresh token.
		token.RefreshToken = cfg.RefreshToken
		token.Expiry = time.Now()
	}

	dbxCfg := dropbox.Config{
		Token:        cfg.AccessToken,
		LogLevel:     dropbox.LogOff,
		Client:       oauth2.NewClient(ctx, oauthCfg.TokenSource(ctx, token)),
		URLGenerator: urls,
	}

	return &DropboxStorage{
		client:           files.New(dbxCfg),
		sessionThreshold: dropboxSessionThreshold,
		chunkSize:        dropboxChunkSize,
	}, nil
}

func (d *DropboxStorage) Name() string {
	return "dropbox"
}

// Upload adds the file under remotePath. Dropbox itself picks "name (1).tar"
// when the path is taken.
func (d *DropboxStorage) Upload(ctx context.Context, localPath string, remotePath string) (domain.RemoteEntry, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return domain.RemoteEntry{}, domain.NewOpError(domain.ErrUpload, "open", localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return domain.RemoteEntry{}, domain.NewOpError(domain.ErrUpload, "stat", localPath, err)
	}

	commit := files.NewCommitInfo(remotePath)
	commit.Autorename = true
	commit.Mode = &files.WriteMode{Tagged: dropbox.Tagged{Tag: files.WriteModeAdd}}

	var meta *files.FileMetadata
	if info.Size() > d.sessionThreshold {
		meta, err = d.uploadSession(ctx, file, info.Size(), commit)
	} else {
		arg := files.NewUploadArg(remotePath)
		arg.CommitInfo = *commit
		meta, err = d.client.Upload(arg, file)
	}
	if err != nil {
		return domain.RemoteEntry{}, domain.NewOpError(domain.ErrUpload, "upload", remotePath, err)
	}

	return fileEntry(meta)
}

func (d *DropboxStorage) uploadSession(ctx context.Context, file io.Reader, size int64, commit *files.CommitInfo) (*files.FileMetadata, error) {
	start, err := d.client.UploadSessionStart(files.NewUploadSessionStartArg(), io.LimitReader(file, d.chunkSize))
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	offset := d.chunkSize
	for offset+d.chunkSize < size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cursor := files.NewUploadSessionCursor(start.SessionId, uint64(offset))
		if err := d.client.UploadSessionAppendV2(files.NewUploadSessionAppendArg(cursor), io.LimitReader(file, d.chunkSize)); err != nil {
			return nil, fmt.Errorf("append at %d: %w", offset, err)
		}
		offset += d.chunkSize
	}

	cursor := files.NewUploadSessionCursor(start.SessionId, uint64(offset))
	meta, err := d.client.UploadSessionFinish(files.NewUploadSessionFinishArg(cursor, commit), file)
	if err != nil {
		return nil, fmt.Errorf("finish session: %w", err)
	}
	return meta, nil
}

// List returns the files of dir, following the cursor until every page has
// been read.
func (d *DropboxStorage) List(ctx context.Context, dir string) ([]domain.RemoteEntry, error) {
	res, err := d.client.ListFolder(files.NewListFolderArg(dropboxFolder(dir)))
	if err != nil {
		return nil, domain.NewOpError(domain.ErrList, "list folder", dir, err)
	}

	items := res.Entries
	for res.HasMore {
		if err := ctx.Err(); err != nil {
			return nil, domain.NewOpError(domain.ErrList, "list folder", dir, err)
		}
		res, err = d.client.ListFolderContinue(files.NewListFolderContinueArg(res.Cursor))
		if err != nil {
			return nil, domain.NewOpError(domain.ErrList, "list folder continue", dir, err)
		}
		items = append(items, res.Entries...)
	}

	entries, err := dropboxEntries(items)
	if err != nil {
		return nil, domain.NewOpError(domain.ErrList, "parse listing", dir, err)
	}
	return entries, nil
}

func (d *DropboxStorage) Delete(ctx context.Context, remotePath string) error {
	if _, err := d.client.DeleteV2(files.NewDeleteArg(remotePath)); err != nil {
		return domain.NewOpError(domain.ErrDelete, "delete", remotePath, err)
	}
	return nil
}

// dropboxEntries keeps the files of a listing in order and drops folders
// and deleted markers.
func dropboxEntries(items []files.IsMetadata) ([]domain.RemoteEntry, error) {
	entries := make([]domain.RemoteEntry, 0, len(items))
	for _, item := range items {
		meta, ok := item.(*files.FileMetadata)
		if !ok {
			continue
		}
		entry, err := fileEntry(meta)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func fileEntry(meta *files.FileMetadata) (domain.RemoteEntry, error) {
	if meta == nil {
		return domain.RemoteEntry{}, errors.New("empty file metadata")
	}
	if meta.ServerModified.IsZero() {
		return domain.RemoteEntry{}, fmt.Errorf("file %q has no server_modified time", meta.Name)
	}
	return domain.RemoteEntry{Name: meta.Name, ModifiedAt: meta.ServerModified}, nil
}

// dropboxFolder converts a remote directory to the API form, where the root
// folder is the empty string.
func dropboxFolder(dir string) string {
	if dir == "/" {
		return ""
	}
	return dir
}
