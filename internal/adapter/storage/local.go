package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/semmidev/backdrop/internal/domain"
)

// LocalStorage treats a directory on disk (a NAS mount, a second drive) as
// the remote side.
type LocalStorage struct {
	basePath string
}

func NewLocal(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (l *LocalStorage) Name() string {
	return "local"
}

func (l *LocalStorage) Upload(ctx context.Context, localPath string, remotePath string) (domain.RemoteEntry, error) {
	source, err := os.Open(localPath)
	if err != nil {
		return domain.RemoteEntry{}, domain.NewOpError(domain.ErrUpload, "open", localPath, err)
	}
	defer source.Close()

	if err := os.MkdirAll(l.resolve(path.Dir(remotePath)), 0755); err != nil {
		return domain.RemoteEntry{}, domain.NewOpError(domain.ErrUpload, "mkdir", path.Dir(remotePath), err)
	}

	// O_EXCL makes the existence check and the create one step.
	dir, name := path.Split(remotePath)
	for n := 0; n < maxRenameAttempts; n++ {
		candidate := dir + conflictName(name, n)
		dest, err := os.OpenFile(l.resolve(candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return domain.RemoteEntry{}, domain.NewOpError(domain.ErrUpload, "create", candidate, err)
		}
		return l.copyInto(dest, source, candidate)
	}

	return domain.RemoteEntry{}, domain.NewOpError(domain.ErrUpload, "upload", remotePath,
		fmt.Errorf("no free name after %d attempts", maxRenameAttempts))
}

func (l *LocalStorage) copyInto(dest *os.File, source io.Reader, remotePath string) (domain.RemoteEntry, error) {
	fail := func(err error) (domain.RemoteEntry, error) {
		_ = dest.Close()
		_ = os.Remove(dest.Name())
		return domain.RemoteEntry{}, domain.NewOpError(domain.ErrUpload, "copy", remotePath, err)
	}

	if _, err := io.Copy(dest, source); err != nil {
		return fail(err)
	}
	if err := dest.Sync(); err != nil {
		return fail(err)
	}
	info, err := dest.Stat()
	if err != nil {
		return fail(err)
	}
	if err := dest.Close(); err != nil {
		return domain.RemoteEntry{}, domain.NewOpError(domain.ErrUpload, "close", remotePath, err)
	}

	return domain.RemoteEntry{Name: path.Base(remotePath), ModifiedAt: info.ModTime()}, nil
}

func (l *LocalStorage) List(ctx context.Context, dir string) ([]domain.RemoteEntry, error) {
	entries, err := os.ReadDir(l.resolve(dir))
	if err != nil {
		return nil, domain.NewOpError(domain.ErrList, "read dir", dir, err)
	}

	files := make([]domain.RemoteEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if errors.Is(err, fs.ErrNotExist) {
			// Removed between ReadDir and Info.
			continue
		}
		if err != nil {
			return nil, domain.NewOpError(domain.ErrList, "stat", path.Join(dir, entry.Name()), err)
		}
		files = append(files, domain.RemoteEntry{Name: entry.Name(), ModifiedAt: info.ModTime()})
	}

	return files, nil
}

func (l *LocalStorage) Delete(ctx context.Context, remotePath string) error {
	if err := os.Remove(l.resolve(remotePath)); err != nil {
		return domain.NewOpError(domain.ErrDelete, "remove", remotePath, err)
	}
	return nil
}

// resolve maps a slash-separated remote path below basePath. Cleaning it
// as an absolute path first keeps ".." from escaping the base.
func (l *LocalStorage) resolve(remotePath string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(path.Clean("/"+remotePath)))
}
