package producer

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/semmidev/backdrop/internal/adapter/compressor"
	"github.com/semmidev/backdrop/internal/config"
	"github.com/semmidev/backdrop/internal/domain"
)

const (
	archiveExt      = ".tar"
	timestampLayout = "2006-01-02_15-04-05"
)

type Logger interface {
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// ArchiveProducer writes one tar archive per run holding database dumps
// under db/ and configured directories under files/.
type ArchiveProducer struct {
	name        string
	workDir     string
	localPath   string
	prefix      string
	compress    bool
	keepLocal   int
	localExpiry time.Duration
	directories []string
	databases   []domain.Database
	compressor  domain.Compressor
	logger      Logger
	now         func() time.Time
}

func New(cfg *config.ProducerConfig, databases []domain.Database, comp domain.Compressor, logger Logger) (*ArchiveProducer, error) {
	if err := os.MkdirAll(cfg.LocalPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	return &ArchiveProducer{
		name:        cfg.Name,
		workDir:     cfg.WorkDir,
		localPath:   cfg.LocalPath,
		prefix:      cfg.FilePrefix,
		compress:    cfg.Compress,
		keepLocal:   cfg.KeepLocal,
		localExpiry: cfg.LocalExpiry,
		directories: cfg.Directories,
		databases:   databases,
		compressor:  comp,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Create builds the archive in a temp file next to its final name and
// renames it into place, so a failed run never leaves a partial .tar.
func (p *ArchiveProducer) Create(ctx context.Context) (string, error) {
	target, err := p.archivePath()
	if err != nil {
		return "", domain.NewOpError(domain.ErrCreation, "name", p.localPath, err)
	}

	staging, err := os.MkdirTemp(p.workDir, "backdrop-")
	if err != nil {
		return "", domain.NewOpError(domain.ErrCreation, "staging", p.workDir, err)
	}
	defer os.RemoveAll(staging)

	tmp, err := os.CreateTemp(p.localPath, "."+filepath.Base(target)+".tmp-")
	if err != nil {
		return "", domain.NewOpError(domain.ErrCreation, "create", target, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := p.writeArchive(ctx, tmp, staging); err != nil {
		return "", domain.NewOpError(domain.ErrCreation, "write", target, err)
	}
	if err := tmp.Sync(); err != nil {
		return "", domain.NewOpError(domain.ErrCreation, "sync", target, err)
	}
	if err := tmp.Close(); err != nil {
		return "", domain.NewOpError(domain.ErrCreation, "close", target, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return "", domain.NewOpError(domain.ErrCreation, "rename", target, err)
	}
	committed = true

	if info, err := os.Stat(target); err == nil {
		p.logger.Infof("[%s] Archive written: %s (%.2f MB)", p.name, target, float64(info.Size())/(1024*1024))
	}
	return target, nil
}

func (p *ArchiveProducer) archivePath() (string, error) {
	stem := p.prefix + "_" + p.now().Format(timestampLayout)
	for n := 0; n < 100; n++ {
		name := stem
		if n > 0 {
			name = fmt.Sprintf("%s_%d", stem, n)
		}
		candidate := filepath.Join(p.localPath, name+archiveExt)
		if _, err := os.Lstat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free archive name for %s", stem)
}

func (p *ArchiveProducer) writeArchive(ctx context.Context, w io.Writer, staging string) error {
	tw := tar.NewWriter(w)

	for _, db := range p.databases {
		if err := ctx.Err(); err != nil {
			return err
		}
		dump, err := p.dumpDatabase(ctx, db, staging)
		if err != nil {
			return fmt.Errorf("database %s: %w", db.GetName(), err)
		}
		if err := addFile(tw, dump, path.Join("db", filepath.Base(dump))); err != nil {
			return err
		}
	}

	for _, dir := range p.directories {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.addDirectory(tw, dir); err != nil {
			return fmt.Errorf("directory %s: %w", dir, err)
		}
	}

	return tw.Close()
}

func (p *ArchiveProducer) dumpDatabase(ctx context.Context, db domain.Database, staging string) (string, error) {
	if err := db.Ping(ctx); err != nil {
		return "", err
	}

	dump := filepath.Join(staging, db.GetName()+db.Extension())
	p.logger.Infof("[%s] Dumping %s (%s)", p.name, db.GetName(), db.GetType())
	if err := db.Dump(ctx, dump); err != nil {
		return "", err
	}

	if !p.compress || db.Compressed() {
		return dump, nil
	}

	packed := dump + compressor.Extension
	if err := p.compressor.Compress(dump, packed); err != nil {
		return "", err
	}
	_ = os.Remove(dump)
	return packed, nil
}

// addDirectory stores dir under files/<base of dir>/. The local backup
// directory is skipped so archives never contain earlier archives.
func (p *ArchiveProducer) addDirectory(tw *tar.Writer, dir string) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	ownDir, err := filepath.Abs(p.localPath)
	if err != nil {
		return err
	}
	base := path.Join("files", filepath.Base(root))

	return filepath.WalkDir(root, func(current string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && current == ownDir {
			return filepath.SkipDir
		}

		rel, err := filepath.Rel(root, current)
		if err != nil {
			return err
		}
		name := path.Join(base, filepath.ToSlash(rel))

		info, err := d.Info()
		if err != nil {
			return err
		}

		link := ""
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(current); err != nil {
				return err
			}
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		header.Name = name
		if info.IsDir() {
			header.Name += "/"
		}

		if !info.Mode().IsRegular() {
			// Directories, symlinks; sockets and devices are skipped.
			if info.IsDir() || link != "" {
				return tw.WriteHeader(header)
			}
			return nil
		}
		return copyInto(tw, header, current)
	})
}

func addFile(tw *tar.Writer, source, name string) error {
	info, err := os.Stat(source)
	if err != nil {
		return err
	}
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = name
	return copyInto(tw, header, source)
}

// copyInto stores source under header, sized from the open handle. A file
// that shrinks while it is read is zero-padded and one that grows is cut at
// that size, so a live directory never fails the whole archive.
func copyInto(tw *tar.Writer, header *tar.Header, source string) error {
	f, err := os.Open(source)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	header.Size = info.Size()
	header.ModTime = info.ModTime()

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	if err := copySized(tw, f, header.Size); err != nil {
		return fmt.Errorf("copy %s: %w", source, err)
	}
	return nil
}

func copySized(w io.Writer, r io.Reader, size int64) error {
	n, err := io.Copy(w, io.LimitReader(r, size))
	if err != nil {
		return err
	}
	if n < size {
		_, err = io.CopyN(w, zeroReader{}, size-n)
	}
	return err
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

// isArchive reports whether name was written by this producer.
func (p *ArchiveProducer) isArchive(name string) bool {
	return strings.HasPrefix(name, p.prefix+"_") && strings.HasSuffix(name, archiveExt)
}
