package producer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

type localArchive struct {
	path    string
	modTime time.Time
}

// PruneLocal removes local archives that are both beyond the newest
// keepLocal and older than localExpiry. A zero localExpiry drops the age
// condition.
func (p *ArchiveProducer) PruneLocal(ctx context.Context) error {
	archives, err := p.localArchives()
	if err != nil {
		return err
	}

	// newest first
	sort.Slice(archives, func(i, j int) bool {
		return archives[i].modTime.After(archives[j].modTime)
	})

	cutoff := p.now().Add(-p.localExpiry)

	var errs []error
	removed := 0
	for i, a := range archives {
		if i < p.keepLocal {
			continue
		}
		if p.localExpiry > 0 && a.modTime.After(cutoff) {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := os.Remove(a.path); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", a.path, err))
			continue
		}
		removed++
		p.logger.Infof("[%s] Removed local backup %s", p.name, filepath.Base(a.path))
	}

	p.logger.Infof("[%s] Local prune removed %d of %d archive(s)", p.name, removed, len(archives))
	return errors.Join(errs...)
}

func (p *ArchiveProducer) localArchives() ([]localArchive, error) {
	entries, err := os.ReadDir(p.localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var archives []localArchive
	for _, entry := range entries {
		if entry.IsDir() || !p.isArchive(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			p.logger.Warnf("[%s] Skipping %s: %v", p.name, entry.Name(), err)
			continue
		}
		archives = append(archives, localArchive{
			path:    filepath.Join(p.localPath, entry.Name()),
			modTime: info.ModTime(),
		})
	}
	return archives, nil
}
