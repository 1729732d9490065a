package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/semmidev/backdrop/internal/domain"
)

// Sweeper deletes remote backups that have outlived the retention window.
type Sweeper struct {
	store    domain.RemoteStore
	logger   Logger
	reporter Reporter
	now      func() time.Time
}

type FailedDelete struct {
	Entry domain.RemoteEntry
	Err   error
}

type SweepReport struct {
	Dir     string
	Cutoff  time.Time
	Listed  int
	Skipped int
	Deleted []domain.RemoteEntry
	Failed  []FailedDelete
}

func NewSweeper(store domain.RemoteStore, logger Logger, reporter Reporter) *Sweeper {
	return &Sweeper{
		store:    store,
		logger:   logger,
		reporter: reporter,
		now:      time.Now,
	}
}

// WithClock replaces the time source used to compute the cutoff.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Run lists dir and sweeps the listing. A listing failure is returned
// wrapped in domain.ErrList and nothing is deleted.
func (s *Sweeper) Run(ctx context.Context, dir string, policy domain.RetentionPolicy) (*SweepReport, error) {
	entries, err := s.store.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("sweep %s on %s: %w", dir, s.store.Name(), wrapKind(domain.ErrList, "list", dir, err))
	}

	return s.Sweep(ctx, dir, entries, policy), nil
}

// Sweep deletes every entry that matches the policy suffix and was modified
// at or before now-Expiry. Entries are visited in listing order and the
// cutoff is fixed before the first one. A failed delete is recorded and the
// sweep moves on; the next run retries it.
func (s *Sweeper) Sweep(ctx context.Context, dir string, entries []domain.RemoteEntry, policy domain.RetentionPolicy) *SweepReport {
	report := &SweepReport{
		Dir:    dir,
		Cutoff: policy.Cutoff(s.now()),
		Listed: len(entries),
	}

	s.logger.Infof("Sweeping %d entr(ies) in %s on %s, cutoff %s",
		len(entries), dir, s.store.Name(), report.Cutoff.Format(time.RFC3339))

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			s.logger.Warnf("Sweep interrupted with %d entr(ies) left: %v", len(entries)-i, err)
			break
		}

		if !policy.Expired(entry, report.Cutoff) {
			report.Skipped++
			continue
		}

		path := domain.JoinRemote(dir, entry.Name)
		if err := s.delete(ctx, dir, path, entry); err != nil {
			err = wrapKind(domain.ErrDelete, "delete", path, err)
			s.logger.Errorf("Failed to delete %s from %s: %v", path, s.store.Name(), err)
			s.reporter.Failure("expired file could not be deleted: %s", entry.Name)
			report.Failed = append(report.Failed, FailedDelete{Entry: entry, Err: err})
			continue
		}

		report.Deleted = append(report.Deleted, entry)
		s.reporter.Notice("expired file deleted: %s", entry.Name)
	}

	s.logger.Infof("Deleted %d expired backup(s) from %s, %d failed",
		len(report.Deleted), s.store.Name(), len(report.Failed))

	return report
}

func (s *Sweeper) delete(ctx context.Context, dir, path string, entry domain.RemoteEntry) error {
	if d, ok := s.store.(domain.EntryDeleter); ok {
		return d.DeleteEntry(ctx, dir, entry)
	}
	return s.store.Delete(ctx, path)
}
