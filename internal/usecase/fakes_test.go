package usecase

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/semmidev/backdrop/internal/domain"
)

type fakeStore struct {
	entries   map[string][]domain.RemoteEntry
	uploadErr error
	listErr   error
	deleteErr map[string]error
	uploadAt  time.Time

	calls   []string
	deleted []string
}

func newFakeStore(dir string, entries ...domain.RemoteEntry) *fakeStore {
	return &fakeStore{
		entries:   map[string][]domain.RemoteEntry{dir: entries},
		deleteErr: map[string]error{},
		uploadAt:  time.Now(),
	}
}

func (f *fakeStore) Name() string { return "fake" }

func (f *fakeStore) Upload(ctx context.Context, localPath, remotePath string) (domain.RemoteEntry, error) {
	f.calls = append(f.calls, "upload")
	if f.uploadErr != nil {
		return domain.RemoteEntry{}, f.uploadErr
	}
	dir, name := path.Split(remotePath)
	dir = path.Clean(dir)
	for _, e := range f.entries[dir] {
		if e.Name == name {
			name = "copy-" + name
		}
	}
	entry := domain.RemoteEntry{Name: name, ModifiedAt: f.uploadAt}
	f.entries[dir] = append(f.entries[dir], entry)
	return entry, nil
}

func (f *fakeStore) List(ctx context.Context, dir string) ([]domain.RemoteEntry, error) {
	f.calls = append(f.calls, "list")
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.RemoteEntry, len(f.entries[dir]))
	copy(out, f.entries[dir])
	return out, nil
}

func (f *fakeStore) Delete(ctx context.Context, remotePath string) error {
	f.calls = append(f.calls, "delete")
	if err := f.deleteErr[remotePath]; err != nil {
		return err
	}
	dir, name := path.Split(remotePath)
	dir = path.Clean(dir)
	var kept []domain.RemoteEntry
	found := false
	for _, e := range f.entries[dir] {
		if e.Name == name {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	f.entries[dir] = kept
	if !found {
		return fmt.Errorf("not found: %s", remotePath)
	}
	f.deleted = append(f.deleted, remotePath)
	return nil
}

type fakeProducer struct {
	artifact  string
	createErr error
	pruneErr  error
	log       *[]string
}

func (p *fakeProducer) Create(ctx context.Context) (string, error) {
	*p.log = append(*p.log, "create")
	return p.artifact, p.createErr
}

func (p *fakeProducer) PruneLocal(ctx context.Context) error {
	*p.log = append(*p.log, "prune")
	return p.pruneErr
}

type recorder struct {
	lines []string
}

func (r *recorder) Success(format string, args ...interface{}) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *recorder) Notice(format string, args ...interface{}) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *recorder) Failure(format string, args ...interface{}) {
	r.lines = append(r.lines, "FAIL "+fmt.Sprintf(format, args...))
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Warnf(string, ...interface{})  {}

type fakeNotifier struct {
	events []domain.Event
	err    error
}

func (n *fakeNotifier) Notify(ctx context.Context, event domain.Event) error {
	n.events = append(n.events, event)
	return n.err
}

var errBoom = errors.New("boom")

// idStore holds objects that may share a name and deletes them by ID.
type idStore struct {
	fakeStore
	deletedIDs []string
}

func (s *idStore) Delete(ctx context.Context, remotePath string) error {
	return fmt.Errorf("delete by path is ambiguous: %s", remotePath)
}

func (s *idStore) DeleteEntry(ctx context.Context, dir string, entry domain.RemoteEntry) error {
	var kept []domain.RemoteEntry
	for _, e := range s.entries[dir] {
		if e.ID == entry.ID {
			s.deletedIDs = append(s.deletedIDs, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	s.entries[dir] = kept
	return nil
}
