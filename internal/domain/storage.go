package domain

import "context"

// RemoteStore is the cloud side of a backup run.
//
// Upload never overwrites: when remotePath is taken the store picks a free
// name and returns it in the entry. List returns every entry of dir, all
// pages concatenated, in the order the provider returned them.
type RemoteStore interface {
	Name() string
	Upload(ctx context.Context, localPath, remotePath string) (RemoteEntry, error)
	List(ctx context.Context, dir string) ([]RemoteEntry, error)
	Delete(ctx context.Context, remotePath string) error
}

// EntryDeleter is implemented by stores that allow several objects under one
// name, such as Google Drive. DeleteEntry removes exactly the listed entry,
// never another object that happens to share its name.
type EntryDeleter interface {
	DeleteEntry(ctx context.Context, dir string, entry RemoteEntry) error
}
