package domain

import "context"

// Producer creates backup archives on local disk and prunes old local copies.
type Producer interface {
	Create(ctx context.Context) (string, error)
	PruneLocal(ctx context.Context) error
}

// Compressor packs single dump files before they go into an archive.
// Decompress is the inverse.
type Compressor interface {
	Compress(sourcePath, destPath string) error
	Decompress(sourcePath, destPath string) error
}
