package domain

import "context"

type Database interface {
	Dump(ctx context.Context, outputPath string) error
	GetName() string
	GetType() string
	// Extension of the dump file, including the leading dot.
	Extension() string
	// Compressed reports whether the dump tool already compresses its output.
	Compressed() bool
	Ping(ctx context.Context) error
}
