package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// maxRenameAttempts bounds the search for a free name on conflict.
const maxRenameAttempts = 1000

// conflictName returns the n-th alternative for name: "db.tar" becomes
// "db (1).tar", "db (2).tar" and so on.
func conflictName(name string, n int) string {
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s (%d)%s", base, n, ext)
}

// freeName probes remotePath and its conflict alternatives until exists
// reports a free one.
func freeName(ctx context.Context, remotePath string, exists func(context.Context, string) (bool, error)) (string, error) {
	dir, name := path.Split(remotePath)
	for n := 0; n < maxRenameAttempts; n++ {
		candidate := dir + conflictName(name, n)
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name for %s after %d attempts", remotePath, maxRenameAttempts)
}
