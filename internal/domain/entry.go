package domain

import (
	"strings"
	"time"
)

const DefaultMatchSuffix = ".tar"

// RemoteEntry is one object currently stored in the remote backup directory.
type RemoteEntry struct {
	Name       string
	ModifiedAt time.Time

	// ID is the provider's own handle for the object, set by stores where a
	// name does not identify a single object. Empty otherwise.
	ID string
}

// RetentionPolicy decides which remote backups are junk.
type RetentionPolicy struct {
	Expiry      time.Duration
	MatchSuffix string
	AutoDelete  bool
}

// Cutoff returns the newest modification time that is still considered expired.
func (p RetentionPolicy) Cutoff(now time.Time) time.Time {
	return now.Add(-p.Expiry)
}

// Matches reports whether name follows the backup naming convention.
func (p RetentionPolicy) Matches(name string) bool {
	return strings.HasSuffix(name, p.MatchSuffix)
}

// Expired reports whether e must be deleted for the given cutoff.
// The boundary is inclusive: an entry modified exactly at cutoff is expired.
func (p RetentionPolicy) Expired(e RemoteEntry, cutoff time.Time) bool {
	return p.Matches(e.Name) && !e.ModifiedAt.After(cutoff)
}

// JoinRemote joins a remote directory and a file name with exactly one slash.
func JoinRemote(dir, name string) string {
	dir = strings.TrimRight(dir, "/")
	name = strings.TrimLeft(name, "/")
	if dir == "" {
		return "/" + name
	}
	return dir + "/" + name
}
