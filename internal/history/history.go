// Package history records accepted corrections and dictated utterances so
// the user can review what the daemon changed on their behalf.
//
// Two implementations exist: a bounded in-memory store used when no
// database is configured, and a PostgreSQL store with retention pruning.
package history

import (
	"context"
	"time"
)

// Kind labels the origin of a history entry.
type Kind string

const (
	// KindCorrection marks an accepted correction candidate.
	KindCorrection Kind = "correction"
	// KindDictation marks an injected dictation utterance.
	KindDictation Kind = "dictation"
)

// Entry is one recorded text change.
type Entry struct {
	// ID is assigned by the store.
	ID int64
	// Kind labels the entry's origin.
	Kind Kind
	// Source is the text before the change. Empty for dictation.
	Source string
	// Result is the text after the change.
	Result string
	// Tone names the candidate tone that produced Result, when known.
	Tone string
	// Version is the index of the accepted candidate within its round.
	Version int
	// Total is how many candidates the round produced.
	Total int
	// CreatedAt is when the change was recorded.
	CreatedAt time.Time
}

// Store persists history entries. Implementations must be safe for
// concurrent use.
type Store interface {
	// Record appends an entry. The store assigns ID and CreatedAt when
	// they are zero.
	Record(ctx context.Context, e Entry) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Prune deletes entries older than the retention period and reports
	// how many were removed.
	Prune(ctx context.Context, retention time.Duration) (int64, error)

	// Close releases the store's resources.
	Close() error
}

// DefaultRetention is how long entries are kept when pruning runs with no
// explicit configuration.
const DefaultRetention = time.Hour

// DefaultPruneInterval is how often [RunPruner] wakes up.
const DefaultPruneInterval = time.Hour

// RunPruner prunes s on a fixed interval until ctx is canceled. Prune
// failures are reported through onError (which may be nil) and do not stop
// the loop.
func RunPruner(ctx context.Context, s Store, interval, retention time.Duration, onError func(error)) {
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	if retention <= 0 {
		retention = DefaultRetention
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Prune(ctx, retention); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}
