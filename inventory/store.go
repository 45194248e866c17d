package inventory

import "context"

// Store persists whole-dataset snapshots. The engine itself never touches
// storage; callers load a snapshot at startup, hand it to Ingest, and save
// Snapshot() after every successful command.
type Store interface {
	// Load returns the last saved dataset, or nil when nothing was saved yet.
	Load(ctx context.Context) (*Dataset, error)
	// Save replaces the stored dataset.
	Save(ctx context.Context, ds *Dataset) error
}
