package store

import (
	"context"
	"time"
)

// StoreInfo summarizes the database for the info command.
type StoreInfo struct {
	SchemaVersion    int   `json:"schema_version"`
	LiveDocuments    int   `json:"live_documents"`
	DeletedDocuments int   `json:"deleted_documents"`
	RefEntries       int   `json:"ref_entries"`
	ZeroRefEntries   int   `json:"zero_ref_entries"`
	TotalRefs        int64 `json:"total_refs"`
	Locks            int   `json:"locks"`
	StaleLocks       int   `json:"stale_locks"`
	Sessions         int   `json:"sessions"`
}

// StoreInfo returns row counts. Locks older than lockTimeout are counted
// as stale.
func (s *Store) StoreInfo(ctx context.Context, lockTimeout time.Duration) (*StoreInfo, error) {
	info := &StoreInfo{}

	version, err := currentVersion(s.db)
	if err != nil {
		return nil, err
	}
	info.SchemaVersion = version

	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(deleted = 0), 0), COALESCE(SUM(deleted != 0), 0) FROM documents",
	).Scan(&info.LiveDocuments, &info.DeletedDocuments); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(ref_count = 0), 0), COALESCE(SUM(ref_count), 0) FROM blob_refs",
	).Scan(&info.RefEntries, &info.ZeroRefEntries, &info.TotalRefs); err != nil {
		return nil, err
	}
	cutoff := nanos(time.Now().Add(-lockTimeout))
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(updated_at < ?), 0) FROM file_locks", cutoff,
	).Scan(&info.Locks, &info.StaleLocks); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&info.Sessions); err != nil {
		return nil, err
	}
	return info, nil
}
