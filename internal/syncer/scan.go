package syncer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"docvault/internal/models"
	"docvault/internal/replica"
)

// Snapshot maps logical paths to the state one replica holds for them.
type Snapshot map[string]models.FileRecord

// scanner lists a replica and folds files and tombstones into one record
// per logical path.
type scanner struct {
	fs      replica.FS
	side    string
	exclude func(name string) bool
	// onDiscard wraps the removal of a losing file (not marker).
	onDiscard func(ctx context.Context, path string, remove func() error) error
	logger    *slog.Logger
}

// scan returns the snapshot and the number of same-side conflicts it
// resolved. When a path has both a file and a marker the newer one wins,
// the marker on a tie, and the loser is deleted from the replica.
func (s scanner) scan(ctx context.Context) (Snapshot, int, error) {
	entries, err := s.fs.List(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", s.side, err)
	}

	out := make(Snapshot, len(entries))
	conflicts := 0
	for _, e := range entries {
		if s.exclude != nil && s.exclude(e.Name) {
			continue
		}
		rec := replica.Record(e)
		prev, seen := out[rec.Path]
		if !seen {
			out[rec.Path] = rec
			continue
		}
		if prev.Deleted == rec.Deleted {
			// Same name listed twice; keep the first.
			continue
		}

		conflicts++
		winner, loser := prev, rec
		if prefer(rec, prev) {
			winner, loser = rec, prev
		}
		s.logger.Warn("file and deletion marker on the same side",
			"side", s.side, "path", rec.Path, "kept", replica.FileName(winner))
		name := replica.FileName(loser)
		remove := func() error {
			if err := s.fs.Remove(ctx, name); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("remove %s %s: %w", s.side, name, err)
			}
			return nil
		}
		if !loser.Deleted && s.onDiscard != nil {
			err = s.onDiscard(ctx, loser.Path, remove)
		} else {
			err = remove()
		}
		if err != nil {
			return nil, 0, err
		}
		out[rec.Path] = winner
	}
	return out, conflicts, nil
}

// prefer reports whether a beats b for the same path on one side.
func prefer(a, b models.FileRecord) bool {
	if a.Unix() != b.Unix() {
		return a.Unix() > b.Unix()
	}
	return a.Deleted
}

func remoteExcluded(name string) bool {
	return name == VersionFile || name == LockFile
}
