package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docvault/internal/models"
)

func file(at int64, size int64) *models.FileRecord {
	return &models.FileRecord{Path: "p", ModTime: time.Unix(at, 0), Size: size}
}

func marker(at int64) *models.FileRecord {
	return &models.FileRecord{Path: "p", ModTime: time.Unix(at, 0), Size: 1, Deleted: true}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		local  *models.FileRecord
		remote *models.FileRecord
		keep   bool
		want   ActionKind
	}{
		{name: "nothing", want: ActionNone},
		{name: "local file only", local: file(1, 1), want: ActionUpload},
		{name: "remote file only", remote: file(1, 1), want: ActionDownload},
		{name: "local marker only", local: marker(1), want: ActionPushDeletion},
		{name: "local marker only kept", local: marker(1), keep: true, want: ActionNone},
		{name: "remote marker only", remote: marker(1), want: ActionNone},
		{name: "remote marker only kept", remote: marker(1), keep: true, want: ActionNone},
		{name: "local newer", local: file(2, 1), remote: file(1, 1), want: ActionUpload},
		{name: "remote newer", local: file(1, 1), remote: file(2, 1), want: ActionDownload},
		{name: "identical", local: file(1, 5), remote: file(1, 5), want: ActionNone},
		{name: "same second", local: &models.FileRecord{Path: "p", ModTime: time.Unix(1, 900), Size: 5}, remote: file(1, 5), want: ActionNone},
		{name: "size differs", local: file(1, 5), remote: file(1, 6), want: ActionUpload},
		{name: "file beats older remote marker", local: file(2, 1), remote: marker(1), want: ActionUpload},
		{name: "remote marker wins tie", local: file(1, 1), remote: marker(1), want: ActionApplyDeletion},
		{name: "remote marker newer", local: file(1, 1), remote: marker(2), want: ActionApplyDeletion},
		{name: "remote file beats older marker", local: marker(1), remote: file(2, 1), want: ActionDownload},
		{name: "local marker wins tie", local: marker(1), remote: file(1, 1), want: ActionPushDeletion},
		{name: "local marker newer", local: marker(2), remote: file(1, 1), want: ActionPushDeletion},
		{name: "both markers", local: marker(1), remote: marker(2), want: ActionDropMarker},
		{name: "both markers kept", local: marker(1), remote: marker(2), keep: true, want: ActionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.local, tt.remote, tt.keep)
			require.Equal(t, tt.want, got.Kind)
			if tt.want != ActionNone {
				assert.Equal(t, "p", got.Path)
			}
		})
	}
}

func TestDecideFlagsSizeMismatch(t *testing.T) {
	assert.True(t, Decide(file(1, 5), file(1, 6), false).SizeMismatch)
	assert.False(t, Decide(file(2, 5), file(1, 6), false).SizeMismatch, "newer mtime is not a size mismatch")
}

// A remote tombstone is never pulled down and dropped: other clients still
// have to see it.
func TestDecideLeavesRemoteOnlyMarker(t *testing.T) {
	for _, keep := range []bool{false, true} {
		got := Decide(nil, marker(5), keep)
		assert.Equal(t, ActionNone, got.Kind, "keep=%v", keep)
		assert.False(t, got.pushes(), "keep=%v", keep)
	}
	// The local-only marker is the one that travels.
	assert.Equal(t, ActionPushDeletion, Decide(marker(5), nil, false).Kind)
}

func TestDecideSymmetry(t *testing.T) {
	// Swapping sides swaps the direction of every transfer.
	mirror := map[ActionKind]ActionKind{
		ActionUpload:   ActionDownload,
		ActionDownload: ActionUpload,
		ActionNone:     ActionNone,
	}
	for _, pair := range [][2]*models.FileRecord{
		{file(1, 1), nil},
		{file(2, 1), file(1, 1)},
		{file(1, 1), file(1, 1)},
	} {
		a := Decide(pair[0], pair[1], false).Kind
		b := Decide(pair[1], pair[0], false).Kind
		assert.Equal(t, mirror[a], b, "asymmetric decision: %s vs %s", a, b)
	}
}
