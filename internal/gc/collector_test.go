package gc

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docvault/internal/blobstore"
	"docvault/internal/models"
	"docvault/internal/store"
)

type fixture struct {
	store *store.Store
	cas   *blobstore.LocalCAS
	gc    *Collector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "docvault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	cas, err := blobstore.NewLocalCAS(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)
	return &fixture{store: st, cas: cas, gc: NewCollector(st, st, cas, nil, nil)}
}

// save writes a document the way the storage service does: reference
// first, then bytes.
func (f *fixture) save(t *testing.T, path, content string) models.Document {
	t.Helper()
	ctx := context.Background()
	doc := models.Document{Path: path, Hash: blobstore.Digest([]byte(content)), Kind: "tei", SizeBytes: int64(len(content))}
	_, err := f.store.PutDocument(ctx, doc)
	require.NoError(t, err)
	_, _, err = f.cas.Save(ctx, []byte(content), "tei")
	require.NoError(t, err)
	return doc
}

func (f *fixture) blobExists(t *testing.T, hash string) bool {
	t.Helper()
	ok, err := f.cas.Exists(context.Background(), hash, "tei")
	require.NoError(t, err)
	return ok
}

func TestFullCleanup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	kept := f.save(t, "kept.xml", "kept")
	dropped := f.save(t, "dropped.xml", "dropped")
	_, err := f.store.MarkDocumentDeleted(ctx, dropped.Path, dropped.UpdatedAt)
	require.NoError(t, err)
	orphanHash, _, err := f.cas.Save(ctx, []byte("orphan"), "tei")
	require.NoError(t, err)

	plan, err := f.gc.Plan(ctx)
	require.NoError(t, err)
	require.Len(t, plan.ZeroRef, 1)
	require.Len(t, plan.Orphans, 1)
	assert.Equal(t, dropped.Hash, plan.ZeroRef[0].Hash)
	assert.Equal(t, orphanHash, plan.Orphans[0].Hash)

	report, err := f.gc.FullCleanup(ctx)
	require.NoError(t, err)

	assert.Equal(t, PhaseReport{Checked: 1, Deleted: 1}, report.ZeroRef)
	assert.Equal(t, PhaseReport{Checked: 1, Deleted: 1}, report.Orphans)
	assert.Equal(t, 2, report.Deleted())
	assert.True(t, f.blobExists(t, kept.Hash))
	assert.False(t, f.blobExists(t, dropped.Hash))
	assert.False(t, f.blobExists(t, orphanHash))

	entry, err := f.store.GetRef(ctx, dropped.Hash, "tei")
	require.NoError(t, err)
	assert.Nil(t, entry)

	again, err := f.gc.FullCleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Deleted())
}

func TestFullCleanupZeroRowWithoutBlob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	hash := blobstore.Digest([]byte("never written"))
	_, err := f.store.IncrementRef(ctx, hash, "tei")
	require.NoError(t, err)
	_, _, err = f.store.DecrementRef(ctx, hash, "tei")
	require.NoError(t, err)

	report, err := f.gc.FullCleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, PhaseReport{Checked: 1}, report.ZeroRef)

	entry, err := f.store.GetRef(ctx, hash, "tei")
	require.NoError(t, err)
	assert.Nil(t, entry, "row is dropped once there is nothing on disk")
}

type failingDeletes struct {
	blobstore.ContentStore
	hash string
}

func (f failingDeletes) Delete(ctx context.Context, hash, kind string) (bool, error) {
	if hash == f.hash {
		return false, errors.New("permission denied")
	}
	return f.ContentStore.Delete(ctx, hash, kind)
}

func TestFullCleanupKeepsRowWhenDeleteFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	stuck := f.save(t, "stuck.xml", "stuck")
	other := f.save(t, "other.xml", "other")
	for _, doc := range []models.Document{stuck, other} {
		_, err := f.store.MarkDocumentDeleted(ctx, doc.Path, doc.UpdatedAt)
		require.NoError(t, err)
	}

	collector := NewCollector(f.store, f.store, failingDeletes{ContentStore: f.cas, hash: stuck.Hash}, nil, nil)
	report, err := collector.FullCleanup(ctx)
	require.NoError(t, err)

	assert.Equal(t, PhaseReport{Checked: 2, Deleted: 1, Errors: 1}, report.ZeroRef)
	entry, err := f.store.GetRef(ctx, stuck.Hash, "tei")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Zero(t, entry.RefCount)
	assert.True(t, f.blobExists(t, stuck.Hash))
	assert.False(t, f.blobExists(t, other.Hash))
}

func TestRebuildFromAuthoritativeSource(t *testing.T) {
	a := models.RefKey{Hash: blobstore.Digest([]byte("a")), Kind: "tei"}
	b := models.RefKey{Hash: blobstore.Digest([]byte("b")), Kind: "pdf"}
	docs := []models.Document{
		{Path: "1", Hash: a.Hash, Kind: a.Kind},
		{Path: "2", Hash: a.Hash, Kind: a.Kind},
		{Path: "3", Hash: b.Hash, Kind: b.Kind},
		{Path: "4", Hash: b.Hash, Kind: b.Kind, Deleted: true},
	}

	got := RebuildFromAuthoritativeSource(docs)

	assert.Equal(t, map[models.RefKey]int{a: 2, b: 1}, got)
	assert.Empty(t, RebuildFromAuthoritativeSource(nil))
}

func TestAuditAndRepair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.save(t, "a.xml", "shared")
	f.save(t, "b.xml", "shared")

	// Drift the table: one extra reference and a row nothing points to.
	_, err := f.store.IncrementRef(ctx, doc.Hash, "tei")
	require.NoError(t, err)
	stray := blobstore.Digest([]byte("stray"))
	_, err = f.store.IncrementRef(ctx, stray, "tei")
	require.NoError(t, err)

	report, err := f.gc.Audit(ctx)
	require.NoError(t, err)
	assert.False(t, report.Clean())
	assert.Equal(t, 2, report.Documents)
	assert.ElementsMatch(t, []Discrepancy{
		{Key: models.RefKey{Hash: doc.Hash, Kind: "tei"}, Tracked: 3, Expected: 2},
		{Key: models.RefKey{Hash: stray, Kind: "tei"}, Tracked: 1, Expected: 0},
	}, report.Discrepancies)
	assert.Empty(t, report.MissingBlobs)

	_, err = f.gc.Repair(ctx)
	require.NoError(t, err)

	after, err := f.gc.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, after.Clean())

	// The stray row now sits at zero and is collectable.
	entry, err := f.store.GetRef(ctx, stray, "tei")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Zero(t, entry.RefCount)
}

func TestAuditReportsMissingBlobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.save(t, "a.xml", "content")
	_, err := f.cas.Delete(ctx, doc.Hash, "tei")
	require.NoError(t, err)

	report, err := f.gc.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Equal(t, []models.RefKey{{Hash: doc.Hash, Kind: "tei"}}, report.MissingBlobs)
}

func TestApplyManifestCounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.save(t, "a.xml", "content")
	key := models.RefKey{Hash: doc.Hash, Kind: "tei"}

	report, err := f.gc.Apply(ctx, map[models.RefKey]int{key: 4}, 4)
	require.NoError(t, err)
	require.Len(t, report.Discrepancies, 1)

	entry, err := f.store.GetRef(ctx, doc.Hash, "tei")
	require.NoError(t, err)
	assert.Equal(t, 4, entry.RefCount)
}
