package store

import (
	"context"
	"testing"
	"time"

	"docvault/internal/models"
)

func TestStoreInfo(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now()

	info, err := st.StoreInfo(ctx, time.Minute)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.SchemaVersion == 0 {
		t.Fatal("expected non-zero schema version")
	}
	if info.LiveDocuments != 0 || info.RefEntries != 0 {
		t.Fatalf("expected empty store, got %#v", info)
	}

	for _, doc := range []models.Document{
		{Path: "a.xml", Hash: testHash("a"), Kind: "tei"},
		{Path: "b.xml", Hash: testHash("a"), Kind: "tei"},
		{Path: "c.pdf", Hash: testHash("b"), Kind: "pdf"},
	} {
		if _, err := st.PutDocument(ctx, doc); err != nil {
			t.Fatalf("put %s: %v", doc.Path, err)
		}
	}
	if _, err := st.MarkDocumentDeleted(ctx, "c.pdf", now); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.AcquireLock(ctx, "a.xml", "s1", now.Add(-time.Hour), time.Minute); err != nil {
		t.Fatalf("acquire stale: %v", err)
	}
	if _, err := st.AcquireLock(ctx, "b.xml", "s1", now, time.Minute); err != nil {
		t.Fatalf("acquire fresh: %v", err)
	}

	info, err = st.StoreInfo(ctx, time.Minute)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.LiveDocuments != 2 || info.DeletedDocuments != 1 {
		t.Fatalf("unexpected document counts %#v", info)
	}
	if info.RefEntries != 2 || info.ZeroRefEntries != 1 || info.TotalRefs != 2 {
		t.Fatalf("unexpected ref counts %#v", info)
	}
	if info.Locks != 2 || info.StaleLocks != 1 {
		t.Fatalf("unexpected lock counts %#v", info)
	}
}
