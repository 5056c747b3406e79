package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalCASSaveReadDelete(t *testing.T) {
	cas, err := NewLocalCAS(t.TempDir())
	if err != nil {
		t.Fatalf("new local cas: %v", err)
	}
	ctx := context.Background()

	hash, path, err := cas.Save(ctx, []byte("hello"), "tei")
	if err != nil {
		t.Fatalf("save first: %v", err)
	}
	if hash != Digest([]byte("hello")) {
		t.Fatalf("unexpected hash %q", hash)
	}
	want := filepath.Join(cas.Root(), "tei", hash[0:2], hash[2:4], hash)
	if path != want {
		t.Fatalf("expected path %s, got %s", want, path)
	}

	data, ok, err := cas.Read(ctx, hash, "tei")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !ok || string(data) != "hello" {
		t.Fatalf("expected hello, got ok=%v data=%q", ok, string(data))
	}

	removed, err := cas.Delete(ctx, hash, "tei")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !removed {
		t.Fatal("expected delete to remove blob")
	}
	removed, err = cas.Delete(ctx, hash, "tei")
	if err != nil {
		t.Fatalf("delete missing should be noop: %v", err)
	}
	if removed {
		t.Fatal("expected second delete to report nothing removed")
	}
}

func TestLocalCASSaveIsIdempotent(t *testing.T) {
	cas, err := NewLocalCAS(t.TempDir())
	if err != nil {
		t.Fatalf("new local cas: %v", err)
	}
	ctx := context.Background()

	first, firstPath, err := cas.Save(ctx, []byte("same bytes"), "pdf")
	if err != nil {
		t.Fatalf("save first: %v", err)
	}
	info, err := os.Stat(firstPath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	second, secondPath, err := cas.Save(ctx, []byte("same bytes"), "pdf")
	if err != nil {
		t.Fatalf("save second: %v", err)
	}
	if first != second || firstPath != secondPath {
		t.Fatalf("expected identical results: %s %s / %s %s", first, firstPath, second, secondPath)
	}
	again, err := os.Stat(secondPath)
	if err != nil {
		t.Fatalf("stat again: %v", err)
	}
	if !again.ModTime().Equal(info.ModTime()) {
		t.Fatal("expected existing blob to be left untouched")
	}

	count := 0
	if err := cas.Walk(ctx, func(BlobInfo) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("walk: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one physical blob, got %d", count)
	}

	tmpEntries, err := os.ReadDir(filepath.Join(cas.Root(), tmpDirName))
	if err != nil {
		t.Fatalf("read tmp: %v", err)
	}
	if len(tmpEntries) != 0 {
		t.Fatalf("expected tmp dir to be empty, got %d entries", len(tmpEntries))
	}
}

func TestLocalCASReadMissing(t *testing.T) {
	cas, err := NewLocalCAS(t.TempDir())
	if err != nil {
		t.Fatalf("new local cas: %v", err)
	}
	data, ok, err := cas.Read(context.Background(), Digest([]byte("nope")), "tei")
	if err != nil {
		t.Fatalf("read missing should not error: %v", err)
	}
	if ok || data != nil {
		t.Fatalf("expected miss, got ok=%v data=%q", ok, data)
	}
	exists, err := cas.Exists(context.Background(), Digest([]byte("nope")), "tei")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatal("expected blob to be absent")
	}
}

func TestLocalCASRejectsInvalidKeys(t *testing.T) {
	cas, err := NewLocalCAS(t.TempDir())
	if err != nil {
		t.Fatalf("new local cas: %v", err)
	}
	ctx := context.Background()

	if _, _, err := cas.Read(ctx, "../../etc/passwd", "tei"); err == nil {
		t.Fatal("expected invalid hash error")
	}
	if _, _, err := cas.Save(ctx, []byte("x"), "../tei"); err == nil {
		t.Fatal("expected invalid kind error")
	}
	if _, _, err := cas.Save(ctx, []byte("x"), "tmp"); err == nil {
		t.Fatal("expected reserved kind error")
	}
	if _, err := cas.Path(strings.Repeat("g", 64), "tei"); err == nil {
		t.Fatal("expected non-hex hash to be rejected")
	}
}

func TestLocalCASWalkAndStats(t *testing.T) {
	cas, err := NewLocalCAS(t.TempDir())
	if err != nil {
		t.Fatalf("new local cas: %v", err)
	}
	ctx := context.Background()

	for _, content := range []string{"a", "b", "c"} {
		if _, _, err := cas.Save(ctx, []byte(content), "tei"); err != nil {
			t.Fatalf("save %s: %v", content, err)
		}
	}
	if _, _, err := cas.Save(ctx, []byte("pdf-bytes"), "pdf"); err != nil {
		t.Fatalf("save pdf: %v", err)
	}
	// Stray files that are not blobs must be ignored.
	if err := os.WriteFile(filepath.Join(cas.Root(), "tei", "README"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write stray: %v", err)
	}

	stats, err := cas.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats["tei"].Blobs != 3 || stats["tei"].Bytes != 3 {
		t.Fatalf("unexpected tei stats: %#v", stats["tei"])
	}
	if stats["pdf"].Blobs != 1 || stats["pdf"].Bytes != int64(len("pdf-bytes")) {
		t.Fatalf("unexpected pdf stats: %#v", stats["pdf"])
	}
}
