package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"docvault/internal/blobstore"
	"docvault/internal/models"
	"docvault/internal/replica"
	"docvault/internal/store"
)

// SaveFile stores content as the live version of path. The reference is
// taken before the bytes are written, so a concurrent garbage collection
// never removes a blob that is about to be used. An empty kind is guessed
// from the extension.
func (s *Service) SaveFile(ctx context.Context, path, kind string, content []byte) (*models.Document, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	if kind, err = resolveKind(p, kind); err != nil {
		return nil, err
	}
	unlock := s.lockPath(p)
	defer unlock()

	doc, err := s.storeContent(ctx, p, kind, content)
	if err != nil {
		return nil, err
	}
	if err := s.tree.Write(ctx, p, content); err != nil {
		return nil, fmt.Errorf("write document tree: %w", err)
	}
	if err := s.tree.Remove(ctx, replica.MarkerName(p)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove deletion marker: %w", err)
	}
	if err := s.state.MarkDirty(ctx); err != nil {
		return nil, err
	}

	s.logger.Debug("file saved", "path", p, "kind", kind, "hash", doc.Hash, "size", doc.SizeBytes)
	return doc, nil
}

// storeContent records the document and writes its blob. If the write
// fails the previous document is put back, which also returns the
// reference.
func (s *Service) storeContent(ctx context.Context, p, kind string, content []byte) (*models.Document, error) {
	hash := blobstore.Digest(content)
	// Only feeds the dedup metric; a failing stat shows up again in Save.
	dedup, _ := s.blobs.Exists(ctx, hash, kind)

	change, err := s.store.PutDocument(ctx, models.Document{
		Path:      p,
		Hash:      hash,
		Kind:      kind,
		SizeBytes: int64(len(content)),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("record document: %w", err)
	}
	s.warnUnderflow(change)

	if _, _, err := s.blobs.Save(ctx, content, kind); err != nil {
		restore, rerr := s.store.RestoreDocument(context.WithoutCancel(ctx), p, change.Previous)
		if rerr != nil {
			s.logger.Error("could not restore document after failed blob write", "path", p, "err", rerr)
		} else {
			s.warnUnderflow(restore)
		}
		return nil, fmt.Errorf("write blob: %w", err)
	}

	s.metrics.RecordSave(len(content), dedup)
	return change.Current, nil
}

// ReadFile returns the live content of path.
func (s *Service) ReadFile(ctx context.Context, path string) ([]byte, *models.Document, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.store.GetDocument(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	if doc == nil || doc.Deleted {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	data, ok, err := s.blobs.Read(ctx, doc.Hash, doc.Kind)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		s.logger.Warn("live document has no blob", "path", p, "hash", doc.Hash, "kind", doc.Kind)
		return nil, nil, fmt.Errorf("%w: %s", ErrBlobMissing, p)
	}
	return data, doc, nil
}

// DeleteFile tombstones path, releases its reference, and replaces the tree
// file with a deletion marker.
func (s *Service) DeleteFile(ctx context.Context, path string) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	unlock := s.lockPath(p)
	defer unlock()

	now := time.Now().UTC()
	change, err := s.store.MarkDocumentDeleted(ctx, p, now)
	if err != nil {
		return err
	}
	if change.Previous == nil || change.Previous.Deleted {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	s.warnUnderflow(change)
	s.metrics.RecordDelete()

	if err := s.tree.Remove(ctx, p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove from document tree: %w", err)
	}
	if err := s.tree.Write(ctx, replica.MarkerName(p), replica.MarkerContent(now)); err != nil {
		return fmt.Errorf("write deletion marker: %w", err)
	}
	if err := s.state.MarkDirty(ctx); err != nil {
		return err
	}

	s.logger.Debug("file deleted", "path", p)
	return nil
}

// FileExists reports whether path has a live document.
func (s *Service) FileExists(ctx context.Context, path string) (bool, error) {
	p, err := cleanPath(path)
	if err != nil {
		return false, err
	}
	doc, err := s.store.GetDocument(ctx, p)
	if err != nil {
		return false, err
	}
	return doc != nil && !doc.Deleted, nil
}

// StatFile returns the document record of a live path.
func (s *Service) StatFile(ctx context.Context, path string) (*models.Document, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	doc, err := s.store.GetDocument(ctx, p)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.Deleted {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return doc, nil
}

// ListFiles returns document records ordered by path.
func (s *Service) ListFiles(ctx context.Context, includeDeleted bool) ([]models.Document, error) {
	return s.store.ListDocuments(ctx, includeDeleted)
}

// warnUnderflow logs decrements that found nothing to release. They point
// at drift between documents and the reference table, which AuditRefs
// reports and RepairRefs fixes.
func (s *Service) warnUnderflow(change store.DocumentChange) {
	if len(change.Underflow) == 0 {
		return
	}
	s.metrics.RecordUnderflow(len(change.Underflow))
	for _, key := range change.Underflow {
		s.logger.Warn("reference count underflow", "component", "refs", "hash", key.Hash, "kind", key.Kind)
	}
}

// treeObserver keeps document records in step with changes the sync engine
// makes to the local tree. The tree change runs under the path lock, after
// the record is updated, so a SaveFile on the same path cannot land between
// the two.
type treeObserver struct {
	s *Service
}

func (o treeObserver) Downloaded(ctx context.Context, path string, content []byte, write func() error) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	unlock := o.s.lockPath(p)
	defer unlock()

	kind := KindForPath(p)
	existing, err := o.s.store.GetDocument(ctx, p)
	if err != nil {
		return err
	}
	if existing != nil {
		kind = existing.Kind
	}
	if _, err := o.s.storeContent(ctx, p, kind, content); err != nil {
		return err
	}
	return write()
}

func (o treeObserver) RemovedLocal(ctx context.Context, path string, remove func() error) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	unlock := o.s.lockPath(p)
	defer unlock()
	change, err := o.s.store.MarkDocumentDeleted(ctx, p, time.Now().UTC())
	if err != nil {
		return err
	}
	o.s.warnUnderflow(change)
	if change.Previous != nil && !change.Previous.Deleted {
		o.s.metrics.RecordDelete()
	}
	return remove()
}
