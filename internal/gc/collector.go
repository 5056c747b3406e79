// Package gc removes blobs nothing refers to and audits the reference
// table against the document records it is derived from.
package gc

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"docvault/internal/blobstore"
	"docvault/internal/metrics"
	"docvault/internal/models"
	"docvault/internal/store"
)

const (
	PhaseZeroRef = "zero_ref"
	PhaseOrphans = "orphans"
)

// PhaseReport counts the work of one cleanup phase.
type PhaseReport struct {
	Checked int `json:"checked"`
	Deleted int `json:"deleted"`
	Errors  int `json:"errors"`
}

// Report is the result of FullCleanup.
type Report struct {
	ZeroRef  PhaseReport   `json:"zero_ref"`
	Orphans  PhaseReport   `json:"orphans"`
	Duration time.Duration `json:"duration_ns"`
}

// Deleted returns the number of blobs removed across both phases.
func (r Report) Deleted() int {
	return r.ZeroRef.Deleted + r.Orphans.Deleted
}

// Plan lists what FullCleanup would remove right now.
type Plan struct {
	ZeroRef []models.RefEntry    `json:"zero_ref"`
	Orphans []blobstore.BlobInfo `json:"orphans"`
}

// Collector runs garbage collection. FullCleanup must not run concurrently
// with itself; callers serialize it.
type Collector struct {
	refs    store.RefStore
	docs    store.DocumentStore
	blobs   blobstore.ContentStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewCollector creates a collector.
func NewCollector(refs store.RefStore, docs store.DocumentStore, blobs blobstore.ContentStore, logger *slog.Logger, mt *metrics.Metrics) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		refs:    refs,
		docs:    docs,
		blobs:   blobs,
		logger:  logger.With("component", "gc"),
		metrics: mt,
	}
}

// ZeroRefEntries returns reference rows whose count reached zero.
func (c *Collector) ZeroRefEntries(ctx context.Context) ([]models.RefEntry, error) {
	return c.refs.ZeroRefEntries(ctx)
}

// OrphanedBlobs walks the content store and returns blobs with no
// reference row at all.
func (c *Collector) OrphanedBlobs(ctx context.Context) ([]blobstore.BlobInfo, error) {
	var out []blobstore.BlobInfo
	err := c.blobs.Walk(ctx, func(info blobstore.BlobInfo) error {
		ok, err := c.refs.HasRef(ctx, info.Hash, info.Kind)
		if err != nil {
			return err
		}
		if !ok {
			out = append(out, info)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk blobs: %w", err)
	}
	return out, nil
}

// Plan reports what a cleanup would remove without removing anything.
func (c *Collector) Plan(ctx context.Context) (Plan, error) {
	zero, err := c.ZeroRefEntries(ctx)
	if err != nil {
		return Plan{}, err
	}
	orphans, err := c.OrphanedBlobs(ctx)
	if err != nil {
		return Plan{}, err
	}
	return Plan{ZeroRef: zero, Orphans: orphans}, nil
}

// FullCleanup deletes zero-count blobs, then blobs without a row. A row is
// only dropped after its blob is gone. Failures on single items are counted
// and logged; only failing to list the work aborts.
func (c *Collector) FullCleanup(ctx context.Context) (Report, error) {
	start := time.Now()
	var report Report

	zero, err := c.refs.ZeroRefEntries(ctx)
	if err != nil {
		return report, fmt.Errorf("list zero-ref entries: %w", err)
	}
	for _, entry := range zero {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.ZeroRef.Checked++
		hash, kind := entry.Hash, entry.Kind
		removed, err := c.refs.CollectZeroRef(ctx, hash, kind, func() (bool, error) {
			return c.blobs.Delete(ctx, hash, kind)
		})
		if err != nil {
			report.ZeroRef.Errors++
			c.logger.Warn("could not collect blob", "phase", PhaseZeroRef, "hash", hash, "kind", kind, "err", err)
			continue
		}
		if removed {
			report.ZeroRef.Deleted++
		}
	}

	orphans, err := c.OrphanedBlobs(ctx)
	if err != nil {
		return report, err
	}
	for _, info := range orphans {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Orphans.Checked++
		hash, kind := info.Hash, info.Kind
		removed, err := c.refs.CollectOrphan(ctx, hash, kind, func() (bool, error) {
			return c.blobs.Delete(ctx, hash, kind)
		})
		if err != nil {
			report.Orphans.Errors++
			c.logger.Warn("could not collect blob", "phase", PhaseOrphans, "hash", hash, "kind", kind, "err", err)
			continue
		}
		if removed {
			report.Orphans.Deleted++
		}
	}

	report.Duration = time.Since(start)
	c.metrics.RecordGCPhase(PhaseZeroRef, report.ZeroRef.Deleted, report.ZeroRef.Errors)
	c.metrics.RecordGCPhase(PhaseOrphans, report.Orphans.Deleted, report.Orphans.Errors)
	c.metrics.ObserveGC(report.Duration)
	c.logger.Info("garbage collection finished",
		"zero_ref_deleted", report.ZeroRef.Deleted,
		"orphans_deleted", report.Orphans.Deleted,
		"errors", report.ZeroRef.Errors+report.Orphans.Errors,
		"duration", report.Duration,
	)
	return report, nil
}

// RebuildFromAuthoritativeSource derives reference counts from document
// records: one reference per live document. Tombstoned documents hold
// nothing.
func RebuildFromAuthoritativeSource(docs []models.Document) map[models.RefKey]int {
	counts := make(map[models.RefKey]int)
	for _, doc := range docs {
		if doc.Deleted || doc.Hash == "" {
			continue
		}
		counts[models.RefKey{Hash: doc.Hash, Kind: doc.Kind}]++
	}
	return counts
}

// Discrepancy is one key whose tracked count differs from the rebuilt one.
type Discrepancy struct {
	Key      models.RefKey `json:"key"`
	Tracked  int           `json:"tracked"`
	Expected int           `json:"expected"`
}

// AuditReport compares the reference table with the document records.
type AuditReport struct {
	Documents     int           `json:"documents"`
	Entries       int           `json:"entries"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	// MissingBlobs are referenced by a live document but absent on disk.
	MissingBlobs []models.RefKey `json:"missing_blobs"`
}

// Clean reports whether the audit found nothing to repair.
func (a AuditReport) Clean() bool {
	return len(a.Discrepancies) == 0
}

// Audit rebuilds counts from the live documents and diffs them against the
// reference table without changing anything.
func (c *Collector) Audit(ctx context.Context) (*AuditReport, error) {
	docs, err := c.docs.ListDocuments(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	entries, err := c.refs.ListRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return c.audit(ctx, RebuildFromAuthoritativeSource(docs), entries, len(docs))
}

func (c *Collector) audit(ctx context.Context, expected map[models.RefKey]int, entries []models.RefEntry, docCount int) (*AuditReport, error) {
	report := &AuditReport{Documents: docCount, Entries: len(entries)}

	tracked := make(map[models.RefKey]int, len(entries))
	for _, e := range entries {
		tracked[e.Key()] = e.RefCount
	}
	keys := make([]models.RefKey, 0, len(tracked)+len(expected))
	for k := range tracked {
		keys = append(keys, k)
	}
	for k := range expected {
		if _, ok := tracked[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	for _, k := range keys {
		if tracked[k] != expected[k] {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{Key: k, Tracked: tracked[k], Expected: expected[k]})
		}
		if expected[k] > 0 {
			ok, err := c.blobs.Exists(ctx, k.Hash, k.Kind)
			if err != nil {
				return nil, err
			}
			if !ok {
				report.MissingBlobs = append(report.MissingBlobs, k)
			}
		}
	}
	return report, nil
}

// Repair rewrites the reference table from the document records. It
// returns the audit taken before the rewrite.
func (c *Collector) Repair(ctx context.Context) (*AuditReport, error) {
	docs, err := c.docs.ListDocuments(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return c.Apply(ctx, RebuildFromAuthoritativeSource(docs), len(docs))
}

// Apply replaces the reference table with counts, for example ones rebuilt
// from an exported manifest, and returns the audit taken before.
func (c *Collector) Apply(ctx context.Context, counts map[models.RefKey]int, docCount int) (*AuditReport, error) {
	entries, err := c.refs.ListRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	report, err := c.audit(ctx, counts, entries, docCount)
	if err != nil {
		return nil, err
	}
	if report.Clean() {
		return report, nil
	}
	for _, d := range report.Discrepancies {
		c.logger.Warn("reference count corrected", "key", d.Key.String(), "tracked", d.Tracked, "expected", d.Expected)
	}
	if err := c.refs.ReplaceRefs(ctx, counts); err != nil {
		return nil, fmt.Errorf("replace refs: %w", err)
	}
	return report, nil
}
