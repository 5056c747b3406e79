// Package metrics holds the prometheus collectors for the storage, lock,
// garbage collection and sync subsystems. A nil *Metrics is valid and
// records nothing, so components can be built without instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "docvault"

// Metrics groups all docvault collectors.
type Metrics struct {
	// Lock metrics
	LockAcquisitions *prometheus.CounterVec // docvault_lock_acquisitions_total{outcome}
	LockReleases     *prometheus.CounterVec // docvault_lock_releases_total{result}
	LocksPurged      prometheus.Counter     // docvault_locks_purged_total

	// Storage metrics
	FilesSaved     prometheus.Counter     // docvault_files_saved_total
	BytesSaved     prometheus.Counter     // docvault_bytes_saved_total
	DedupHits      prometheus.Counter     // docvault_dedup_hits_total
	FilesDeleted   prometheus.Counter     // docvault_files_deleted_total
	RefUnderflows  prometheus.Counter     // docvault_ref_underflows_total
	BlobsCollected *prometheus.CounterVec // docvault_gc_blobs_deleted_total{phase}
	GCErrors       *prometheus.CounterVec // docvault_gc_errors_total{phase}
	GCDuration     prometheus.Histogram   // docvault_gc_duration_seconds

	// Sync metrics
	SyncRuns       *prometheus.CounterVec // docvault_sync_runs_total{result}
	SyncActions    *prometheus.CounterVec // docvault_sync_actions_total{action}
	SyncDuration   prometheus.Histogram   // docvault_sync_duration_seconds
	RemoteVersion  prometheus.Gauge       // docvault_sync_remote_version
	RemoteRetries  *prometheus.CounterVec // docvault_remote_retries_total{op}
	RemoteFailures *prometheus.CounterVec // docvault_remote_transient_failures_total{op}
}

// New registers all collectors with registry. A nil registry uses the
// prometheus default registerer.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	f := promauto.With(registry)
	return &Metrics{
		LockAcquisitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_acquisitions_total",
			Help:      "File lock acquire attempts by outcome",
		}, []string{"outcome"}),
		LockReleases: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_releases_total",
			Help:      "File lock release attempts by result",
		}, []string{"result"}),
		LocksPurged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locks_purged_total",
			Help:      "Stale file locks removed by purge",
		}),

		FilesSaved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_saved_total",
			Help:      "Documents saved",
		}),
		BytesSaved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_saved_total",
			Help:      "Bytes passed to SaveFile",
		}),
		DedupHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_hits_total",
			Help:      "Saves whose content was already stored",
		}),
		FilesDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_deleted_total",
			Help:      "Documents deleted",
		}),
		RefUnderflows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ref_underflows_total",
			Help:      "Reference decrements that found nothing to release",
		}),
		BlobsCollected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_blobs_deleted_total",
			Help:      "Blobs removed by garbage collection by phase",
		}, []string{"phase"}),
		GCErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_errors_total",
			Help:      "Per-item garbage collection failures by phase",
		}, []string{"phase"}),
		GCDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gc_duration_seconds",
			Help:      "Full cleanup duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		SyncRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Sync runs by result",
		}, []string{"result"}),
		SyncActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_actions_total",
			Help:      "Reconcile actions applied by kind",
		}, []string{"action"}),
		SyncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Sync run duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		RemoteVersion: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_remote_version",
			Help:      "Remote version counter after the last sync",
		}),
		RemoteRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_retries_total",
			Help:      "Remote calls retried after a timeout by operation",
		}, []string{"op"}),
		RemoteFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_transient_failures_total",
			Help:      "Remote calls that exhausted their retries by operation",
		}, []string{"op"}),
	}
}

// RecordLockAcquire records one acquire attempt.
func (m *Metrics) RecordLockAcquire(outcome string) {
	if m == nil {
		return
	}
	m.LockAcquisitions.WithLabelValues(outcome).Inc()
}

// RecordLockRelease records one release attempt.
func (m *Metrics) RecordLockRelease(result string) {
	if m == nil {
		return
	}
	m.LockReleases.WithLabelValues(result).Inc()
}

// RecordLocksPurged records a stale-lock purge.
func (m *Metrics) RecordLocksPurged(n int) {
	if m == nil {
		return
	}
	m.LocksPurged.Add(float64(n))
}

// RecordSave records a document save. dedup is true when the blob was
// already referenced before the save.
func (m *Metrics) RecordSave(size int, dedup bool) {
	if m == nil {
		return
	}
	m.FilesSaved.Inc()
	m.BytesSaved.Add(float64(size))
	if dedup {
		m.DedupHits.Inc()
	}
}

// RecordDelete records a document deletion.
func (m *Metrics) RecordDelete() {
	if m == nil {
		return
	}
	m.FilesDeleted.Inc()
}

// RecordUnderflow records reference underflows.
func (m *Metrics) RecordUnderflow(n int) {
	if m == nil || n == 0 {
		return
	}
	m.RefUnderflows.Add(float64(n))
}

// RecordGCPhase records the outcome of one cleanup phase.
func (m *Metrics) RecordGCPhase(phase string, deleted, errs int) {
	if m == nil {
		return
	}
	m.BlobsCollected.WithLabelValues(phase).Add(float64(deleted))
	m.GCErrors.WithLabelValues(phase).Add(float64(errs))
}

// ObserveGC records the duration of a full cleanup.
func (m *Metrics) ObserveGC(d time.Duration) {
	if m == nil {
		return
	}
	m.GCDuration.Observe(d.Seconds())
}

// RecordSyncRun records a finished sync run.
func (m *Metrics) RecordSyncRun(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.SyncRuns.WithLabelValues(result).Inc()
	m.SyncDuration.Observe(d.Seconds())
}

// RecordSyncAction records one applied reconcile action.
func (m *Metrics) RecordSyncAction(action string) {
	if m == nil {
		return
	}
	m.SyncActions.WithLabelValues(action).Inc()
}

// SetRemoteVersion updates the remote version gauge.
func (m *Metrics) SetRemoteVersion(v int) {
	if m == nil {
		return
	}
	m.RemoteVersion.Set(float64(v))
}

// RecordRemoteRetry records a retried remote call.
func (m *Metrics) RecordRemoteRetry(op string) {
	if m == nil {
		return
	}
	m.RemoteRetries.WithLabelValues(op).Inc()
}

// RecordRemoteFailure records a remote call that exhausted its retries.
func (m *Metrics) RecordRemoteFailure(op string) {
	if m == nil {
		return
	}
	m.RemoteFailures.WithLabelValues(op).Inc()
}
