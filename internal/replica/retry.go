package replica

import (
	"context"
	"log/slog"
	"time"

	"docvault/internal/metrics"
)

// RetryPolicy bounds how timeout-class failures are retried. Each attempt
// gets twice the timeout of the one before.
type RetryPolicy struct {
	Attempts    int
	BaseTimeout time.Duration
	Pause       time.Duration
}

// DefaultRetryPolicy gives attempts of 30s, 60s and 120s with 2s between.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseTimeout: 30 * time.Second, Pause: 2 * time.Second}
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.BaseTimeout <= 0 {
		p.BaseTimeout = def.BaseTimeout
	}
	if p.Pause < 0 {
		p.Pause = 0
	}
	return p
}

// Retrier runs remote operations under a RetryPolicy.
type Retrier struct {
	policy  RetryPolicy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRetrier builds a Retrier. logger and mt may be nil.
func NewRetrier(policy RetryPolicy, logger *slog.Logger, mt *metrics.Metrics) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{policy: policy.normalized(), logger: logger.With("component", "replica"), metrics: mt}
}

// Do runs fn until it succeeds, fails with a non-timeout error, or the
// attempts are used up. Exhaustion returns a *TransientError.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	timeout := r.policy.BaseTimeout
	var lastErr error
	for attempt := 1; attempt <= r.policy.Attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !IsTimeout(err) {
			return err
		}
		lastErr = err
		if attempt == r.policy.Attempts {
			break
		}

		r.metrics.RecordRemoteRetry(op)
		r.logger.Warn("remote call timed out, retrying", "op", op, "attempt", attempt, "timeout", timeout, "err", err)
		if r.policy.Pause > 0 {
			t := time.NewTimer(r.policy.Pause)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		timeout *= 2
	}
	r.metrics.RecordRemoteFailure(op)
	return &TransientError{Op: op, Attempts: r.policy.Attempts, Err: lastErr}
}

// retryFS applies a Retrier to every call of an FS.
type retryFS struct {
	fs FS
	r  *Retrier
}

// WithRetry wraps fs so that every call is retried on timeouts.
func WithRetry(fs FS, r *Retrier) FS {
	return &retryFS{fs: fs, r: r}
}

func (f *retryFS) List(ctx context.Context) ([]Entry, error) {
	var out []Entry
	err := f.r.Do(ctx, "list", func(ctx context.Context) error {
		var err error
		out, err = f.fs.List(ctx)
		return err
	})
	return out, err
}

func (f *retryFS) Stat(ctx context.Context, name string) (Entry, error) {
	var out Entry
	err := f.r.Do(ctx, "stat", func(ctx context.Context) error {
		var err error
		out, err = f.fs.Stat(ctx, name)
		return err
	})
	return out, err
}

func (f *retryFS) Read(ctx context.Context, name string) ([]byte, error) {
	var out []byte
	err := f.r.Do(ctx, "read", func(ctx context.Context) error {
		var err error
		out, err = f.fs.Read(ctx, name)
		return err
	})
	return out, err
}

func (f *retryFS) Write(ctx context.Context, name string, data []byte) error {
	return f.r.Do(ctx, "write", func(ctx context.Context) error {
		return f.fs.Write(ctx, name, data)
	})
}

func (f *retryFS) Remove(ctx context.Context, name string) error {
	return f.r.Do(ctx, "remove", func(ctx context.Context) error {
		return f.fs.Remove(ctx, name)
	})
}

func (f *retryFS) SetModTime(ctx context.Context, name string, t time.Time) error {
	return f.r.Do(ctx, "chtimes", func(ctx context.Context) error {
		return f.fs.SetModTime(ctx, name, t)
	})
}
