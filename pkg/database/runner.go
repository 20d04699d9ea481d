package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ErrTimeout reports that a storage operation exceeded its bounded wait.
var ErrTimeout = errors.New("storage timeout")

// Postgres error codes that are safe to retry once.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// TxFunc is executed inside a transaction.
type TxFunc func(ctx context.Context, tx *sqlx.Tx) error

// Observer receives the duration and outcome of every storage operation.
type Observer func(label string, took time.Duration, err error)

// Runner bounds storage calls with a timeout and retries transient failures once.
type Runner struct {
	db       *sqlx.DB
	timeout  time.Duration
	logger   *zap.Logger
	observer Observer
}

// NewRunner constructs a Runner.
func NewRunner(db *sqlx.DB, timeout time.Duration, logger *zap.Logger) *Runner {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{db: db, timeout: timeout, logger: logger}
}

// Timeout returns the configured bound.
func (r *Runner) Timeout() time.Duration {
	return r.timeout
}

// DB exposes the underlying handle.
func (r *Runner) DB() *sqlx.DB {
	return r.db
}

// SetObserver installs a hook called after every operation.
func (r *Runner) SetObserver(o Observer) {
	r.observer = o
}

// Do runs fn under the storage timeout, retrying once on a transient failure. A unique
// violation is final here: a plain insert would only hit the same row again.
func (r *Runner) Do(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	return r.run(ctx, label, IsRetryable, fn)
}

func (r *Runner) run(ctx context.Context, label string, retryable func(error) bool, fn func(ctx context.Context) error) error {
	start := time.Now()
	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		err = r.once(ctx, fn)
		if err == nil || !retryable(err) || attempt == 2 {
			break
		}
		r.logger.Warn("retrying storage operation", zap.String("op", label), zap.Error(err))
	}
	err = classify(err)
	if r.observer != nil {
		r.observer(label, time.Since(start), err)
	}
	return err
}

// Get scans a single row into dest.
func (r *Runner) Get(ctx context.Context, label string, dest interface{}, query string, args ...interface{}) error {
	return r.Do(ctx, label, func(ctx context.Context) error {
		return r.db.GetContext(ctx, dest, query, args...)
	})
}

// Select scans all rows into dest.
func (r *Runner) Select(ctx context.Context, label string, dest interface{}, query string, args ...interface{}) error {
	return r.Do(ctx, label, func(ctx context.Context) error {
		return r.db.SelectContext(ctx, dest, query, args...)
	})
}

// Exec runs a statement and returns its affected row count.
func (r *Runner) Exec(ctx context.Context, label string, query string, args ...interface{}) (int64, error) {
	var affected int64
	err := r.Do(ctx, label, func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// InTx runs fn inside a transaction under the storage timeout. The whole transaction is
// retried once when it fails with a unique violation, serialization failure, deadlock or
// a broken connection.
func (r *Runner) InTx(ctx context.Context, label string, fn TxFunc) error {
	return r.run(ctx, label, IsRetryableTx, func(ctx context.Context) error {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin %s: %w", label, err)
		}
		if err := fn(ctx, tx); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", label, err)
		}
		return nil
	})
}

func (r *Runner) once(ctx context.Context, fn func(ctx context.Context) error) error {
	bounded, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	err := fn(bounded)
	if err != nil && errors.Is(bounded.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// IsRetryable reports whether err is a transient storage failure.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrTimeout) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case codeSerializationFailure, codeDeadlockDetected:
			return true
		}
	}
	return false
}

// IsRetryableTx extends IsRetryable with unique violations, which an upsert transaction
// loses when a concurrent writer inserts the same key between its read and its write.
func IsRetryableTx(err error) bool {
	return IsRetryable(err) || IsUniqueViolation(err)
}

// IsUniqueViolation reports whether err was raised by a unique constraint.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == codeUniqueViolation
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// IsNotFound reports whether err is sql.ErrNoRows.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
