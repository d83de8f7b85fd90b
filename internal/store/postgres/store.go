package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pokeden/internal/game"
)

const (
	maxAttempts    = 8
	firstRetryWait = 75 * time.Millisecond
	maxRetryWait   = 1200 * time.Millisecond
)

type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, log: logger}
}

// InTx runs fn in a SERIALIZABLE transaction and retries it with backoff when
// Postgres aborts it for a serialization failure or deadlock.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx game.Tx) error) error {
	retryDelay := firstRetryWait
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.runTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, true, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		s.log.Debug("retrying serialization failure", "attempt", attempt+1, "delay", retryDelay.String())
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < maxRetryWait {
			retryDelay *= 2
		}
	}
	return game.ErrTxConflict
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx game.Tx) error) error {
	return s.runTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, false, fn)
}

func (s *Store) runTx(ctx context.Context, opts pgx.TxOptions, lock bool, fn func(ctx context.Context, tx game.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx, lock: lock}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) PruneIdempotencyKeys(ctx context.Context, before time.Time) (int64, error) {
	cmd, err := s.pool.Exec(ctx, `
		DELETE FROM pokeden.idempotency_keys
		WHERE created_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
