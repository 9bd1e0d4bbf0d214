package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// dbtx is satisfied by *sql.DB, *sql.Conn, and *sql.Tx, so the row-level
// helpers work both standalone and inside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// wrapDBError gives database errors a stable operation prefix.
func wrapDBError(op string, err error) error {
	return fmt.Errorf("failed to %s: %w", op, err)
}

// beginImmediate starts an IMMEDIATE transaction on the connection,
// acquiring the write lock up front. SQLITE_BUSY is retried with
// exponential backoff; anything else fails immediately.
func beginImmediate(ctx context.Context, conn *sql.Conn) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(10*time.Millisecond),
		backoff.WithMaxInterval(500*time.Millisecond),
	), 6), ctx)

	return backoff.Retry(func() error {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err == nil {
			return nil
		}
		if isBusy(err) {
			return err // retriable
		}
		return backoff.Permanent(err)
	}, policy)
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
