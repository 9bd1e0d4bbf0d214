package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/voxlab/callflow/internal/storage"
	"github.com/voxlab/callflow/internal/types"
)

// Verify txStore implements storage.Transaction at compile time.
var _ storage.Transaction = (*txStore)(nil)

// txStore wraps a dedicated connection carrying an open transaction.
type txStore struct {
	conn *sql.Conn
}

// RunInTransaction executes fn inside a BEGIN IMMEDIATE transaction.
// On success the transaction commits; on error or panic it rolls back, and
// panics are re-raised. The callback's reads observe its own writes.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for transaction: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediate(ctx, conn); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			// Background context so rollback still happens when ctx is done.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(&txStore{conn: conn}); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

func (t *txStore) GetSegment(ctx context.Context, routingID, name string, scope types.Scope) (*types.Segment, error) {
	return getSegment(ctx, t.conn, routingID, name, scope)
}

func (t *txStore) ListSegments(ctx context.Context, routingID string, scope types.Scope) ([]*types.Segment, error) {
	return listSegments(ctx, t.conn, routingID, scope)
}

func (t *txStore) PutSegment(ctx context.Context, seg *types.Segment) error {
	return putSegment(ctx, t.conn, seg)
}

func (t *txStore) DeactivateSegment(ctx context.Context, routingID, name string, scope types.Scope) error {
	return deactivateSegment(ctx, t.conn, routingID, name, scope)
}

func (t *txStore) DeactivateScope(ctx context.Context, routingID string, scope types.Scope) error {
	return deactivateScope(ctx, t.conn, routingID, scope)
}

func (t *txStore) TransitionChangeSet(ctx context.Context, id string, from []types.ChangeSetStatus, to types.ChangeSetStatus, actor string) error {
	return transitionChangeSet(ctx, t.conn, id, from, to, actor)
}

func (t *txStore) PutRoutingEntry(ctx context.Context, entry *types.RoutingEntry) error {
	return putRoutingEntry(ctx, t.conn, entry)
}

func (t *txStore) ListRoutingEntries(ctx context.Context, routingID string, activeOnly bool) ([]*types.RoutingEntry, error) {
	return listRoutingEntries(ctx, t.conn, routingID, activeOnly)
}

func (t *txStore) DeactivateRoutingEntries(ctx context.Context, routingID string) error {
	return deactivateRoutingEntries(ctx, t.conn, routingID)
}

func (t *txStore) AddVersionSnapshot(ctx context.Context, routingID string, content []byte, actor string) (*types.VersionSnapshot, error) {
	return addVersionSnapshot(ctx, t.conn, routingID, content, actor)
}

func (t *txStore) SetConfig(ctx context.Context, key, value string) error {
	return setConfig(ctx, t.conn, key, value)
}
