package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/voxlab/callflow/internal/storage"
	"github.com/voxlab/callflow/internal/types"
)

// CreateChangeSet inserts a new draft. ErrDraftExists when the routing
// already has an open ChangeSet: one draft at a time per routing.
func (s *Store) CreateChangeSet(ctx context.Context, cs *types.ChangeSet) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		open, err := activeChangeSet(ctx, conn, cs.RoutingID)
		if err != nil {
			return err
		}
		if open != nil {
			return fmt.Errorf("routing %s has open change set %s: %w", cs.RoutingID, open.ID, storage.ErrDraftExists)
		}

		now := time.Now()
		cs.CreatedAt = now
		cs.UpdatedAt = now
		if cs.Status == "" {
			cs.Status = types.StatusDraft
		}
		if !cs.Status.IsValid() {
			return fmt.Errorf("invalid change set status: %s", cs.Status)
		}
		_, err = conn.ExecContext(ctx, `
			INSERT INTO change_sets (id, routing_id, status, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, cs.ID, cs.RoutingID, cs.Status, cs.CreatedBy, cs.CreatedAt, cs.UpdatedAt)
		if err != nil {
			return wrapDBError("insert change set", err)
		}
		return nil
	})
}

// GetChangeSet returns one ChangeSet by id, or storage.ErrNotFound.
func (s *Store) GetChangeSet(ctx context.Context, id string) (*types.ChangeSet, error) {
	return getChangeSet(ctx, s.db, id)
}

// ActiveChangeSet returns the routing's open (non-terminal) ChangeSet, or
// nil when there is none.
func (s *Store) ActiveChangeSet(ctx context.Context, routingID string) (*types.ChangeSet, error) {
	return activeChangeSet(ctx, s.db, routingID)
}

// ListChangeSets returns every ChangeSet of a routing, newest first.
func (s *Store) ListChangeSets(ctx context.Context, routingID string) ([]*types.ChangeSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, routing_id, status, created_by, published_by, created_at, updated_at, published_at
		FROM change_sets WHERE routing_id = ? ORDER BY created_at DESC, id
	`, routingID)
	if err != nil {
		return nil, wrapDBError("list change sets", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.ChangeSet
	for rows.Next() {
		cs, err := scanChangeSet(rows)
		if err != nil {
			return nil, wrapDBError("scan change set", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// TransitionChangeSet compare-and-sets the status.
func (s *Store) TransitionChangeSet(ctx context.Context, id string, from []types.ChangeSetStatus, to types.ChangeSetStatus, actor string) error {
	return transitionChangeSet(ctx, s.db, id, from, to, actor)
}

func getChangeSet(ctx context.Context, q dbtx, id string) (*types.ChangeSet, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, routing_id, status, created_by, published_by, created_at, updated_at, published_at
		FROM change_sets WHERE id = ?
	`, id)
	cs, err := scanChangeSet(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("change set %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, wrapDBError("get change set", err)
	}
	return cs, nil
}

func activeChangeSet(ctx context.Context, q dbtx, routingID string) (*types.ChangeSet, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, routing_id, status, created_by, published_by, created_at, updated_at, published_at
		FROM change_sets
		WHERE routing_id = ? AND status NOT IN (?, ?)
		ORDER BY created_at DESC LIMIT 1
	`, routingID, types.StatusPublished, types.StatusDiscarded)
	cs, err := scanChangeSet(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBError("find active change set", err)
	}
	return cs, nil
}

func scanChangeSet(row rowScanner) (*types.ChangeSet, error) {
	var cs types.ChangeSet
	var publishedAt sql.NullTime
	err := row.Scan(&cs.ID, &cs.RoutingID, &cs.Status, &cs.CreatedBy, &cs.PublishedBy,
		&cs.CreatedAt, &cs.UpdatedAt, &publishedAt)
	if err != nil {
		return nil, err
	}
	if publishedAt.Valid {
		cs.PublishedAt = &publishedAt.Time
	}
	return &cs, nil
}

// transitionChangeSet updates the status only when the current status is one
// of from. Zero affected rows on an existing ChangeSet means the state
// machine forbids the step: the caller sees ErrInvalidTransition and nothing
// was changed. This is also the optimistic guard against two concurrent
// publishes: the second one finds the status already moved.
func transitionChangeSet(ctx context.Context, q dbtx, id string, from []types.ChangeSetStatus, to types.ChangeSetStatus, actor string) error {
	if len(from) == 0 {
		return fmt.Errorf("no source statuses given for transition to %s", to)
	}
	for _, f := range from {
		if f == to {
			continue // idempotent no-op step
		}
		if !f.CanTransitionTo(to) {
			return fmt.Errorf("change set %s: %s -> %s: %w", id, f, to, storage.ErrInvalidTransition)
		}
	}

	now := time.Now()
	set := "status = ?, updated_at = ?"
	args := []any{to, now}
	if to == types.StatusPublished {
		set += ", published_by = ?, published_at = ?"
		args = append(args, actor, now)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(from)), ",")
	args = append(args, id)
	for _, f := range from {
		args = append(args, f)
	}
	query := fmt.Sprintf(`UPDATE change_sets SET %s WHERE id = ? AND status IN (%s)`, set, placeholders) // #nosec G201 -- placeholders only
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapDBError("transition change set", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		current, err := getChangeSet(ctx, q, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("change set %s is %s, cannot move to %s: %w", id, current.Status, to, storage.ErrInvalidTransition)
	}
	return nil
}
