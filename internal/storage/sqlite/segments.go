package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/voxlab/callflow/internal/storage"
	"github.com/voxlab/callflow/internal/types"
)

// withConn runs fn on a dedicated connection inside a BEGIN IMMEDIATE
// transaction. Store-level multi-row writes use this so a partial failure
// leaves prior state intact.
func (s *Store) withConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	return s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return fn(tx.(*txStore).conn)
	})
}

// GetSegment returns one active segment with its config, hooks, and
// transitions, or storage.ErrNotFound.
func (s *Store) GetSegment(ctx context.Context, routingID, name string, scope types.Scope) (*types.Segment, error) {
	return getSegment(ctx, s.db, routingID, name, scope)
}

// ListSegments returns the active segments of one scope ordered by exec
// order, then name.
func (s *Store) ListSegments(ctx context.Context, routingID string, scope types.Scope) ([]*types.Segment, error) {
	return listSegments(ctx, s.db, routingID, scope)
}

// PutSegment upserts one segment and fully replaces its child rows.
func (s *Store) PutSegment(ctx context.Context, seg *types.Segment) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		return putSegment(ctx, conn, seg)
	})
}

// ReplaceScope upserts every given segment. Segments in the scope but not in
// the list are untouched, unless prune deactivates them.
func (s *Store) ReplaceScope(ctx context.Context, routingID string, scope types.Scope, segments []*types.Segment, prune bool) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		return replaceScope(ctx, conn, routingID, scope, segments, prune)
	})
}

// UpdateSegmentConfig replaces only the config list of one segment.
func (s *Store) UpdateSegmentConfig(ctx context.Context, routingID, name string, scope types.Scope, config []types.ConfigEntry) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		id, err := segmentID(ctx, conn, routingID, name, scope)
		if err != nil {
			return err
		}
		if err := replaceConfig(ctx, conn, id, config); err != nil {
			return err
		}
		return touchSegment(ctx, conn, id)
	})
}

// PutTransition adds or replaces one transition keyed by
// (resultName, contextKey), or the default fallback row.
func (s *Store) PutTransition(ctx context.Context, routingID, name string, scope types.Scope, tr *types.Transition) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		id, err := segmentID(ctx, conn, routingID, name, scope)
		if err != nil {
			return err
		}
		if tr.IsDefault {
			if _, err := conn.ExecContext(ctx, `DELETE FROM transitions WHERE segment_id = ? AND is_default = 1`, id); err != nil {
				return wrapDBError("replace default transition", err)
			}
		} else {
			if _, err := conn.ExecContext(ctx, `
				DELETE FROM transitions WHERE segment_id = ? AND is_default = 0 AND result_name = ? AND context_key = ?
			`, id, tr.ResultName, tr.ContextKey); err != nil {
				return wrapDBError("replace transition", err)
			}
		}
		var maxPos sql.NullInt64
		if err := conn.QueryRowContext(ctx, `SELECT MAX(position) FROM transitions WHERE segment_id = ?`, id).Scan(&maxPos); err != nil {
			return wrapDBError("find transition position", err)
		}
		tr.Position = int(maxPos.Int64) + 1
		if err := insertTransition(ctx, conn, id, tr); err != nil {
			return err
		}
		return touchSegment(ctx, conn, id)
	})
}

// DeleteTransition removes one transition by key.
func (s *Store) DeleteTransition(ctx context.Context, routingID, name string, scope types.Scope, key types.TransitionKey) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		id, err := segmentID(ctx, conn, routingID, name, scope)
		if err != nil {
			return err
		}
		res, err := conn.ExecContext(ctx, `
			DELETE FROM transitions WHERE segment_id = ? AND result_name = ? AND context_key = ?
		`, id, key.ResultName, key.ContextKey)
		if err != nil {
			return wrapDBError("delete transition", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("transition %s/%s on %s: %w", key.ResultName, key.ContextKey, name, storage.ErrNotFound)
		}
		return touchSegment(ctx, conn, id)
	})
}

// SetSegmentOrders persists execution order numbers per segment name.
func (s *Store) SetSegmentOrders(ctx context.Context, routingID string, scope types.Scope, orders map[string]int) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		for name, order := range orders {
			_, err := conn.ExecContext(ctx, `
				UPDATE segments SET exec_order = ?, updated_at = ?
				WHERE routing_id = ? AND name = ? AND change_set_id = ?
			`, order, time.Now(), routingID, name, scope.Column())
			if err != nil {
				return wrapDBError("set segment order", err)
			}
		}
		return nil
	})
}

// DeactivateSegment soft-deletes one segment.
func (s *Store) DeactivateSegment(ctx context.Context, routingID, name string, scope types.Scope) error {
	return deactivateSegment(ctx, s.db, routingID, name, scope)
}

// DeactivateScope soft-deletes every segment of one scope. Used by discard;
// it never touches rows outside the given scope.
func (s *Store) DeactivateScope(ctx context.Context, routingID string, scope types.Scope) error {
	return deactivateScope(ctx, s.db, routingID, scope)
}

// PurgeInactiveSegments hard-deletes soft-deleted segments whose last update
// is older than the TTL. Child rows go with them via ON DELETE CASCADE.
func (s *Store) PurgeInactiveSegments(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `DELETE FROM segments WHERE active = 0 AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, wrapDBError("purge inactive segments", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapDBError("count purged segments", err)
	}
	return n, nil
}

// --- row-level helpers, usable standalone and inside transactions ---

func segmentID(ctx context.Context, q dbtx, routingID, name string, scope types.Scope) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		SELECT id FROM segments WHERE routing_id = ? AND name = ? AND change_set_id = ? AND active = 1
	`, routingID, name, scope.Column()).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("segment %s in %s scope %s: %w", name, routingID, scope, storage.ErrNotFound)
	}
	if err != nil {
		return 0, wrapDBError("look up segment", err)
	}
	return id, nil
}

func touchSegment(ctx context.Context, q dbtx, id int64) error {
	if _, err := q.ExecContext(ctx, `UPDATE segments SET updated_at = ? WHERE id = ?`, time.Now(), id); err != nil {
		return wrapDBError("touch segment", err)
	}
	return nil
}

func putSegment(ctx context.Context, q dbtx, seg *types.Segment) error {
	if err := seg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	seg.SetDefaults()
	now := time.Now()

	var id int64
	err := q.QueryRowContext(ctx, `
		SELECT id FROM segments WHERE routing_id = ? AND name = ? AND change_set_id = ?
	`, seg.RoutingID, seg.Name, seg.Scope.Column()).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		res, err := q.ExecContext(ctx, `
			INSERT INTO segments (routing_id, change_set_id, name, segment_type, display_name, exec_order, active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		`, seg.RoutingID, seg.Scope.Column(), seg.Name, seg.Type, seg.DisplayName, seg.Order, now, now)
		if err != nil {
			return wrapDBError("insert segment", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return wrapDBError("read segment id", err)
		}
		seg.CreatedAt = now
	case err != nil:
		return wrapDBError("look up segment", err)
	default:
		// Upsert reactivates: writing a segment undoes its soft delete.
		_, err := q.ExecContext(ctx, `
			UPDATE segments SET segment_type = ?, display_name = ?, exec_order = ?, active = 1, updated_at = ?
			WHERE id = ?
		`, seg.Type, seg.DisplayName, seg.Order, now, id)
		if err != nil {
			return wrapDBError("update segment", err)
		}
	}
	seg.UpdatedAt = now

	if err := replaceConfig(ctx, q, id, seg.Config); err != nil {
		return err
	}
	if err := replaceHooks(ctx, q, id, seg.Hooks); err != nil {
		return err
	}
	return replaceTransitions(ctx, q, id, seg.Transitions)
}

// replaceConfig is delete-then-insert; position preserves array order.
func replaceConfig(ctx context.Context, q dbtx, segmentID int64, config []types.ConfigEntry) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM segment_config WHERE segment_id = ?`, segmentID); err != nil {
		return wrapDBError("clear segment config", err)
	}
	for i, entry := range config {
		_, err := q.ExecContext(ctx, `
			INSERT INTO segment_config (segment_id, position, key, value) VALUES (?, ?, ?, ?)
		`, segmentID, i, entry.Key, entry.Value)
		if err != nil {
			return wrapDBError("insert config entry", err)
		}
	}
	return nil
}

func replaceHooks(ctx context.Context, q dbtx, segmentID int64, hooks map[string]string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM segment_hooks WHERE segment_id = ?`, segmentID); err != nil {
		return wrapDBError("clear segment hooks", err)
	}
	for hook, handler := range hooks {
		_, err := q.ExecContext(ctx, `
			INSERT INTO segment_hooks (segment_id, hook, handler) VALUES (?, ?, ?)
		`, segmentID, hook, handler)
		if err != nil {
			return wrapDBError("insert hook", err)
		}
	}
	return nil
}

func replaceTransitions(ctx context.Context, q dbtx, segmentID int64, transitions []*types.Transition) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM transitions WHERE segment_id = ?`, segmentID); err != nil {
		return wrapDBError("clear transitions", err)
	}
	for _, tr := range transitions {
		if err := insertTransition(ctx, q, segmentID, tr); err != nil {
			return err
		}
	}
	return nil
}

func insertTransition(ctx context.Context, q dbtx, segmentID int64, tr *types.Transition) error {
	params := "{}"
	if len(tr.Params) > 0 {
		raw, err := json.Marshal(tr.Params)
		if err != nil {
			return fmt.Errorf("failed to encode transition params: %w", err)
		}
		params = string(raw)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO transitions (segment_id, position, result_name, context_key, is_default, target, params)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, segmentID, tr.Position, tr.ResultName, tr.ContextKey, tr.IsDefault, tr.Target, params)
	if err != nil {
		return wrapDBError("insert transition", err)
	}
	return nil
}

func replaceScope(ctx context.Context, q dbtx, routingID string, scope types.Scope, segments []*types.Segment, prune bool) error {
	if prune {
		incoming := make([]any, 0, len(segments)+2)
		incoming = append(incoming, routingID, scope.Column())
		placeholders := ""
		for i, seg := range segments {
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
			incoming = append(incoming, seg.Name)
		}
		query := `UPDATE segments SET active = 0, updated_at = CURRENT_TIMESTAMP WHERE routing_id = ? AND change_set_id = ? AND active = 1`
		if len(segments) > 0 {
			query += ` AND name NOT IN (` + placeholders + `)` // #nosec G202 -- placeholders only
		}
		if _, err := q.ExecContext(ctx, query, incoming...); err != nil {
			return wrapDBError("prune scope", err)
		}
	}
	for _, seg := range segments {
		seg.RoutingID = routingID
		seg.Scope = scope
		if err := putSegment(ctx, q, seg); err != nil {
			return err
		}
	}
	return nil
}

func deactivateSegment(ctx context.Context, q dbtx, routingID, name string, scope types.Scope) error {
	_, err := q.ExecContext(ctx, `
		UPDATE segments SET active = 0, updated_at = ? WHERE routing_id = ? AND name = ? AND change_set_id = ? AND active = 1
	`, time.Now(), routingID, name, scope.Column())
	if err != nil {
		return wrapDBError("deactivate segment", err)
	}
	return nil
}

func deactivateScope(ctx context.Context, q dbtx, routingID string, scope types.Scope) error {
	_, err := q.ExecContext(ctx, `
		UPDATE segments SET active = 0, updated_at = ? WHERE routing_id = ? AND change_set_id = ? AND active = 1
	`, time.Now(), routingID, scope.Column())
	if err != nil {
		return wrapDBError("deactivate scope", err)
	}
	return nil
}

func getSegment(ctx context.Context, q dbtx, routingID, name string, scope types.Scope) (*types.Segment, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, routing_id, change_set_id, name, segment_type, display_name, exec_order, active, created_at, updated_at
		FROM segments
		WHERE routing_id = ? AND name = ? AND change_set_id = ? AND active = 1
	`, routingID, name, scope.Column())
	seg, id, err := scanSegment(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("segment %s in %s scope %s: %w", name, routingID, scope, storage.ErrNotFound)
	}
	if err != nil {
		return nil, wrapDBError("get segment", err)
	}
	if err := loadSegmentChildren(ctx, q, id, seg); err != nil {
		return nil, err
	}
	return seg, nil
}

func listSegments(ctx context.Context, q dbtx, routingID string, scope types.Scope) ([]*types.Segment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, routing_id, change_set_id, name, segment_type, display_name, exec_order, active, created_at, updated_at
		FROM segments
		WHERE routing_id = ? AND change_set_id = ? AND active = 1
		ORDER BY exec_order, name
	`, routingID, scope.Column())
	if err != nil {
		return nil, wrapDBError("list segments", err)
	}
	defer func() { _ = rows.Close() }()

	var segments []*types.Segment
	var ids []int64
	for rows.Next() {
		seg, id, err := scanSegment(rows)
		if err != nil {
			return nil, wrapDBError("scan segment", err)
		}
		segments = append(segments, seg)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("list segments", err)
	}
	for i, seg := range segments {
		if err := loadSegmentChildren(ctx, q, ids[i], seg); err != nil {
			return nil, err
		}
	}
	return segments, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSegment(row rowScanner) (*types.Segment, int64, error) {
	var seg types.Segment
	var id int64
	var scopeCol string
	err := row.Scan(&id, &seg.RoutingID, &scopeCol, &seg.Name, &seg.Type, &seg.DisplayName,
		&seg.Order, &seg.Active, &seg.CreatedAt, &seg.UpdatedAt)
	if err != nil {
		return nil, 0, err
	}
	seg.Scope = types.ScopeFromColumn(scopeCol)
	return &seg, id, nil
}

func loadSegmentChildren(ctx context.Context, q dbtx, id int64, seg *types.Segment) error {
	rows, err := q.QueryContext(ctx, `
		SELECT key, value FROM segment_config WHERE segment_id = ? ORDER BY position
	`, id)
	if err != nil {
		return wrapDBError("load segment config", err)
	}
	for rows.Next() {
		var entry types.ConfigEntry
		if err := rows.Scan(&entry.Key, &entry.Value); err != nil {
			_ = rows.Close()
			return wrapDBError("scan config entry", err)
		}
		seg.Config = append(seg.Config, entry)
	}
	if err := rows.Close(); err != nil {
		return wrapDBError("load segment config", err)
	}

	rows, err = q.QueryContext(ctx, `
		SELECT hook, handler FROM segment_hooks WHERE segment_id = ? ORDER BY hook
	`, id)
	if err != nil {
		return wrapDBError("load segment hooks", err)
	}
	for rows.Next() {
		var hook, handler string
		if err := rows.Scan(&hook, &handler); err != nil {
			_ = rows.Close()
			return wrapDBError("scan hook", err)
		}
		if seg.Hooks == nil {
			seg.Hooks = make(map[string]string)
		}
		seg.Hooks[hook] = handler
	}
	if err := rows.Close(); err != nil {
		return wrapDBError("load segment hooks", err)
	}

	rows, err = q.QueryContext(ctx, `
		SELECT position, result_name, context_key, is_default, target, params
		FROM transitions WHERE segment_id = ? ORDER BY position
	`, id)
	if err != nil {
		return wrapDBError("load transitions", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var tr types.Transition
		var params string
		if err := rows.Scan(&tr.Position, &tr.ResultName, &tr.ContextKey, &tr.IsDefault, &tr.Target, &params); err != nil {
			return wrapDBError("scan transition", err)
		}
		if params != "" && params != "{}" {
			if err := json.Unmarshal([]byte(params), &tr.Params); err != nil {
				return fmt.Errorf("failed to decode transition params: %w", err)
			}
		}
		seg.Transitions = append(seg.Transitions, &tr)
	}
	return rows.Err()
}
