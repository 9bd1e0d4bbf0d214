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

// PutRoutingEntry upserts one routing entry by id.
func (s *Store) PutRoutingEntry(ctx context.Context, entry *types.RoutingEntry) error {
	return putRoutingEntry(ctx, s.db, entry)
}

// ListRoutingEntries returns a routing's entries, optionally active only.
func (s *Store) ListRoutingEntries(ctx context.Context, routingID string, activeOnly bool) ([]*types.RoutingEntry, error) {
	return listRoutingEntries(ctx, s.db, routingID, activeOnly)
}

// ListRoutingIDs returns every routing id with at least one active entry.
func (s *Store) ListRoutingIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT routing_id FROM routing_entries WHERE active = 1 ORDER BY routing_id
	`)
	if err != nil {
		return nil, wrapDBError("list routing ids", err)
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBError("scan routing id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RoutingExists reports whether a routing has any active entry. Segment
// creation is gated on this.
func (s *Store) RoutingExists(ctx context.Context, routingID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM routing_entries WHERE routing_id = ? AND active = 1)
	`, routingID).Scan(&exists)
	if err != nil {
		return false, wrapDBError("check routing", err)
	}
	return exists, nil
}

// DeactivateRoutingEntries soft-deletes every active entry of a routing.
func (s *Store) DeactivateRoutingEntries(ctx context.Context, routingID string) error {
	return deactivateRoutingEntries(ctx, s.db, routingID)
}

// AddVersionSnapshot appends an immutable snapshot, assigning the next
// version number for the routing.
func (s *Store) AddVersionSnapshot(ctx context.Context, routingID string, content []byte, actor string) (*types.VersionSnapshot, error) {
	var snap *types.VersionSnapshot
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		var err error
		snap, err = addVersionSnapshot(ctx, conn, routingID, content, actor)
		return err
	})
	return snap, err
}

// GetVersionSnapshot returns one snapshot, or storage.ErrNotFound.
func (s *Store) GetVersionSnapshot(ctx context.Context, routingID string, version int) (*types.VersionSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT routing_id, version, content, created_at, created_by
		FROM routing_versions WHERE routing_id = ? AND version = ?
	`, routingID, version)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("version %d of routing %s: %w", version, routingID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, wrapDBError("get version snapshot", err)
	}
	return snap, nil
}

// ListVersionSnapshots returns a routing's snapshots, newest first.
func (s *Store) ListVersionSnapshots(ctx context.Context, routingID string) ([]*types.VersionSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT routing_id, version, content, created_at, created_by
		FROM routing_versions WHERE routing_id = ? ORDER BY version DESC
	`, routingID)
	if err != nil {
		return nil, wrapDBError("list version snapshots", err)
	}
	defer func() { _ = rows.Close() }()
	var out []*types.VersionSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, wrapDBError("scan version snapshot", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// DeleteVersionSnapshots removes the given versions. Retention decisions
// (keep newest N, keep the active version) belong to the history package.
func (s *Store) DeleteVersionSnapshots(ctx context.Context, routingID string, versions []int) error {
	if len(versions) == 0 {
		return nil
	}
	return s.withConn(ctx, func(conn *sql.Conn) error {
		for _, v := range versions {
			if _, err := conn.ExecContext(ctx, `
				DELETE FROM routing_versions WHERE routing_id = ? AND version = ?
			`, routingID, v); err != nil {
				return wrapDBError("delete version snapshot", err)
			}
		}
		return nil
	})
}

func putRoutingEntry(ctx context.Context, q dbtx, entry *types.RoutingEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	flags := "{}"
	if len(entry.Flags) > 0 {
		raw, err := json.Marshal(entry.Flags)
		if err != nil {
			return fmt.Errorf("failed to encode flags: %w", err)
		}
		flags = string(raw)
	}
	now := time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	_, err := q.ExecContext(ctx, `
		INSERT INTO routing_entries (id, routing_id, source, init_segment, flags, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			routing_id = excluded.routing_id,
			source = excluded.source,
			init_segment = excluded.init_segment,
			flags = excluded.flags,
			active = excluded.active,
			updated_at = excluded.updated_at
	`, entry.ID, entry.RoutingID, entry.Source, entry.InitSegment, flags, entry.Active, entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return wrapDBError("upsert routing entry", err)
	}
	return nil
}

func listRoutingEntries(ctx context.Context, q dbtx, routingID string, activeOnly bool) ([]*types.RoutingEntry, error) {
	query := `
		SELECT id, routing_id, source, init_segment, flags, active, created_at, updated_at
		FROM routing_entries WHERE routing_id = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY source, id`
	rows, err := q.QueryContext(ctx, query, routingID)
	if err != nil {
		return nil, wrapDBError("list routing entries", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.RoutingEntry
	for rows.Next() {
		var entry types.RoutingEntry
		var flags string
		if err := rows.Scan(&entry.ID, &entry.RoutingID, &entry.Source, &entry.InitSegment,
			&flags, &entry.Active, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, wrapDBError("scan routing entry", err)
		}
		if flags != "" && flags != "{}" {
			if err := json.Unmarshal([]byte(flags), &entry.Flags); err != nil {
				return nil, fmt.Errorf("failed to decode flags: %w", err)
			}
		}
		out = append(out, &entry)
	}
	return out, rows.Err()
}

func deactivateRoutingEntries(ctx context.Context, q dbtx, routingID string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE routing_entries SET active = 0, updated_at = ? WHERE routing_id = ? AND active = 1
	`, time.Now(), routingID)
	if err != nil {
		return wrapDBError("deactivate routing entries", err)
	}
	return nil
}

func addVersionSnapshot(ctx context.Context, q dbtx, routingID string, content []byte, actor string) (*types.VersionSnapshot, error) {
	var max sql.NullInt64
	if err := q.QueryRowContext(ctx, `
		SELECT MAX(version) FROM routing_versions WHERE routing_id = ?
	`, routingID).Scan(&max); err != nil {
		return nil, wrapDBError("find latest version", err)
	}
	snap := &types.VersionSnapshot{
		RoutingID: routingID,
		Version:   int(max.Int64) + 1,
		Content:   content,
		CreatedAt: time.Now(),
		CreatedBy: actor,
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO routing_versions (routing_id, version, content, created_at, created_by)
		VALUES (?, ?, ?, ?, ?)
	`, snap.RoutingID, snap.Version, string(snap.Content), snap.CreatedAt, snap.CreatedBy)
	if err != nil {
		return nil, wrapDBError("insert version snapshot", err)
	}
	return snap, nil
}

func scanSnapshot(row rowScanner) (*types.VersionSnapshot, error) {
	var snap types.VersionSnapshot
	var content string
	err := row.Scan(&snap.RoutingID, &snap.Version, &content, &snap.CreatedAt, &snap.CreatedBy)
	if err != nil {
		return nil, err
	}
	snap.Content = []byte(content)
	return &snap, nil
}
