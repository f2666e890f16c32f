package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rcliao/chat-memory/internal/model"
)

func (s *SQLiteStore) RecordConflict(ctx context.Context, p RecordConflictParams) (*model.Conflict, error) {
	if p.MemoryAID == "" {
		return nil, fmt.Errorf("memory_a_id is required")
	}
	if p.ConflictType == "" {
		return nil, fmt.Errorf("conflict_type is required")
	}

	now := time.Now().UTC()
	id := s.newID()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_conflicts (id, memory_a_id, memory_b_id, conflict_type, resolved, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		id, p.MemoryAID, nullable(p.MemoryBID), p.ConflictType, now.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("insert conflict: %w", err)
	}

	return &model.Conflict{
		ID:           id,
		MemoryAID:    p.MemoryAID,
		MemoryBID:    p.MemoryBID,
		ConflictType: p.ConflictType,
		CreatedAt:    now,
	}, nil
}

// ListUnresolvedConflicts returns open conflicts for the owner. Ownership is
// derived through memory_a, which is always the newly created memory.
func (s *SQLiteStore) ListUnresolvedConflicts(ctx context.Context, owner string) ([]model.Conflict, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.memory_a_id, c.memory_b_id, c.conflict_type,
		        c.resolution_strategy, c.resolved, c.resolved_at, c.created_at
		 FROM memory_conflicts c
		 JOIN memories m ON m.id = c.memory_a_id
		 WHERE m.owner = ? AND c.resolved = 0
		 ORDER BY c.created_at DESC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conflicts []model.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

func (s *SQLiteStore) ResolveConflict(ctx context.Context, id, strategy string) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`UPDATE memory_conflicts SET resolved = 1, resolution_strategy = ?, resolved_at = ?
		 WHERE id = ?`, strategy, now, id)
	if err != nil {
		return fmt.Errorf("resolve conflict: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conflict %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanConflict(row scanner) (model.Conflict, error) {
	var c model.Conflict
	var memoryB, strategy, resolvedAt sql.NullString
	var resolved int
	var createdAt string

	err := row.Scan(&c.ID, &c.MemoryAID, &memoryB, &c.ConflictType,
		&strategy, &resolved, &resolvedAt, &createdAt)
	if err != nil {
		return c, err
	}

	c.Resolved = resolved != 0
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if memoryB.Valid {
		c.MemoryBID = memoryB.String
	}
	if strategy.Valid {
		c.ResolutionStrategy = strategy.String
	}
	if resolvedAt.Valid {
		t, _ := time.Parse(time.RFC3339, resolvedAt.String)
		c.ResolvedAt = &t
	}
	return c, nil
}
