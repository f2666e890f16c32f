package store

import (
	"context"

	"github.com/rcliao/chat-memory/internal/model"
)

// ExportAll returns all of an owner's memories, optionally filtered by scope,
// ordered for a stable export.
func (s *SQLiteStore) ExportAll(ctx context.Context, owner string, scope model.Scope) ([]model.Memory, error) {
	query := `SELECT ` + memoryCols + ` FROM memories WHERE owner = ?`
	args := []interface{}{owner}

	if scope != "" {
		query += ` AND scope = ?`
		args = append(args, string(scope))
	}
	query += ` ORDER BY scope, created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}
