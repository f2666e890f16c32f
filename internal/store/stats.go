package store

import (
	"context"
	"os"
)

// Stats holds database statistics for one owner.
type Stats struct {
	DBPath              string      `json:"db_path"`
	DBSizeBytes         int64       `json:"db_size_bytes"`
	Threads             int         `json:"threads"`
	Messages            int         `json:"messages"`
	GlobalMemories      int         `json:"global_memories"`
	ThreadMemories      int         `json:"thread_memories"`
	VerifiedMemories    int         `json:"verified_memories"`
	UnresolvedConflicts int         `json:"unresolved_conflicts"`
	ByType              []TypeStats `json:"by_type"`
}

// TypeStats holds per-memory-type counts.
type TypeStats struct {
	MemoryType string `json:"memory_type"`
	Count      int    `json:"count"`
}

// Stats returns counts for the owner's threads, memories, and conflicts.
func (s *SQLiteStore) Stats(ctx context.Context, owner, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM threads WHERE owner = ?`, owner).Scan(&st.Threads)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE thread_id IN (SELECT id FROM threads WHERE owner = ?)`,
		owner).Scan(&st.Messages)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE owner = ? AND scope = 'global'`, owner).Scan(&st.GlobalMemories)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE owner = ? AND scope = 'thread'`, owner).Scan(&st.ThreadMemories)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE owner = ? AND verified = 1`, owner).Scan(&st.VerifiedMemories)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memory_conflicts c JOIN memories m ON m.id = c.memory_a_id
		 WHERE m.owner = ? AND c.resolved = 0`, owner).Scan(&st.UnresolvedConflicts)

	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_type, COUNT(*) as cnt
		FROM memories WHERE owner = ?
		GROUP BY memory_type ORDER BY cnt DESC`, owner)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var ts TypeStats
		rows.Scan(&ts.MemoryType, &ts.Count)
		st.ByType = append(st.ByType, ts)
	}

	return st, nil
}
