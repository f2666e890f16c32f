package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rcliao/chat-memory/internal/model"
)

const threadCols = `id, owner, title, created_at, last_active_at`

func (s *SQLiteStore) CreateThread(ctx context.Context, owner string) (*model.Thread, error) {
	if owner == "" {
		return nil, fmt.Errorf("owner is required")
	}

	now := time.Now().UTC()
	id := s.newID()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (id, owner, created_at, last_active_at) VALUES (?, ?, ?, ?)`,
		id, owner, now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("insert thread: %w", err)
	}

	return &model.Thread{ID: id, Owner: owner, CreatedAt: now, LastActiveAt: now}, nil
}

func (s *SQLiteStore) GetThread(ctx context.Context, owner, id string) (*model.Thread, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+threadCols+` FROM threads WHERE owner = ? AND id = ?`, owner, id)
	t, err := scanThread(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("thread %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetLatestThread returns the owner's most recently active thread, or
// ErrNotFound when the owner has none.
func (s *SQLiteStore) GetLatestThread(ctx context.Context, owner string) (*model.Thread, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+threadCols+` FROM threads WHERE owner = ?
		 ORDER BY last_active_at DESC LIMIT 1`, owner)
	t, err := scanThread(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no threads for owner %s: %w", owner, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) ListThreads(ctx context.Context, owner string) ([]model.Thread, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+threadCols+` FROM threads WHERE owner = ?
		 ORDER BY last_active_at DESC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []model.Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// SetThreadTitle overwrites the title unconditionally. The orchestrator
// enforces the first-message-only rule.
func (s *SQLiteStore) SetThreadTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE threads SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return fmt.Errorf("set title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("thread %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteThread removes the thread, its messages, and its thread-scoped
// memories in one transaction. Global memories survive.
func (s *SQLiteStore) DeleteThread(ctx context.Context, owner, id string) error {
	if _, err := s.GetThread(ctx, owner, id); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM memory_conflicts WHERE memory_a_id IN
		   (SELECT id FROM memories WHERE thread_id = ? AND scope = 'thread')
		 OR memory_b_id IN
		   (SELECT id FROM memories WHERE thread_id = ? AND scope = 'thread')`,
		id, id); err != nil {
		return fmt.Errorf("delete thread conflicts: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM memories WHERE thread_id = ? AND scope = 'thread'`, id); err != nil {
		return fmt.Errorf("delete thread memories: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, id); err != nil {
		return fmt.Errorf("delete thread messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, threadID, role, content string) (*model.Message, error) {
	now := time.Now().UTC()
	id := s.newID()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE threads SET last_active_at = ? WHERE id = ?`,
		now.Format(timeLayout), threadID)
	if err != nil {
		return nil, fmt.Errorf("touch thread: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, thread_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, threadID, role, content, now.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &model.Message{ID: id, ThreadID: threadID, Role: role, Content: content, CreatedAt: now}, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, threadID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, role, content, memory_scope, memory_meta, created_at
		 FROM messages WHERE thread_id = ? ORDER BY created_at ASC, id ASC`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		var scope, meta sql.NullString
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &scope, &meta, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if scope.Valid {
			m.MemoryScope = scope.String
		}
		if meta.Valid {
			m.MemoryMeta = meta.String
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) TagMessage(ctx context.Context, messageID, memoryScope, memoryMeta string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET memory_scope = ?, memory_meta = ? WHERE id = ?`,
		memoryScope, nullable(memoryMeta), messageID)
	if err != nil {
		return fmt.Errorf("tag message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	return nil
}

func scanThread(row scanner) (model.Thread, error) {
	var t model.Thread
	var title sql.NullString
	var createdAt, lastActive string

	if err := row.Scan(&t.ID, &t.Owner, &title, &createdAt, &lastActive); err != nil {
		return t, err
	}
	if title.Valid {
		t.Title = title.String
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.LastActiveAt, _ = time.Parse(time.RFC3339, lastActive)
	return t, nil
}
