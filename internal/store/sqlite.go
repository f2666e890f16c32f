package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/chat-memory/internal/model"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// timeLayout is RFC3339 with a fixed-width nanosecond fraction so stored
// timestamps sort lexicographically. Read back with time.RFC3339, which
// accepts the fraction.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (s *SQLiteStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS threads (
		id             TEXT PRIMARY KEY,
		owner          TEXT NOT NULL,
		title          TEXT,
		created_at     TEXT NOT NULL,
		last_active_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_threads_owner_active ON threads(owner, last_active_at DESC);

	CREATE TABLE IF NOT EXISTS messages (
		id           TEXT PRIMARY KEY,
		thread_id    TEXT NOT NULL REFERENCES threads(id),
		role         TEXT NOT NULL,
		content      TEXT NOT NULL,
		memory_scope TEXT,
		memory_meta  TEXT,
		created_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, created_at);

	CREATE TABLE IF NOT EXISTS memories (
		id                    TEXT PRIMARY KEY,
		owner                 TEXT NOT NULL,
		thread_id             TEXT,
		memory_type           TEXT NOT NULL,
		scope                 TEXT NOT NULL DEFAULT 'thread',
		content               TEXT NOT NULL,
		short_summary         TEXT NOT NULL,
		confidence            REAL,
		verified              INTEGER NOT NULL DEFAULT 0,
		verification_prompt   TEXT,
		verification_response TEXT,
		superseded_by         TEXT REFERENCES memories(id),
		created_at            TEXT NOT NULL,
		updated_at            TEXT NOT NULL,
		expires_at            TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_memories_owner_scope ON memories(owner, scope);
	CREATE INDEX IF NOT EXISTS idx_memories_thread ON memories(thread_id);
	CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC);

	CREATE TABLE IF NOT EXISTS memory_conflicts (
		id                  TEXT PRIMARY KEY,
		memory_a_id         TEXT NOT NULL REFERENCES memories(id),
		memory_b_id         TEXT REFERENCES memories(id),
		conflict_type       TEXT NOT NULL,
		resolution_strategy TEXT,
		resolved            INTEGER NOT NULL DEFAULT 0,
		resolved_at         TEXT,
		created_at          TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conflicts_memory_a ON memory_conflicts(memory_a_id);
	CREATE INDEX IF NOT EXISTS idx_conflicts_resolved ON memory_conflicts(resolved);
	`
	_, err := s.db.Exec(schema)
	return err
}

const memoryCols = `id, owner, thread_id, memory_type, scope, content, short_summary,
	confidence, verified, verification_prompt, verification_response, superseded_by,
	created_at, updated_at, expires_at`

func (s *SQLiteStore) CreateMemory(ctx context.Context, p CreateMemoryParams) (*model.Memory, error) {
	if !model.ValidMemoryTypes[p.MemoryType] {
		return nil, fmt.Errorf("invalid memory_type %q", p.MemoryType)
	}
	if !model.ValidScopes[p.Scope] {
		return nil, fmt.Errorf("invalid scope %q", p.Scope)
	}
	if p.Scope == model.ScopeThread && p.ThreadID == "" {
		return nil, fmt.Errorf("thread-scoped memory requires thread_id")
	}
	if p.Confidence != nil && (*p.Confidence < 0 || *p.Confidence > 1) {
		return nil, fmt.Errorf("confidence %f out of range [0,1]", *p.Confidence)
	}

	now := time.Now().UTC()
	id := s.newID()

	var threadID *string
	if p.ThreadID != "" {
		threadID = &p.ThreadID
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, owner, thread_id, memory_type, scope, content, short_summary,
		 confidence, verified, verification_prompt, verification_response, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.Owner, threadID, string(p.MemoryType), string(p.Scope), p.Content, p.ShortSummary,
		p.Confidence, boolToInt(p.Verified), nullable(p.VerificationPrompt), nullable(p.VerificationResponse),
		now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}

	return &model.Memory{
		ID:                   id,
		Owner:                p.Owner,
		ThreadID:             p.ThreadID,
		MemoryType:           p.MemoryType,
		Scope:                p.Scope,
		Content:              p.Content,
		ShortSummary:         p.ShortSummary,
		Confidence:           p.Confidence,
		Verified:             p.Verified,
		VerificationPrompt:   p.VerificationPrompt,
		VerificationResponse: p.VerificationResponse,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

func (s *SQLiteStore) GetMemory(ctx context.Context, owner, id string) (*model.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryCols+` FROM memories WHERE owner = ? AND id = ?`, owner, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLiteStore) UpdateMemory(ctx context.Context, owner, id string, patch MemoryPatch) (*model.Memory, error) {
	cur, err := s.GetMemory(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	summary := cur.ShortSummary
	if patch.ShortSummary != nil {
		summary = *patch.ShortSummary
	}
	var superseded *string
	if patch.SupersededBy != nil {
		if *patch.SupersededBy == id {
			return nil, fmt.Errorf("memory %s cannot supersede itself", id)
		}
		// The replacing memory must exist for the same owner.
		if _, err := s.GetMemory(ctx, owner, *patch.SupersededBy); err != nil {
			return nil, fmt.Errorf("superseded_by: %w", err)
		}
		superseded = patch.SupersededBy
	} else if cur.SupersededBy != "" {
		superseded = &cur.SupersededBy
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`UPDATE memories SET short_summary = ?, superseded_by = ?, updated_at = ?
		 WHERE owner = ? AND id = ?`,
		summary, superseded, now.Format(timeLayout), owner, id)
	if err != nil {
		return nil, fmt.Errorf("update memory: %w", err)
	}

	return s.GetMemory(ctx, owner, id)
}

// DeleteMemory hard-deletes a memory along with its bookkeeping references.
// Conflicts about the memory are deleted; conflicts that merely paired it as
// the existing side are kept unpaired, and supersede links pointing at it are
// cleared.
func (s *SQLiteStore) DeleteMemory(ctx context.Context, owner, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM memory_conflicts WHERE memory_a_id = ?`, id); err != nil {
		return fmt.Errorf("delete memory conflicts: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE memory_conflicts SET memory_b_id = NULL WHERE memory_b_id = ?`, id); err != nil {
		return fmt.Errorf("unpair memory conflicts: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE memories SET superseded_by = NULL WHERE superseded_by = ?`, id); err != nil {
		return fmt.Errorf("clear supersede links: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}

	return tx.Commit()
}

func (s *SQLiteStore) ListMemories(ctx context.Context, p ListMemoriesParams) ([]model.Memory, error) {
	if p.Owner == "" {
		return nil, fmt.Errorf("owner is required")
	}

	query := `SELECT ` + memoryCols + ` FROM memories WHERE owner = ?`
	args := []interface{}{p.Owner}

	if p.Scope != "" {
		query += ` AND scope = ?`
		args = append(args, string(p.Scope))
	}
	if p.ThreadID != "" {
		query += ` AND thread_id = ?`
		args = append(args, p.ThreadID)
	}
	query += ` ORDER BY created_at DESC`

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

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row scanner) (model.Memory, error) {
	var m model.Memory
	var threadID, vPrompt, vResponse, superseded, expiresAt sql.NullString
	var confidence sql.NullFloat64
	var verified int
	var createdAt, updatedAt string
	var memType, scope string

	err := row.Scan(
		&m.ID, &m.Owner, &threadID, &memType, &scope, &m.Content, &m.ShortSummary,
		&confidence, &verified, &vPrompt, &vResponse, &superseded,
		&createdAt, &updatedAt, &expiresAt,
	)
	if err != nil {
		return m, err
	}

	m.MemoryType = model.MemoryType(memType)
	m.Scope = model.Scope(scope)
	m.Verified = verified != 0
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if threadID.Valid {
		m.ThreadID = threadID.String
	}
	if confidence.Valid {
		c := confidence.Float64
		m.Confidence = &c
	}
	if vPrompt.Valid {
		m.VerificationPrompt = vPrompt.String
	}
	if vResponse.Valid {
		m.VerificationResponse = vResponse.String
	}
	if superseded.Valid {
		m.SupersededBy = superseded.String
	}
	if expiresAt.Valid {
		t, _ := time.Parse(time.RFC3339, expiresAt.String)
		m.ExpiresAt = &t
	}

	return m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
