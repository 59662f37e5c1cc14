// Package sqlite persists the agent's memory, projects and conversations in
// a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/domain"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS memory_entries (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	key TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	content TEXT,
	data TEXT,
	tags TEXT NOT NULL DEFAULT '[]',
	conversation_id TEXT,
	created_at DATETIME
);

CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT,
	status TEXT,
	body TEXT NOT NULL,
	updated_at DATETIME
);

CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	participants TEXT,
	context TEXT,
	status TEXT,
	started_at DATETIME,
	last_message_at DATETIME,
	ended_at DATETIME
);

CREATE TABLE IF NOT EXISTS messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	conversation_id TEXT,
	sender TEXT,
	type TEXT,
	content TEXT,
	timestamp DATETIME,
	FOREIGN KEY(conversation_id) REFERENCES conversations(id)
);`

type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) PutEntry(ctx context.Context, e domain.MemoryEntry) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal entry data: %w", err)
	}
	tags, err := json.Marshal(e.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal entry tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memory_entries (key, kind, content, data, tags, conversation_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Key, e.Kind, e.Content, string(data), string(tags), e.ConversationID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

const entryColumns = `key, kind, content, data, tags, conversation_id, created_at`

func (s *Store) RecentEntries(ctx context.Context, limit int) ([]domain.MemoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM (
			SELECT seq, `+entryColumns+` FROM memory_entries ORDER BY seq DESC LIMIT ?
		) ORDER BY seq`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	return scanEntries(rows)
}

func (s *Store) SearchEntries(ctx context.Context, query string, limit int) ([]domain.MemoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	pattern := "%" + likeEscaper.Replace(strings.ToLower(query)) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM (
			SELECT seq, `+entryColumns+` FROM memory_entries
			WHERE lower(content) LIKE ? ESCAPE '\'
			   OR EXISTS (SELECT 1 FROM json_each(memory_entries.tags) WHERE lower(json_each.value) LIKE ? ESCAPE '\')
			ORDER BY seq DESC LIMIT ?
		) ORDER BY seq`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search entries: %w", err)
	}
	return scanEntries(rows)
}

// likeEscaper makes a query match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func scanEntries(rows *sql.Rows) ([]domain.MemoryEntry, error) {
	defer rows.Close()

	var out []domain.MemoryEntry
	for rows.Next() {
		var (
			e          domain.MemoryEntry
			data, tags string
		)
		if err := rows.Scan(&e.Key, &e.Kind, &e.Content, &data, &tags, &e.ConversationID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if data != "" && data != "null" {
			if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal entry data: %w", err)
			}
		}
		if tags != "" {
			if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
				return nil, fmt.Errorf("failed to unmarshal entry tags: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CountEntries(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

func (s *Store) SaveProject(ctx context.Context, p *domain.Project) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO projects (id, name, status, body, updated_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Status, string(body), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM projects WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	var p domain.Project
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project: %w", err)
	}
	return &p, nil
}

// SaveConversation writes the conversation row and any messages not yet
// stored, in one transaction.
func (s *Store) SaveConversation(ctx context.Context, c *domain.Conversation) error {
	participants, err := json.Marshal(c.Participants)
	if err != nil {
		return fmt.Errorf("failed to marshal participants: %w", err)
	}
	convCtx, err := json.Marshal(c.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var endedAt any
	if !c.EndedAt.IsZero() {
		endedAt = c.EndedAt
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, participants, context, status, started_at, last_message_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			participants = excluded.participants,
			context = excluded.context,
			status = excluded.status,
			last_message_at = excluded.last_message_at,
			ended_at = excluded.ended_at`,
		c.ID, string(participants), string(convCtx), c.Status, c.StartedAt, c.LastMessageAt, endedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}

	for _, m := range c.Messages() {
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO messages (id, conversation_id, sender, type, content, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID(), c.ID, string(m.Sender()), m.Type(), m.Content(), m.Timestamp(),
		)
		if err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var (
		participants, convCtx, status string
		startedAt, lastAt             time.Time
		endedAt                       sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT participants, context, status, started_at, last_message_at, ended_at FROM conversations WHERE id = ?`, id,
	).Scan(&participants, &convCtx, &status, &startedAt, &lastAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("conversation not found: %w", err)
	}

	c := domain.NewConversationWithID(id)
	if err := json.Unmarshal([]byte(participants), &c.Participants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participants: %w", err)
	}
	if err := json.Unmarshal([]byte(convCtx), &c.Context); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context: %w", err)
	}
	if c.Context == nil {
		c.Context = map[string]any{}
	}
	c.StartedAt = startedAt

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, type, content, timestamp FROM messages WHERE conversation_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msgID, sender, typ, content string
			ts                          time.Time
		)
		if err := rows.Scan(&msgID, &sender, &typ, &content, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if err := c.AddMessage(domain.RestoreMessage(msgID, content, domain.Sender(sender), typ, ts)); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	// Status is applied after replaying messages so an ended log still loads.
	c.LastMessageAt = lastAt
	c.Status = status
	if endedAt.Valid {
		c.EndedAt = endedAt.Time
	}
	return c, nil
}
