// Package store provides the persistence adapters: a SQLite-backed store
// for agent snapshots and the execution ledger, and an in-memory variant
// for tests and the "memory" driver.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"agency-ai/internal/domain"
)

// SQLiteStore implements domain.AgentStore and domain.UsageStore on a
// single database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs
// the schema migration. The parent directory is created if missing.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS agents (
			seq          INTEGER PRIMARY KEY AUTOINCREMENT,
			id           TEXT NOT NULL UNIQUE,
			name         TEXT NOT NULL,
			type         TEXT NOT NULL,
			capabilities TEXT NOT NULL DEFAULT '[]',
			model        TEXT NOT NULL DEFAULT '',
			tools        TEXT NOT NULL DEFAULT '[]',
			prompt       TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL,
			usage        TEXT NOT NULL DEFAULT '{}',
			created_at   TEXT NOT NULL,
			last_active  TEXT NOT NULL,
			created_by   TEXT NOT NULL DEFAULT '',
			owner_id     TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS executions (
			id            TEXT PRIMARY KEY,
			agent_id      TEXT NOT NULL,
			owner_id      TEXT NOT NULL DEFAULT '',
			model         TEXT NOT NULL DEFAULT '',
			input_tokens  INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			cost          REAL NOT NULL DEFAULT 0,
			completed     INTEGER NOT NULL,
			error_code    TEXT NOT NULL DEFAULT '',
			duration_ns   INTEGER NOT NULL DEFAULT 0,
			created_at    INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_executions_agent ON executions(agent_id);
		CREATE INDEX IF NOT EXISTS idx_executions_created ON executions(created_at);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- domain.AgentStore ---

// SaveAgent upserts one agent snapshot. The seq column is assigned on
// first insert and survives updates, preserving registration order.
func (s *SQLiteStore) SaveAgent(ctx context.Context, rec domain.AgentRecord) error {
	caps, err := json.Marshal(rec.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}
	tools, err := json.Marshal(rec.Tools)
	if err != nil {
		return fmt.Errorf("marshal tools: %w", err)
	}
	usage, err := json.Marshal(rec.Usage)
	if err != nil {
		return fmt.Errorf("marshal usage: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, type, capabilities, model, tools, prompt,
			status, usage, created_at, last_active, created_by, owner_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			capabilities = excluded.capabilities,
			model = excluded.model,
			tools = excluded.tools,
			prompt = excluded.prompt,
			status = excluded.status,
			usage = excluded.usage,
			last_active = excluded.last_active,
			created_by = excluded.created_by,
			owner_id = excluded.owner_id`,
		rec.ID, rec.Name, rec.Type, string(caps), rec.Model, string(tools), rec.Prompt,
		string(rec.Status), string(usage),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.LastActive.UTC().Format(time.RFC3339Nano),
		rec.CreatedBy, rec.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("%w: save agent %s: %v", domain.ErrStoreWrite, rec.ID, err)
	}
	return nil
}

const agentColumns = `id, name, type, capabilities, model, tools, prompt,
	status, usage, created_at, last_active, created_by, owner_id`

// GetAgent returns one snapshot by id.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*domain.AgentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+agentColumns+" FROM agents WHERE id = ?", id)
	rec, err := scanAgent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewDomainError("SQLiteStore.GetAgent", domain.ErrNotFound, id)
		}
		return nil, err
	}
	return rec, nil
}

// ListAgents returns all snapshots in original registration order.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]domain.AgentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+agentColumns+" FROM agents ORDER BY seq")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.AgentRecord
	for rows.Next() {
		rec, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// DeleteAgent removes one snapshot.
func (s *SQLiteStore) DeleteAgent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM agents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%w: delete agent %s: %v", domain.ErrStoreWrite, id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewDomainError("SQLiteStore.DeleteAgent", domain.ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(row scanner) (*domain.AgentRecord, error) {
	var rec domain.AgentRecord
	var status, capsStr, toolsStr, usageStr, createdStr, activeStr string
	err := row.Scan(&rec.ID, &rec.Name, &rec.Type, &capsStr, &rec.Model, &toolsStr,
		&rec.Prompt, &status, &usageStr, &createdStr, &activeStr,
		&rec.CreatedBy, &rec.OwnerID)
	if err != nil {
		return nil, err
	}
	rec.Status = domain.AgentStatus(status)
	if err := json.Unmarshal([]byte(capsStr), &rec.Capabilities); err != nil {
		return nil, fmt.Errorf("unmarshal capabilities: %w", err)
	}
	if err := json.Unmarshal([]byte(toolsStr), &rec.Tools); err != nil {
		return nil, fmt.Errorf("unmarshal tools: %w", err)
	}
	if err := json.Unmarshal([]byte(usageStr), &rec.Usage); err != nil {
		return nil, fmt.Errorf("unmarshal usage: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	rec.LastActive, _ = time.Parse(time.RFC3339Nano, activeStr)
	return &rec, nil
}

// --- domain.UsageStore ---

// AppendExecution writes one ledger row. Timestamps are stored as unix
// nanoseconds so range queries compare correctly.
func (s *SQLiteStore) AppendExecution(ctx context.Context, rec domain.ExecutionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (id, agent_id, owner_id, model, input_tokens,
			output_tokens, cost, completed, error_code, duration_ns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AgentID, rec.OwnerID, rec.Model,
		rec.InputTokens, rec.OutputTokens, rec.Cost,
		boolToInt(rec.Completed), rec.ErrorCode,
		int64(rec.Duration), rec.CreatedAt.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("%w: append execution %s: %v", domain.ErrStoreWrite, rec.ID, err)
	}
	return nil
}

// UsageStats aggregates the ledger rows matching the filter.
func (s *SQLiteStore) UsageStats(ctx context.Context, f domain.UsageFilter) (*domain.UsageStats, error) {
	where, args := buildUsageWhere(f)
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN completed = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(input_tokens), 0),
			COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(cost), 0)
		FROM executions`+where, args...)

	var stats domain.UsageStats
	if err := row.Scan(&stats.Executions, &stats.Completed,
		&stats.InputTokens, &stats.OutputTokens, &stats.Cost); err != nil {
		return nil, err
	}
	stats.Failed = stats.Executions - stats.Completed
	return &stats, nil
}

// RecentExecutions returns up to limit rows matching the filter, newest
// first.
func (s *SQLiteStore) RecentExecutions(ctx context.Context, f domain.UsageFilter, limit int) ([]domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	where, args := buildUsageWhere(f)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, owner_id, model, input_tokens, output_tokens,
			cost, completed, error_code, duration_ns, created_at
		FROM executions`+where+`
		ORDER BY created_at DESC, id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.ExecutionRecord
	for rows.Next() {
		var rec domain.ExecutionRecord
		var completed int
		var durationNS, createdNS int64
		if err := rows.Scan(&rec.ID, &rec.AgentID, &rec.OwnerID, &rec.Model,
			&rec.InputTokens, &rec.OutputTokens, &rec.Cost,
			&completed, &rec.ErrorCode, &durationNS, &createdNS); err != nil {
			return nil, err
		}
		rec.Completed = completed == 1
		rec.Duration = time.Duration(durationNS)
		rec.CreatedAt = time.Unix(0, createdNS).UTC()
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// PruneExecutions deletes rows created before the cutoff and returns how
// many were removed.
func (s *SQLiteStore) PruneExecutions(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM executions WHERE created_at < ?", before.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("%w: prune executions: %v", domain.ErrStoreWrite, err)
	}
	return res.RowsAffected()
}

func buildUsageWhere(f domain.UsageFilter) (string, []any) {
	var conds []string
	var args []any
	if f.AgentID != "" {
		conds = append(conds, "agent_id = ?")
		args = append(args, f.AgentID)
	}
	if f.OwnerID != "" {
		conds = append(conds, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UTC().UnixNano())
	}
	if !f.Until.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, f.Until.UTC().UnixNano())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Compile-time interface checks.
var (
	_ domain.AgentStore = (*SQLiteStore)(nil)
	_ domain.UsageStore = (*SQLiteStore)(nil)
)
