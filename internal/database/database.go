// Package database implements learning.Store on SQLite or PostgreSQL.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jordanhubbard/gauntlet/internal/learning"
	"github.com/jordanhubbard/gauntlet/pkg/config"
	"github.com/jordanhubbard/gauntlet/pkg/models"
	_ "modernc.org/sqlite"
)

// Database is the SQL-backed learning state store.
type Database struct {
	db       *sql.DB
	postgres bool
}

var _ learning.Store = (*Database)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS agent_profiles (
	agent_id TEXT PRIMARY KEY,
	current_tier TEXT NOT NULL,
	level INTEGER NOT NULL,
	experience_points INTEGER NOT NULL,
	profile_json TEXT NOT NULL,
	updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS execution_records (
	scenario_id TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	execution_id TEXT NOT NULL,
	category TEXT NOT NULL,
	tier TEXT NOT NULL,
	score REAL NOT NULL,
	passed BOOLEAN NOT NULL,
	record_json TEXT NOT NULL,
	recorded_at BIGINT NOT NULL,
	PRIMARY KEY (scenario_id, agent_id)
);

CREATE INDEX IF NOT EXISTS idx_execution_records_agent ON execution_records(agent_id, recorded_at);
CREATE INDEX IF NOT EXISTS idx_agent_profiles_tier ON agent_profiles(current_tier);
`

// Open picks the backend from the database config section.
func Open(ctx context.Context, cfg config.DatabaseConfig) (learning.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return learning.NewMemoryStore(), nil
	case "sqlite":
		d, err := New(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return d, nil
	case "postgres":
		d, err := NewPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown database type %q", cfg.Type)
	}
}

// New opens (creating if needed) a SQLite database and initializes the schema.
func New(ctx context.Context, dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers; SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	d := &Database{db: db}
	if err := d.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Database) initSchema(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) q(query string) string {
	if d.postgres {
		return rebind(query)
	}
	return query
}

// Load returns the stored profile.
func (d *Database) Load(ctx context.Context, agentID string) (*models.AgentProfile, error) {
	var raw string
	err := d.db.QueryRowContext(ctx, d.q(`SELECT profile_json FROM agent_profiles WHERE agent_id = ?`), agentID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", learning.ErrProfileNotFound, agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile %s: %w", agentID, err)
	}
	return decodeProfile(raw)
}

// Save upserts the profile.
func (d *Database) Save(ctx context.Context, profile *models.AgentProfile) error {
	if err := d.upsertProfile(ctx, d.db, profile); err != nil {
		return fmt.Errorf("failed to save profile %s: %w", profile.AgentID, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const upsertProfileSQL = `
	INSERT INTO agent_profiles (agent_id, current_tier, level, experience_points, profile_json, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(agent_id) DO UPDATE SET
		current_tier = excluded.current_tier,
		level = excluded.level,
		experience_points = excluded.experience_points,
		profile_json = excluded.profile_json,
		updated_at = excluded.updated_at
`

func (d *Database) upsertProfile(ctx context.Context, ex execer, p *models.AgentProfile) error {
	if p.SchemaVersion == "" {
		p.SchemaVersion = models.ProfileSchemaVersion
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err = ex.ExecContext(ctx, d.q(upsertProfileSQL),
		p.AgentID, string(p.CurrentTier), p.Level, p.ExperiencePoints, string(raw), updated.UnixNano())
	return err
}

// Commit archives rec and writes profile in one transaction. An existing
// (scenario, agent) record aborts the transaction with learning.ErrAlreadyRecorded.
func (d *Database) Commit(ctx context.Context, profile *models.AgentProfile, rec *models.ExecutionRecord) (err error) {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal execution record: %w", err)
	}

	var (
		executionID string
		category    string
		tier        string
		score       float64
		passed      bool
	)
	if rec.Execution != nil {
		executionID = rec.Execution.ID
	}
	if rec.Scenario != nil {
		category, tier = string(rec.Scenario.Category), string(rec.Scenario.Tier)
	}
	if rec.Result != nil {
		score, passed = rec.Result.AggregateScore, rec.Result.Passed
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, d.q(`
		INSERT INTO execution_records (scenario_id, agent_id, execution_id, category, tier, score, passed, record_json, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scenario_id, agent_id) DO NOTHING
	`), rec.ScenarioID, rec.AgentID, executionID, category, tier, score, passed, string(raw), rec.RecordedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to archive execution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to archive execution: %w", err)
	}
	if n == 0 {
		err = fmt.Errorf("%w: scenario %s agent %s", learning.ErrAlreadyRecorded, rec.ScenarioID, rec.AgentID)
		return err
	}

	if err = d.upsertProfile(ctx, tx, profile); err != nil {
		return fmt.Errorf("failed to save profile %s: %w", profile.AgentID, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// ListProfiles returns every profile ordered by agent id.
func (d *Database) ListProfiles(ctx context.Context) ([]*models.AgentProfile, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT profile_json FROM agent_profiles ORDER BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var out []*models.AgentProfile
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		p, err := decodeProfile(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Records returns archived records for agentID, newest first. limit <= 0 means all.
func (d *Database) Records(ctx context.Context, agentID string, limit int) ([]*models.ExecutionRecord, error) {
	query := `SELECT record_json FROM execution_records WHERE agent_id = ? ORDER BY recorded_at DESC`
	args := []any{agentID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := d.db.QueryContext(ctx, d.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []*models.ExecutionRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		var rec models.ExecutionRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func decodeProfile(raw string) (*models.AgentProfile, error) {
	var p models.AgentProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	if p.SchemaVersion == "" {
		p.SchemaVersion = models.ProfileSchemaVersion
	}
	return &p, nil
}
