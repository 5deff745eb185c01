package convstore

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements creates the base tables if absent. Every subsequent
// evolution is an additive ALTER ADD COLUMN applied by migrateAdditive,
// tolerated if the column already exists — there is no versioned
// migrations directory, matching the embedded single-file model.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		request_id TEXT PRIMARY KEY,
		input_message TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		total_energy_consumed REAL NOT NULL DEFAULT 0,
		sleep_cycles INTEGER NOT NULL DEFAULT 0,
		ended INTEGER NOT NULL DEFAULT 0,
		ended_reason TEXT NOT NULL DEFAULT '',
		snooze_until INTEGER NOT NULL DEFAULT 0,
		snooze_duration INTEGER NOT NULL DEFAULT 0,
		energy_budget REAL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_request_id ON conversations(request_id)`,
	`CREATE TABLE IF NOT EXISTS responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL REFERENCES conversations(request_id),
		timestamp INTEGER NOT NULL,
		content TEXT NOT NULL,
		energy_level REAL NOT NULL,
		model_used TEXT NOT NULL DEFAULT '',
		is_approval_request INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT '',
		feedback TEXT NOT NULL DEFAULT '',
		approval_timestamp INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_responses_conversation_id ON responses(conversation_id)`,
}

// additiveColumns lists columns added after the initial schema, applied
// with ALTER TABLE ADD COLUMN and tolerated if already present. New
// deployments get them from schemaStatements directly; this list exists
// so upgrading an existing database file converges to the same shape.
var additiveColumns = []struct {
	table, column, ddl string
}{
	{"responses", "is_approval_request", "ALTER TABLE responses ADD COLUMN is_approval_request INTEGER NOT NULL DEFAULT 0"},
	{"responses", "status", "ALTER TABLE responses ADD COLUMN status TEXT NOT NULL DEFAULT ''"},
	{"responses", "feedback", "ALTER TABLE responses ADD COLUMN feedback TEXT NOT NULL DEFAULT ''"},
	{"responses", "approval_timestamp", "ALTER TABLE responses ADD COLUMN approval_timestamp INTEGER NOT NULL DEFAULT 0"},
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	for _, col := range additiveColumns {
		has, err := hasColumn(ctx, db, col.table, col.column)
		if err != nil {
			return fmt.Errorf("inspect column %s.%s: %w", col.table, col.column, err)
		}
		if has {
			continue
		}
		if _, err := db.ExecContext(ctx, col.ddl); err != nil {
			return fmt.Errorf("add column %s.%s: %w", col.table, col.column, err)
		}
	}
	return nil
}

func hasColumn(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &primaryKey); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
