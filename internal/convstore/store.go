package convstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ivycove/cortex/internal/logging"
)

// Store is the single writer over the embedded sqlite database. All
// operations are synchronous; database/sql's connection pool combined
// with sqlite's own locking gives us the "serialised single-writer"
// semantics the spec requires without an explicit application mutex.
type Store struct {
	db *sql.DB
}

// Open creates (if absent) and migrates the database file at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite only tolerates one writer; a single connection avoids
	// SQLITE_BUSY errors under the loop's synchronous access pattern.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ErrNotFound is returned by Get when no conversation matches.
var ErrNotFound = errors.New("convstore: conversation not found")

// UpsertRequest creates a conversation row if absent. It never overwrites
// user text once a row already exists.
func (s *Store) UpsertRequest(ctx context.Context, id, userText string, budget *float64) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid request id: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (request_id, input_message, created_at, energy_budget)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(request_id) DO NOTHING
	`, id, userText, time.Now().UnixNano(), nullableFloat(budget))
	if err != nil {
		logging.Logger().Warn("upsert_request failed", "request_id", id, "error", err)
		return fmt.Errorf("upsert request: %w", err)
	}
	return nil
}

// AppendResponse inserts a response, bumps cumulative energy, backfills
// user text if the row had none, and increments the sleep-cycle counter.
func (s *Store) AppendResponse(ctx context.Context, id string, userText *string, content string, energyAtWrite float64, modelTier string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append_response: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (request_id, input_message, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(request_id) DO NOTHING
	`, id, valueOr(userText, ""), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("ensure conversation row: %w", err)
	}
	_ = res

	if userText != nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE conversations SET input_message = ?
			WHERE request_id = ? AND input_message = ''
		`, *userText, id); err != nil {
			return fmt.Errorf("backfill input_message: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations
		SET total_energy_consumed = total_energy_consumed + ?,
		    sleep_cycles = sleep_cycles + 1
		WHERE request_id = ?
	`, energyAtWrite, id); err != nil {
		return fmt.Errorf("bump cumulative energy: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO responses (conversation_id, timestamp, content, energy_level, model_used, is_approval_request)
		VALUES (?, ?, ?, ?, ?, 0)
	`, id, time.Now().UnixNano(), content, energyAtWrite, modelTier); err != nil {
		return fmt.Errorf("insert response: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append_response: %w", err)
	}
	return nil
}

// AppendApproval inserts a pending approval row, optionally setting the
// conversation's budget in the same call.
func (s *Store) AppendApproval(ctx context.Context, id, content string, energyAtWrite float64, modelTier string, budget *float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append_approval: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (request_id, input_message, created_at)
		VALUES (?, '', ?)
		ON CONFLICT(request_id) DO NOTHING
	`, id, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("ensure conversation row: %w", err)
	}

	if budget != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE conversations SET energy_budget = ? WHERE request_id = ?`, *budget, id); err != nil {
			return fmt.Errorf("set budget during append_approval: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO responses (conversation_id, timestamp, content, energy_level, model_used, is_approval_request, status)
		VALUES (?, ?, ?, ?, ?, 1, ?)
	`, id, time.Now().UnixNano(), content, energyAtWrite, modelTier, string(ApprovalPending)); err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append_approval: %w", err)
	}
	return nil
}

// SetApprovalStatus transitions pending -> approved|rejected for the
// approval row identified by approvalID, or the latest pending approval
// for id when approvalID is nil. The reverse transition never happens:
// the UPDATE only matches rows currently in status='pending'. When there
// is no pending row to transition, the call is a logged no-op.
func (s *Store) SetApprovalStatus(ctx context.Context, id string, approvalID *int64, status ApprovalState, feedback string, approvalTime time.Time) error {
	if status != ApprovalApproved && status != ApprovalRejected {
		return fmt.Errorf("invalid target approval status: %s", status)
	}

	var targetID int64
	if approvalID != nil {
		targetID = *approvalID
	} else {
		row := s.db.QueryRowContext(ctx, `
			SELECT id FROM responses
			WHERE conversation_id = ? AND is_approval_request = 1 AND status = ?
			ORDER BY timestamp DESC LIMIT 1
		`, id, string(ApprovalPending))
		if err := row.Scan(&targetID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				logging.Logger().Warn("approval transition no-op: no pending approval", "request_id", id)
				return nil
			}
			return fmt.Errorf("find latest pending approval: %w", err)
		}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE responses
		SET status = ?, feedback = ?, approval_timestamp = ?
		WHERE id = ? AND conversation_id = ? AND is_approval_request = 1 AND status = ?
	`, string(status), feedback, approvalTime.UnixNano(), targetID, id, string(ApprovalPending))
	if err != nil {
		return fmt.Errorf("transition approval: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		logging.Logger().Warn("approval transition no-op: not pending or not found", "request_id", id, "approval_id", targetID)
	}
	return nil
}

// SetBudget writes a conversation's soft energy budget directly.
func (s *Store) SetBudget(ctx context.Context, id string, value float64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET energy_budget = ? WHERE request_id = ?`, value, id)
	if err != nil {
		return fmt.Errorf("set_budget: %w", err)
	}
	return nil
}

// AdjustBudget adds delta to the current budget, clamping the result to
// a minimum of zero. A conversation with no budget is treated as zero.
func (s *Store) AdjustBudget(ctx context.Context, id string, delta float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET energy_budget = MAX(0, COALESCE(energy_budget, 0) + ?)
		WHERE request_id = ?
	`, delta, id)
	if err != nil {
		return fmt.Errorf("adjust_budget: %w", err)
	}
	return nil
}

// AddConsumption adds amount to cumulative energy without appending a
// response. The update never lowers the stored total, preserving the
// monotonic-non-decreasing invariant even if amount is negative.
func (s *Store) AddConsumption(ctx context.Context, id string, amount float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET total_energy_consumed = MAX(total_energy_consumed, total_energy_consumed + ?)
		WHERE request_id = ?
	`, amount, id)
	if err != nil {
		return fmt.Errorf("add_consumption: %w", err)
	}
	return nil
}

// End marks a conversation ended. Idempotent; a repeated call with an
// empty reason keeps the previously recorded reason.
func (s *Store) End(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET ended = 1, ended_reason = CASE WHEN ? != '' THEN ? ELSE ended_reason END
		WHERE request_id = ?
	`, reason, reason, id)
	if err != nil {
		return fmt.Errorf("end: %w", err)
	}
	return nil
}

const defaultSnoozeMinutes = 5

// Snooze hides a conversation from selection until minutes from now.
// Negative durations are coerced to a safe default instead of failing;
// zero effectively no-ops (the deadline is already in the past).
func (s *Store) Snooze(ctx context.Context, id string, minutes int) error {
	if minutes < 0 {
		minutes = defaultSnoozeMinutes
	}
	until := time.Now().Add(time.Duration(minutes) * time.Minute)
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET snooze_until = ?, snooze_duration = ? WHERE request_id = ?
	`, until.UnixNano(), minutes, id)
	if err != nil {
		return fmt.Errorf("snooze: %w", err)
	}
	return nil
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func valueOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
