package convstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Get returns the full record for id, including its responses and
// approval rows, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Conversation, error) {
	c, err := s.scanConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.loadResponses(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) scanConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT request_id, input_message, created_at, total_energy_consumed, sleep_cycles,
		       ended, ended_reason, snooze_until, snooze_duration, energy_budget
		FROM conversations WHERE request_id = ?
	`, id)
	return scanConversationRow(row)
}

func scanConversationRow(row *sql.Row) (*Conversation, error) {
	var (
		c           Conversation
		createdAt   int64
		ended       int
		snoozeUntil int64
		budget      sql.NullFloat64
	)
	err := row.Scan(&c.RequestID, &c.InputMessage, &createdAt, &c.TotalEnergyConsumed, &c.SleepCycles,
		&ended, &c.EndedReason, &snoozeUntil, &c.SnoozeDuration, &budget)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	c.CreatedAt = time.Unix(0, createdAt)
	c.Ended = ended != 0
	if snoozeUntil > 0 {
		c.SnoozeUntil = time.Unix(0, snoozeUntil)
	}
	if budget.Valid {
		b := budget.Float64
		c.EnergyBudget = &b
	}
	return &c, nil
}

func (s *Store) loadResponses(ctx context.Context, c *Conversation) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, content, energy_level, model_used, is_approval_request,
		       status, feedback, approval_timestamp
		FROM responses WHERE conversation_id = ? ORDER BY timestamp ASC
	`, c.RequestID)
	if err != nil {
		return fmt.Errorf("load responses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id                int64
			ts                int64
			content           string
			energyLevel       float64
			modelUsed         string
			isApproval        int
			status            string
			feedback          string
			approvalTimestamp int64
		)
		if err := rows.Scan(&id, &ts, &content, &energyLevel, &modelUsed, &isApproval, &status, &feedback, &approvalTimestamp); err != nil {
			return fmt.Errorf("scan response row: %w", err)
		}
		if isApproval != 0 {
			a := Approval{
				ID:          id,
				Timestamp:   time.Unix(0, ts),
				Content:     content,
				EnergyLevel: energyLevel,
				ModelUsed:   modelUsed,
				Status:      ApprovalState(status),
				Feedback:    feedback,
			}
			if approvalTimestamp > 0 {
				a.ApprovalTimestamp = time.Unix(0, approvalTimestamp)
			}
			c.Approvals = append(c.Approvals, a)
			continue
		}
		c.Responses = append(c.Responses, Response{
			ID:          id,
			Timestamp:   time.Unix(0, ts),
			Content:     content,
			EnergyLevel: energyLevel,
			ModelUsed:   modelUsed,
		})
	}
	return rows.Err()
}

// Pending returns the derived pending view: non-ended conversations with a
// non-empty user text, zero (non-approval) responses, and no active
// snooze, ordered by creation time ascending.
func (s *Store) Pending(ctx context.Context) ([]Conversation, error) {
	now := time.Now().UnixNano()
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.request_id FROM conversations c
		WHERE c.input_message != ''
		  AND c.ended = 0
		  AND c.snooze_until < ?
		  AND NOT EXISTS (
		      SELECT 1 FROM responses r
		      WHERE r.conversation_id = c.request_id AND r.is_approval_request = 0
		  )
		ORDER BY c.created_at ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("pending query: %w", err)
	}
	return s.hydrateIDs(ctx, rows)
}

// RecentOpen returns the most recent non-ended, non-snoozed conversations,
// newest first, each carrying its response rows.
func (s *Store) RecentOpen(ctx context.Context, limit int) ([]Conversation, error) {
	now := time.Now().UnixNano()
	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id FROM conversations
		WHERE ended = 0 AND snooze_until < ?
		ORDER BY created_at DESC LIMIT ?
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("recent_open query: %w", err)
	}
	return s.hydrateIDs(ctx, rows)
}

// RecentCompleted returns conversations with at least one non-approval
// response, not ended, not snoozed, newest first.
func (s *Store) RecentCompleted(ctx context.Context, limit int) ([]Conversation, error) {
	now := time.Now().UnixNano()
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.request_id FROM conversations c
		WHERE c.ended = 0 AND c.snooze_until < ?
		  AND EXISTS (
		      SELECT 1 FROM responses r
		      WHERE r.conversation_id = c.request_id AND r.is_approval_request = 0
		  )
		ORDER BY c.created_at DESC LIMIT ?
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("recent_completed query: %w", err)
	}
	return s.hydrateIDs(ctx, rows)
}

// List returns every conversation, newest first, up to limit (0 means
// unbounded). Callers apply any state/budgetStatus filtering themselves
// via the derived accessors on Conversation, the same way Pending and
// RecentCompleted derive their own conditions from stored columns.
func (s *Store) List(ctx context.Context, limit int) ([]Conversation, error) {
	query := `SELECT request_id FROM conversations ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list query: %w", err)
	}
	return s.hydrateIDs(ctx, rows)
}

func (s *Store) hydrateIDs(ctx context.Context, rows *sql.Rows) ([]Conversation, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Conversation, 0, len(ids))
	for _, id := range ids {
		c, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}
