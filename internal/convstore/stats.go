package convstore

import (
	"context"
	"fmt"

	"github.com/ivycove/cortex/internal/energy"
)

// Stats reports the store-wide aggregate view: conversation count, total
// energy consumed, the average observed energy across recorded responses,
// and how many responses were written while status was urgent. Like the
// teacher's cost tracker, this is a scan-and-accumulate view rather than
// a materialized one — the store is a single embedded file, so there is
// no need for a background aggregator.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var out Stats

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(total_energy_consumed), 0) FROM conversations`)
	if err := row.Scan(&out.TotalConversations, &out.TotalEnergyConsumed); err != nil {
		return out, fmt.Errorf("scan conversation totals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT energy_level FROM responses WHERE is_approval_request = 0`)
	if err != nil {
		return out, fmt.Errorf("scan response energy levels: %w", err)
	}
	defer rows.Close()

	var sum float64
	var count int
	for rows.Next() {
		var level float64
		if err := rows.Scan(&level); err != nil {
			return out, fmt.Errorf("scan energy_level: %w", err)
		}
		sum += level
		count++
		if statusFor(level) == energy.StatusUrgent {
			out.UrgentResponseCount++
		}
	}
	if err := rows.Err(); err != nil {
		return out, err
	}
	if count > 0 {
		out.AverageEnergyLevel = sum / float64(count)
	}
	return out, nil
}

// statusFor mirrors energy.Regulator.Status's boundaries for a recorded
// energy level rather than the live E value.
func statusFor(e float64) energy.Status {
	switch {
	case e > 50:
		return energy.StatusHigh
	case e > 20:
		return energy.StatusMedium
	case e > 0:
		return energy.StatusLow
	case e == 0:
		return energy.StatusDepleted
	default:
		return energy.StatusUrgent
	}
}
