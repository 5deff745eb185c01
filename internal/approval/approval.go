// Package approval implements the pending -> approved|rejected state
// machine for a conversation's approval-request rows, sitting as a thin
// layer over the conversation store's monotonic transition guarantee.
package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/ivycove/cortex/internal/convstore"
)

// ErrNoPendingApproval is returned when an approve/reject call targets a
// conversation with no pending approval row.
var ErrNoPendingApproval = fmt.Errorf("approval: no pending approval for conversation")

// Decision is the outcome of a user's explicit response to an approval
// request.
type Decision struct {
	Approved bool
	Feedback string
	// BudgetDelta, if non-nil, is applied via store.AdjustBudget in the
	// same call — an approvalResponse payload may adjust budget without
	// a separate request.
	BudgetDelta *float64
}

// Apply transitions the latest pending approval for id per d, and
// applies any accompanying budget delta. It never transitions an
// already-resolved approval (approved/rejected are terminal); when the
// conversation has no pending approval it returns ErrNoPendingApproval
// and applies nothing.
func Apply(ctx context.Context, store *convstore.Store, id string, d Decision) error {
	c, err := store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("apply approval decision: %w", err)
	}
	if _, ok := Pending(c); !ok {
		return ErrNoPendingApproval
	}

	status := convstore.ApprovalRejected
	if d.Approved {
		status = convstore.ApprovalApproved
	}
	if err := store.SetApprovalStatus(ctx, id, nil, status, d.Feedback, time.Now()); err != nil {
		return fmt.Errorf("apply approval decision: %w", err)
	}
	if d.BudgetDelta != nil {
		if err := store.AdjustBudget(ctx, id, *d.BudgetDelta); err != nil {
			return fmt.Errorf("apply approval budget delta: %w", err)
		}
	}
	return nil
}

// Pending returns the latest unresolved approval for a conversation, if any.
func Pending(c *convstore.Conversation) (*convstore.Approval, bool) {
	for i := len(c.Approvals) - 1; i >= 0; i-- {
		if c.Approvals[i].Status == convstore.ApprovalPending {
			return &c.Approvals[i], true
		}
	}
	return nil, false
}
