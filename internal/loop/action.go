package loop

import (
	"context"

	"github.com/ivycove/cortex/internal/convstore"
	"github.com/ivycove/cortex/internal/logging"
	"github.com/ivycove/cortex/internal/tools"
)

// action is the outcome of one call to chooseAction: what scope of
// conversations to show the model, which single conversation (if any) is
// the charge target, which tool set to offer, and whether this iteration
// came from an explicit select_conversation focus (which must be cleared
// after dispatch regardless of outcome).
type action struct {
	scope         []convstore.Conversation
	target        *convstore.Conversation
	toolNames     []string
	explicitFocus bool
	instruction   string
}

const (
	focusedInstruction = "Decide how to handle this conversation now: respond, request approval, adjust its budget, or set it aside."
	reviewInstruction  = "Review these recent conversations. Select one to focus on if it needs more attention, or simply note your observations."
)

// chooseAction implements the three-branch selection policy of the
// cognitive loop: explicit focus, oldest pending, or a review window
// sized by current energy percentage.
func (l *Loop) chooseAction(ctx context.Context) action {
	if l.Focus.Active() {
		id := l.Focus.Get()
		c, err := l.Store.Get(ctx, id)
		if err != nil {
			logging.Logger().Warn("focused conversation not found, clearing focus", "request_id", id, "error", err)
			l.Thoughts.Review.Push("select_conversation targeted a conversation that no longer exists: " + id)
			l.Focus.Clear()
			return l.reviewAction(ctx)
		}
		return action{
			scope:         []convstore.Conversation{*c},
			target:        c,
			toolNames:     l.focusedToolSet(),
			explicitFocus: true,
			instruction:   focusedInstruction,
		}
	}

	pending, err := l.Store.Pending(ctx)
	if err != nil {
		logging.Logger().Warn("pending query failed", "error", err)
	}
	if len(pending) > 0 {
		target := pending[0]
		return action{
			scope:       []convstore.Conversation{target},
			target:      &target,
			toolNames:   l.focusedToolSet(),
			instruction: focusedInstruction,
		}
	}

	return l.reviewAction(ctx)
}

func (l *Loop) reviewAction(ctx context.Context) action {
	k := reviewWindowSize(l.Energy.Percentage())
	recent, err := l.Store.RecentCompleted(ctx, k)
	if err != nil {
		logging.Logger().Warn("recent_completed query failed", "error", err)
	}
	return action{
		scope:       recent,
		toolNames:   l.reviewToolSet(),
		instruction: reviewInstruction,
	}
}

func (l *Loop) focusedToolSet() []string {
	return tools.FocusedToolSet(l.External...)
}

func (l *Loop) reviewToolSet() []string {
	return tools.ReviewToolSet(l.External...)
}
