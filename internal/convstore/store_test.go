package convstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertRequestDoesNotOverwriteText(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := uuid.NewString()

	require.NoError(t, s.UpsertRequest(ctx, id, "first text", nil))
	require.NoError(t, s.UpsertRequest(ctx, id, "second text", nil))

	c, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "first text", c.InputMessage)
}

func TestAppendResponseIsMonotonicAndMovesOutOfPending(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := uuid.NewString()

	require.NoError(t, s.UpsertRequest(ctx, id, "hello", nil))
	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, s.AppendResponse(ctx, id, nil, "hi there", 5, "small"))
	c, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.InDelta(t, 5.0, c.TotalEnergyConsumed, 0.001)
	require.Len(t, c.Responses, 1)

	pending, err = s.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)

	require.NoError(t, s.AppendResponse(ctx, id, nil, "more", 3, "small"))
	c, err = s.Get(ctx, id)
	require.NoError(t, err)
	require.InDelta(t, 8.0, c.TotalEnergyConsumed, 0.001)
}

func TestEndedConversationExcludedFromSelection(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := uuid.NewString()

	require.NoError(t, s.UpsertRequest(ctx, id, "hello", nil))
	require.NoError(t, s.AppendResponse(ctx, id, nil, "hi", 1, "small"))
	require.NoError(t, s.End(ctx, id, "done"))

	completed, err := s.RecentCompleted(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, completed)

	open, err := s.RecentOpen(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, open)
}

func TestSnoozeHidesUntilDeadline(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := uuid.NewString()

	require.NoError(t, s.UpsertRequest(ctx, id, "hello", nil))
	require.NoError(t, s.Snooze(ctx, id, 5))

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)

	c, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, c.Snoozed(time.Now()))
	require.False(t, c.Snoozed(time.Now().Add(6*time.Minute)))
}

func TestSnoozeNegativeCoercedToDefault(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := uuid.NewString()

	require.NoError(t, s.UpsertRequest(ctx, id, "hello", nil))
	require.NoError(t, s.Snooze(ctx, id, -5))

	c, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, defaultSnoozeMinutes, c.SnoozeDuration)
}

func TestApprovalTransitionsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := uuid.NewString()

	require.NoError(t, s.UpsertRequest(ctx, id, "deploy?", nil))
	require.NoError(t, s.AppendApproval(ctx, id, "about to deploy", 2, "medium", nil))

	c, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, c.Approvals, 1)
	require.Equal(t, ApprovalPending, c.Approvals[0].Status)

	require.NoError(t, s.SetApprovalStatus(ctx, id, nil, ApprovalApproved, "go ahead", time.Now()))

	c, err = s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, ApprovalApproved, c.Approvals[0].Status)

	// Reverse transition must not happen: approved -> rejected is a no-op.
	require.NoError(t, s.SetApprovalStatus(ctx, id, nil, ApprovalRejected, "changed my mind", time.Now()))
	c, err = s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, ApprovalApproved, c.Approvals[0].Status)
}

func TestBudgetStatusDerivation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := uuid.NewString()

	require.NoError(t, s.UpsertRequest(ctx, id, "hello", nil))
	c, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, BudgetNull, c.BudgetStatus())

	require.NoError(t, s.SetBudget(ctx, id, 0))
	c, err = s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, BudgetDepleted, c.BudgetStatus())

	require.NoError(t, s.SetBudget(ctx, id, 3))
	require.NoError(t, s.AppendResponse(ctx, id, nil, "thinking hard", 5, "large"))
	c, err = s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, BudgetExceeded, c.BudgetStatus())
}

func TestAdjustBudgetClampsAtZero(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := uuid.NewString()

	require.NoError(t, s.UpsertRequest(ctx, id, "hello", nil))
	require.NoError(t, s.AdjustBudget(ctx, id, -100))

	c, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, c.EnergyBudget)
	require.Equal(t, 0.0, *c.EnergyBudget)
}

func TestStatsAggregatesUrgentCount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := uuid.NewString()

	require.NoError(t, s.UpsertRequest(ctx, id, "hello", nil))
	require.NoError(t, s.AppendResponse(ctx, id, nil, "calm", 60, "small"))
	require.NoError(t, s.AppendResponse(ctx, id, nil, "panicked", -10, "small"))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalConversations)
	require.Equal(t, 1, stats.UrgentResponseCount)
}
