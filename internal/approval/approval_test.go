package approval

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ivycove/cortex/internal/convstore"
)

func TestApplyApprovesPendingRequest(t *testing.T) {
	ctx := context.Background()
	store, err := convstore.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()

	id := uuid.NewString()
	require.NoError(t, store.UpsertRequest(ctx, id, "deploy?", nil))
	require.NoError(t, store.AppendApproval(ctx, id, "about to deploy", 2, "medium", nil))

	c, err := store.Get(ctx, id)
	require.NoError(t, err)
	p, ok := Pending(c)
	require.True(t, ok)
	require.Equal(t, convstore.ApprovalPending, p.Status)

	budgetDelta := 5.0
	require.NoError(t, Apply(ctx, store, id, Decision{Approved: true, Feedback: "go", BudgetDelta: &budgetDelta}))

	c, err = store.Get(ctx, id)
	require.NoError(t, err)
	_, ok = Pending(c)
	require.False(t, ok)
	require.Equal(t, convstore.ApprovalApproved, c.Approvals[0].Status)
	require.NotNil(t, c.EnergyBudget)
	require.Equal(t, 5.0, *c.EnergyBudget)
}
