package loop

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivycove/cortex/internal/convstore"
	"github.com/ivycove/cortex/internal/energy"
	"github.com/ivycove/cortex/internal/gateway"
	"github.com/ivycove/cortex/internal/thoughts"
	"github.com/ivycove/cortex/internal/tools"
)

func newTestLoop(t *testing.T, backend gateway.Backend) (*Loop, *convstore.Store) {
	t.Helper()
	store, err := convstore.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := energy.New(1.0)
	th := thoughts.New()
	focus := &tools.Focus{}
	registry := tools.NewRegistry()
	tools.RegisterCore(registry, store, reg, th, focus)

	tiers := []gateway.Tier{{MinEnergy: 0, Name: "small", NominalCost: 1, ModelID: "small-model"}}
	gw := gateway.New(tiers, map[string]gateway.Backend{"small": backend})

	l := New()
	l.Energy = reg
	l.Store = store
	l.Thoughts = th
	l.Focus = focus
	l.Registry = registry
	l.Gateway = gw
	return l, store
}

type scriptedBackend struct {
	resp *gateway.ChatResponse
}

func (b *scriptedBackend) Chat(ctx context.Context, req gateway.ChatRequest, modelID string) (*gateway.ChatResponse, error) {
	return b.resp, nil
}

func TestExecuteRespondEndToEnd(t *testing.T) {
	ctx := context.Background()
	id := uuid.NewString()

	backend := &scriptedBackend{}
	l, store := newTestLoop(t, backend)
	require.NoError(t, store.UpsertRequest(ctx, id, "hello there", nil))

	backend.resp = &gateway.ChatResponse{
		ToolCalls: []gateway.ToolCall{{
			Name:          tools.NameRespond,
			ArgumentsJSON: `{"requestId":"` + id + `","content":"hi, how can I help?"}`,
		}},
		EnergyConsumed: 2,
	}

	act := l.chooseAction(ctx)
	require.True(t, act.target != nil)
	require.Equal(t, id, act.target.RequestID)
	l.execute(ctx, act)

	c, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, c.Responses, 1)
	assert.Equal(t, "hi, how can I help?", c.Responses[0].Content)
	// The gateway replaces the scripted EnergyConsumed with the tier's
	// nominal cost minus the call's wall time (on the same response value);
	// the conversation is charged that reported cost exactly once.
	assert.Equal(t, backend.resp.EnergyConsumed, c.TotalEnergyConsumed)
	assert.InDelta(t, 1.0, c.TotalEnergyConsumed, 0.05)
	assert.Less(t, l.Energy.Current(), energy.Max)
}

func TestExecuteMalformedToolCallIsNonFatal(t *testing.T) {
	ctx := context.Background()
	id := uuid.NewString()

	backend := &scriptedBackend{}
	l, store := newTestLoop(t, backend)
	require.NoError(t, store.UpsertRequest(ctx, id, "hello there", nil))

	backend.resp = &gateway.ChatResponse{
		ToolCalls: []gateway.ToolCall{{
			Name:          tools.NameRespond,
			ArgumentsJSON: `{not valid json`,
		}},
		EnergyConsumed: 1,
	}

	act := l.chooseAction(ctx)
	assert.NotPanics(t, func() { l.execute(ctx, act) })

	c, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, c.Responses)
	assert.True(t, l.Thoughts.Focused.Has())
}

func TestExecuteUnknownToolIsNonFatal(t *testing.T) {
	ctx := context.Background()
	id := uuid.NewString()

	backend := &scriptedBackend{}
	l, store := newTestLoop(t, backend)
	require.NoError(t, store.UpsertRequest(ctx, id, "hello there", nil))

	backend.resp = &gateway.ChatResponse{
		ToolCalls:      []gateway.ToolCall{{Name: "not_a_real_tool", ArgumentsJSON: `{}`}},
		EnergyConsumed: 1,
	}

	act := l.chooseAction(ctx)
	assert.NotPanics(t, func() { l.execute(ctx, act) })
	assert.True(t, l.Thoughts.Focused.Has())
}

func TestExecuteFocusedThinkChargesTargetedConversation(t *testing.T) {
	ctx := context.Background()
	id := uuid.NewString()

	backend := &scriptedBackend{}
	l, store := newTestLoop(t, backend)
	require.NoError(t, store.UpsertRequest(ctx, id, "hello there", nil))
	l.Focus.Set(id)

	backend.resp = &gateway.ChatResponse{
		ToolCalls: []gateway.ToolCall{{
			Name:          tools.NameThink,
			ArgumentsJSON: `{"thought":"this one needs more context before I respond"}`,
		}},
		EnergyConsumed: 3,
	}

	act := l.chooseAction(ctx)
	require.True(t, act.explicitFocus)
	l.execute(ctx, act)

	c, err := store.Get(ctx, id)
	require.NoError(t, err)
	// Charged the gateway's reported cost (nominal 1 minus wall time), once.
	assert.Equal(t, backend.resp.EnergyConsumed, c.TotalEnergyConsumed)
	assert.InDelta(t, 1.0, c.TotalEnergyConsumed, 0.05)
	assert.False(t, l.Focus.Active())
}

func TestExecuteFallsBackToPlainThoughtWhenContentIsNotJSON(t *testing.T) {
	ctx := context.Background()
	backend := &scriptedBackend{}
	l, _ := newTestLoop(t, backend)

	backend.resp = &gateway.ChatResponse{Content: "nothing stood out this cycle", EnergyConsumed: 1}

	act := l.chooseAction(ctx)
	require.Empty(t, act.scope)
	l.execute(ctx, act)

	assert.True(t, l.Thoughts.Review.Has())
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	backend := &scriptedBackend{resp: &gateway.ChatResponse{Content: "idle", EnergyConsumed: 1}}
	l, _ := newTestLoop(t, backend)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after context cancellation")
	}
}
