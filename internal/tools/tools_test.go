package tools

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivycove/cortex/internal/convstore"
	"github.com/ivycove/cortex/internal/thoughts"
)

func TestExtractUUIDTeratesPrefixedText(t *testing.T) {
	id := uuid.NewString()
	got, ok := ExtractUUID("Conversation " + id + ": hello there")
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestExtractUUIDFailsOnGarbage(t *testing.T) {
	_, ok := ExtractUUID("not a uuid at all")
	assert.False(t, ok)
}

func newTestStore(t *testing.T) *convstore.Store {
	t.Helper()
	s, err := convstore.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRespondToolAppendsResponse(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	th := thoughts.New()
	id := uuid.NewString()
	require.NoError(t, store.UpsertRequest(ctx, id, "hello", nil))

	tool := &RespondTool{Store: store, Thoughts: th}
	_, err := tool.Execute(ctx, ExecContext{EnergyLevel: 3, ModelTier: "small"}, map[string]any{
		"requestId": id,
		"content":   "hi there",
	})
	require.NoError(t, err)

	c, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, c.Responses, 1)
	assert.Equal(t, "hi there", c.Responses[0].Content)
}

func TestRespondToolSkipsOnMalformedRequestID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	th := thoughts.New()

	tool := &RespondTool{Store: store, Thoughts: th}
	result, err := tool.Execute(ctx, ExecContext{}, map[string]any{
		"requestId": "not-a-uuid",
		"content":   "hi",
	})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "skipped")
	assert.True(t, th.Review.Has())
}

func TestThinkToolUsesActiveBuffer(t *testing.T) {
	th := thoughts.New()
	tool := &ThinkTool{Thoughts: th}

	_, err := tool.Execute(context.Background(), ExecContext{Focused: true}, map[string]any{"thought": "focused thought"})
	require.NoError(t, err)
	assert.True(t, th.Focused.Has())
	assert.False(t, th.Review.Has())
}

func TestSelectConversationSetsFocus(t *testing.T) {
	th := thoughts.New()
	focus := &Focus{}
	id := uuid.NewString()
	tool := &SelectConversationTool{Focus: focus, Thoughts: th}

	_, err := tool.Execute(context.Background(), ExecContext{}, map[string]any{"requestId": id})
	require.NoError(t, err)
	assert.Equal(t, id, focus.Get())
}

func TestRegistryNarrowsToolDefinitions(t *testing.T) {
	reg := NewRegistry()
	store := newTestStore(t)
	th := thoughts.New()
	focus := &Focus{}
	RegisterCore(reg, store, nil, th, focus)

	defs := reg.ToolDefinitions(FocusedToolSet())
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	assert.Contains(t, names, NameRespond)
	assert.NotContains(t, names, NameSelectConversation)
}
