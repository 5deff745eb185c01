// Package gateway implements the Model Gateway: provider-agnostic chat
// types, energy-gated tier selection, retry/backoff, and the concrete
// Anthropic and OpenRouter backends.
package gateway

import "context"

// Role tags a chat message's origin.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one model-requested tool invocation.
type ToolCall struct {
	ID            string
	Name          string
	ArgumentsJSON string
}

// ToolDefinition describes a tool offered to the model for a given call.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatMessage is one role-tagged turn in the conversation passed to the
// gateway. ToolCallID and ToolCalls are only meaningful for RoleTool and
// RoleAssistant messages respectively.
type ChatMessage struct {
	Role       Role
	Content    string
	ToolCallID string
	ToolCalls  []ToolCall
}

// TokenUsage reports token accounting for a single call, when the
// provider exposes it.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ChatRequest is the per-request contract into the gateway.
type ChatRequest struct {
	SystemPrompt string
	Messages     []ChatMessage
	Tools        []ToolDefinition
	Urgent       bool
	MaxTokens    int
}

// ChatResponse is the gateway's per-request contract out: content plus
// any tool calls, the tier actually used, and the net energy cost.
type ChatResponse struct {
	Content        string
	ToolCalls      []ToolCall
	ModelTier      string
	EnergyConsumed float64
	Usage          TokenUsage
}

// Backend is implemented by a concrete provider adapter (Anthropic,
// OpenRouter, ...). It never sees energy accounting or tiers directly —
// those are the Gateway's responsibility; a Backend only executes one
// chat call against one concrete model identifier.
type Backend interface {
	Chat(ctx context.Context, req ChatRequest, modelID string) (*ChatResponse, error)
}
