package tools

import (
	"context"
	"fmt"

	"github.com/ivycove/cortex/internal/convstore"
	"github.com/ivycove/cortex/internal/energy"
	"github.com/ivycove/cortex/internal/thoughts"
)

// Tool name constants: the protocol surface of §4.5.
const (
	NameRespond              = "respond"
	NameRespondWithApproval  = "respond_with_approval"
	NameThink                = "think"
	NameAwaitEnergy          = "await_energy"
	NameEndConversation      = "end_conversation"
	NameSnoozeConversation   = "snooze_conversation"
	NameSelectConversation   = "select_conversation"
	NameSetBudget            = "set_budget"
	NameAdjustBudget         = "adjust_budget"
)

// skipDiagnostic records a malformed-call failure as a thought in the
// buffer active for this iteration, per spec.md §4.5/§7: never fatal,
// always surfaced in the next prompt.
func skipDiagnostic(deps *thoughts.Thoughts, ec ExecContext, reason string) *Result {
	deps.Active(ec.Focused).Push(reason)
	return &Result{Output: "skipped: " + reason}
}

// RespondTool appends a final response and implicitly removes the
// conversation from pending (pending is a derived view with zero
// responses as its condition).
type RespondTool struct {
	Store    *convstore.Store
	Thoughts *thoughts.Thoughts
}

func (t *RespondTool) Name() string        { return NameRespond }
func (t *RespondTool) Description() string { return "Send a final response for a conversation." }
func (t *RespondTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"requestId": map[string]any{"type": "string"},
			"content":   map[string]any{"type": "string"},
		},
		"required": []string{"requestId", "content"},
	}
}

func (t *RespondTool) Execute(ctx context.Context, ec ExecContext, args map[string]any) (*Result, error) {
	id, ok := requestIDArg(args, "requestId")
	if !ok {
		return skipDiagnostic(t.Thoughts, ec, "respond: could not extract a request id"), nil
	}
	content, _ := stringArg(args, "content")
	// energy_at_write is the per-call cost AppendResponse bumps the
	// conversation's cumulative total by, the same convention as
	// Store.AddConsumption — never the raw regulator level, which would
	// charge up to 100 units for a single reply.
	if err := t.Store.AppendResponse(ctx, id, nil, content, ec.EnergyConsumed, ec.ModelTier); err != nil {
		return nil, fmt.Errorf("respond: %w", err)
	}
	return &Result{Output: "response recorded"}, nil
}

// RespondWithApprovalTool posts a response-like record awaiting explicit
// approve/reject while keeping the conversation in the pending set.
type RespondWithApprovalTool struct {
	Store    *convstore.Store
	Thoughts *thoughts.Thoughts
}

func (t *RespondWithApprovalTool) Name() string { return NameRespondWithApproval }
func (t *RespondWithApprovalTool) Description() string {
	return "Propose a response that requires explicit user approval before it counts as final."
}
func (t *RespondWithApprovalTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"requestId":    map[string]any{"type": "string"},
			"content":      map[string]any{"type": "string"},
			"energyBudget": map[string]any{"type": "number"},
		},
		"required": []string{"requestId", "content"},
	}
}

func (t *RespondWithApprovalTool) Execute(ctx context.Context, ec ExecContext, args map[string]any) (*Result, error) {
	id, ok := requestIDArg(args, "requestId")
	if !ok {
		return skipDiagnostic(t.Thoughts, ec, "respond_with_approval: could not extract a request id"), nil
	}
	content, _ := stringArg(args, "content")
	var budget *float64
	if b, ok := floatArg(args, "energyBudget"); ok {
		budget = &b
	}
	if err := t.Store.AppendApproval(ctx, id, content, ec.EnergyLevel, ec.ModelTier, budget); err != nil {
		return nil, fmt.Errorf("respond_with_approval: %w", err)
	}
	return &Result{Output: "approval request recorded"}, nil
}

// ThinkTool pushes a self-directed thought to whichever buffer is active
// for this iteration.
type ThinkTool struct {
	Thoughts *thoughts.Thoughts
}

func (t *ThinkTool) Name() string        { return NameThink }
func (t *ThinkTool) Description() string { return "Record an internal thought, not shown to any user." }
func (t *ThinkTool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"thought": map[string]any{"type": "string"}},
		"required":   []string{"thought"},
	}
}

func (t *ThinkTool) Execute(ctx context.Context, ec ExecContext, args map[string]any) (*Result, error) {
	thought, _ := stringArg(args, "thought")
	if thought == "" {
		return skipDiagnostic(t.Thoughts, ec, "think: missing thought text"), nil
	}
	t.Thoughts.Active(ec.Focused).Push(thought)
	return &Result{Output: "noted"}, nil
}

// AwaitEnergyTool blocks the loop until the regulator reaches a level.
type AwaitEnergyTool struct {
	Regulator *energy.Regulator
}

func (t *AwaitEnergyTool) Name() string        { return NameAwaitEnergy }
func (t *AwaitEnergyTool) Description() string { return "Wait until the energy level reaches at least the given value." }
func (t *AwaitEnergyTool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"level": map[string]any{"type": "number"}},
		"required":   []string{"level"},
	}
}

func (t *AwaitEnergyTool) Execute(ctx context.Context, ec ExecContext, args map[string]any) (*Result, error) {
	level, ok := floatArg(args, "level")
	if !ok {
		return &Result{Output: "skipped: await_energy missing level"}, nil
	}
	t.Regulator.AwaitLevel(ctx, level)
	return &Result{Output: "awaited"}, nil
}

// EndConversationTool marks a conversation ended and clears focus onto it.
type EndConversationTool struct {
	Store    *convstore.Store
	Thoughts *thoughts.Thoughts
	Focus    *Focus
}

func (t *EndConversationTool) Name() string        { return NameEndConversation }
func (t *EndConversationTool) Description() string { return "Mark a conversation ended." }
func (t *EndConversationTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"requestId": map[string]any{"type": "string"},
			"reason":    map[string]any{"type": "string"},
		},
		"required": []string{"requestId"},
	}
}

func (t *EndConversationTool) Execute(ctx context.Context, ec ExecContext, args map[string]any) (*Result, error) {
	id, ok := requestIDArg(args, "requestId")
	if !ok {
		return skipDiagnostic(t.Thoughts, ec, "end_conversation: could not extract a request id"), nil
	}
	reason, _ := stringArg(args, "reason")
	if err := t.Store.End(ctx, id, reason); err != nil {
		return nil, fmt.Errorf("end_conversation: %w", err)
	}
	if t.Focus.Get() == id {
		t.Focus.Clear()
	}
	return &Result{Output: "ended"}, nil
}

// SnoozeConversationTool hides a conversation from selection for a time.
type SnoozeConversationTool struct {
	Store    *convstore.Store
	Thoughts *thoughts.Thoughts
}

func (t *SnoozeConversationTool) Name() string        { return NameSnoozeConversation }
func (t *SnoozeConversationTool) Description() string { return "Hide a conversation from selection for N minutes." }
func (t *SnoozeConversationTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"requestId": map[string]any{"type": "string"},
			"minutes":   map[string]any{"type": "number"},
		},
		"required": []string{"requestId", "minutes"},
	}
}

func (t *SnoozeConversationTool) Execute(ctx context.Context, ec ExecContext, args map[string]any) (*Result, error) {
	id, ok := requestIDArg(args, "requestId")
	if !ok {
		return skipDiagnostic(t.Thoughts, ec, "snooze_conversation: could not extract a request id"), nil
	}
	minutes, _ := floatArg(args, "minutes")
	if err := t.Store.Snooze(ctx, id, int(minutes)); err != nil {
		return nil, fmt.Errorf("snooze_conversation: %w", err)
	}
	return &Result{Output: "snoozed"}, nil
}

// SelectConversationTool sets the loop's focus id for the next iteration.
type SelectConversationTool struct {
	Focus    *Focus
	Thoughts *thoughts.Thoughts
}

func (t *SelectConversationTool) Name() string        { return NameSelectConversation }
func (t *SelectConversationTool) Description() string { return "Focus the next iteration on a specific conversation." }
func (t *SelectConversationTool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"requestId": map[string]any{"type": "string"}},
		"required":   []string{"requestId"},
	}
}

func (t *SelectConversationTool) Execute(ctx context.Context, ec ExecContext, args map[string]any) (*Result, error) {
	id, ok := requestIDArg(args, "requestId")
	if !ok {
		return skipDiagnostic(t.Thoughts, ec, "select_conversation: could not extract a request id"), nil
	}
	t.Focus.Set(id)
	return &Result{Output: "focused"}, nil
}

// SetBudgetTool writes a conversation's soft energy budget directly.
type SetBudgetTool struct {
	Store    *convstore.Store
	Thoughts *thoughts.Thoughts
}

func (t *SetBudgetTool) Name() string        { return NameSetBudget }
func (t *SetBudgetTool) Description() string { return "Set a conversation's soft energy budget." }
func (t *SetBudgetTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"requestId": map[string]any{"type": "string"},
			"budget":    map[string]any{"type": "number"},
		},
		"required": []string{"requestId", "budget"},
	}
}

func (t *SetBudgetTool) Execute(ctx context.Context, ec ExecContext, args map[string]any) (*Result, error) {
	id, ok := requestIDArg(args, "requestId")
	if !ok {
		return skipDiagnostic(t.Thoughts, ec, "set_budget: could not extract a request id"), nil
	}
	budget, _ := floatArg(args, "budget")
	if err := t.Store.SetBudget(ctx, id, budget); err != nil {
		return nil, fmt.Errorf("set_budget: %w", err)
	}
	return &Result{Output: "budget set"}, nil
}

// AdjustBudgetTool adds a signed delta to a conversation's budget.
type AdjustBudgetTool struct {
	Store    *convstore.Store
	Thoughts *thoughts.Thoughts
}

func (t *AdjustBudgetTool) Name() string        { return NameAdjustBudget }
func (t *AdjustBudgetTool) Description() string { return "Adjust a conversation's soft energy budget by a signed delta." }
func (t *AdjustBudgetTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"requestId": map[string]any{"type": "string"},
			"delta":     map[string]any{"type": "number"},
		},
		"required": []string{"requestId", "delta"},
	}
}

func (t *AdjustBudgetTool) Execute(ctx context.Context, ec ExecContext, args map[string]any) (*Result, error) {
	id, ok := requestIDArg(args, "requestId")
	if !ok {
		return skipDiagnostic(t.Thoughts, ec, "adjust_budget: could not extract a request id"), nil
	}
	delta, _ := floatArg(args, "delta")
	if err := t.Store.AdjustBudget(ctx, id, delta); err != nil {
		return nil, fmt.Errorf("adjust_budget: %w", err)
	}
	return &Result{Output: "budget adjusted"}, nil
}

// RegisterCore registers all nine core tools into reg.
func RegisterCore(reg *Registry, store *convstore.Store, regulator *energy.Regulator, th *thoughts.Thoughts, focus *Focus) {
	reg.Register(&RespondTool{Store: store, Thoughts: th})
	reg.Register(&RespondWithApprovalTool{Store: store, Thoughts: th})
	reg.Register(&ThinkTool{Thoughts: th})
	reg.Register(&AwaitEnergyTool{Regulator: regulator})
	reg.Register(&EndConversationTool{Store: store, Thoughts: th, Focus: focus})
	reg.Register(&SnoozeConversationTool{Store: store, Thoughts: th})
	reg.Register(&SelectConversationTool{Focus: focus, Thoughts: th})
	reg.Register(&SetBudgetTool{Store: store, Thoughts: th})
	reg.Register(&AdjustBudgetTool{Store: store, Thoughts: th})
}
