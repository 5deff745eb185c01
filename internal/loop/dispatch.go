package loop

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ivycove/cortex/internal/events"
	"github.com/ivycove/cortex/internal/gateway"
	"github.com/ivycove/cortex/internal/logging"
	"github.com/ivycove/cortex/internal/tools"
)

// stateChangingTools are the tool calls whose successful execution moves a
// conversation between lifecycle states, per spec.md §4.9.
var stateChangingTools = map[string]bool{
	tools.NameEndConversation:    true,
	tools.NameSnoozeConversation: true,
}

// execute builds the prompt for act, calls the gateway, dispatches any
// tool calls, and charges energy. It never returns an error: every
// failure mode here is logged-and-absorbed per the error-handling
// taxonomy (malformed tool calls, store failures, unknown tools).
func (l *Loop) execute(ctx context.Context, act action) {
	buffers := reviewBuffers{
		review:  l.Thoughts.Review.Concatenated(),
		focused: l.Thoughts.Focused.Concatenated(),
	}
	req := composePrompt(act.scope, act.target, act.explicitFocus, buffers, l.Energy, act.instruction)
	req.Tools = l.Registry.ToolDefinitions(act.toolNames)

	resp := l.Gateway.Chat(ctx, req, l.Energy.Current())
	l.publish(events.ModelSwitched, map[string]any{"tier": resp.ModelTier})

	ec := tools.ExecContext{
		EnergyLevel:    l.Energy.Current(),
		EnergyConsumed: resp.EnergyConsumed,
		ModelTier:      resp.ModelTier,
		Focused:        act.explicitFocus || act.target != nil,
	}
	respondCharged := l.dispatchReply(ctx, resp, ec)

	l.Energy.Consume(resp.EnergyConsumed)
	l.publish(events.EnergyUpdate, map[string]any{"source": "gateway", "amount": resp.EnergyConsumed})

	// respond already bumped the target's cumulative total via
	// AppendResponse with this same resp.EnergyConsumed; charging it again
	// here would double-count a single call's cost (spec.md §8 invariant 1).
	if act.target != nil && !respondCharged {
		if err := l.Store.AddConsumption(ctx, act.target.RequestID, resp.EnergyConsumed); err != nil {
			logging.Logger().Warn("add_consumption failed", "request_id", act.target.RequestID, "error", err)
		}
	}

	if act.explicitFocus {
		l.Focus.Clear()
	}
}

// dispatchReply prefers native tool calls; falls back to parsing the
// content as a single JSON tool invocation; otherwise treats the content
// as a thought. It reports whether a respond call charged the iteration's
// target conversation directly, so execute can avoid charging it twice.
func (l *Loop) dispatchReply(ctx context.Context, resp *gateway.ChatResponse, ec tools.ExecContext) bool {
	if len(resp.ToolCalls) > 0 {
		charged := false
		for _, call := range resp.ToolCalls {
			if l.dispatchToolCall(ctx, call, ec) {
				charged = true
			}
		}
		return charged
	}

	if call, ok := parseContentAsToolCall(resp.Content); ok {
		return l.dispatchToolCall(ctx, call, ec)
	}

	if resp.Content != "" {
		l.Thoughts.Active(ec.Focused).Push(resp.Content)
	}
	return false
}

// dispatchToolCall executes one tool call and returns whether it was a
// successful respond, which already charges the conversation's cumulative
// energy itself (see execute).
func (l *Loop) dispatchToolCall(ctx context.Context, call gateway.ToolCall, ec tools.ExecContext) bool {
	tool, ok := l.Registry.Lookup(call.Name)
	if !ok {
		logging.Logger().Warn("unknown tool call, ignoring", "tool", call.Name)
		l.Thoughts.Active(ec.Focused).Push("model called unknown tool: " + call.Name)
		return false
	}

	var args map[string]any
	if call.ArgumentsJSON != "" {
		if err := json.Unmarshal([]byte(call.ArgumentsJSON), &args); err != nil {
			logging.Logger().Warn("malformed tool call arguments, ignoring", "tool", call.Name, "error", err)
			l.Thoughts.Active(ec.Focused).Push("malformed arguments for tool " + call.Name + ", call skipped")
			return false
		}
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := tool.Execute(ctx, ec, args)
	if err != nil {
		logging.Logger().Warn("tool execution failed", "tool", call.Name, "error", err)
		l.Thoughts.Active(ec.Focused).Push("tool " + call.Name + " failed: " + err.Error())
		return false
	}
	l.publish(events.ToolInvocation, map[string]any{"tool": call.Name, "output": result.Output})

	skipped := strings.HasPrefix(result.Output, "skipped:")
	if !skipped {
		if call.Name == tools.NameRespond {
			l.publish(events.MessageAdded, map[string]any{"tool": call.Name})
		}
		if stateChangingTools[call.Name] {
			l.publish(events.ConversationStateChanged, map[string]any{"tool": call.Name})
		}
	}
	return call.Name == tools.NameRespond && !skipped
}

// toolInvocation is the shape accepted when a model falls back to
// emitting a tool call as JSON content instead of a native tool_use block.
type toolInvocation struct {
	Tool      string         `json:"tool"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func parseContentAsToolCall(content string) (gateway.ToolCall, bool) {
	var inv toolInvocation
	if err := json.Unmarshal([]byte(content), &inv); err != nil {
		return gateway.ToolCall{}, false
	}
	name := inv.Tool
	if name == "" {
		name = inv.Name
	}
	if name == "" {
		return gateway.ToolCall{}, false
	}
	argsJSON, err := json.Marshal(inv.Arguments)
	if err != nil {
		return gateway.ToolCall{}, false
	}
	return gateway.ToolCall{Name: name, ArgumentsJSON: string(argsJSON)}, true
}
