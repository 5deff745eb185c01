package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// ExternalDispatcher is the narrow contract the Sub-Agent satisfies:
// accept an opaque named call and acknowledge it was queued. The tool
// itself never blocks on completion — the sub-agent reports results
// asynchronously through its own outbound message queue.
type ExternalDispatcher interface {
	Submit(ctx context.Context, toolName string, argumentsJSON string, priority string) (requestID string, err error)
}

// ExternalSourceTool is the generic adapter satisfying the "(external
// tools)" row of the core tool table: it forwards arbitrary schema'd
// calls to the sub-agent rather than modelling any one concrete external
// capability, since the MCP tool federation itself is a named
// collaborator outside this system's scope.
type ExternalSourceTool struct {
	Dispatcher ExternalDispatcher
}

func (t *ExternalSourceTool) Name() string { return "external_tool" }
func (t *ExternalSourceTool) Description() string {
	return "Invoke a named external tool asynchronously via the sub-agent."
}
func (t *ExternalSourceTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tool":      map[string]any{"type": "string"},
			"arguments": map[string]any{"type": "object"},
			"priority":  map[string]any{"type": "string", "enum": []string{"high", "medium", "low"}},
		},
		"required": []string{"tool", "arguments"},
	}
}

func (t *ExternalSourceTool) Execute(ctx context.Context, ec ExecContext, args map[string]any) (*Result, error) {
	if t.Dispatcher == nil {
		return &Result{Output: "no external tool source configured"}, nil
	}
	name, ok := stringArg(args, "tool")
	if !ok || name == "" {
		return &Result{Output: "skipped: external_tool missing tool name"}, nil
	}
	priority, _ := stringArg(args, "priority")
	if priority == "" {
		priority = "medium"
	}
	var argsJSON []byte
	if raw, ok := args["arguments"]; ok {
		encoded, err := json.Marshal(raw)
		if err != nil {
			return &Result{Output: "skipped: external_tool arguments not serialisable"}, nil
		}
		argsJSON = encoded
	} else {
		argsJSON = []byte("{}")
	}

	id, err := t.Dispatcher.Submit(ctx, name, string(argsJSON), priority)
	if err != nil {
		return nil, fmt.Errorf("external_tool submit: %w", err)
	}
	return &Result{Output: fmt.Sprintf("queued as %s", id)}, nil
}
