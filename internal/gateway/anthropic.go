package gateway

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicBackend adapts the provider-agnostic ChatRequest/ChatResponse
// contract onto the Anthropic Messages API, mirroring the cache-breakpoint
// and tool-marshalling approach of a direct SDK integration.
type AnthropicBackend struct {
	client anthropic.Client
}

// NewAnthropicBackend constructs a backend bound to apiKey and, if
// non-empty, a custom base URL (for gateways/proxies in front of the API).
func NewAnthropicBackend(apiKey, baseURL string) *AnthropicBackend {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicBackend{client: anthropic.NewClient(opts...)}
}

func (b *AnthropicBackend) Chat(ctx context.Context, req ChatRequest, modelID string) (*ChatResponse, error) {
	body := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: int64(req.MaxTokens),
		System: []anthropic.TextBlockParam{
			{
				Text:         req.SystemPrompt,
				CacheControl: anthropic.NewCacheControlEphemeralParam(),
			},
		},
		Messages: toAnthropicMessages(req.Messages),
		Tools:    toAnthropicTools(req.Tools),
	}
	if req.Urgent {
		temp := 0.2
		body.Temperature = anthropic.Float(temp)
	}

	msg, err := b.client.Messages.New(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}

	resp := &ChatResponse{
		Usage: TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Content += variant.Text
		case anthropic.ToolUseBlock:
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:            variant.ID,
				Name:          variant.Name,
				ArgumentsJSON: string(variant.Input),
			})
		}
	}
	return resp, nil
}

// toAnthropicMessages converts the role-tagged history into Anthropic's
// message shape. Anthropic requires every tool result produced in
// response to one assistant turn to be collapsed into a single following
// user message, so consecutive RoleTool entries are merged.
func toAnthropicMessages(messages []ChatMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	i := 0
	for i < len(messages) {
		m := messages[i]
		switch m.Role {
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			i++
		case RoleAssistant:
			blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, []byte(tc.ArgumentsJSON), tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
			i++
		case RoleTool:
			var blocks []anthropic.ContentBlockParamUnion
			for i < len(messages) && messages[i].Role == RoleTool {
				blocks = append(blocks, anthropic.NewToolResultBlock(messages[i].ToolCallID, messages[i].Content, false))
				i++
			}
			out = append(out, anthropic.NewUserMessage(blocks...))
		default:
			i++
		}
	}
	applyCacheBreakpoint(out)
	return out
}

// applyCacheBreakpoint marks the last content block of the last message
// as an ephemeral cache breakpoint, so the (usually large) system prompt
// and history prefix are reused across iterations of the loop.
func applyCacheBreakpoint(messages []anthropic.MessageParam) {
	if len(messages) == 0 {
		return
	}
	last := &messages[len(messages)-1]
	if len(last.Content) == 0 {
		return
	}
	block := &last.Content[len(last.Content)-1]
	if block.OfText != nil {
		block.OfText.CacheControl = anthropic.NewCacheControlEphemeralParam()
	}
}

func toAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: toAnthropicInputSchema(t.Parameters),
			},
		})
	}
	return out
}

func toAnthropicInputSchema(params map[string]any) anthropic.ToolInputSchemaParam {
	schema := anthropic.ToolInputSchemaParam{}
	if props, ok := params["properties"]; ok {
		schema.Properties = props
	}
	if required, ok := params["required"].([]string); ok {
		schema.ExtraFields = map[string]any{"required": required}
	}
	return schema
}
