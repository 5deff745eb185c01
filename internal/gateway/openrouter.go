package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultOpenRouterURL = "https://openrouter.ai/api/v1/chat/completions"

// OpenRouterBackend is a REST-based fallback backend: OpenRouter has no
// official Go SDK, so it is called directly with net/http + encoding/json,
// matching the teacher's own openrouter.go adapter.
type OpenRouterBackend struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewOpenRouterBackend constructs a backend bound to apiKey, defaulting
// to the public OpenRouter endpoint when endpoint is empty.
func NewOpenRouterBackend(apiKey, endpoint string) *OpenRouterBackend {
	if endpoint == "" {
		endpoint = defaultOpenRouterURL
	}
	return &OpenRouterBackend{
		apiKey:     apiKey,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type openRouterMessage struct {
	Role       string             `json:"role"`
	Content    string             `json:"content,omitempty"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
	ToolCalls  []openRouterToolUse `json:"tool_calls,omitempty"`
}

type openRouterToolUse struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openRouterTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type openRouterRequest struct {
	Model     string              `json:"model"`
	Messages  []openRouterMessage `json:"messages"`
	Tools     []openRouterTool    `json:"tools,omitempty"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
}

type openRouterResponse struct {
	Choices []struct {
		Message struct {
			Content   string              `json:"content"`
			ToolCalls []openRouterToolUse `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (b *OpenRouterBackend) Chat(ctx context.Context, req ChatRequest, modelID string) (*ChatResponse, error) {
	body := openRouterRequest{
		Model:     modelID,
		MaxTokens: req.MaxTokens,
		Messages:  toOpenRouterMessages(req),
		Tools:     toOpenRouterTools(req.Tools),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal openrouter request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build openrouter request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	httpResp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openrouter request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 300 {
		data, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("openrouter status %d: %s", httpResp.StatusCode, string(data))
	}

	var parsed openRouterResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode openrouter response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openrouter response had no choices")
	}

	choice := parsed.Choices[0].Message
	resp := &ChatResponse{
		Content: choice.Content,
		Usage: TokenUsage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:            tc.ID,
			Name:          tc.Function.Name,
			ArgumentsJSON: tc.Function.Arguments,
		})
	}
	return resp, nil
}

func toOpenRouterMessages(req ChatRequest) []openRouterMessage {
	out := make([]openRouterMessage, 0, len(req.Messages)+1)
	out = append(out, openRouterMessage{Role: string(RoleSystem), Content: req.SystemPrompt})
	for _, m := range req.Messages {
		msg := openRouterMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			use := openRouterToolUse{ID: tc.ID, Type: "function"}
			use.Function.Name = tc.Name
			use.Function.Arguments = tc.ArgumentsJSON
			msg.ToolCalls = append(msg.ToolCalls, use)
		}
		out = append(out, msg)
	}
	return out
}

func toOpenRouterTools(tools []ToolDefinition) []openRouterTool {
	out := make([]openRouterTool, 0, len(tools))
	for _, t := range tools {
		var tool openRouterTool
		tool.Type = "function"
		tool.Function.Name = t.Name
		tool.Function.Description = t.Description
		tool.Function.Parameters = t.Parameters
		out = append(out, tool)
	}
	return out
}
