package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"voice-banking/internal/calls"
	"voice-banking/internal/llm"
)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   *string        `json:"content"`
			ToolCalls []chatToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

var errEmptyChoices = errors.New("openai: response has no choices")

// Complete implements llm.Client.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (llm.Reply, error) {
	body := p.buildChatRequest(req)
	raw, err := p.doJSON(ctx, "/chat/completions", body)
	if err != nil {
		return llm.Reply{}, err
	}
	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return llm.Reply{}, fmt.Errorf("decode chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.Reply{}, errEmptyChoices
	}
	msg := resp.Choices[0].Message

	var out llm.Reply
	if msg.Content != nil {
		out.Text = *msg.Content
	}
	for _, tc := range msg.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out.ToolCalls = append(out.ToolCalls, calls.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return out, nil
}

func (p *Provider) buildChatRequest(req llm.Request) chatRequest {
	out := chatRequest{Model: p.chatModel, Temperature: p.temperature}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	if req.System != "" {
		out.Messages = append(out.Messages, textMessage("system", req.System))
	}
	for _, m := range req.History {
		if cm, ok := toChatMessage(m); ok {
			out.Messages = append(out.Messages, cm)
		}
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, chatTool{
			Type:     "function",
			Function: chatFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	if len(out.Tools) > 0 {
		out.ToolChoice = "auto"
	}
	return out
}

func textMessage(role, content string) chatMessage {
	return chatMessage{Role: role, Content: &content}
}

func toChatMessage(m calls.Message) (chatMessage, bool) {
	switch m.Role {
	case calls.RoleUser:
		return textMessage("user", m.Content), true
	case calls.RoleSystem:
		return textMessage("system", m.Content), true
	case calls.RoleAgent:
		cm := chatMessage{Role: "assistant"}
		if m.Content != "" || len(m.ToolCalls) == 0 {
			c := m.Content
			cm.Content = &c
		}
		for _, tc := range m.ToolCalls {
			var out chatToolCall
			out.ID = tc.ID
			out.Type = "function"
			out.Function.Name = tc.Name
			out.Function.Arguments = string(tc.Arguments)
			if out.Function.Arguments == "" {
				out.Function.Arguments = "{}"
			}
			cm.ToolCalls = append(cm.ToolCalls, out)
		}
		return cm, true
	case calls.RoleTool:
		if m.Result == nil {
			return chatMessage{}, false
		}
		content := m.Result.Content
		if m.Result.IsError {
			content = "ERROR: " + content
		}
		return chatMessage{Role: "tool", Content: &content, ToolCallID: m.Result.CallID}, true
	default:
		return chatMessage{}, false
	}
}
