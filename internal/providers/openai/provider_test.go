package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"voice-banking/internal/audio"
	"voice-banking/internal/calls"
	"voice-banking/internal/llm"
	"voice-banking/internal/tools"
)

func newTestProvider(t *testing.T, h http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New("sk-test", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
}

func TestComplete_SendsHistoryAndParsesToolCalls(t *testing.T) {
	var got chatRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":null,"tool_calls":[
			{"id":"tc1","type":"function","function":{"name":"block_card","arguments":"{\"card_id\":\"C1\"}"}},
			{"id":"tc2","type":"function","function":{"name":"end_call","arguments":"not json"}}
		]}}]}`)
	})

	history := []calls.Message{
		{Role: calls.RoleUser, Content: "block my card"},
		{Role: calls.RoleAgent, ToolCalls: []calls.ToolCall{{ID: "a1", Name: "verify_identity", Arguments: json.RawMessage(`{"pin":"1111"}`)}}},
		{Role: calls.RoleTool, Result: &calls.ToolResult{CallID: "a1", Name: "verify_identity", Content: "nope", IsError: true}},
	}
	reply, err := p.Complete(context.Background(), llm.Request{
		System:      "be helpful",
		History:     history,
		Tools:       []tools.Schema{{Name: "block_card", Parameters: json.RawMessage(`{"type":"object"}`)}},
		Temperature: llm.Temp(0),
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if got.Temperature != 0 || got.Model != defaultChatModel || got.ToolChoice != "auto" {
		t.Fatalf("unexpected request header fields: %+v", got)
	}
	if len(got.Messages) != 4 || got.Messages[0].Role != "system" || got.Messages[2].Role != "assistant" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
	if got.Messages[2].Content != nil || got.Messages[2].ToolCalls[0].Function.Arguments != `{"pin":"1111"}` {
		t.Fatalf("assistant tool call not encoded: %+v", got.Messages[2])
	}
	toolMsg := got.Messages[3]
	if toolMsg.Role != "tool" || toolMsg.ToolCallID != "a1" || *toolMsg.Content != "ERROR: nope" {
		t.Fatalf("tool result not encoded: %+v", toolMsg)
	}
	if len(got.Tools) != 1 || got.Tools[0].Type != "function" || got.Tools[0].Function.Name != "block_card" {
		t.Fatalf("tools not encoded: %+v", got.Tools)
	}

	if reply.Text != "" || len(reply.ToolCalls) != 2 {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if reply.ToolCalls[0].Name != "block_card" || string(reply.ToolCalls[0].Arguments) != `{"card_id":"C1"}` {
		t.Fatalf("unexpected first call: %+v", reply.ToolCalls[0])
	}
	if string(reply.ToolCalls[1].Arguments) != `{}` {
		t.Fatalf("invalid arguments must become an empty object, got %s", reply.ToolCalls[1].Arguments)
	}
}

func TestComplete_ProviderError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"requests"}}`)
	})
	_, err := p.Complete(context.Background(), llm.Request{System: "x"})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Type != ErrRateLimit || !apiErr.IsRetryable() || apiErr.StatusCode != 429 {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	})
	if _, err := p.Complete(context.Background(), llm.Request{}); !errors.Is(err, errEmptyChoices) {
		t.Fatalf("expected errEmptyChoices, got %v", err)
	}
}

func TestTranscribe_Multipart(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if r.FormValue("model") != defaultSTTModel || r.FormValue("language") != "en" || r.FormValue("response_format") != "text" {
			t.Errorf("unexpected fields: %v", r.MultipartForm.Value)
		}
		_, fh, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file: %v", err)
			return
		}
		if fh.Filename != "input.wav" {
			t.Errorf("unexpected filename %q", fh.Filename)
		}
		_, _ = io.WriteString(w, "  block my card \n")
	})
	p.sttLanguage = "en"

	wav := audio.EncodeWAV(make([]byte, 3200), audio.Format{SampleRate: 16000, Channels: 1})
	text, err := p.Transcribe(context.Background(), wav)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "block my card" {
		t.Fatalf("unexpected text %q", text)
	}
	if _, err := p.Transcribe(context.Background(), nil); !errors.Is(err, errEmptyAudio) {
		t.Fatalf("expected errEmptyAudio, got %v", err)
	}
}

func TestSynthesize(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req speechRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if r.URL.Path != "/audio/speech" || req.Voice != defaultTTSVoice || req.ResponseFormat != "pcm" || !strings.HasPrefix(req.Input, "Hello") {
			t.Errorf("unexpected request %s %+v", r.URL.Path, req)
		}
		_, _ = w.Write([]byte{1, 2, 3, 4})
	})
	out, err := p.Synthesize(context.Background(), "Hello there")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("unexpected audio length %d", len(out))
	}
	out, err = p.Synthesize(context.Background(), "   ")
	if err != nil || out != nil {
		t.Fatalf("blank text must produce no audio, got %v %v", out, err)
	}
}
