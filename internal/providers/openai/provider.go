// Package openai implements the reasoning, transcription and speech
// synthesis contracts against the OpenAI HTTP API.
package openai

import (
	"net/http"
	"time"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"

	defaultChatModel   = "gpt-4o"
	defaultSTTModel    = "whisper-1"
	defaultTTSModel    = "tts-1"
	defaultTTSVoice    = "alloy"
	defaultTTSFormat   = "pcm"
	defaultHTTPTimeout = 30 * time.Second
)

// Provider talks to one OpenAI-compatible endpoint. It is safe for
// concurrent use by every call worker.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	chatModel   string
	temperature float64

	sttModel    string
	sttLanguage string
	sttPrompt   string

	ttsModel  string
	ttsVoice  string
	ttsFormat string
}

func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:      apiKey,
		baseURL:     DefaultBaseURL,
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
		chatModel:   defaultChatModel,
		temperature: 0.3,
		sttModel:    defaultSTTModel,
		ttsModel:    defaultTTSModel,
		ttsVoice:    defaultTTSVoice,
		ttsFormat:   defaultTTSFormat,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return "openai" }
