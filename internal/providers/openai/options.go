package openai

import (
	"net/http"
	"strings"
	"time"
)

// Option configures the provider.
type Option func(*Provider)

// WithBaseURL sets a custom base URL (for testing or proxying).
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.baseURL = strings.TrimRight(url, "/")
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// WithTimeout bounds every provider request.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			c := *p.httpClient
			c.Timeout = d
			p.httpClient = &c
		}
	}
}

func WithChatModel(model string, temperature float64) Option {
	return func(p *Provider) {
		if model != "" {
			p.chatModel = model
		}
		p.temperature = temperature
	}
}

func WithTranscription(model, language, prompt string) Option {
	return func(p *Provider) {
		if model != "" {
			p.sttModel = model
		}
		p.sttLanguage = language
		p.sttPrompt = prompt
	}
}

func WithSpeech(model, voice, format string) Option {
	return func(p *Provider) {
		if model != "" {
			p.ttsModel = model
		}
		if voice != "" {
			p.ttsVoice = voice
		}
		if format != "" {
			p.ttsFormat = format
		}
	}
}
