package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"

	"voice-banking/internal/audio"
)

type speechRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

var errEmptyAudio = errors.New("openai: empty audio")

// Transcribe implements speech.Transcriber. WAV input is sent as such; any
// other container is labelled webm, which is what browser recorders produce.
func (p *Provider) Transcribe(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errEmptyAudio
	}
	filename, mime := "input.webm", "audio/webm"
	if audio.IsWAV(data) {
		filename, mime = "input.wav", "audio/wav"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", mime)
	part, err := w.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write file part: %w", err)
	}
	fields := [][2]string{
		{"model", p.sttModel},
		{"response_format", "text"},
		{"language", p.sttLanguage},
		{"prompt", p.sttPrompt},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := w.WriteField(f[0], f[1]); err != nil {
			return "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	raw, err := p.doMultipart(ctx, "/audio/transcriptions", w.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// Synthesize implements speech.Synthesizer. With the default "pcm" format the
// result is 24 kHz mono signed 16-bit little-endian samples.
func (p *Provider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	raw, err := p.doJSON(ctx, "/audio/speech", speechRequest{
		Model:          p.ttsModel,
		Voice:          p.ttsVoice,
		Input:          text,
		ResponseFormat: p.ttsFormat,
	})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errEmptyAudio
	}
	return raw, nil
}
