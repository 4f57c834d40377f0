// Package speech holds the transcription and synthesis contracts, and the
// fixed lines the server speaks when a provider cannot be trusted.
package speech

import (
	"context"
	"strings"
)

// Transcriber turns an utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Synthesizer turns reply text into audio bytes in the configured format.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Fixed lines.
const (
	PardonLine      = "I'm sorry, I didn't catch that. Could you say it again?"
	NudgeLine       = "Are you still there?"
	IdleGoodbyeLine = "I am not hearing any response. Goodbye."
	GoodbyeLine     = "Thank you for calling. Goodbye."
	TroubleLine     = "I'm having trouble right now. Could you please repeat that?"
)

// Boilerplate that speech-to-text models emit for silence or noise.
var hallucinations = []string{
	"copyright",
	"all rights reserved",
	"subtitles",
	"subtitle",
	"amara.org",
	"viewers",
}

// CleanTranscript trims a transcript and reports whether it carries real
// speech. Known filler phrases and empty text are rejected.
func CleanTranscript(text string) (string, bool) {
	text = strings.TrimSpace(text)
	norm := strings.TrimRight(strings.ToLower(text), ".!?")
	norm = strings.TrimSpace(norm)
	if norm == "" {
		return "", false
	}
	for _, h := range hallucinations {
		if norm == h || strings.Contains(norm, h) {
			return "", false
		}
	}
	return text, true
}
