// Package routing classifies the latest caller utterance into one flow of the
// catalog.
package routing

import (
	"context"
	"log/slog"
	"strings"

	"voice-banking/internal/calls"
	"voice-banking/internal/flows"
	"voice-banking/internal/llm"
)

// Catalogs yields the catalog in force. flows.Store satisfies it.
type Catalogs interface {
	Current() *flows.Catalog
}

// Router evaluates, in order:
//  1. strict keywords, flows in id order so card safety outranks account servicing
//  2. the classifier (reasoning provider at temperature 0)
//  3. the general flow
//
// Route never fails; any problem resolves to the general flow.
type Router struct {
	catalogs   Catalogs
	classifier llm.Client
	log        *slog.Logger
}

// New builds a router. classifier may be nil, in which case unmatched
// utterances go straight to the general flow.
func New(catalogs Catalogs, classifier llm.Client, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{catalogs: catalogs, classifier: classifier, log: log}
}

// Route picks the flow for the latest user message in history.
func (r *Router) Route(ctx context.Context, history []calls.Message) Decision {
	cat := r.catalogs.Current()

	last, ok := lastUser(history)
	if !ok || strings.TrimSpace(last.Content) == "" {
		return Decision{Flow: flows.GeneralFlow, Stage: StageDefault, Reason: "no_user_message"}
	}

	if key, kw, ok := matchKeywords(cat, last.Content); ok {
		return Decision{Flow: key, Stage: StageKeyword, Reason: "keyword:" + kw}
	}

	if r.classifier == nil {
		return Decision{Flow: flows.GeneralFlow, Stage: StageDefault, Reason: "no_classifier"}
	}
	reply, err := r.classifier.Complete(ctx, llm.Request{
		System:      Prompt(cat),
		History:     []calls.Message{last},
		Temperature: llm.Temp(0),
		Tag:         "router",
	})
	if err != nil {
		r.log.Warn("router classifier failed", "err", err)
		return Decision{Flow: flows.GeneralFlow, Stage: StageDefault, Reason: "classifier_error"}
	}
	label := normalizeLabel(reply.Text)
	if label == "" || !cat.Has(label) {
		return Decision{Flow: flows.GeneralFlow, Stage: StageDefault, Reason: "unknown_label"}
	}
	return Decision{Flow: label, Stage: StageClassifier}
}

func lastUser(history []calls.Message) (calls.Message, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == calls.RoleUser {
			return history[i], true
		}
	}
	return calls.Message{}, false
}

// normalizeLabel reduces a classifier answer to a flow key. Providers
// sometimes wrap the label in quotes, punctuation or a short sentence; the
// first token that looks like a key wins.
func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})
	for _, f := range fields {
		if strings.Contains(f, "_") || f == flows.GeneralFlow {
			return f
		}
	}
	if len(fields) == 1 {
		return fields[0]
	}
	return ""
}
