// Package context converts a user session into a model-ready request.
package context

import (
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/model"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/session"
)

// Assembler builds the ordered message list for a chat completion: optional
// system entry, stored history, then the pending user prompt.
type Assembler struct {
	window int
}

// NewAssembler returns an assembler that sends at most window history turns
// per request. window <= 0 disables truncation.
func NewAssembler(window int) *Assembler {
	return &Assembler{window: window}
}

// Assemble builds the request from the session's history and settings plus
// the not-yet-stored user prompt. When the history exceeds the window, the
// oldest turns are dropped first; the stored history itself is never touched.
func (a *Assembler) Assemble(sess session.Session, prompt string) model.Request {
	history := lastTurns(sess.History, a.window)

	messages := make([]model.Message, 0, len(history)+2)
	if fp := sess.Settings.SystemFingerprint; fp != "" {
		messages = append(messages, model.Message{Role: model.RoleSystem, Content: fp})
	}
	for _, t := range history {
		messages = append(messages, model.Message{Role: string(t.Role), Content: t.Content})
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: prompt})

	return model.Request{
		Messages:    messages,
		Temperature: sess.Settings.Temperature,
	}
}

// lastTurns truncates history to the most recent n entries.
func lastTurns(history []session.Turn, n int) []session.Turn {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
