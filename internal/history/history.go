// Package history holds the typed message history of a conversation and the
// codec that moves it between its at-rest JSON form and Go values.
package history

import (
	"strings"
	"time"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartKind identifies the kind of a single part within a turn.
type PartKind string

const (
	KindSystemPrompt PartKind = "system-prompt"
	KindUserPrompt   PartKind = "user-prompt"
	KindText         PartKind = "text"
	KindThinking     PartKind = "thinking"
)

// allowedKinds lists the part kinds each role may carry.
var allowedKinds = map[Role]map[PartKind]bool{
	RoleUser:      {KindSystemPrompt: true, KindUserPrompt: true},
	RoleAssistant: {KindText: true, KindThinking: true},
}

// Part is one typed fragment of a turn.
type Part struct {
	Kind    PartKind `json:"part_kind"`
	Content string   `json:"content"`
}

// Turn is a single message exchanged with the model.
type Turn struct {
	Role      Role      `json:"role"`
	Parts     []Part    `json:"parts"`
	ModelName string    `json:"model_name,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// NewUserTurn builds the turn recording a user utterance.
func NewUserTurn(text string, at time.Time) Turn {
	return Turn{
		Role:      RoleUser,
		Parts:     []Part{{Kind: KindUserPrompt, Content: text}},
		Timestamp: at,
	}
}

// NewAssistantTurn builds a turn authored by the model.
func NewAssistantTurn(model string, at time.Time, parts ...Part) Turn {
	return Turn{
		Role:      RoleAssistant,
		Parts:     parts,
		ModelName: model,
		Timestamp: at,
	}
}

// Equal reports whether two turns carry the same role, parts, model and instant.
func (t Turn) Equal(o Turn) bool {
	if t.Role != o.Role || t.ModelName != o.ModelName || !t.Timestamp.Equal(o.Timestamp) {
		return false
	}
	if len(t.Parts) != len(o.Parts) {
		return false
	}
	for i := range t.Parts {
		if t.Parts[i] != o.Parts[i] {
			return false
		}
	}
	return true
}

// IsPrefix reports whether prefix is an element-wise prefix of full.
func IsPrefix(prefix, full []Turn) bool {
	if len(prefix) > len(full) {
		return false
	}
	for i := range prefix {
		if !prefix[i].Equal(full[i]) {
			return false
		}
	}
	return true
}

// ReplyText concatenates the text parts of every assistant turn, in order.
func ReplyText(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		if t.Role != RoleAssistant {
			continue
		}
		for _, p := range t.Parts {
			if p.Kind == KindText {
				b.WriteString(p.Content)
			}
		}
	}
	return b.String()
}
