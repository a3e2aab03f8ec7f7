package domain

import (
	"time"
)

// ConversationState is the dialogue state of a conversation.
type ConversationState string

const (
	// StateNoActiveSubject is the initial state, before any subject was resolved.
	StateNoActiveSubject ConversationState = "no_active_subject"
	// StateActiveSubject is entered on the first resolved subject and never left.
	StateActiveSubject ConversationState = "active_subject"
)

// Conversation holds the per-conversation dialogue context.
type Conversation struct {
	Key       string
	Subject   Subject
	Turns     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewConversation returns an empty conversation for key.
func NewConversation(key string, now time.Time) Conversation {
	return Conversation{
		Key:       key,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// State returns the current dialogue state.
func (c Conversation) State() ConversationState {
	if c.Subject.IsZero() {
		return StateNoActiveSubject
	}
	return StateActiveSubject
}

// Apply replaces the active subject. A zero subject leaves it unchanged.
func (c *Conversation) Apply(s Subject) bool {
	if s.IsZero() {
		return false
	}
	changed := c.Subject != s
	c.Subject = s
	return changed
}
