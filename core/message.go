package core

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// SenderType classifies the author of a message.
type SenderType string

const (
	SenderAgent  SenderType = "agent"
	SenderUser   SenderType = "user"
	SenderSystem SenderType = "system"
)

// Message is one contribution to a session. After it is appended to a store
// it is treated as immutable.
//
// Official turns carry a unique TurnNumber and InterjectionSeq 0. Human
// interjections share the TurnNumber of the official turn they follow and are
// told apart by a per-session InterjectionSeq (>0), so the pair
// (TurnNumber, InterjectionSeq) is unique within a session.
type Message struct {
	ID              string     `json:"id"`
	SessionID       string     `json:"session_id"`
	ActorID         string     `json:"actor_id"`
	Content         string     `json:"content"`
	Reasoning       string     `json:"reasoning,omitempty"`
	TurnNumber      int        `json:"turn_number"`
	SenderType      SenderType `json:"sender_type"`
	Mentions        []string   `json:"mentions,omitempty"`
	Interjection    bool       `json:"interjection,omitempty"`
	InterjectionSeq int        `json:"interjection_seq,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// NewMessage creates an official-turn message.
func NewMessage(sessionID, actorID, content string, turnNumber int) Message {
	return Message{
		ID:         NewID(),
		SessionID:  sessionID,
		ActorID:    actorID,
		Content:    content,
		TurnNumber: turnNumber,
		SenderType: SenderTypeFor(actorID),
		CreatedAt:  time.Now().UTC(),
	}
}

// SenderTypeFor derives the sender type from an actor ID.
func SenderTypeFor(actorID string) SenderType {
	switch actorID {
	case UserActorID:
		return SenderUser
	case SystemActorID:
		return SenderSystem
	default:
		return SenderAgent
	}
}

// Clone returns a copy with its own Mentions slice.
func (m Message) Clone() Message {
	m.Mentions = slices.Clone(m.Mentions)
	return m
}

// OfficialTurns filters out interjections and system messages.
func OfficialTurns(history []Message) []Message {
	out := make([]Message, 0, len(history))
	for _, m := range history {
		if m.Interjection || m.SenderType == SenderSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

// NewID returns a new random identifier.
func NewID() string { return uuid.NewString() }
