package agent

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ravi-parthasarathy/agenttrace/pkg/trace"
)

const (
	sessionIDDigits = 15

	defaultTruncationHeadTurns = 2
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one displayed exchange step of a chat.
type Turn struct {
	Role     Role          `json:"role"`
	Text     string        `json:"text"`
	Images   []string      `json:"images,omitempty"`
	Traces   []trace.Entry `json:"traces,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
	At       time.Time     `json:"at"`
}

// NewSessionID returns a random identifier of 15 decimal digits, the first
// of which is non-zero.
func NewSessionID() string {
	b := make([]byte, sessionIDDigits)
	b[0] = byte('1' + rand.IntN(9))
	for i := 1; i < len(b); i++ {
		b[i] = byte('0' + rand.IntN(10))
	}
	return string(b)
}

// Session holds the conversation history of one remote agent session.
type Session struct {
	id    string
	turns []Turn

	// marker is the index of the truncation marker, or -1. dropped is the
	// number of turns it stands for.
	marker  int
	dropped int
}

// NewSession creates a session with a fresh ID.
func NewSession() *Session {
	return &Session{id: NewSessionID(), marker: -1}
}

// ResumeSession creates a session continuing id with existing turns.
func ResumeSession(id string, turns []Turn) *Session {
	return &Session{id: id, turns: append([]Turn(nil), turns...), marker: -1}
}

// ID returns the session identifier sent to the agent runtime.
func (s *Session) ID() string { return s.id }

// Append adds a turn to the session history.
func (s *Session) Append(t Turn) {
	s.turns = append(s.turns, t)
}

// Turns returns a copy of the history.
func (s *Session) Turns() []Turn {
	return append([]Turn(nil), s.turns...)
}

// Len returns the number of turns.
func (s *Session) Len() int {
	return len(s.turns)
}

// Reset clears the history and assigns a new ID.
func (s *Session) Reset() {
	s.id = NewSessionID()
	s.turns = nil
	s.marker, s.dropped = -1, 0
}

// Truncate keeps the first headN and last tailN turns, inserting a
// [TRUNCATED] system turn between them when turns are dropped. The count
// covers every turn dropped so far: an earlier marker falling in the
// dropped range is replaced, and its count carried over.
func (s *Session) Truncate(headN, tailN int) {
	total := len(s.turns)
	if total <= headN+tailN {
		return
	}
	omitted := total - headN - tailN
	if s.marker >= headN && s.marker < total-tailN {
		omitted += s.dropped - 1
	}
	marker := Turn{
		Role: RoleSystem,
		Text: fmt.Sprintf("[TRUNCATED: %d turns omitted]", omitted),
		At:   s.turns[headN].At,
	}

	combined := make([]Turn, 0, headN+1+tailN)
	combined = append(combined, s.turns[:headN]...)
	combined = append(combined, marker)
	combined = append(combined, s.turns[total-tailN:]...)
	s.turns = combined
	s.marker, s.dropped = headN, omitted
}
