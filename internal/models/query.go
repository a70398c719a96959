package models

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxQuestionLength bounds the number of runes accepted in a single question.
const MaxQuestionLength = 4000

// Query is a single user question within a session.
type Query struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
	Stream    bool   `json:"stream,omitempty"`
}

// Validate trims the question and rejects empty or oversized input.
func (q *Query) Validate() error {
	q.Question = strings.TrimSpace(q.Question)
	if q.Question == "" {
		return fmt.Errorf("%w: question cannot be empty", ErrInvalidParameter)
	}
	if n := utf8.RuneCountInString(q.Question); n > MaxQuestionLength {
		return fmt.Errorf("%w: question is %d characters, limit is %d", ErrInvalidParameter, n, MaxQuestionLength)
	}
	return nil
}

// Turn is one completed question/answer exchange in a session's history.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
