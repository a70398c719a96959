package models

// RetrievedChunk is a chunk selected for a query, with its relevance score and 1-based rank.
type RetrievedChunk struct {
	Chunk *Chunk  `json:"chunk"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// RetrievedContext is ordered by descending score.
type RetrievedContext []RetrievedChunk

// Empty reports whether no chunk was retrieved.
func (c RetrievedContext) Empty() bool { return len(c) == 0 }

// AnswerStatus classifies how a query ended.
type AnswerStatus string

const (
	StatusAnswered            AnswerStatus = "answered"
	StatusInsufficientContext AnswerStatus = "insufficient_context"
	StatusFailed              AnswerStatus = "failed"
)

// Answer is the response to a query. Text is always user-presentable, including on failure.
type Answer struct {
	Text      string           `json:"text"`
	Status    AnswerStatus     `json:"status"`
	Reason    FailureReason    `json:"reason,omitempty"`
	Context   RetrievedContext `json:"context"`
	SessionID string           `json:"session_id"`
	Truncated bool             `json:"truncated,omitempty"`
	QueryTime int64            `json:"query_time_ms"`
	Err       error            `json:"-"`
}

// Succeeded reports whether the answer came from a completed pipeline run.
func (a *Answer) Succeeded() bool {
	return a.Status == StatusAnswered || a.Status == StatusInsufficientContext
}
