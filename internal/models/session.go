package models

// SessionHistory is the transcript view returned to callers.
type SessionHistory struct {
	SessionID string    `json:"sessionId"`
	History   []Message `json:"history"`
}
