package models

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is one entry of a session transcript.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp,omitzero"`
}

// NewMessage stamps a message with the current time.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, CreatedAt: time.Now().UTC()}
}
