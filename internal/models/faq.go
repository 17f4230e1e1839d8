package models

import "time"

// FAQ is a canned question/answer pair fed to the support agent.
type FAQ struct {
	ID        int64     `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}
