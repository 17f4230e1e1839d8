package ai

import (
	"strings"

	"quickcomm/internal/models"
)

// ShapeHistory keeps the newest maxHistory entries, drops system and blank
// ones, maps roles for the backend and appends the new user message.
func ShapeHistory(history []models.Message, message string, maxHistory int) []Turn {
	if maxHistory > 0 && len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	turns := make([]Turn, 0, len(history)+1)
	for _, msg := range history {
		if msg.Role == models.RoleSystem || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		role := TurnUser
		if msg.Role == models.RoleAssistant {
			role = TurnModel
		}
		turns = append(turns, Turn{Role: role, Text: msg.Content})
	}
	return append(turns, Turn{Role: TurnUser, Text: message})
}
