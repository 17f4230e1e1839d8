package ai

import (
	"errors"
	"strings"

	"google.golang.org/genai"
)

var (
	// ErrNotConfigured means no credentials are available for the backend.
	ErrNotConfigured = errors.New("api key not configured")
	// ErrContentBlocked is returned when the backend refuses on safety grounds.
	ErrContentBlocked = errors.New("response blocked by safety filter")
)

// Category groups backend failures by what the user should be told.
type Category string

const (
	CategoryNotConfigured    Category = "not-configured"
	CategoryModelUnavailable Category = "model-unavailable"
	CategoryAuth             Category = "auth"
	CategoryRateLimited      Category = "rate-limited"
	CategoryContentRejected  Category = "content-rejected"
	CategoryUnclassified     Category = "unclassified"
)

const (
	ReplyTroubleConnecting = "I'm sorry, but I'm having trouble connecting to my brain right now. Please try again later or contact support."
	ReplyEmptyMessage      = "I didn't receive a message. How can I help you today?"
	ReplyRephrase          = "I'm here to help! Could you please rephrase your question?"
	ReplyModelUpdating     = "The AI model version is currently being updated. Please try again in a few minutes."
	ReplyOverwhelmed       = "I'm a bit overwhelmed with requests right now. Please wait a moment and try again."
	ReplyCannotRespond     = "I'm not able to respond to that particular request. How else can I help you today?"
	ReplyGenericFailure    = "I apologize, but I encountered an issue processing your request. Please try again or contact support@quickshop.com for assistance."
)

// Classify maps a backend error to a Category. Typed API errors are checked
// first, then the message text in the order the provider phrases them.
func Classify(err error) Category {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrNotConfigured):
		return CategoryNotConfigured
	case errors.Is(err, ErrContentBlocked):
		return CategoryContentRejected
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 404:
			return CategoryModelUnavailable
		case 401, 403:
			return CategoryAuth
		case 429:
			return CategoryRateLimited
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "404") || strings.Contains(msg, "not found"):
		return CategoryModelUnavailable
	case strings.Contains(msg, "api key") || strings.Contains(msg, "api_key"):
		return CategoryAuth
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota"):
		return CategoryRateLimited
	case strings.Contains(msg, "safety"):
		return CategoryContentRejected
	}
	return CategoryUnclassified
}

// CannedReply is the user-facing text for a failure category.
func CannedReply(c Category) string {
	switch c {
	case CategoryNotConfigured, CategoryAuth:
		return ReplyTroubleConnecting
	case CategoryModelUnavailable:
		return ReplyModelUpdating
	case CategoryRateLimited:
		return ReplyOverwhelmed
	case CategoryContentRejected:
		return ReplyCannotRespond
	default:
		return ReplyGenericFailure
	}
}
