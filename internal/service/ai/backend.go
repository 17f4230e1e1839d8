package ai

import (
	"context"
	"iter"
)

// Turn roles sent to a backend. Assistant history is sent as "model".
const (
	TurnUser  = "user"
	TurnModel = "model"
)

// Turn is one shaped conversation entry.
type Turn struct {
	Role string
	Text string
}

type Params struct {
	Temperature     float32
	TopP            float32
	MaxOutputTokens int
}

// Request is everything a backend needs for one generation.
type Request struct {
	SystemInstruction string
	Contents          []Turn
	Params            Params
}

// Backend produces model output for a shaped request. Stream yields text
// fragments in order; an error ends the sequence.
type Backend interface {
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]
	Generate(ctx context.Context, req Request) (string, error)
}
