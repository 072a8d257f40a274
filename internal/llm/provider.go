// Package llm is the text-in, text-out completion collaborator used for
// intent classification, command planning and question answering.
package llm

import (
	"context"
	"errors"
	"fmt"
)

type Request struct {
	// Purpose labels the call in logs and metrics ("classify", "plan", "answer").
	Purpose string

	SystemPrompt string
	UserPrompt   string
	// Temperature is sent when set, including zero; nil leaves the backend
	// default.
	Temperature *float64
	MaxTokens   int // <=0 leaves the backend default
}

// Float returns a pointer to v, for Request.Temperature.
func Float(v float64) *float64 { return &v }

type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

var ErrEmptyResponse = errors.New("llm: empty response")

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Backend    string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("llm: %s returned HTTP %d", e.Backend, e.StatusCode)
	}
	return fmt.Sprintf("llm: %s returned HTTP %d: %s", e.Backend, e.StatusCode, e.Message)
}
