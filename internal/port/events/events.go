// Package events defines the port for publishing run lifecycle events.
package events

import "context"

// SubjectRunCompleted is published once per tool invocation.
const SubjectRunCompleted = "simgate.runs.completed"

// RunCompleted describes a finished tool invocation. It deliberately carries
// no financial figures.
type RunCompleted struct {
	RunID      string `json:"runId,omitempty"`
	Success    bool   `json:"success"`
	Code       string `json:"code,omitempty"`
	Phase      string `json:"phase,omitempty"`
	InputHash  string `json:"inputHash,omitempty"`
	DurationMS int64  `json:"durationMs"`
	Cached     bool   `json:"cached"`
}

// Publisher is the port interface for emitting run events.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Nop discards all events. Used when no broker is configured.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, string, []byte) error { return nil }
