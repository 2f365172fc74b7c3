package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
)

// EscalationPayload is the rendered notification dispatched to every
// configured sink, whether it reports the first escalation for a Check or
// the recovery notification that follows one.
type EscalationPayload struct {
	Namespace string
	Name      string

	Status      string
	Attempt     int
	MaxAttempts int
	LastCheck   time.Time
	Logs        string

	// Body is the escalation_template already rendered with this payload's
	// tokens (name, namespace, status, attempt, max_attempts, last_check,
	// logs); sinks may use it verbatim or reformat from the fields above.
	Body string

	// Recovery is true when an escalated Check has returned to OK, false
	// when this reports the initial escalation.
	Recovery bool

	Severity string
}

// Sink describes a destination capable of consuming escalation notifications.
type Sink interface {
	SendEscalation(ctx context.Context, payload EscalationPayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload EscalationPayload) error

// SendEscalation implements the Sink interface.
func (f SinkFunc) SendEscalation(ctx context.Context, payload EscalationPayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
