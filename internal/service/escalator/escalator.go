// Package escalator fans a Check's escalation or recovery notification out
// to its configured targets.
package escalator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/checkwatch/checkwatch/internal/domain/check"
	"github.com/checkwatch/checkwatch/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name
// used for logging and, optionally, the target Kind it serves.
type SinkRegistration struct {
	Name string
	Kind string
	Sink notify.Sink
}

// Options configures the escalator service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
}

// Service dispatches escalation/recovery notifications to every registered
// sink whose Kind matches (or is unset, matching all) a Check's configured
// escalation targets.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
}

// NewService constructs an escalator.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "escalator")
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{Name: name, Kind: entry.Kind, Sink: entry.Sink})
	}

	return &Service{logger: logger, sinks: sinks}
}

// Notify renders cfg.EscalationTemplate against status and fans the result
// out to every registered sink whose Kind is named among cfg.Escalations or
// is unset (or every sink, if a Check names none). Per-sink delivery failures are logged
// and do not prevent delivery to other sinks.
func (s *Service) Notify(ctx context.Context, cfg check.Config, status check.CheckStatus, recovery bool) error {
	if len(s.sinks) == 0 {
		return nil
	}

	targets := s.resolveTargets(cfg.Escalations)
	if len(targets) == 0 {
		return nil
	}

	payload := notify.EscalationPayload{
		Namespace:   cfg.Namespace,
		Name:        cfg.Name,
		Status:      string(status.Status),
		Attempt:     status.Attempt,
		MaxAttempts: cfg.MaxAttempts,
		LastCheck:   status.LastCheck,
		Logs:        status.Logs,
		Recovery:    recovery,
		Severity:    notify.SeverityCritical,
		Body:        RenderTemplate(cfg.EscalationTemplate, cfg, status),
	}

	var wg sync.WaitGroup
	for _, entry := range targets {
		wg.Add(1)
		go func(entry SinkRegistration) {
			defer wg.Done()
			if err := entry.Sink.SendEscalation(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "escalator delivery error",
					"sink", entry.Name,
					"namespace", cfg.Namespace,
					"name", cfg.Name,
					"recovery", recovery,
					"error", err,
				)
			}
		}(entry)
	}
	wg.Wait()

	return nil
}

// resolveTargets returns the registered sinks that should receive a
// notification for the given escalation targets. A Check with no declared
// escalations fans out to every registered sink; otherwise only sinks whose
// Kind matches one of the declared targets, and sinks with no Kind, fire.
func (s *Service) resolveTargets(declared []check.EscalationTarget) []SinkRegistration {
	if len(declared) == 0 {
		return s.sinks
	}

	wanted := make(map[string]bool, len(declared))
	for _, t := range declared {
		wanted[strings.ToLower(t.Kind)] = true
	}

	var matched []SinkRegistration
	for _, entry := range s.sinks {
		if entry.Kind == "" || wanted[strings.ToLower(entry.Kind)] {
			matched = append(matched, entry)
		}
	}
	return matched
}

// Enabled reports whether the escalator has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}

// RenderTemplate formats tmpl with the fixed token set spec.md §6 names:
// {name, namespace, status, attempt, max_attempts, last_check, logs}. A
// fixed-field replacer matches the formatting the original does inline
// rather than pulling in a general templating engine for seven tokens.
func RenderTemplate(tmpl string, cfg check.Config, status check.CheckStatus) string {
	if tmpl == "" {
		return defaultBody(cfg, status)
	}

	lastCheck := ""
	if !status.LastCheck.IsZero() {
		lastCheck = status.LastCheck.UTC().Format(time.RFC3339)
	}

	replacer := strings.NewReplacer(
		"{name}", cfg.Name,
		"{namespace}", cfg.Namespace,
		"{status}", string(status.Status),
		"{attempt}", strconv.Itoa(status.Attempt),
		"{max_attempts}", strconv.Itoa(cfg.MaxAttempts),
		"{last_check}", lastCheck,
		"{logs}", status.Logs,
	)
	return replacer.Replace(tmpl)
}

func defaultBody(cfg check.Config, status check.CheckStatus) string {
	return fmt.Sprintf("%s/%s is %s (attempt %d/%d)",
		cfg.Namespace, cfg.Name, status.Status, status.Attempt, cfg.MaxAttempts)
}
