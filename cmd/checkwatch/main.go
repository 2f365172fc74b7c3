// Command checkwatch runs the Controller: it tails the orchestrator's Check
// event stream, supervises one Scheduler per declared Check, and runs the
// periodic cluster audit (spec.md §§2, 4.3).
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/checkwatch/checkwatch/config"
	"github.com/checkwatch/checkwatch/internal/adapters/jobrunner"
	"github.com/checkwatch/checkwatch/internal/adapters/orchestrator"
	"github.com/checkwatch/checkwatch/internal/bootstrap"
	"github.com/checkwatch/checkwatch/internal/controller"
	"github.com/checkwatch/checkwatch/internal/observability/notify/pagerduty"
	"github.com/checkwatch/checkwatch/internal/observability/notify/slack"
	"github.com/checkwatch/checkwatch/internal/observability/statsd"
	"github.com/checkwatch/checkwatch/internal/service/escalator"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, controller.ErrStream) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	logger := bootstrap.InitLogger()

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	orchClient, err := orchestrator.NewClient(orchestrator.Config{
		BaseURL:    cfg.Orchestrator.BaseURL,
		Namespace:  cfg.Orchestrator.Namespace,
		Token:      cfg.Orchestrator.Token,
		Timeout:    cfg.Orchestrator.Timeout,
		RetryLimit: cfg.Orchestrator.RetryLimit,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("build orchestrator client: %w", err)
	}

	metricsClient, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Observability.Metrics.IsEnabled(),
		Address: cfg.Observability.Metrics.StatsdAddress,
		Prefix:  "checkwatch",
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("build metrics client: %w", err)
	}

	esc := escalator.NewService(escalator.Options{
		Logger: logger,
		Sinks:  buildEscalationSinks(cfg.Observability.Notifications, logger),
	})

	jobFactory := jobrunner.NewFactory(jobrunner.Options{
		Client: orchClient,
		Logger: logger,
	})

	ctrl := controller.New(controller.Options{
		Orchestrator:  orchClient,
		JobFactory:    jobFactory,
		Escalator:     esc,
		Metrics:       metricsClient,
		Logger:        logger,
		AuditInterval: cfg.Scheduler.ClusterAuditInterval,
	})

	return bootstrap.RunWithShutdown(ctrl, logger)
}

// buildEscalationSinks wires the configured Slack/PagerDuty sinks into the
// escalator's registration list. A sink whose Enabled flag is false after
// config.Sanitize (missing webhook URL / routing key) is skipped entirely
// rather than registered with a client that would only fail at send time.
func buildEscalationSinks(cfg config.ObservabilityNotificationsConfig, logger *slog.Logger) []escalator.SinkRegistration {
	var sinks []escalator.SinkRegistration

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:    cfg.Slack.WebhookURL,
			Channel:       cfg.Slack.Channel,
			Username:      cfg.Slack.Username,
			Timeout:       cfg.Timeout,
			RetryLimit:    cfg.RetryLimit,
			SiteURLPrefix: cfg.Slack.SiteURLPrefix,
		})
		if err != nil {
			logger.Warn("slack escalation sink disabled, construction failed", "error", err)
		} else {
			sinks = append(sinks, escalator.SinkRegistration{Name: "slack", Kind: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Warn("pagerduty escalation sink disabled, construction failed", "error", err)
		} else {
			sinks = append(sinks, escalator.SinkRegistration{Name: "pagerduty", Kind: "pagerduty", Sink: client})
		}
	}

	return sinks
}
