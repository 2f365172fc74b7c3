// Package config loads the Controller's environment-sourced configuration
// using github.com/caarlos0/env, the teacher's configuration library.
package config

import (
	"os"
	"strings"
	"time"
)

// AppConfig is the Controller process's top-level configuration, loaded from
// environment variables (and optionally a .env file; see
// internal/bootstrap.LoadConfig). The environment variables each section
// reads are on its type:
//   - OrchestratorConfig (this file): orchestrator API connection
//   - SchedulerDefaultsConfig (this file): per-Check defaults and the cluster audit interval
//   - ObservabilityConfig (observability.go): metrics and escalation notification sinks
type AppConfig struct {
	// IsDev reports development mode. Set DEV=true or NODE_ENV=development
	// for development mode. bootstrap.InitLogger does not read it: logging is
	// always JSON.
	IsDev bool `env:"DEV" envDefault:"false"`

	Orchestrator OrchestratorConfig
	Scheduler    SchedulerDefaultsConfig
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env. This
// must be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Orchestrator.Sanitize()
	c.Scheduler.Sanitize()
	c.Observability.Sanitize()
	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in tooling that already sets it
// for other processes in the same deployment).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// OrchestratorConfig configures the REST client used to list/watch Check
// resources and manage their jobs (internal/adapters/orchestrator).
type OrchestratorConfig struct {
	BaseURL    string        `env:"ORCHESTRATOR_BASE_URL"`
	Namespace  string        `env:"ORCHESTRATOR_NAMESPACE"  envDefault:"default"`
	Token      string        `env:"ORCHESTRATOR_TOKEN"`
	Timeout    time.Duration `env:"ORCHESTRATOR_TIMEOUT"    envDefault:"10s"`
	RetryLimit int           `env:"ORCHESTRATOR_RETRY_LIMIT" envDefault:"3"`
}

// Sanitize applies guardrails to orchestrator configuration values.
func (c *OrchestratorConfig) Sanitize() {
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
}

// SchedulerDefaultsConfig holds Controller-wide per-Check defaults plus the
// cluster-audit period (spec.md §4.3.2's check_cluster_interval). Only
// ClusterAuditInterval is wired into the Controller. DefaultMaxAttempts and
// DefaultJobPollInterval are loaded and sanitized but not consulted: a Check
// that omits those fields gets check.Config.Sanitize's fixed defaults
// (3 attempts, 3s poll interval) whatever these are set to.
type SchedulerDefaultsConfig struct {
	DefaultMaxAttempts   int           `env:"SCHEDULER_DEFAULT_MAX_ATTEMPTS"   envDefault:"3"`
	DefaultJobPollInterval time.Duration `env:"SCHEDULER_DEFAULT_JOB_POLL_INTERVAL" envDefault:"3s"`
	ClusterAuditInterval time.Duration `env:"SCHEDULER_CLUSTER_AUDIT_INTERVAL" envDefault:"60s"`
}

// Sanitize applies guardrails to scheduler-defaults configuration values.
func (c *SchedulerDefaultsConfig) Sanitize() {
	if c.DefaultMaxAttempts < 1 {
		c.DefaultMaxAttempts = 3
	}
	if c.DefaultJobPollInterval <= 0 {
		c.DefaultJobPollInterval = 3 * time.Second
	}
	if c.ClusterAuditInterval <= 0 {
		c.ClusterAuditInterval = 60 * time.Second
	}
}
