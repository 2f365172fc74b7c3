package checkapi

import (
	"fmt"
	"time"

	"github.com/checkwatch/checkwatch/internal/domain/check"
	"github.com/checkwatch/checkwatch/internal/ports"
)

// DecodeConfig builds a check.Config from a declared Check's raw spec
// fields (spec.md §6's resource schema), parsing durations per
// check.ParseDuration. It returns an error for any unparseable duration or
// missing required field — the spec.md §7 InvalidConfig case, which the
// caller is expected to treat as skip-with-warning rather than fatal.
func DecodeConfig(obj ports.ResourceObject) (check.Config, error) {
	spec := obj.Spec
	cfg := check.Config{
		Namespace: obj.Namespace,
		Name:      obj.Name,
	}

	checkInterval, err := decodeDuration(spec, "check_interval", true)
	if err != nil {
		return check.Config{}, err
	}
	cfg.CheckInterval = checkInterval

	if cfg.RetryInterval, err = decodeDuration(spec, "retry_interval", false); err != nil {
		return check.Config{}, err
	}
	if cfg.NotificationInterval, err = decodeDuration(spec, "notification_interval", false); err != nil {
		return check.Config{}, err
	}
	if cfg.Timeout, err = decodeDuration(spec, "timeout", false); err != nil {
		return check.Config{}, err
	}

	if raw, ok := spec["max_attempts"]; ok {
		n, ok := toInt(raw)
		if !ok {
			return check.Config{}, fmt.Errorf("decode check config %s/%s: max_attempts is not a number", obj.Namespace, obj.Name)
		}
		cfg.MaxAttempts = n
	}

	cfg.EscalationTemplate, _ = spec["escalation_template"].(string)
	cfg.Escalations = decodeEscalations(spec["escalations"])
	cfg.Spec = decodeWorkloadSpec(spec)

	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return check.Config{}, err
	}
	return cfg, nil
}

// DecodePreStatus parses a declared Check's persisted status subresource,
// the pre_status handed to a newly constructed Scheduler on ADDED or
// controller startup. A nil or empty map yields a nil pre-status, matching
// a freshly declared Check with no prior run.
func DecodePreStatus(raw map[string]any) *check.CheckStatus {
	if len(raw) == 0 {
		return nil
	}

	status := &check.CheckStatus{}
	if s, ok := raw["status"].(string); ok {
		_ = status.Status.UnmarshalText([]byte(s))
	}
	if s, ok := raw["state"].(string); ok {
		_ = status.State.UnmarshalText([]byte(s))
	}
	if s, ok := raw["attempt"]; ok {
		if n, ok := toInt(s); ok {
			status.Attempt = n
		}
	}
	if s, ok := raw["lastCheckTimestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			status.LastCheck = t
		}
	}
	if s, ok := raw["nextCheckTimestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			status.NextCheck = t
		}
	}
	if s, ok := raw["logs"].(string); ok {
		status.Logs = s
	}
	if b, ok := raw["escalated"].(bool); ok {
		status.Escalated = b
	}

	return status
}

func decodeDuration(spec map[string]any, key string, required bool) (time.Duration, error) {
	raw, ok := spec[key]
	if !ok {
		if required {
			return 0, fmt.Errorf("decode check config: %s is required", key)
		}
		return 0, nil
	}

	switch v := raw.(type) {
	case string:
		d, err := check.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("decode check config: %s: %w", key, err)
		}
		return d, nil
	case float64:
		return check.ParseDuration(fmt.Sprintf("%g", v))
	case int:
		return check.ParseDuration(fmt.Sprintf("%d", v))
	default:
		return 0, fmt.Errorf("decode check config: %s has unsupported type %T", key, raw)
	}
}

func decodeEscalations(raw any) []check.EscalationTarget {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}

	targets := make([]check.EscalationTarget, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			targets = append(targets, check.EscalationTarget{Kind: v})
		case map[string]any:
			target := check.EscalationTarget{Config: map[string]string{}}
			for k, val := range v {
				if k == "kind" {
					target.Kind, _ = val.(string)
					continue
				}
				if s, ok := val.(string); ok {
					target.Config[k] = s
				}
			}
			targets = append(targets, target)
		}
	}
	return targets
}

func decodeWorkloadSpec(spec map[string]any) check.WorkloadSpec {
	var ws check.WorkloadSpec

	if tmpl, ok := spec["template"].(map[string]any); ok {
		if podSpec, ok := tmpl["spec"].(map[string]any); ok {
			ws.Template = podSpec
		} else {
			ws.Template = tmpl
		}
		return ws
	}

	ws.Image, _ = spec["image"].(string)
	ws.SecretRef, _ = spec["secretRef"].(string)
	ws.CheckCM, _ = spec["check_cm"].(string)
	ws.URL, _ = spec["url"].(string)
	return ws
}

func toInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n, true
		}
	}
	return 0, false
}
