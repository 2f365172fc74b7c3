package checkapi

import (
	"testing"
	"time"

	"github.com/checkwatch/checkwatch/internal/domain/check"
	"github.com/checkwatch/checkwatch/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeConfigCompactSpec(t *testing.T) {
	obj := ports.ResourceObject{
		Namespace: "prod",
		Name:      "api-health",
		Spec: map[string]any{
			"check_interval":       "1m",
			"retry_interval":       "30s",
			"notification_interval": "1h",
			"max_attempts":         float64(5),
			"image":                "probe:latest",
			"url":                  "https://example.com/health",
			"escalations":          []any{"pagerduty", "slack"},
		},
	}

	cfg, err := DecodeConfig(obj)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Namespace)
	assert.Equal(t, "api-health", cfg.Name)
	assert.Equal(t, time.Minute, cfg.CheckInterval)
	assert.Equal(t, 30*time.Second, cfg.RetryInterval)
	assert.Equal(t, time.Hour, cfg.NotificationInterval)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, "probe:latest", cfg.Spec.Image)
	assert.Equal(t, "https://example.com/health", cfg.Spec.URL)
	require.Len(t, cfg.Escalations, 2)
	assert.Equal(t, "pagerduty", cfg.Escalations[0].Kind)
	assert.Equal(t, "slack", cfg.Escalations[1].Kind)
}

func TestDecodeConfigFullTemplate(t *testing.T) {
	obj := ports.ResourceObject{
		Namespace: "prod",
		Name:      "api-health",
		Spec: map[string]any{
			"check_interval": "5",
			"template": map[string]any{
				"spec": map[string]any{
					"restartPolicy": "Never",
				},
			},
		},
	}

	cfg, err := DecodeConfig(obj)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.CheckInterval)
	require.True(t, cfg.Spec.HasTemplate())
	assert.Equal(t, "Never", cfg.Spec.Template["restartPolicy"])
}

func TestDecodeConfigMissingRequiredFieldIsInvalid(t *testing.T) {
	obj := ports.ResourceObject{
		Namespace: "prod",
		Name:      "api-health",
		Spec:      map[string]any{"image": "probe:latest"},
	}

	_, err := DecodeConfig(obj)
	assert.Error(t, err)
}

func TestDecodeConfigUnparseableDurationIsInvalid(t *testing.T) {
	obj := ports.ResourceObject{
		Namespace: "prod",
		Name:      "api-health",
		Spec: map[string]any{
			"check_interval": "not-a-duration",
			"image":          "probe:latest",
		},
	}

	_, err := DecodeConfig(obj)
	assert.Error(t, err)
}

func TestDecodePreStatusRoundTripsFields(t *testing.T) {
	raw := map[string]any{
		"status":  "CRITICAL",
		"state":   "RUNNING",
		"attempt": "2",
		"logs":    "boom",
	}

	status := DecodePreStatus(raw)
	require.NotNil(t, status)
	assert.Equal(t, check.StatusCritical, status.Status)
	assert.Equal(t, check.StateRunning, status.State)
	assert.Equal(t, 2, status.Attempt)
	assert.Equal(t, "boom", status.Logs)
}

func TestDecodePreStatusNilForEmptyMap(t *testing.T) {
	assert.Nil(t, DecodePreStatus(nil))
	assert.Nil(t, DecodePreStatus(map[string]any{}))
}
