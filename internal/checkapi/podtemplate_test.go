package checkapi

import (
	"testing"

	"github.com/checkwatch/checkwatch/internal/domain/check"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPodTemplateMinimal(t *testing.T) {
	tmpl := BuildPodTemplate("prod", "api-health", check.WorkloadSpec{Image: "probe:latest"})

	spec, ok := tmpl["spec"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Never", spec["restartPolicy"])

	containers, ok := spec["containers"].([]any)
	require.True(t, ok)
	require.Len(t, containers, 1)

	container := containers[0].(map[string]any)
	assert.Equal(t, "api-health", container["name"])
	assert.Equal(t, "probe:latest", container["image"])
	assert.NotContains(t, container, "envFrom")
	assert.NotContains(t, container, "args")
}

func TestBuildPodTemplateWithSecretAndURL(t *testing.T) {
	tmpl := BuildPodTemplate("prod", "api-health", check.WorkloadSpec{
		Image:     "probe:latest",
		SecretRef: "probe-creds",
		URL:       "https://example.com/health",
	})

	container := tmpl["spec"].(map[string]any)["containers"].([]any)[0].(map[string]any)
	assert.Equal(t, []any{"https://example.com/health"}, container["args"])

	envFrom, ok := container["envFrom"].([]any)
	require.True(t, ok)
	require.Len(t, envFrom, 1)
}

func TestBuildPodTemplateWithCheckConfigMap(t *testing.T) {
	tmpl := BuildPodTemplate("prod", "api-health", check.WorkloadSpec{
		Image:   "probe:latest",
		CheckCM: "api-health-checks",
	})

	spec := tmpl["spec"].(map[string]any)
	container := spec["containers"].([]any)[0].(map[string]any)

	mounts, ok := container["volumeMounts"].([]any)
	require.True(t, ok)
	require.Len(t, mounts, 1)
	mount := mounts[0].(map[string]any)
	assert.Equal(t, "checks", mount["name"])
	assert.Equal(t, "/checks", mount["mountPath"])
	assert.Equal(t, true, mount["readOnly"])

	volumes, ok := spec["volumes"].([]any)
	require.True(t, ok)
	require.Len(t, volumes, 1)
}

func TestResolveTemplatePrefersFullTemplate(t *testing.T) {
	full := map[string]any{"spec": map[string]any{"restartPolicy": "Never"}}
	got := ResolveTemplate("prod", "api-health", check.WorkloadSpec{Template: full, Image: "ignored"})
	assert.Equal(t, full, got)
}
