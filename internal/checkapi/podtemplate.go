// Package checkapi synthesizes the compact workload-spec form a Check may
// declare instead of a full pod template.
package checkapi

import "github.com/checkwatch/checkwatch/internal/domain/check"

// BuildPodTemplate synthesizes a minimal pod template from a Check's compact
// spec fields ({image, secretRef, check_cm, url}), grounded on the original
// controller's build_spec: restart_policy Never, a single container named
// after the Check using image, envFrom.secretRef when secretRef is set, a
// checks volume mounted at /checks when check_cm is set, and url appended as
// the container's sole arg when set.
//
// Callers should prefer spec.Template when it is set; BuildPodTemplate is
// only consulted for the compact form.
func BuildPodTemplate(namespace, name string, spec check.WorkloadSpec) map[string]any {
	container := map[string]any{
		"name":  name,
		"image": spec.Image,
	}

	if spec.SecretRef != "" {
		container["envFrom"] = []any{
			map[string]any{"secretRef": map[string]any{"name": spec.SecretRef}},
		}
	}

	if spec.URL != "" {
		container["args"] = []any{spec.URL}
	}

	podSpec := map[string]any{
		"restartPolicy": "Never",
		"containers":    []any{container},
	}

	if spec.CheckCM != "" {
		container["volumeMounts"] = []any{
			map[string]any{"name": "checks", "mountPath": "/checks", "readOnly": true},
		}
		podSpec["volumes"] = []any{
			map[string]any{
				"name":      "checks",
				"configMap": map[string]any{"name": spec.CheckCM},
			},
		}
	}

	return map[string]any{
		"metadata": map[string]any{
			"name":      name,
			"namespace": namespace,
			"labels":    map[string]any{"app": name},
		},
		"spec": podSpec,
	}
}

// ResolveTemplate returns the pod template to submit for an attempt: the
// Check's full template if supplied, otherwise a synthesized compact one.
func ResolveTemplate(namespace, name string, spec check.WorkloadSpec) map[string]any {
	if spec.HasTemplate() {
		return spec.Template
	}
	return BuildPodTemplate(namespace, name, spec)
}
