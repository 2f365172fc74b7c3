package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/checkwatch/checkwatch/internal/adapters/jobrunner"
)

var _ jobrunner.Backend = (*Client)(nil)

func (c *Client) jobsURL(namespace string) string {
	if namespace == "" {
		namespace = c.namespace
	}
	return fmt.Sprintf("%s/apis/batch/v1/namespaces/%s/jobs", c.baseURL, namespace)
}

func (c *Client) podsURL(namespace, labelSelector string) string {
	if namespace == "" {
		namespace = c.namespace
	}
	return fmt.Sprintf("%s/api/v1/namespaces/%s/pods?labelSelector=%s", c.baseURL, namespace, url.QueryEscape(labelSelector))
}

// CreateJob submits a one-shot job built from podTemplate, named after the
// Check so the label selector "app={name}" finds its pods for log
// collection (grounded on the original's run_job/get_job_logs pairing).
func (c *Client) CreateJob(ctx context.Context, namespace, name string, podTemplate map[string]any) error {
	job := map[string]any{
		"apiVersion": "batch/v1",
		"kind":       "Job",
		"metadata": map[string]any{
			"name":      name,
			"namespace": namespace,
			"labels":    map[string]any{"app": name},
		},
		"spec": map[string]any{
			"template":     podTemplate,
			"backoffLimit": 0,
		},
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.jobsURL(namespace), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create job request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := readBounded(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("create job %s/%s: %s: %s", namespace, name, resp.Status, string(respBody))
	}
	return nil
}

// GetJobStatus returns a snapshot of the named job's status.
func (c *Client) GetJobStatus(ctx context.Context, namespace, name string) (jobrunner.JobSnapshot, error) {
	url := fmt.Sprintf("%s/%s", c.jobsURL(namespace), name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return jobrunner.JobSnapshot{}, fmt.Errorf("create job status request: %w", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return jobrunner.JobSnapshot{}, fmt.Errorf("get job status: %w", err)
	}
	defer resp.Body.Close()

	body, err := readBounded(resp.Body)
	if err != nil {
		return jobrunner.JobSnapshot{}, fmt.Errorf("read job status: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return jobrunner.JobSnapshot{}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return jobrunner.JobSnapshot{}, fmt.Errorf("get job status %s/%s: %s: %s", namespace, name, resp.Status, string(body))
	}

	var doc struct {
		Status struct {
			Active    int        `json:"active"`
			Succeeded int        `json:"succeeded"`
			Failed    int        `json:"failed"`
			StartTime *time.Time `json:"startTime"`
		} `json:"status"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return jobrunner.JobSnapshot{}, fmt.Errorf("decode job status: %w", err)
	}

	snap := jobrunner.JobSnapshot{
		Active:    doc.Status.Active > 0,
		Succeeded: doc.Status.Succeeded > 0,
		Failed:    doc.Status.Failed > 0,
	}
	if doc.Status.StartTime != nil {
		snap.StartTime = *doc.Status.StartTime
	}
	return snap, nil
}

// GetJobLogs concatenates the logs of every pod matching label selector
// "app={name}", the same selector CreateJob attaches to the job it submits.
func (c *Client) GetJobLogs(ctx context.Context, namespace, name string) (string, error) {
	podNames, err := c.listPodNames(ctx, namespace, "app="+name)
	if err != nil {
		return "", fmt.Errorf("list pods for %s/%s: %w", namespace, name, err)
	}

	var combined bytes.Buffer
	for _, pod := range podNames {
		logs, err := c.getPodLogs(ctx, namespace, pod)
		if err != nil {
			continue
		}
		combined.WriteString(logs)
	}
	return combined.String(), nil
}

func (c *Client) listPodNames(ctx context.Context, namespace, labelSelector string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.podsURL(namespace, labelSelector), nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readBounded(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s: %s", resp.Status, string(body))
	}

	var list struct {
		Items []struct {
			Metadata struct {
				Name string `json:"name"`
			} `json:"metadata"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(list.Items))
	for _, item := range list.Items {
		names = append(names, item.Metadata.Name)
	}
	return names, nil
}

func (c *Client) getPodLogs(ctx context.Context, namespace, pod string) (string, error) {
	url := fmt.Sprintf("%s/api/v1/namespaces/%s/pods/%s/log", c.baseURL, namespace, pod)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := readBounded(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%s: %s", resp.Status, string(body))
	}
	return string(body), nil
}

// DeleteJob removes a job and its pods with foreground propagation. A
// missing job is not an error.
func (c *Client) DeleteJob(ctx context.Context, namespace, name string) error {
	body, err := json.Marshal(map[string]any{"propagationPolicy": "Foreground"})
	if err != nil {
		return fmt.Errorf("encode delete options: %w", err)
	}

	url := fmt.Sprintf("%s/%s", c.jobsURL(namespace), name)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create delete job request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	defer resp.Body.Close()
	_, _ = readBounded(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delete job %s/%s: %s", namespace, name, resp.Status)
	}
	return nil
}
