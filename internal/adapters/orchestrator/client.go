// Package orchestrator is the thin REST collaborator the Controller and the
// reference Job Runner backend use to list/watch/patch Check resources and
// manage one-shot jobs. Its wire protocol is intentionally unspecified and
// out of scope (spec.md §1); this implementation targets a Kubernetes-style
// custom-resource API and job/pod API, the shape the reference system was
// distilled from.
package orchestrator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/checkwatch/checkwatch/internal/domain/check"
	"github.com/checkwatch/checkwatch/internal/ports"
	"gopkg.in/yaml.v3"
)

const (
	maxResponseBodyBytes = 64 * 1024
	inClusterTokenPath   = "/var/run/secrets/kubernetes.io/serviceaccount/token"
)

// Config describes how to reach the orchestrator API.
type Config struct {
	BaseURL    string
	Namespace  string
	Token      string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	Logger     *slog.Logger
}

// Client is a minimal REST client for the Check custom resource and its
// backing one-shot job resources.
type Client struct {
	baseURL    string
	namespace  string
	token      string
	retryLimit int
	client     *http.Client
	logger     *slog.Logger
}

func (c *Client) watchLogger() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}

var (
	_ ports.EventStream        = (*Client)(nil)
	_ ports.ResourceLister     = (*Client)(nil)
	_ ports.StatusSink         = (*Client)(nil)
	_ ports.OrchestratorClient = (*Client)(nil)
)

// NewClient builds an orchestrator client. When cfg.BaseURL/Token are empty
// and the process is running in-cluster (KUBERNETES_SERVICE_HOST is set),
// in-cluster defaults are used; otherwise the caller-supplied local
// credentials are used as-is, mirroring the original's
// KUBERNETES_PORT-gated in-cluster-vs-kubeconfig detection.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	token := cfg.Token

	if baseURL == "" && InCluster() {
		baseURL = "https://kubernetes.default.svc"
		if token == "" {
			data, err := os.ReadFile(inClusterTokenPath)
			if err != nil {
				return nil, fmt.Errorf("read in-cluster token: %w", err)
			}
			token = strings.TrimSpace(string(data))
		}
	}

	if baseURL == "" {
		return nil, errors.New("orchestrator base url is required outside a cluster")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		namespace:  cfg.Namespace,
		token:      token,
		retryLimit: max(cfg.RetryLimit, 0),
		client:     hc,
		logger:     cfg.Logger,
	}, nil
}

// InCluster reports whether the process appears to be running inside a
// cluster, per the standard service-discovery environment variable.
func InCluster() bool {
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

func (c *Client) checksURL(namespace string) string {
	if namespace == "" {
		namespace = c.namespace
	}
	return fmt.Sprintf("%s/apis/checkwatch.io/v1/namespaces/%s/checks", c.baseURL, namespace)
}

func (c *Client) checkStatusURL(namespace, name string) string {
	return fmt.Sprintf("%s/%s/status", c.checksURL(namespace), name)
}

// ListChecks lists every declared Check in the configured namespace.
func (c *Client) ListChecks(ctx context.Context) ([]ports.ResourceObject, error) {
	resp, err := c.do(ctx, http.MethodGet, c.checksURL(""), nil)
	if err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	defer resp.Body.Close()

	body, err := readBounded(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read list response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("list checks: %s: %s", resp.Status, string(body))
	}

	var list struct {
		Items []resourceEnvelope `json:"items"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}

	objs := make([]ports.ResourceObject, 0, len(list.Items))
	for _, item := range list.Items {
		objs = append(objs, item.toResourceObject())
	}
	return objs, nil
}

// Watch opens the Check watch stream, resuming from resourceVersion when set.
func (c *Client) Watch(ctx context.Context, resourceVersion string) (<-chan ports.Event, error) {
	url := c.checksURL("") + "?watch=true"
	if resourceVersion != "" {
		url += "&resourceVersion=" + resourceVersion
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create watch request: %w", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("watch checks: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := readBounded(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("watch checks: %s: %s", resp.Status, string(body))
	}

	events := make(chan ports.Event)
	go c.pumpWatch(ctx, resp.Body, events)
	return events, nil
}

type watchEnvelope struct {
	Type   string           `json:"type"`
	Object resourceEnvelope `json:"object"`
}

// pumpWatch decodes NDJSON watch entries onto events until the stream ends
// or the caller cancels. A transport-level break (scanner error or a clean
// EOF) closes events without emitting anything: that is a transport
// disconnect, not the API's explicit ERROR op, and the caller is expected to
// reopen Watch from the last observed resource_version (spec.md §4.3.1). An
// explicit {"type":"ERROR",...} entry in the stream IS forwarded as a
// ports.EventError, since that is the upstream API itself signalling a fatal
// condition.
func (c *Client) pumpWatch(ctx context.Context, body io.ReadCloser, events chan<- ports.Event) {
	defer close(events)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var env watchEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			select {
			case events <- ports.Event{Op: ports.EventError, Err: fmt.Errorf("decode watch event: %w", err)}:
			case <-ctx.Done():
			}
			return
		}

		evt := ports.Event{Op: ports.EventOp(env.Type), Object: env.Object.toResourceObject()}
		select {
		case events <- evt:
		case <-ctx.Done():
			return
		}

		if evt.Op == ports.EventError {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		c.watchLogger().Warn("watch stream transport error, will resume", "error", err)
	}
}

// statusDocument is the YAML-shaped persisted status subresource described
// in spec.md §6.
type statusDocument struct {
	Status statusFields `yaml:"status"`
}

type statusFields struct {
	Status             string `yaml:"status"`
	State              string `yaml:"state"`
	Attempt            string `yaml:"attempt"`
	LastCheckTimestamp string `yaml:"lastCheckTimestamp,omitempty"`
	NextCheckTimestamp string `yaml:"nextCheckTimestamp,omitempty"`
	Logs               string `yaml:"logs"`
}

// PublishStatus patches a Check's status subresource.
func (c *Client) PublishStatus(ctx context.Context, cfg check.Config, status check.CheckStatus) error {
	doc := statusDocument{Status: statusFields{
		Status:  string(status.Status),
		State:   string(status.State),
		Attempt: strconv.Itoa(status.Attempt),
		Logs:    status.Logs,
	}}
	if !status.LastCheck.IsZero() {
		doc.Status.LastCheckTimestamp = status.LastCheck.UTC().Format("2006-01-02T15:04:05Z")
	}
	if !status.NextCheck.IsZero() {
		doc.Status.NextCheckTimestamp = status.NextCheck.UTC().Format("2006-01-02T15:04:05Z")
	}

	body, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode status document: %w", err)
	}

	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		lastErr = c.patchStatus(ctx, cfg.Namespace, cfg.Name, body)
		if lastErr == nil {
			return nil
		}
		if attempt < attempts-1 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("publish status for %s/%s: %w", cfg.Namespace, cfg.Name, lastErr)
}

func (c *Client) patchStatus(ctx context.Context, namespace, name string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.checkStatusURL(namespace, name), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create status patch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/yaml")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("status patch failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := readBounded(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status patch %s: %s", resp.Status, string(respBody))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	return c.client.Do(req)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func readBounded(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxResponseBodyBytes))
}

func sleepBackoff(ctx context.Context, attempt int) error {
	delay := time.Duration(attempt+1) * 200 * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// resourceEnvelope is the wire shape of a declared Check object.
type resourceEnvelope struct {
	Metadata struct {
		Namespace       string `json:"namespace"`
		Name            string `json:"name"`
		ResourceVersion string `json:"resourceVersion"`
	} `json:"metadata"`
	Spec   map[string]any `json:"spec"`
	Status map[string]any `json:"status"`
}

func (r resourceEnvelope) toResourceObject() ports.ResourceObject {
	return ports.ResourceObject{
		Namespace:       r.Metadata.Namespace,
		Name:            r.Metadata.Name,
		ResourceVersion: r.Metadata.ResourceVersion,
		Spec:            r.Spec,
		Status:          r.Status,
	}
}
