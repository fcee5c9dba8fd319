package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v6/log"

	"github.com/twinmcp/gateway/balancer"
	"github.com/twinmcp/gateway/common/config"
	"github.com/twinmcp/gateway/common/metrics"
	"github.com/twinmcp/gateway/dispatcher"
	"github.com/twinmcp/gateway/model"
	"github.com/twinmcp/gateway/registry"
)

// backendClient is shared by proxied calls and health probes. Timeouts come
// from the request context, not the client.
var backendClient = &http.Client{}

// backendResolver builds the executor resolver for stored tool definitions.
// It returns nil when no backends are configured, in which case stored
// definitions stay dormant.
func backendResolver(ctx context.Context, rec metrics.Recorder, lg glog.Logger) (model.ExecutorResolver, error) {
	if config.BackendURLs == "" {
		return nil, nil
	}

	lb := balancer.New(balancer.Strategy(config.BalancerStrategy), config.BackendErrorThreshold)
	count := 0
	for _, raw := range strings.Split(config.BackendURLs, ",") {
		url := strings.TrimSpace(raw)
		if url == "" {
			continue
		}
		count++
		if err := lb.AddBackend(fmt.Sprintf("backend-%d", count), url, 1); err != nil {
			return nil, errors.Wrapf(err, "add backend %q", url)
		}
	}
	if count == 0 {
		return nil, errors.Errorf("BACKEND_URLS %q contains no usable url", config.BackendURLs)
	}

	checker := balancer.NewHealthChecker(lb, httpHealthCheck,
		config.HealthCheckInterval, config.HealthCheckTimeout, lg.Named("health"))
	checker.SetMetrics(rec)
	go checker.Start(ctx)

	proxy := dispatcher.NewProxyExecutor(lb, httpBackendCall, rec)
	return func(def *model.ToolDefinition) registry.Executor {
		return proxy
	}, nil
}

// httpHealthCheck probes a backend's health endpoint.
func httpHealthCheck(ctx context.Context, backend *balancer.Backend) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, backend.URL+"/health", nil)
	if err != nil {
		return errors.Wrap(err, "build health request")
	}
	resp, err := backendClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "probe backend")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("backend returned status %d", resp.StatusCode)
	}
	return nil
}

// httpBackendCall posts the call arguments to a backend's execute endpoint
// and decodes the JSON result.
func httpBackendCall(ctx context.Context, backend *balancer.Backend, args map[string]any) (any, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, errors.Wrap(err, "encode arguments")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, backend.URL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build backend request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := backendClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call backend")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read backend response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, errors.Errorf("backend returned status %d: %s", resp.StatusCode, string(payload))
	}

	var result any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &result); err != nil {
			return nil, errors.Wrap(err, "decode backend response")
		}
	}
	return result, nil
}
