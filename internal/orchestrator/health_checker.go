package orchestrator

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"deployctl/internal/kube"
	"deployctl/pkg/logging"
)

const defaultHealthCheckTimeout = 10 * time.Second

// ServiceHealthChecker probes one Service of the namespace.
type ServiceHealthChecker interface {
	CheckHealth(ctx context.Context, svc kube.ServiceDescriptor) HealthCheckResult
}

// HTTPHealthChecker issues a single GET against the external address of a
// Service. Any status below 400 counts as healthy.
type HTTPHealthChecker struct {
	client *http.Client
}

// NewHTTPHealthChecker creates a new HTTP health checker
func NewHTTPHealthChecker(timeout time.Duration) *HTTPHealthChecker {
	if timeout <= 0 {
		timeout = defaultHealthCheckTimeout
	}
	return &HTTPHealthChecker{
		client: &http.Client{Timeout: timeout},
	}
}

// ServiceURL builds the URL probed for a service, or "" when the service has
// no external address.
func ServiceURL(svc kube.ServiceDescriptor) string {
	if svc.ExternalAddress == "" {
		return ""
	}
	host := svc.ExternalAddress
	if port := svc.Port(); port != 0 && port != 80 {
		return "http://" + net.JoinHostPort(host, strconv.Itoa(int(port))) + "/"
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return "http://" + host + "/"
}

// CheckHealth never returns an error; failures are recorded in the result.
func (h *HTTPHealthChecker) CheckHealth(ctx context.Context, svc kube.ServiceDescriptor) HealthCheckResult {
	result := HealthCheckResult{Service: svc.Name, URL: ServiceURL(svc)}
	if result.URL == "" {
		result.Status = HealthNoExternalEndpoint
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, result.URL, nil)
	if err != nil {
		result.Status = HealthFailed
		result.Error = fmt.Sprintf("failed to create request: %v", err)
		return result
	}

	resp, err := h.client.Do(req)
	if err != nil {
		result.Status = HealthFailed
		result.Error = fmt.Sprintf("failed to reach %s: %v", result.URL, err)
		return result
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	result.StatusCode = resp.StatusCode
	if resp.StatusCode >= http.StatusBadRequest {
		result.Status = HealthFailed
		result.Error = fmt.Sprintf("%s returned status %d", result.URL, resp.StatusCode)
		return result
	}

	result.Status = HealthOK
	logging.Debug("HealthChecker", "Service %s is healthy, %s returned %d", svc.Name, result.URL, resp.StatusCode)
	return result
}
