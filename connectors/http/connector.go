// Copyright 2025 StrataQL
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package http provides a connector for REST APIs. Query issues GET
// requests against a base URL; Execute issues POST/PUT/PATCH/DELETE.
// Outbound requests go through the shared retry policy, and hosts
// resolving to private address space are rejected unless allowed.
package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"strataql/engine/connectors/base"
	"strataql/engine/connectors/sdk"
)

const (
	defaultTimeout         = 30 * time.Second
	defaultMaxResponseSize = 10 * 1024 * 1024 // 10MB
)

// HTTPConnector exposes a REST API as a queryable data source.
type HTTPConnector struct {
	config          *base.ConnectorConfig
	client          *http.Client
	logger          *log.Logger
	baseURL         string
	authType        string
	credentials     map[string]string
	headers         map[string]string
	maxResponseSize int64
	retry           *sdk.RetryConfig
	allowPrivateIPs bool
}

// NewHTTPConnector creates an HTTP connector with secure defaults.
// Private address space is blocked until allow_private_ips is set.
func NewHTTPConnector() *HTTPConnector {
	return &HTTPConnector{
		logger:          log.New(os.Stdout, "[CONNECTOR_HTTP] ", log.LstdFlags),
		headers:         make(map[string]string),
		maxResponseSize: defaultMaxResponseSize,
		retry:           httpRetryConfig(3),
		allowPrivateIPs: false,
	}
}

// Connect validates the base URL and builds the HTTP client.
func (c *HTTPConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	c.config = config

	rawURL, _ := config.Options["base_url"].(string)
	if rawURL == "" {
		return base.NewConnectorError(config.Name, "Connect", "base_url is required", nil)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return base.NewConnectorError(config.Name, "Connect", "invalid base_url", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return base.NewConnectorError(config.Name, "Connect", "base_url must use http or https scheme", nil)
	}

	if allow, ok := config.Options["allow_private_ips"].(bool); ok {
		c.allowPrivateIPs = allow
	}
	if !c.allowPrivateIPs {
		if err := validateHost(parsed.Hostname()); err != nil {
			return base.NewConnectorError(config.Name, "Connect", "host rejected", err)
		}
	}

	c.baseURL = strings.TrimSuffix(rawURL, "/")

	c.authType = "none"
	if at, ok := config.Options["auth_type"].(string); ok && at != "" {
		c.authType = at
	}
	c.credentials = make(map[string]string, len(config.Credentials))
	for k, v := range config.Credentials {
		c.credentials[k] = v
	}
	if headers, ok := config.Options["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				c.headers[k] = s
			}
		}
	}

	timeout := defaultTimeout
	switch t := config.Options["timeout"].(type) {
	case int:
		timeout = time.Duration(t) * time.Second
	case float64:
		timeout = time.Duration(int(t)) * time.Second
	}
	if config.Timeout > 0 {
		timeout = config.Timeout
	}

	switch size := config.Options["max_response_size"].(type) {
	case int:
		c.maxResponseSize = int64(size)
	case float64:
		c.maxResponseSize = int64(size)
	}

	retries := c.retry.MaxRetries
	switch r := config.Options["max_retries"].(type) {
	case int:
		retries = r
	case float64:
		retries = int(r)
	}
	if config.MaxRetries > 0 {
		retries = config.MaxRetries
	}
	c.retry = httpRetryConfig(retries)
	if delay, ok := config.Options["retry_delay"].(string); ok {
		if parsed, err := time.ParseDuration(delay); err == nil {
			c.retry.InitialInterval = parsed
		}
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if skip, ok := config.Options["tls_skip_verify"].(bool); ok && skip {
		tlsConfig.InsecureSkipVerify = true
		c.logger.Printf("WARNING: TLS verification disabled for %s", config.Name)
	}

	c.client = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
			MaxIdleConns:    100,
			MaxConnsPerHost: 10,
			IdleConnTimeout: 90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}
	if noRedirect, ok := config.Options["disable_redirects"].(bool); ok && noRedirect {
		c.client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	c.logger.Printf("Connected to HTTP API %s (auth=%s, timeout=%v, retries=%d)",
		config.Name, c.authType, timeout, retries)
	return nil
}

// Disconnect releases pooled connections.
func (c *HTTPConnector) Disconnect(ctx context.Context) error {
	if c.client != nil {
		if transport, ok := c.client.Transport.(*http.Transport); ok {
			transport.CloseIdleConnections()
		}
	}
	c.logger.Printf("Disconnected from HTTP API %s", c.Name())
	return nil
}

// HealthCheck probes the configured health_path (default "/") with a GET.
// Any status below 400 counts as healthy.
func (c *HTTPConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.baseURL == "" {
		return &base.HealthStatus{
			Healthy:   false,
			Error:     "base_url not configured",
			Timestamp: time.Now(),
		}, nil
	}

	healthPath := "/"
	if c.config != nil {
		if hp, ok := c.config.Options["health_path"].(string); ok && hp != "" {
			healthPath = hp
		}
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return &base.HealthStatus{Healthy: false, Error: err.Error(), Timestamp: time.Now()}, nil
	}
	c.applyAuth(req)
	c.applyHeaders(req)

	resp, err := c.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return &base.HealthStatus{
			Healthy:   false,
			Latency:   latency,
			Error:     err.Error(),
			Timestamp: time.Now(),
		}, nil
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	return &base.HealthStatus{
		Healthy: resp.StatusCode < 400,
		Latency: latency,
		Details: map[string]string{
			"base_url":    c.baseURL,
			"status_code": strconv.Itoa(resp.StatusCode),
			"auth_type":   c.authType,
		},
		Timestamp: time.Now(),
	}, nil
}

// Query issues a GET request. The statement is the request path and
// parameters become URL query values. Keys starting with "_" are
// treated as control parameters and skipped.
func (c *HTTPConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if c.client == nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "not connected", nil)
	}

	reqURL, err := url.Parse(c.baseURL + normalizePath(query.Statement))
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "invalid request path", err)
	}
	if len(query.Parameters) > 0 {
		values := url.Values{}
		for key, val := range query.Parameters {
			if strings.HasPrefix(key, "_") {
				continue
			}
			values.Set(key, fmt.Sprintf("%v", val))
		}
		reqURL.RawQuery = values.Encode()
	}

	start := time.Now()
	body, err := sdk.RetryWithBackoff(ctx, c.retry, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
		if err != nil {
			return nil, &sdk.NonRetryableError{Err: err}
		}
		c.applyAuth(req)
		c.applyHeaders(req)
		return c.readResponse(req)
	})
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "request failed", err)
	}
	duration := time.Since(start)

	rows := bodyToRows(body)
	c.logger.Printf("GET %s: %d rows, %v", reqURL.Path, len(rows), duration)

	return &base.QueryResult{
		Rows:      rows,
		RowCount:  len(rows),
		Duration:  duration,
		Connector: c.Name(),
	}, nil
}

// Execute issues a write request. The action selects the HTTP method
// (default POST), the statement is the path, and parameters are sent
// as a JSON body. Only idempotent methods (PUT, DELETE) are retried
// on transport errors.
func (c *HTTPConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	if c.client == nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "not connected", nil)
	}

	method := strings.ToUpper(cmd.Action)
	if method == "" {
		method = http.MethodPost
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil, base.NewConnectorError(c.Name(), "Execute",
			fmt.Sprintf("unsupported HTTP method: %s", method), nil)
	}

	var bodyBytes []byte
	if len(cmd.Parameters) > 0 {
		var err error
		bodyBytes, err = json.Marshal(cmd.Parameters)
		if err != nil {
			return nil, base.NewConnectorError(c.Name(), "Execute", "failed to marshal body", err)
		}
	}

	retry := c.retry
	if method == http.MethodPost || method == http.MethodPatch {
		// Non-idempotent methods get a single attempt.
		retry = httpRetryConfig(0)
	}

	reqURL := c.baseURL + normalizePath(cmd.Statement)
	start := time.Now()
	resp, err := sdk.RetryWithBackoff(ctx, retry, func() (*http.Response, error) {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
		if err != nil {
			return nil, &sdk.NonRetryableError{Err: err}
		}
		c.applyAuth(req)
		c.applyHeaders(req)
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return c.client.Do(req)
	})
	duration := time.Since(start)

	if err != nil {
		return &base.CommandResult{
			Success:   false,
			Duration:  duration,
			Message:   fmt.Sprintf("request failed: %v", err),
			Connector: c.Name(),
		}, nil
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize))
	if err != nil {
		c.logger.Printf("Warning: failed to read response body: %v", err)
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	message := fmt.Sprintf("HTTP %d", resp.StatusCode)
	if len(body) > 0 {
		message = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	rowsAffected := 0
	if success {
		rowsAffected = 1
	}

	c.logger.Printf("%s %s: status=%d, %v", method, cmd.Statement, resp.StatusCode, duration)

	return &base.CommandResult{
		Success:      success,
		RowsAffected: rowsAffected,
		Duration:     duration,
		Message:      message,
		Connector:    c.Name(),
	}, nil
}

// Name returns the connector instance name.
func (c *HTTPConnector) Name() string {
	if c.config != nil {
		return c.config.Name
	}
	return "http-connector"
}

// Type returns the connector type.
func (c *HTTPConnector) Type() string {
	return "http"
}

// Version returns the connector version.
func (c *HTTPConnector) Version() string {
	return "1.0.0"
}

// Capabilities returns the list of connector capabilities.
func (c *HTTPConnector) Capabilities() []string {
	return []string{"query", "execute", "rest-api", "retry"}
}

// readResponse performs the request and returns the body, enforcing the
// response size limit. Retryable status codes come back as plain errors
// so the retry policy picks them up; other failures are non-retryable.
func (c *HTTPConnector) readResponse(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil {
		return nil, &sdk.NonRetryableError{Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if int64(len(body)) > c.maxResponseSize {
		return nil, &sdk.NonRetryableError{
			Err: fmt.Errorf("response size exceeds limit of %d bytes", c.maxResponseSize),
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	statusErr := fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	if retryableStatus(resp.StatusCode) {
		return nil, statusErr
	}
	return nil, &sdk.NonRetryableError{Err: statusErr}
}

func (c *HTTPConnector) applyAuth(req *http.Request) {
	switch c.authType {
	case "bearer":
		if token := c.credentials["token"]; token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	case "basic":
		if username, ok := c.credentials["username"]; ok {
			req.SetBasicAuth(username, c.credentials["password"])
		}
	case "api-key":
		if key := c.credentials["api_key"]; key != "" {
			header := c.credentials["header_name"]
			if header == "" {
				header = "X-API-Key"
			}
			req.Header.Set(header, key)
		}
	case "oauth2":
		if token := c.credentials["access_token"]; token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

func (c *HTTPConnector) applyHeaders(req *http.Request) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "StrataQL-HTTP-Connector/1.0")
	}
	for key, val := range c.headers {
		req.Header.Set(key, val)
	}
}

// httpRetryConfig builds a retry policy that also retries on retryable
// HTTP status codes carried in the error message.
func httpRetryConfig(maxRetries int) *sdk.RetryConfig {
	cfg := sdk.DefaultRetryConfig()
	cfg.MaxRetries = maxRetries
	cfg.MaxInterval = 5 * time.Second
	cfg.RetryIf = func(err error) bool {
		if sdk.DefaultRetryCondition(err) {
			return true
		}
		msg := err.Error()
		for _, code := range []string{"HTTP 408", "HTTP 429", "HTTP 500", "HTTP 502", "HTTP 503", "HTTP 504"} {
			if strings.Contains(msg, code) {
				return true
			}
		}
		return false
	}
	return cfg
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// validateHost rejects hosts that resolve to private or reserved
// address space.
func validateHost(host string) error {
	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("failed to resolve host %s: %w", host, err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("connection to private IP %s is not allowed (host: %s)", ip, host)
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() ||
		ip.IsUnspecified()
}

// bodyToRows decodes a JSON response into row maps. Arrays become one
// row per element, objects become a single row, and non-JSON bodies
// are wrapped as a single "response" row.
func bodyToRows(body []byte) []map[string]interface{} {
	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return []map[string]interface{}{{"response": string(body)}}
	}
	switch v := decoded.(type) {
	case []interface{}:
		rows := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				rows = append(rows, m)
			} else {
				rows = append(rows, map[string]interface{}{"value": item})
			}
		}
		return rows
	case map[string]interface{}:
		return []map[string]interface{}{v}
	default:
		return []map[string]interface{}{{"value": v}}
	}
}

func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
