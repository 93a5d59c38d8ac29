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

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"strataql/engine/connectors/base"
	"strataql/engine/connectors/factory"
	"strataql/engine/connectors/registry"
	"strataql/engine/planner"
)

type stubConnector struct {
	connType    string
	failConnect bool
}

func (s *stubConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	if s.failConnect {
		return errors.New("connection refused")
	}
	return nil
}
func (s *stubConnector) Disconnect(ctx context.Context) error { return nil }
func (s *stubConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	return &base.HealthStatus{Healthy: true}, nil
}
func (s *stubConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	return &base.QueryResult{}, nil
}
func (s *stubConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	return &base.CommandResult{Success: true}, nil
}
func (s *stubConnector) Name() string           { return "stub" }
func (s *stubConnector) Type() string           { return s.connType }
func (s *stubConnector) Version() string        { return "1.0.0" }
func (s *stubConnector) Capabilities() []string { return []string{"query"} }

// newTestServer builds a server backed by a fresh catalog and a factory
// whose redis type produces stub connectors.
func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	registry.ResetSeedForTesting()
	t.Cleanup(registry.ResetSeedForTesting)

	if opts.Catalog == nil {
		opts.Catalog = planner.NewCatalog(registry.NewRegistry())
	}
	if opts.Factory == nil {
		f := factory.New()
		f.RegisterOrReplace(factory.TypeRedis, func() base.Connector {
			return &stubConnector{connType: factory.TypeRedis}
		})
		opts.Factory = f
	}
	opts.ConnectTimeout = time.Second

	srv, err := New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return srv
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, Options{})

	rec := doRequest(t, srv, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "healthy" {
		t.Errorf("unexpected status %v", body["status"])
	}
	if body["service"] != "strataql-engine" {
		t.Errorf("unexpected service %v", body["service"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, Options{})

	rec := doRequest(t, srv, http.MethodGet, "/metrics", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRegisterAndListSources(t *testing.T) {
	srv := newTestServer(t, Options{})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/sources", RegisterSourceRequest{
		Name:          "Cache",
		Type:          "redis",
		ConnectionURL: "redis://localhost:6379",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody(t, rec)
	if created["name"] != "cache" {
		t.Errorf("name should be normalized, got %v", created["name"])
	}
	if created["replaced"] != false {
		t.Errorf("first registration should not report replaced")
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/sources", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["count"] != float64(1) {
		t.Errorf("expected 1 source, got %v", body["count"])
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/sources/CACHE", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup should be case-insensitive, got %d", rec.Code)
	}
	info := decodeBody(t, rec)
	if info["type"] != "redis" || info["source"] != "api" {
		t.Errorf("unexpected source info: %v", info)
	}
}

func TestRegisterSource_Validation(t *testing.T) {
	srv := newTestServer(t, Options{})

	tests := []struct {
		name string
		req  RegisterSourceRequest
	}{
		{"missing name", RegisterSourceRequest{Type: "redis"}},
		{"unknown type", RegisterSourceRequest{Name: "x", Type: "teleporter"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/api/v1/sources", tt.req, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestRegisterSource_ConnectFailure(t *testing.T) {
	f := factory.New()
	f.RegisterOrReplace(factory.TypeRedis, func() base.Connector {
		return &stubConnector{connType: factory.TypeRedis, failConnect: true}
	})
	srv := newTestServer(t, Options{Factory: f})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/sources", RegisterSourceRequest{
		Name: "cache",
		Type: "redis",
	}, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}

	// A failed registration must not land in the catalog.
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/sources/cache/exists", nil, nil)
	if body := decodeBody(t, rec); body["exists"] != false {
		t.Error("failed registration should not be resolvable")
	}
}

func TestGetSource_NotFound(t *testing.T) {
	srv := newTestServer(t, Options{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sources/Orders_V2", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	// The message must quote the name exactly as requested.
	if msg, _ := body["error"].(string); !strings.Contains(msg, `"Orders_V2"`) {
		t.Errorf("error should carry the requested name, got %v", body["error"])
	}
}

func TestSourceExists(t *testing.T) {
	catalog := planner.NewCatalog(registry.NewRegistry())
	srv := newTestServer(t, Options{Catalog: catalog})
	catalog.Register("sales", base.NewDescriptor(&stubConnector{connType: "redis"}, "config"))

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sources/SALES/exists", nil, nil)
	if body := decodeBody(t, rec); body["exists"] != true {
		t.Errorf("expected exists=true, got %v", body)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/sources/nope/exists", nil, nil)
	if body := decodeBody(t, rec); body["exists"] != false {
		t.Errorf("expected exists=false, got %v", body)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t, Options{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sources", nil, nil)
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("a request ID should be generated when none is supplied")
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/sources", nil, map[string]string{
		RequestIDHeader: "req-supplied",
	})
	if got := rec.Header().Get(RequestIDHeader); got != "req-supplied" {
		t.Errorf("client request ID should be kept, got %q", got)
	}
}

func TestAuthMiddleware(t *testing.T) {
	secret := []byte("test-secret")
	srv := newTestServer(t, Options{AuthSecret: secret})

	// No token.
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sources", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	// Garbage token.
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/sources", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}

	// Token signed with the wrong secret.
	wrong := signToken(t, []byte("other-secret"), "ops")
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/sources", nil, map[string]string{
		"Authorization": "Bearer " + wrong,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong-secret token, got %d", rec.Code)
	}

	// Valid token.
	valid := signToken(t, secret, "ops")
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/sources", nil, map[string]string{
		"Authorization": "Bearer " + valid,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d: %s", rec.Code, rec.Body.String())
	}

	// Health stays open.
	rec = doRequest(t, srv, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health should not require auth, got %d", rec.Code)
	}
}

func signToken(t *testing.T, secret []byte, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestNew_RequiresCatalog(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error when catalog is nil")
	}
}
