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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"strataql/engine/connectors/base"
	"strataql/engine/connectors/config"
	"strataql/engine/connectors/factory"
	"strataql/engine/connectors/registry"
)

// RegisterSourceRequest is the body of POST /api/v1/sources.
type RegisterSourceRequest struct {
	Name          string                 `json:"name"`
	Type          string                 `json:"type"`
	ConnectionURL string                 `json:"connection_url,omitempty"`
	Credentials   map[string]string      `json:"credentials,omitempty"`
	Options       map[string]interface{} `json:"options,omitempty"`
	TimeoutMs     int                    `json:"timeout_ms,omitempty"`
	MaxRetries    int                    `json:"max_retries,omitempty"`
}

// SourceInfo describes one registered source in API responses.
type SourceInfo struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
	Source       string   `json:"source"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("", "Failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	requestID := requestIDFrom(r.Context())
	s.logger.ErrorWithCode(requestID, message, status, nil, map[string]interface{}{
		"method": r.Method,
		"path":   r.URL.Path,
	})
	s.writeJSON(w, status, map[string]interface{}{
		"error":      message,
		"request_id": requestID,
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "strataql-engine",
		"version":   serviceVersion,
		"sources":   s.catalog.Len(),
		"timestamp": time.Now().UTC(),
	})
}

// listSourcesHandler returns the names of all resolvable sources.
// GET /api/v1/sources
func (s *Server) listSourcesHandler(w http.ResponseWriter, r *http.Request) {
	names := s.catalog.Sources()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sources": names,
		"count":   len(names),
	})
}

// registerSourceHandler creates a connector from the request, connects
// it, and binds it into the catalog under the requested name.
// POST /api/v1/sources
func (s *Server) registerSourceHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		s.writeError(w, r, http.StatusBadRequest, "source name is required")
		return
	}
	if !factory.IsValidType(req.Type) {
		s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("unknown connector type %q", req.Type))
		return
	}

	cfg := &base.ConnectorConfig{
		Name:          registry.Normalize(req.Name),
		Type:          req.Type,
		ConnectionURL: req.ConnectionURL,
		Credentials:   req.Credentials,
		Options:       req.Options,
		Timeout:       time.Duration(req.TimeoutMs) * time.Millisecond,
		MaxRetries:    req.MaxRetries,
	}
	if err := config.ValidateConfig(cfg); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := s.factory.Create(req.Type)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.connectTimeout)
	defer cancel()
	if err := conn.Connect(ctx, cfg); err != nil {
		s.writeError(w, r, http.StatusBadGateway, "connector failed to connect: "+err.Error())
		return
	}

	replaced := s.catalog.Exists(req.Name)
	s.catalog.Register(req.Name, &base.Descriptor{Connector: conn, Config: cfg, Source: "api"})

	s.logger.Info(requestIDFrom(r.Context()), "Source registered", map[string]interface{}{
		"source":   cfg.Name,
		"type":     cfg.Type,
		"replaced": replaced,
		"subject":  subjectFrom(r.Context()),
	})

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"name":     cfg.Name,
		"type":     cfg.Type,
		"source":   "api",
		"replaced": replaced,
	})
}

// getSourceHandler describes one source.
// GET /api/v1/sources/{name}
func (s *Server) getSourceHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	desc, err := s.catalog.Resolve(name)
	if err != nil {
		var notFound *registry.NotFoundError
		if errors.As(err, &notFound) {
			s.writeError(w, r, http.StatusNotFound, notFound.Error())
			return
		}
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	info := SourceInfo{
		Name:   registry.Normalize(name),
		Source: desc.Source,
	}
	if desc.Connector != nil {
		info.Type = desc.Connector.Type()
		info.Version = desc.Connector.Version()
		info.Capabilities = desc.Connector.Capabilities()
	}
	s.writeJSON(w, http.StatusOK, info)
}

// sourceExistsHandler is a cheap probe used by the query compiler's
// tooling. GET /api/v1/sources/{name}/exists
func (s *Server) sourceExistsHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":   name,
		"exists": s.catalog.Exists(name),
	})
}
