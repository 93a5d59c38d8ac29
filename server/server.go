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

// Package server exposes the engine's admin and catalog HTTP API: source
// listing, registration, existence probes, health, and Prometheus
// metrics. It sits in front of the planner catalog; query execution does
// not flow through here.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"strataql/engine/connectors/factory"
	"strataql/engine/planner"
	"strataql/engine/shared/logger"
)

const serviceVersion = "1.0.0"

// Options configures a Server.
type Options struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// Catalog is the source catalog the API operates on. Required.
	Catalog *planner.Catalog
	// Factory instantiates connectors for API-registered sources.
	// Defaults to the process-wide factory with all builtin types.
	Factory *factory.Factory
	// AuthSecret is the HMAC secret for bearer-token verification. When
	// empty, authentication is disabled and a warning is logged.
	AuthSecret []byte
	// ConnectTimeout bounds the connector Connect call during source
	// registration. Defaults to 30 seconds.
	ConnectTimeout time.Duration
	// Logger defaults to a component logger named "catalog-api".
	Logger *logger.Logger
}

// Server is the admin HTTP server.
type Server struct {
	catalog        *planner.Catalog
	factory        *factory.Factory
	authSecret     []byte
	connectTimeout time.Duration
	logger         *logger.Logger
	router         *mux.Router
	httpServer     *http.Server
}

// New builds a Server with its routes and middleware wired. It does not
// start listening; call Start.
func New(opts Options) (*Server, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}

	f := opts.Factory
	if f == nil {
		f = factory.Default()
	}
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	lg := opts.Logger
	if lg == nil {
		lg = logger.New("catalog-api")
	}

	s := &Server{
		catalog:        opts.Catalog,
		factory:        f,
		authSecret:     opts.AuthSecret,
		connectTimeout: connectTimeout,
		logger:         lg,
		router:         mux.NewRouter(),
	}
	s.routes()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           corsHandler.Handler(s.router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if len(s.authSecret) == 0 {
		lg.Warn("", "Authentication disabled: no auth secret configured", nil)
	}
	return s, nil
}

// Handler returns the fully wired HTTP handler, for tests and for
// embedding the API into another server.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// routes registers all endpoints. Health and metrics are unauthenticated;
// everything under /api/v1 goes through request-ID, metrics, and auth
// middleware.
func (s *Server) routes() {
	s.router.HandleFunc("/health", s.healthHandler).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.requestIDMiddleware, s.metricsMiddleware, s.authMiddleware)

	api.HandleFunc("/sources", s.listSourcesHandler).Methods("GET")
	api.HandleFunc("/sources", s.registerSourceHandler).Methods("POST")
	api.HandleFunc("/sources/{name}", s.getSourceHandler).Methods("GET")
	api.HandleFunc("/sources/{name}/exists", s.sourceExistsHandler).Methods("GET")
}

// Start begins serving. It blocks until the listener fails or Shutdown
// is called, mirroring http.Server.ListenAndServe.
func (s *Server) Start() error {
	s.logger.Info("", "Admin API listening", map[string]interface{}{"addr": s.httpServer.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("", "Admin API shutting down", nil)
	return s.httpServer.Shutdown(ctx)
}
