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
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"strataql/engine/connectors/base"
	"strataql/engine/connectors/config"
	"strataql/engine/connectors/discovery"
	"strataql/engine/connectors/factory"
	"strataql/engine/connectors/registry"
	"strataql/engine/planner"
	"strataql/engine/shared/logger"
)

// Run wires the full daemon and serves until SIGINT or SIGTERM.
//
// Environment variables:
//
//	STRATAQL_PORT                  - HTTP listen port (default 8080)
//	STRATAQL_CONFIG_FILE           - connector config YAML (optional)
//	STRATAQL_AUTH_SECRET           - bearer-token HMAC secret (optional; auth off when unset)
//	STRATAQL_DISCOVERY_INTERPRETER - plugin interpreter executable (default python3)
//	STRATAQL_DISCOVERY_BRIDGE      - plugin bridge script path
//	STRATAQL_DISCOVERY_PLUGIN_DIR  - plugin directory
//	STRATAQL_SECRETS_REGION        - AWS region; enables Secrets Manager credential resolution
func Run() error {
	lg := logger.New("engined")

	// Discovery must be wired before the first registry table access;
	// the seed result is computed once per process.
	bridge := os.Getenv("STRATAQL_DISCOVERY_BRIDGE")
	pluginDir := os.Getenv("STRATAQL_DISCOVERY_PLUGIN_DIR")
	if bridge != "" && pluginDir != "" {
		d := discovery.New(discovery.Options{
			Interpreter:  os.Getenv("STRATAQL_DISCOVERY_INTERPRETER"),
			BridgeScript: bridge,
			PluginDir:    pluginDir,
		})
		registry.SetDiscoverer(d, d.Available)
	} else {
		lg.Info("", "Plugin discovery not configured", nil)
	}

	catalog := planner.NewCatalog(registry.NewRegistry())

	if path := os.Getenv("STRATAQL_CONFIG_FILE"); path != "" {
		if err := registerConfiguredSources(catalog, path, lg); err != nil {
			return err
		}
	}

	port := os.Getenv("STRATAQL_PORT")
	if port == "" {
		port = "8080"
	}
	var authSecret []byte
	if secret := os.Getenv("STRATAQL_AUTH_SECRET"); secret != "" {
		authSecret = []byte(secret)
	}

	srv, err := New(Options{
		Addr:       ":" + port,
		Catalog:    catalog,
		AuthSecret: authSecret,
		Logger:     lg,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		lg.Info("", "Signal received, shutting down", map[string]interface{}{"signal": sig.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// registerConfiguredSources loads the YAML config, resolves secret-backed
// credentials, and connects and registers each enabled source. A source
// that fails to connect is skipped with a warning; one bad source must
// not take the daemon down.
func registerConfiguredSources(catalog *planner.Catalog, path string, lg *logger.Logger) error {
	loader, err := config.NewFileLoader(path)
	if err != nil {
		return fmt.Errorf("failed to load connector config: %w", err)
	}
	configs := loader.Connectors()

	secrets, err := buildSecretsManager()
	if err != nil {
		return err
	}
	if err := loader.ResolveCredentials(context.Background(), secrets, configs); err != nil {
		return fmt.Errorf("failed to resolve connector credentials: %w", err)
	}

	for _, cfg := range configs {
		conn, err := factory.Default().Create(cfg.Type)
		if err != nil {
			lg.Warn("", "Skipping configured source", map[string]interface{}{
				"source": cfg.Name, "error": err.Error(),
			})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		err = conn.Connect(ctx, cfg)
		cancel()
		if err != nil {
			lg.Warn("", "Configured source failed to connect; skipping", map[string]interface{}{
				"source": cfg.Name, "type": cfg.Type, "error": err.Error(),
			})
			continue
		}

		catalog.Register(cfg.Name, &base.Descriptor{Connector: conn, Config: cfg, Source: "config"})
		lg.Info("", "Registered configured source", map[string]interface{}{
			"source": cfg.Name, "type": cfg.Type,
		})
	}
	return nil
}

// buildSecretsManager picks the credential resolver: AWS Secrets Manager
// when a region is configured, environment variables otherwise.
func buildSecretsManager() (config.SecretsManager, error) {
	if region := os.Getenv("STRATAQL_SECRETS_REGION"); region != "" {
		sm, err := config.NewAWSSecretsManager(context.Background(), config.AWSSecretsManagerOptions{
			Region: region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize secrets manager: %w", err)
		}
		return sm, nil
	}
	return config.EnvSecretsManager{}, nil
}
