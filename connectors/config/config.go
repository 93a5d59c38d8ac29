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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"strataql/engine/connectors/base"
)

const (
	envPrefix         = "STRATAQL_"
	defaultTimeout    = 5 * time.Second
	defaultMaxRetries = 3
)

// LoadFromEnv builds a connector configuration from environment
// variables prefixed with STRATAQL_<NAME>_. The connection URL is
// required; timeout, retries, and common credentials are optional.
func LoadFromEnv(connectorName, connectorType string) (*base.ConnectorConfig, error) {
	prefix := envPrefix + strings.ToUpper(connectorName) + "_"

	connectionURL := os.Getenv(prefix + "URL")
	if connectionURL == "" {
		return nil, fmt.Errorf("missing required environment variable: %sURL", prefix)
	}

	cfg := &base.ConnectorConfig{
		Name:          strings.ToLower(connectorName),
		Type:          connectorType,
		ConnectionURL: connectionURL,
		Credentials:   make(map[string]string),
		Options:       make(map[string]interface{}),
		Timeout:       defaultTimeout,
		MaxRetries:    defaultMaxRetries,
	}

	if raw := os.Getenv(prefix + "TIMEOUT"); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %sTIMEOUT value %q: %w", prefix, raw, err)
		}
		cfg.Timeout = timeout
	}

	if raw := os.Getenv(prefix + "MAX_RETRIES"); raw != "" {
		retries, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %sMAX_RETRIES value %q: %w", prefix, raw, err)
		}
		cfg.MaxRetries = retries
	}

	for env, key := range map[string]string{
		"USERNAME": "username",
		"PASSWORD": "password",
		"API_KEY":  "api_key",
		"TOKEN":    "token",
	} {
		if value := os.Getenv(prefix + env); value != "" {
			cfg.Credentials[key] = value
		}
	}

	return cfg, nil
}

// ValidateConfig checks the invariants every connector configuration
// must satisfy before registration.
func ValidateConfig(cfg *base.ConnectorConfig) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Name == "" {
		return fmt.Errorf("connector name is required")
	}
	if cfg.Type == "" {
		return fmt.Errorf("connector type is required")
	}
	if cfg.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}
