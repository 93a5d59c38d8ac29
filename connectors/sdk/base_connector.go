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

package sdk

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"strataql/engine/connectors/base"
)

// BaseConnector provides a foundation for building data source connectors.
// Embed it and override the methods your driver needs.
type BaseConnector struct {
	name         string
	connType     string
	version      string
	capabilities []string
	config       *base.ConnectorConfig
	connected    bool
	logger       *log.Logger
	retryConfig  *RetryConfig
	validator    ConfigValidator
	mu           sync.RWMutex
}

// NewBaseConnector creates a base connector for the given driver type.
func NewBaseConnector(connType string) *BaseConnector {
	return &BaseConnector{
		connType:     connType,
		version:      "1.0.0",
		capabilities: []string{"query", "execute"},
		logger:       log.New(os.Stdout, fmt.Sprintf("[CONNECTOR_%s] ", strings.ToUpper(connType)), log.LstdFlags),
	}
}

// Connect validates and stores the configuration and marks the
// connector as connected. Drivers that open real sessions call this
// first, then establish their own client.
func (c *BaseConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.validator != nil {
		if err := c.validator.Validate(config); err != nil {
			return base.NewConnectorError(config.Name, "Connect", "configuration validation failed", err)
		}
		if dv, ok := c.validator.(*DefaultConfigValidator); ok {
			dv.ApplyDefaults(config)
		}
	}

	c.config = config
	c.name = config.Name
	if c.config.Timeout == 0 {
		c.config.Timeout = 30 * time.Second
	}

	c.connected = true
	c.logger.Printf("Connector initialized: %s (type: %s)", config.Name, c.connType)
	return nil
}

// Disconnect marks the connector as disconnected.
func (c *BaseConnector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	c.connected = false
	if c.config != nil {
		c.logger.Printf("Disconnected: %s", c.config.Name)
	}
	return nil
}

// HealthCheck reports connection state. Drivers override this to ping
// the upstream system.
func (c *BaseConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &base.HealthStatus{
		Healthy:   c.connected,
		Timestamp: time.Now(),
		Details:   make(map[string]string),
	}
	if !c.connected {
		status.Error = "not connected"
		return status, nil
	}

	status.Details["connector_type"] = c.connType
	status.Details["version"] = c.version
	return status, nil
}

// Query returns an empty result. Drivers override this.
func (c *BaseConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return nil, base.NewConnectorError(c.name, "Query", "not connected", nil)
	}
	c.mu.RUnlock()

	return &base.QueryResult{
		Rows:      []map[string]interface{}{},
		RowCount:  0,
		Connector: c.name,
	}, nil
}

// Execute returns a no-op success. Drivers override this.
func (c *BaseConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return nil, base.NewConnectorError(c.name, "Execute", "not connected", nil)
	}
	c.mu.RUnlock()

	return &base.CommandResult{
		Success:   true,
		Message:   "no-op execute",
		Connector: c.name,
	}, nil
}

// Name returns the configured instance name, falling back to the type.
func (c *BaseConnector) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.name != "" {
		return c.name
	}
	return c.connType
}

// Type returns the driver type.
func (c *BaseConnector) Type() string {
	return c.connType
}

// Version returns the driver version.
func (c *BaseConnector) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Capabilities returns the supported capabilities.
func (c *BaseConnector) Capabilities() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capabilities
}

// SetCapabilities replaces the capability list.
func (c *BaseConnector) SetCapabilities(caps []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capabilities = caps
}

// SetVersion sets the driver version.
func (c *BaseConnector) SetVersion(version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version = version
}

// SetLogger replaces the connector logger.
func (c *BaseConnector) SetLogger(logger *log.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
}

// SetValidator sets the configuration validator applied on Connect.
func (c *BaseConnector) SetValidator(validator ConfigValidator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validator = validator
}

// SetRetryConfig sets the retry policy used by drivers that retry
// transient upstream failures.
func (c *BaseConnector) SetRetryConfig(config *RetryConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retryConfig = config
}

// GetRetryConfig returns the retry policy, or nil when unset.
func (c *BaseConnector) GetRetryConfig() *RetryConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.retryConfig
}

// IsConnected reports the connection state.
func (c *BaseConnector) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetConnected overrides the connection state. Primarily for tests.
func (c *BaseConnector) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
}

// GetConfig returns the stored configuration.
func (c *BaseConnector) GetConfig() *base.ConnectorConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// Log writes a message through the connector logger.
func (c *BaseConnector) Log(format string, args ...interface{}) {
	c.mu.RLock()
	logger := c.logger
	c.mu.RUnlock()
	logger.Printf(format, args...)
}

// GetTimeout returns the configured timeout or the 30s default.
func (c *BaseConnector) GetTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.config != nil && c.config.Timeout > 0 {
		return c.config.Timeout
	}
	return 30 * time.Second
}

// WithTimeout derives a context bounded by the connector timeout.
func (c *BaseConnector) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.GetTimeout())
}

// GetOption retrieves an option value with a fallback.
func (c *BaseConnector) GetOption(key string, defaultValue interface{}) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.config == nil || c.config.Options == nil {
		return defaultValue
	}
	if val, ok := c.config.Options[key]; ok {
		return val
	}
	return defaultValue
}

// GetStringOption retrieves a string option.
func (c *BaseConnector) GetStringOption(key, defaultValue string) string {
	if s, ok := c.GetOption(key, defaultValue).(string); ok {
		return s
	}
	return defaultValue
}

// GetIntOption retrieves an integer option. YAML and JSON decoding may
// surface numbers as float64, so both are accepted.
func (c *BaseConnector) GetIntOption(key string, defaultValue int) int {
	switch v := c.GetOption(key, defaultValue).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return defaultValue
}

// GetBoolOption retrieves a boolean option.
func (c *BaseConnector) GetBoolOption(key string, defaultValue bool) bool {
	if b, ok := c.GetOption(key, defaultValue).(bool); ok {
		return b
	}
	return defaultValue
}

// GetCredential retrieves a credential value, or "" when absent.
func (c *BaseConnector) GetCredential(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.config == nil || c.config.Credentials == nil {
		return ""
	}
	return c.config.Credentials[key]
}
