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

// Package script provides a connector backed by an interpreter-side plugin.
// Each operation is a one-shot invocation of the plugin bridge, exchanging
// JSON over stdin/stdout. Instances are produced by connector discovery and
// handed to the source catalog as opaque handles.
package script

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"
	"time"

	"strataql/engine/connectors/base"
)

// Plugin describes one connector plugin as reported by the bridge during
// discovery.
type Plugin struct {
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
	Module       string   `json:"module"`
}

// Connector proxies Query/Execute calls to an interpreter-side plugin.
type Connector struct {
	plugin      Plugin
	interpreter string // resolved interpreter executable path
	bridge      string // bridge script path

	mu        sync.RWMutex
	config    *base.ConnectorConfig
	connected bool

	logger *log.Logger
}

// bridgeRequest is the JSON envelope written to the plugin bridge's stdin.
type bridgeRequest struct {
	Op      string                `json:"op"`
	Plugin  string                `json:"plugin"`
	Config  *base.ConnectorConfig `json:"config,omitempty"`
	Query   *base.Query           `json:"query,omitempty"`
	Command *base.Command         `json:"command,omitempty"`
}

// bridgeResponse is the JSON envelope read from the bridge's stdout.
type bridgeResponse struct {
	OK           bool                     `json:"ok"`
	Error        string                   `json:"error,omitempty"`
	Rows         []map[string]interface{} `json:"rows,omitempty"`
	RowsAffected int                      `json:"rows_affected,omitempty"`
	Message      string                   `json:"message,omitempty"`
}

// New creates a connector handle for a discovered plugin. The interpreter
// path should already be resolved (exec.LookPath); the handle does not probe
// the plugin until Connect.
func New(interpreter, bridge string, plugin Plugin) *Connector {
	return &Connector{
		plugin:      plugin,
		interpreter: interpreter,
		bridge:      bridge,
		logger:      log.New(os.Stdout, "[SCRIPT_CONNECTOR] ", log.LstdFlags),
	}
}

// Connect verifies the plugin answers a ping and stores the configuration.
func (c *Connector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	if _, err := c.invoke(ctx, &bridgeRequest{Op: "ping", Plugin: c.plugin.Name, Config: config}); err != nil {
		return base.NewConnectorError(config.Name, "Connect", "plugin did not answer ping", err)
	}

	c.mu.Lock()
	c.config = config
	c.connected = true
	c.mu.Unlock()

	c.logger.Printf("Connected plugin %q via %s", c.plugin.Name, c.interpreter)
	return nil
}

// Disconnect marks the handle disconnected. Each invocation is one-shot, so
// there is no process to tear down.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

// HealthCheck pings the plugin through the bridge.
func (c *Connector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	start := time.Now()
	_, err := c.invoke(ctx, &bridgeRequest{Op: "ping", Plugin: c.plugin.Name})
	latency := time.Since(start)

	if err != nil {
		return &base.HealthStatus{
			Healthy:   false,
			Latency:   latency,
			Timestamp: time.Now(),
			Error:     err.Error(),
		}, nil
	}
	return &base.HealthStatus{
		Healthy:   true,
		Latency:   latency,
		Timestamp: time.Now(),
		Details:   map[string]string{"plugin": c.plugin.Name, "module": c.plugin.Module},
	}, nil
}

// Query forwards a read operation to the plugin.
func (c *Connector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	c.mu.RLock()
	config := c.config
	connected := c.connected
	c.mu.RUnlock()

	if !connected {
		return nil, base.NewConnectorError(c.plugin.Name, "Query", "not connected", nil)
	}

	start := time.Now()
	resp, err := c.invoke(ctx, &bridgeRequest{Op: "query", Plugin: c.plugin.Name, Config: config, Query: query})
	if err != nil {
		return nil, base.NewConnectorError(c.plugin.Name, "Query", "plugin invocation failed", err)
	}

	rows := resp.Rows
	if query.Limit > 0 && len(rows) > query.Limit {
		rows = rows[:query.Limit]
	}
	return &base.QueryResult{
		Rows:      rows,
		RowCount:  len(rows),
		Duration:  time.Since(start),
		Connector: c.Name(),
	}, nil
}

// Execute forwards a write operation to the plugin.
func (c *Connector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	c.mu.RLock()
	config := c.config
	connected := c.connected
	c.mu.RUnlock()

	if !connected {
		return nil, base.NewConnectorError(c.plugin.Name, "Execute", "not connected", nil)
	}

	start := time.Now()
	resp, err := c.invoke(ctx, &bridgeRequest{Op: "execute", Plugin: c.plugin.Name, Config: config, Command: cmd})
	if err != nil {
		return nil, base.NewConnectorError(c.plugin.Name, "Execute", "plugin invocation failed", err)
	}

	return &base.CommandResult{
		Success:      true,
		RowsAffected: resp.RowsAffected,
		Duration:     time.Since(start),
		Message:      resp.Message,
		Connector:    c.Name(),
	}, nil
}

// invoke runs one bridge invocation: request JSON on stdin, response JSON on
// stdout. Stderr is folded into the returned error.
func (c *Connector) invoke(ctx context.Context, req *bridgeRequest) (*bridgeResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bridge request: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.interpreter, c.bridge, "--invoke")
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("bridge exited with error: %w (stderr: %s)", err, stderr.String())
		}
		return nil, fmt.Errorf("bridge exited with error: %w", err)
	}

	return decodeResponse(stdout.Bytes())
}

// decodeResponse parses a bridge response envelope, turning plugin-reported
// failures into errors.
func decodeResponse(data []byte) (*bridgeResponse, error) {
	var resp bridgeResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("invalid bridge response: %w", err)
	}
	if !resp.OK {
		if resp.Error == "" {
			return nil, fmt.Errorf("plugin reported failure without detail")
		}
		return nil, fmt.Errorf("plugin error: %s", resp.Error)
	}
	return &resp, nil
}

func (c *Connector) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.config != nil && c.config.Name != "" {
		return c.config.Name
	}
	return c.plugin.Name
}

func (c *Connector) Type() string {
	if c.plugin.Kind != "" {
		return c.plugin.Kind
	}
	return "script"
}

func (c *Connector) Version() string {
	if c.plugin.Version != "" {
		return c.plugin.Version
	}
	return "0.0.0"
}

func (c *Connector) Capabilities() []string {
	if len(c.plugin.Capabilities) > 0 {
		return c.plugin.Capabilities
	}
	return []string{"query", "execute"}
}
