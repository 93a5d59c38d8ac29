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

package base

import (
	"context"
	"time"
)

// Connector is the contract every external data source implementation
// fulfils. The query engine never looks past this interface: a connector is
// an opaque handle that can be connected, probed, read from, and written to.
type Connector interface {
	// Lifecycle
	Connect(ctx context.Context, config *ConnectorConfig) error
	Disconnect(ctx context.Context) error
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Read path (scans issued by the query engine)
	Query(ctx context.Context, query *Query) (*QueryResult, error)

	// Write path (DML pushed down to the source)
	Execute(ctx context.Context, cmd *Command) (*CommandResult, error)

	// Metadata
	Name() string           // Instance name as registered in the catalog
	Type() string           // Connector type (postgres, cassandra, script, ...)
	Version() string        // Connector version
	Capabilities() []string // Supported operations (query, execute, ...)
}

// ConnectorConfig holds the configuration for one connector instance.
type ConnectorConfig struct {
	Name          string                 `json:"name"`           // Catalog name for this source
	Type          string                 `json:"type"`           // Connector type
	ConnectionURL string                 `json:"connection_url"` // DSN / endpoint
	Credentials   map[string]string      `json:"credentials"`    // Username, password, API keys
	Options       map[string]interface{} `json:"options"`        // Connector-specific options
	Timeout       time.Duration          `json:"timeout"`        // Operation timeout
	MaxRetries    int                    `json:"max_retries"`    // Retries for transient failures
}

// Descriptor is the value the source catalog stores per registered name.
// It wraps an opaque connector handle together with the provenance of the
// registration. Descriptors are shared by reference between catalog clones
// and are never mutated by the catalog itself.
type Descriptor struct {
	Connector Connector        `json:"-"`
	Config    *ConnectorConfig `json:"config,omitempty"`
	Source    string           `json:"source"` // "discovery", "config", "api", ...
}

// NewDescriptor wraps a connector handle in a catalog descriptor.
func NewDescriptor(conn Connector, source string) *Descriptor {
	return &Descriptor{Connector: conn, Source: source}
}

// Query represents a read operation against a source.
type Query struct {
	Statement  string                 `json:"statement"`  // SQL, CQL, or path expression
	Parameters map[string]interface{} `json:"parameters"` // Bind parameters
	Timeout    time.Duration          `json:"timeout"`    // Overrides the config timeout
	Limit      int                    `json:"limit"`      // Row cap (optional)
}

// QueryResult contains the rows produced by a Query.
type QueryResult struct {
	Rows      []map[string]interface{} `json:"rows"`
	RowCount  int                      `json:"row_count"`
	Duration  time.Duration            `json:"duration"`
	Connector string                   `json:"connector"`
	Metadata  map[string]interface{}   `json:"metadata,omitempty"`
}

// Command represents a write operation pushed down to a source.
type Command struct {
	Action     string                 `json:"action"` // INSERT, UPDATE, DELETE, ...
	Statement  string                 `json:"statement"`
	Parameters map[string]interface{} `json:"parameters"`
	Timeout    time.Duration          `json:"timeout"`
}

// CommandResult contains the outcome of a Command execution.
type CommandResult struct {
	Success      bool                   `json:"success"`
	RowsAffected int                    `json:"rows_affected"`
	Duration     time.Duration          `json:"duration"`
	Message      string                 `json:"message"`
	Connector    string                 `json:"connector"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// HealthStatus reports the health of a connector.
type HealthStatus struct {
	Healthy   bool              `json:"healthy"`
	Latency   time.Duration     `json:"latency"`
	Details   map[string]string `json:"details"`
	Timestamp time.Time         `json:"timestamp"`
	Error     string            `json:"error"`
}

// ConnectorError is the error type for connector operations.
type ConnectorError struct {
	ConnectorName string
	Operation     string
	Message       string
	Cause         error
}

func (e *ConnectorError) Error() string {
	if e.Cause != nil {
		return e.ConnectorName + "." + e.Operation + ": " + e.Message + " (cause: " + e.Cause.Error() + ")"
	}
	return e.ConnectorName + "." + e.Operation + ": " + e.Message
}

func (e *ConnectorError) Unwrap() error {
	return e.Cause
}

// NewConnectorError creates a new ConnectorError.
func NewConnectorError(connectorName, operation, message string, cause error) *ConnectorError {
	return &ConnectorError{
		ConnectorName: connectorName,
		Operation:     operation,
		Message:       message,
		Cause:         cause,
	}
}
