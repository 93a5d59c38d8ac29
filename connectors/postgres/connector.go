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

// Package postgres provides a PostgreSQL data source connector built
// on database/sql with the lib/pq driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"strataql/engine/connectors/base"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
)

// PostgresConnector implements base.Connector for PostgreSQL.
type PostgresConnector struct {
	config *base.ConnectorConfig
	db     *sql.DB
	logger *log.Logger
}

// NewPostgresConnector creates an unconnected PostgreSQL connector.
func NewPostgresConnector() *PostgresConnector {
	return &PostgresConnector{
		logger: log.New(os.Stdout, "[CONNECTOR_POSTGRES] ", log.LstdFlags),
	}
}

// Connect opens a pooled connection and verifies it with a ping.
// Pool sizing comes from the max_open_conns, max_idle_conns, and
// conn_max_lifetime options.
func (c *PostgresConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	c.config = config

	db, err := sql.Open("postgres", config.ConnectionURL)
	if err != nil {
		return base.NewConnectorError(config.Name, "Connect", "failed to open connection", err)
	}

	maxOpen := intOption(config, "max_open_conns", defaultMaxOpenConns)
	maxIdle := intOption(config, "max_idle_conns", defaultMaxIdleConns)
	maxLifetime := durationOption(config, "conn_max_lifetime", defaultConnMaxLifetime)

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return base.NewConnectorError(config.Name, "Connect", "failed to ping database", err)
	}

	c.db = db
	c.logger.Printf("Connected to PostgreSQL: %s (max_conns=%d)", config.Name, maxOpen)
	return nil
}

// Disconnect closes the connection pool.
func (c *PostgresConnector) Disconnect(ctx context.Context) error {
	if c.db == nil {
		return nil
	}
	if err := c.db.Close(); err != nil {
		return base.NewConnectorError(c.config.Name, "Disconnect", "failed to close connection", err)
	}
	c.logger.Printf("Disconnected from PostgreSQL: %s", c.config.Name)
	return nil
}

// HealthCheck pings the database and reports pool statistics.
func (c *PostgresConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.db == nil {
		return &base.HealthStatus{
			Healthy: false,
			Error:   "database not connected",
		}, nil
	}

	start := time.Now()
	err := c.db.PingContext(ctx)
	latency := time.Since(start)

	if err != nil {
		return &base.HealthStatus{
			Healthy:   false,
			Latency:   latency,
			Timestamp: time.Now(),
			Error:     err.Error(),
		}, nil
	}

	stats := c.db.Stats()
	return &base.HealthStatus{
		Healthy:   true,
		Latency:   latency,
		Timestamp: time.Now(),
		Details: map[string]string{
			"open_connections": fmt.Sprintf("%d", stats.OpenConnections),
			"in_use":           fmt.Sprintf("%d", stats.InUse),
			"idle":             fmt.Sprintf("%d", stats.Idle),
		},
	}, nil
}

// Query runs a SELECT and scans the result set into row maps. The
// query Limit caps the number of rows scanned.
func (c *PostgresConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if c.db == nil {
		return nil, base.NewConnectorError(c.config.Name, "Query", "database not connected", nil)
	}

	timeout := query.Timeout
	if timeout == 0 {
		timeout = c.config.Timeout
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := positionalArgs(query.Parameters)

	start := time.Now()
	rows, err := c.db.QueryContext(queryCtx, query.Statement, args...)
	if err != nil {
		return nil, base.NewConnectorError(c.config.Name, "Query", "query execution failed", err)
	}
	defer func() { _ = rows.Close() }()

	results, err := scanRows(rows, query.Limit)
	if err != nil {
		return nil, base.NewConnectorError(c.config.Name, "Query", "failed to scan rows", err)
	}
	duration := time.Since(start)

	c.logger.Printf("Query executed: %d rows in %v", len(results), duration)

	return &base.QueryResult{
		Rows:      results,
		RowCount:  len(results),
		Duration:  duration,
		Connector: c.config.Name,
	}, nil
}

// Execute runs a write statement and reports rows affected.
func (c *PostgresConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	if c.db == nil {
		return nil, base.NewConnectorError(c.config.Name, "Execute", "database not connected", nil)
	}

	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = c.config.Timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := positionalArgs(cmd.Parameters)

	start := time.Now()
	result, err := c.db.ExecContext(execCtx, cmd.Statement, args...)
	if err != nil {
		return nil, base.NewConnectorError(c.config.Name, "Execute", "command execution failed", err)
	}
	duration := time.Since(start)

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		c.logger.Printf("Warning: could not get rows affected: %v", err)
		rowsAffected = 0
	}

	c.logger.Printf("Command executed: %d rows affected in %v", rowsAffected, duration)

	return &base.CommandResult{
		Success:      true,
		RowsAffected: int(rowsAffected),
		Duration:     duration,
		Message:      fmt.Sprintf("%s executed successfully", cmd.Action),
		Connector:    c.config.Name,
	}, nil
}

// Name returns the configured instance name, or "postgres" before Connect.
func (c *PostgresConnector) Name() string {
	if c.config == nil {
		return "postgres"
	}
	return c.config.Name
}

// Type returns "postgres".
func (c *PostgresConnector) Type() string {
	return "postgres"
}

// Version returns the connector version.
func (c *PostgresConnector) Version() string {
	return "1.0.0"
}

// Capabilities returns the supported capabilities.
func (c *PostgresConnector) Capabilities() []string {
	return []string{
		"query",
		"execute",
		"transactions",
		"prepared_statements",
		"connection_pooling",
	}
}

// positionalArgs flattens a parameter map into an args slice in sorted
// key order, so $1..$n binding is deterministic.
func positionalArgs(params map[string]interface{}) []interface{} {
	if len(params) == 0 {
		return nil
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		args = append(args, params[k])
	}
	return args
}

// scanRows collects up to limit rows (0 means no cap) into maps keyed
// by column name. []byte values become strings so text columns stay
// readable after JSON encoding.
func scanRows(rows *sql.Rows, limit int) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, 0)
	for rows.Next() {
		if limit > 0 && len(results) >= limit {
			break
		}

		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func intOption(config *base.ConnectorConfig, key string, fallback int) int {
	switch v := config.Options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

func durationOption(config *base.ConnectorConfig, key string, fallback time.Duration) time.Duration {
	if s, ok := config.Options[key].(string); ok {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}
