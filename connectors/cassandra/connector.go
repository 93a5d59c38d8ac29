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

// Package cassandra provides an Apache Cassandra / ScyllaDB data
// source connector built on gocql.
package cassandra

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"strataql/engine/connectors/base"
)

// CassandraConnector implements base.Connector for Cassandra clusters.
type CassandraConnector struct {
	config  *base.ConnectorConfig
	cluster *gocql.ClusterConfig
	session *gocql.Session
	logger  *log.Logger
}

// NewCassandraConnector creates an unconnected Cassandra connector.
func NewCassandraConnector() *CassandraConnector {
	return &CassandraConnector{
		logger: log.New(os.Stdout, "[CONNECTOR_CASSANDRA] ", log.LstdFlags),
	}
}

// Connect creates a session against the cluster. The ConnectionURL
// has the form cassandra://host1:port,host2:port/keyspace.
func (c *CassandraConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	c.config = config

	hosts, keyspace, err := parseClusterURL(config.ConnectionURL)
	if err != nil {
		return base.NewConnectorError(config.Name, "Connect", "invalid connection URL", err)
	}

	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace

	consistency := "QUORUM"
	if val, ok := config.Options["consistency"].(string); ok {
		consistency = val
	}
	cluster.Consistency = parseConsistency(consistency)

	if config.Timeout > 0 {
		cluster.Timeout = config.Timeout
	} else {
		cluster.Timeout = 5 * time.Second
	}

	if username, ok := config.Credentials["username"]; ok {
		if password, ok := config.Credentials["password"]; ok {
			cluster.Authenticator = gocql.PasswordAuthenticator{
				Username: username,
				Password: password,
			}
		}
	}

	cluster.NumConns = 2
	switch v := config.Options["num_conns"].(type) {
	case int:
		cluster.NumConns = v
	case float64:
		cluster.NumConns = int(v)
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return base.NewConnectorError(config.Name, "Connect", "failed to create session", err)
	}

	c.cluster = cluster
	c.session = session
	c.logger.Printf("Connected to Cassandra: %s (keyspace=%s, consistency=%s)", config.Name, keyspace, consistency)
	return nil
}

// Disconnect closes the session.
func (c *CassandraConnector) Disconnect(ctx context.Context) error {
	if c.session == nil {
		return nil
	}
	c.session.Close()
	c.logger.Printf("Disconnected from Cassandra: %s", c.config.Name)
	return nil
}

// HealthCheck runs a probe query against system.local.
func (c *CassandraConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.session == nil {
		return &base.HealthStatus{
			Healthy: false,
			Error:   "session not connected",
		}, nil
	}

	start := time.Now()
	var releaseVersion string
	err := c.session.Query("SELECT release_version FROM system.local").WithContext(ctx).Scan(&releaseVersion)
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
		Details: map[string]string{
			"release_version": releaseVersion,
			"keyspace":        c.cluster.Keyspace,
			"consistency":     c.cluster.Consistency.String(),
		},
	}, nil
}

// Query executes a CQL SELECT. Parameters bind positionally in sorted
// key order; a _consistency parameter overrides the session level.
func (c *CassandraConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if c.session == nil {
		return nil, base.NewConnectorError(c.config.Name, "Query", "session not connected", nil)
	}

	cqlQuery := c.session.Query(query.Statement)
	if args := bindArgs(query.Parameters); len(args) > 0 {
		cqlQuery = cqlQuery.Bind(args...)
	}
	cqlQuery = cqlQuery.WithContext(ctx)

	if consistency, ok := query.Parameters["_consistency"].(string); ok {
		cqlQuery = cqlQuery.Consistency(parseConsistency(consistency))
	}

	start := time.Now()
	iter := cqlQuery.Iter()

	results := make([]map[string]interface{}, 0)
	for query.Limit == 0 || len(results) < query.Limit {
		row := make(map[string]interface{})
		if !iter.MapScan(row) {
			break
		}
		results = append(results, row)
	}
	if err := iter.Close(); err != nil {
		return nil, base.NewConnectorError(c.config.Name, "Query", "query execution failed", err)
	}

	duration := time.Since(start)
	c.logger.Printf("CQL query executed: %d rows in %v", len(results), duration)

	return &base.QueryResult{
		Rows:      results,
		RowCount:  len(results),
		Duration:  duration,
		Connector: c.config.Name,
	}, nil
}

// Execute runs a CQL write statement. Cassandra does not report rows
// affected, so a successful write counts as one.
func (c *CassandraConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	if c.session == nil {
		return nil, base.NewConnectorError(c.config.Name, "Execute", "session not connected", nil)
	}

	cqlCmd := c.session.Query(cmd.Statement)
	if args := bindArgs(cmd.Parameters); len(args) > 0 {
		cqlCmd = cqlCmd.Bind(args...)
	}
	cqlCmd = cqlCmd.WithContext(ctx)

	start := time.Now()
	err := cqlCmd.Exec()
	duration := time.Since(start)

	if err != nil {
		return nil, base.NewConnectorError(c.config.Name, "Execute", "command execution failed", err)
	}

	c.logger.Printf("CQL command executed in %v", duration)

	return &base.CommandResult{
		Success:      true,
		RowsAffected: 1,
		Duration:     duration,
		Message:      fmt.Sprintf("%s executed successfully", cmd.Action),
		Connector:    c.config.Name,
	}, nil
}

// Name returns the configured instance name, or "cassandra" before Connect.
func (c *CassandraConnector) Name() string {
	if c.config == nil {
		return "cassandra"
	}
	return c.config.Name
}

// Type returns "cassandra".
func (c *CassandraConnector) Type() string {
	return "cassandra"
}

// Version returns the connector version.
func (c *CassandraConnector) Version() string {
	return "1.0.0"
}

// Capabilities returns the supported capabilities.
func (c *CassandraConnector) Capabilities() []string {
	return []string{
		"query",
		"execute",
		"consistency_levels",
		"token_aware_routing",
	}
}

// bindArgs flattens parameters into positional bind arguments in
// sorted key order, skipping control keys prefixed with underscore.
func bindArgs(params map[string]interface{}) []interface{} {
	if len(params) == 0 {
		return nil
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if strings.HasPrefix(k, "_") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		args = append(args, params[k])
	}
	return args
}

// parseClusterURL splits cassandra://host1:port,host2:port/keyspace
// into the host list and keyspace.
func parseClusterURL(url string) ([]string, string, error) {
	url = strings.TrimPrefix(url, "cassandra://")

	parts := strings.Split(url, "/")
	if len(parts) != 2 {
		return nil, "", fmt.Errorf("invalid connection URL format (expected: cassandra://host:port/keyspace)")
	}

	hosts := strings.Split(parts[0], ",")
	keyspace := parts[1]
	if parts[0] == "" || keyspace == "" {
		return nil, "", fmt.Errorf("invalid connection URL: missing hosts or keyspace")
	}
	return hosts, keyspace, nil
}

// parseConsistency maps a level name to gocql.Consistency, defaulting
// to QUORUM.
func parseConsistency(level string) gocql.Consistency {
	switch strings.ToUpper(level) {
	case "ANY":
		return gocql.Any
	case "ONE":
		return gocql.One
	case "TWO":
		return gocql.Two
	case "THREE":
		return gocql.Three
	case "QUORUM":
		return gocql.Quorum
	case "ALL":
		return gocql.All
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum
	case "EACH_QUORUM":
		return gocql.EachQuorum
	case "LOCAL_ONE":
		return gocql.LocalOne
	default:
		return gocql.Quorum
	}
}
