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

// Package redis provides a Redis key-value data source connector.
//
// Query statements name read operations (GET, EXISTS, TTL, KEYS) and
// Execute actions name write operations (SET, DELETE, EXPIRE), with
// operands passed through Parameters.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-redis/redis/v8"

	"strataql/engine/connectors/base"
)

// RedisConnector implements base.Connector for Redis.
type RedisConnector struct {
	config *base.ConnectorConfig
	client *redis.Client
	logger *log.Logger
}

// NewRedisConnector creates an unconnected Redis connector.
func NewRedisConnector() *RedisConnector {
	return &RedisConnector{
		logger: log.New(os.Stdout, "[CONNECTOR_REDIS] ", log.LstdFlags),
	}
}

// Connect creates a Redis client from the host, port, and db options
// and the password credential, then verifies it with a ping.
func (c *RedisConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	c.config = config

	host, ok := config.Options["host"].(string)
	if !ok || host == "" {
		return base.NewConnectorError(config.Name, "Connect", "host option is required", nil)
	}
	port := 6379
	switch p := config.Options["port"].(type) {
	case int:
		port = p
	case float64:
		port = int(p)
	}
	db := 0
	switch d := config.Options["db"].(type) {
	case int:
		db = d
	case float64:
		db = int(d)
	}

	c.client = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Password:     config.Credentials["password"],
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     100,
		MinIdleConns: 10,
	})

	if err := c.client.Ping(ctx).Err(); err != nil {
		return base.NewConnectorError(config.Name, "Connect", "failed to ping Redis", err)
	}

	c.logger.Printf("Connected to Redis: %s (db=%d)", config.Name, db)
	return nil
}

// Disconnect closes the Redis client.
func (c *RedisConnector) Disconnect(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Close(); err != nil {
		return base.NewConnectorError(c.config.Name, "Disconnect", "failed to close connection", err)
	}
	c.logger.Printf("Disconnected from Redis: %s", c.config.Name)
	return nil
}

// HealthCheck pings Redis and reports keyspace size.
func (c *RedisConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.client == nil {
		return &base.HealthStatus{
			Healthy: false,
			Error:   "client not connected",
		}, nil
	}

	start := time.Now()
	err := c.client.Ping(ctx).Err()
	latency := time.Since(start)

	if err != nil {
		return &base.HealthStatus{
			Healthy:   false,
			Latency:   latency,
			Timestamp: time.Now(),
			Error:     err.Error(),
		}, nil
	}

	dbSize := c.client.DBSize(ctx).Val()
	return &base.HealthStatus{
		Healthy:   true,
		Latency:   latency,
		Timestamp: time.Now(),
		Details: map[string]string{
			"db_size": fmt.Sprintf("%d", dbSize),
		},
	}, nil
}

// Query executes a read operation: GET, EXISTS, TTL, or KEYS.
func (c *RedisConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if c.client == nil {
		return nil, base.NewConnectorError(c.config.Name, "Query", "client not connected", nil)
	}

	start := time.Now()
	var rows []map[string]interface{}
	var err error

	switch query.Statement {
	case "GET":
		rows, err = c.get(ctx, query.Parameters)
	case "EXISTS":
		rows, err = c.exists(ctx, query.Parameters)
	case "TTL":
		rows, err = c.ttl(ctx, query.Parameters)
	case "KEYS":
		rows, err = c.keys(ctx, query.Parameters, query.Limit)
	default:
		return nil, base.NewConnectorError(c.config.Name, "Query",
			fmt.Sprintf("unsupported operation: %s", query.Statement), nil)
	}
	if err != nil {
		return nil, base.NewConnectorError(c.config.Name, "Query", "query execution failed", err)
	}

	return &base.QueryResult{
		Rows:      rows,
		RowCount:  len(rows),
		Duration:  time.Since(start),
		Connector: c.config.Name,
	}, nil
}

// Execute runs a write operation: SET, DELETE, or EXPIRE. Operation
// failures come back as an unsuccessful result rather than an error.
func (c *RedisConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	if c.client == nil {
		return nil, base.NewConnectorError(c.config.Name, "Execute", "client not connected", nil)
	}

	start := time.Now()
	var rowsAffected int
	var message string
	var err error

	switch cmd.Action {
	case "SET":
		rowsAffected, message, err = c.set(ctx, cmd.Parameters)
	case "DELETE":
		rowsAffected, message, err = c.delete(ctx, cmd.Parameters)
	case "EXPIRE":
		rowsAffected, message, err = c.expire(ctx, cmd.Parameters)
	default:
		return nil, base.NewConnectorError(c.config.Name, "Execute",
			fmt.Sprintf("unsupported action: %s", cmd.Action), nil)
	}

	duration := time.Since(start)
	if err != nil {
		return &base.CommandResult{
			Success:   false,
			Duration:  duration,
			Message:   err.Error(),
			Connector: c.config.Name,
		}, nil
	}

	return &base.CommandResult{
		Success:      true,
		RowsAffected: rowsAffected,
		Duration:     duration,
		Message:      message,
		Connector:    c.config.Name,
	}, nil
}

// Name returns the configured instance name, or "redis" before Connect.
func (c *RedisConnector) Name() string {
	if c.config != nil {
		return c.config.Name
	}
	return "redis"
}

// Type returns "redis".
func (c *RedisConnector) Type() string {
	return "redis"
}

// Version returns the connector version.
func (c *RedisConnector) Version() string {
	return "1.0.0"
}

// Capabilities returns the supported capabilities.
func (c *RedisConnector) Capabilities() []string {
	return []string{"query", "execute", "cache", "kv-store"}
}

func (c *RedisConnector) get(ctx context.Context, params map[string]interface{}) ([]map[string]interface{}, error) {
	key, ok := params["key"].(string)
	if !ok {
		return nil, fmt.Errorf("key parameter required")
	}

	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return []map[string]interface{}{
			{"key": key, "exists": false, "value": nil},
		}, nil
	}
	if err != nil {
		return nil, err
	}

	ttl, _ := c.client.TTL(ctx, key).Result()
	return []map[string]interface{}{
		{"key": key, "exists": true, "value": val, "ttl": int(ttl.Seconds())},
	}, nil
}

func (c *RedisConnector) exists(ctx context.Context, params map[string]interface{}) ([]map[string]interface{}, error) {
	key, ok := params["key"].(string)
	if !ok {
		return nil, fmt.Errorf("key parameter required")
	}

	count, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return []map[string]interface{}{
		{"key": key, "exists": count > 0},
	}, nil
}

func (c *RedisConnector) ttl(ctx context.Context, params map[string]interface{}) ([]map[string]interface{}, error) {
	key, ok := params["key"].(string)
	if !ok {
		return nil, fmt.Errorf("key parameter required")
	}

	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return []map[string]interface{}{
		{"key": key, "ttl": int(ttl.Seconds())},
	}, nil
}

// keys lists keys matching the pattern parameter using SCAN. The query
// Limit caps the result, defaulting to 100.
func (c *RedisConnector) keys(ctx context.Context, params map[string]interface{}, limit int) ([]map[string]interface{}, error) {
	pattern := "*"
	if p, ok := params["pattern"].(string); ok {
		pattern = p
	}
	if limit <= 0 {
		limit = 100
	}

	var cursor uint64
	var keys []string
	for len(keys) < limit {
		batch, next, err := c.client.Scan(ctx, cursor, pattern, 10).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if len(keys) > limit {
		keys = keys[:limit]
	}

	rows := make([]map[string]interface{}, len(keys))
	for i, key := range keys {
		rows[i] = map[string]interface{}{"key": key}
	}
	return rows, nil
}

func (c *RedisConnector) set(ctx context.Context, params map[string]interface{}) (int, string, error) {
	key, ok := params["key"].(string)
	if !ok {
		return 0, "", fmt.Errorf("key parameter required")
	}
	value, ok := params["value"]
	if !ok {
		return 0, "", fmt.Errorf("value parameter required")
	}

	var valueStr string
	switch v := value.(type) {
	case string:
		valueStr = v
	case []byte:
		valueStr = string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return 0, "", err
		}
		valueStr = string(b)
	}

	ttl := parseTTL(params["ttl"])
	if err := c.client.Set(ctx, key, valueStr, ttl).Err(); err != nil {
		return 0, "", err
	}
	return 1, fmt.Sprintf("SET %s (ttl=%v)", key, ttl), nil
}

func (c *RedisConnector) delete(ctx context.Context, params map[string]interface{}) (int, string, error) {
	key, ok := params["key"].(string)
	if !ok {
		return 0, "", fmt.Errorf("key parameter required")
	}

	count, err := c.client.Del(ctx, key).Result()
	if err != nil {
		return 0, "", err
	}
	return int(count), fmt.Sprintf("DELETE %s", key), nil
}

func (c *RedisConnector) expire(ctx context.Context, params map[string]interface{}) (int, string, error) {
	key, ok := params["key"].(string)
	if !ok {
		return 0, "", fmt.Errorf("key parameter required")
	}
	ttl := parseTTL(params["ttl"])
	if ttl == 0 {
		return 0, "", fmt.Errorf("ttl parameter required")
	}

	success, err := c.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return 0, "", err
	}
	rowsAffected := 0
	if success {
		rowsAffected = 1
	}
	return rowsAffected, fmt.Sprintf("EXPIRE %s %v", key, ttl), nil
}

// parseTTL accepts a TTL in seconds (number) or as a duration string.
func parseTTL(v interface{}) time.Duration {
	switch t := v.(type) {
	case int:
		return time.Duration(t) * time.Second
	case float64:
		return time.Duration(int(t)) * time.Second
	case string:
		if d, err := time.ParseDuration(t); err == nil {
			return d
		}
	}
	return 0
}
