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

// Package mongodb provides a MongoDB data source connector.
//
// Query statements name the operation and collection as
// "operation:collection" (find, findone, aggregate, count, distinct);
// Execute actions cover insert, update, and delete in one and many
// document variants.
package mongodb

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"strataql/engine/connectors/base"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultMaxPoolSize    = 100
	defaultMinPoolSize    = 10
)

// MongoDBConnector implements base.Connector for MongoDB 4.0+.
type MongoDBConnector struct {
	config     *base.ConnectorConfig
	client     *mongo.Client
	database   *mongo.Database
	logger     *log.Logger
	dbName     string
	collection string // default collection for bare statements
}

// NewMongoDBConnector creates an unconnected MongoDB connector.
func NewMongoDBConnector() *MongoDBConnector {
	return &MongoDBConnector{
		logger: log.New(os.Stdout, "[CONNECTOR_MONGODB] ", log.LstdFlags),
	}
}

// Connect establishes a pooled client and verifies it with a ping.
// The database option is required; collection sets a default
// collection for statements that omit one.
func (c *MongoDBConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	c.config = config

	clientOpts := options.Client().ApplyURI(buildURI(config))

	maxPool := uint64(defaultMaxPoolSize)
	minPool := uint64(defaultMinPoolSize)
	if val, ok := config.Options["max_pool_size"].(float64); ok {
		maxPool = uint64(val)
	}
	if val, ok := config.Options["min_pool_size"].(float64); ok {
		minPool = uint64(val)
	}
	clientOpts.SetMaxPoolSize(maxPool)
	clientOpts.SetMinPoolSize(minPool)

	connectTimeout := defaultConnectTimeout
	if val, ok := config.Options["connect_timeout"].(string); ok {
		if d, err := time.ParseDuration(val); err == nil {
			connectTimeout = d
		}
	}
	clientOpts.SetConnectTimeout(connectTimeout)
	clientOpts.SetAppName("StrataQL-MongoDB-Connector")
	clientOpts.SetRetryWrites(true)
	clientOpts.SetRetryReads(true)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return base.NewConnectorError(config.Name, "Connect", "failed to connect to MongoDB", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return base.NewConnectorError(config.Name, "Connect", "failed to ping MongoDB", err)
	}

	dbName, ok := config.Options["database"].(string)
	if !ok || dbName == "" {
		_ = client.Disconnect(ctx)
		return base.NewConnectorError(config.Name, "Connect", "database option is required", nil)
	}

	c.client = client
	c.dbName = dbName
	c.database = client.Database(dbName)
	if coll, ok := config.Options["collection"].(string); ok {
		c.collection = coll
	}

	c.logger.Printf("Connected to MongoDB: %s (database=%s, max_pool=%d)", config.Name, dbName, maxPool)
	return nil
}

// buildURI uses ConnectionURL when set, otherwise assembles a
// mongodb:// URI from host, port, and credentials.
func buildURI(config *base.ConnectorConfig) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	host := "localhost"
	port := 27017
	if h, ok := config.Options["host"].(string); ok {
		host = h
	}
	if p, ok := config.Options["port"].(float64); ok {
		port = int(p)
	}

	username := config.Credentials["username"]
	password := config.Credentials["password"]
	if username != "" && password != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%d", username, password, host, port)
	}
	return fmt.Sprintf("mongodb://%s:%d", host, port)
}

// Disconnect closes the client.
func (c *MongoDBConnector) Disconnect(ctx context.Context) error {
	if c.client == nil {
		return nil
	}

	disconnectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.client.Disconnect(disconnectCtx); err != nil {
		return base.NewConnectorError(c.Name(), "Disconnect", "failed to disconnect", err)
	}

	c.logger.Printf("Disconnected from MongoDB: %s", c.Name())
	return nil
}

// HealthCheck pings the primary.
func (c *MongoDBConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.client == nil {
		return &base.HealthStatus{
			Healthy:   false,
			Error:     "client not connected",
			Timestamp: time.Now(),
		}, nil
	}

	start := time.Now()
	err := c.client.Ping(ctx, readpref.Primary())
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
		Details:   map[string]string{"database": c.dbName},
	}, nil
}

// Query executes a read operation against a collection.
func (c *MongoDBConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if c.client == nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "client not connected", nil)
	}

	timeout := query.Timeout
	if timeout == 0 && c.config != nil {
		timeout = c.config.Timeout
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	operation, collectionName := c.parseStatement(query.Statement)
	collection := c.database.Collection(collectionName)

	start := time.Now()
	var results []map[string]interface{}
	var err error

	switch strings.ToLower(operation) {
	case "find", "":
		results, err = c.find(queryCtx, collection, query)
	case "findone":
		results, err = c.findOne(queryCtx, collection, query)
	case "aggregate":
		results, err = c.aggregate(queryCtx, collection, query)
	case "count":
		results, err = c.count(queryCtx, collection, query)
	case "distinct":
		results, err = c.distinct(queryCtx, collection, query)
	default:
		return nil, base.NewConnectorError(c.Name(), "Query",
			fmt.Sprintf("unsupported operation: %s", operation), nil)
	}
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "query execution failed", err)
	}

	duration := time.Since(start)
	c.logger.Printf("Query executed (%s.%s): %d results in %v",
		operation, collectionName, len(results), duration)

	return &base.QueryResult{
		Rows:      results,
		RowCount:  len(results),
		Duration:  duration,
		Connector: c.Name(),
	}, nil
}

// Execute runs a write operation against a collection.
func (c *MongoDBConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	if c.client == nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "client not connected", nil)
	}

	timeout := cmd.Timeout
	if timeout == 0 && c.config != nil {
		timeout = c.config.Timeout
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, collectionName := c.parseStatement(cmd.Statement)
	collection := c.database.Collection(collectionName)

	start := time.Now()
	var rowsAffected int
	var message string
	var err error

	switch strings.ToLower(cmd.Action) {
	case "insert", "insertone":
		rowsAffected, message, err = c.insertOne(execCtx, collection, cmd)
	case "insertmany":
		rowsAffected, message, err = c.insertMany(execCtx, collection, cmd)
	case "update", "updateone":
		rowsAffected, message, err = c.update(execCtx, collection, cmd, false)
	case "updatemany":
		rowsAffected, message, err = c.update(execCtx, collection, cmd, true)
	case "delete", "deleteone":
		rowsAffected, message, err = c.delete(execCtx, collection, cmd, false)
	case "deletemany":
		rowsAffected, message, err = c.delete(execCtx, collection, cmd, true)
	default:
		return nil, base.NewConnectorError(c.Name(), "Execute",
			fmt.Sprintf("unsupported action: %s", cmd.Action), nil)
	}
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "command execution failed", err)
	}

	duration := time.Since(start)
	c.logger.Printf("Command executed (%s.%s): %d affected in %v",
		cmd.Action, collectionName, rowsAffected, duration)

	return &base.CommandResult{
		Success:      true,
		RowsAffected: rowsAffected,
		Duration:     duration,
		Message:      message,
		Connector:    c.Name(),
	}, nil
}

// Name returns the configured instance name, or "mongodb" before Connect.
func (c *MongoDBConnector) Name() string {
	if c.config == nil {
		return "mongodb"
	}
	return c.config.Name
}

// Type returns "mongodb".
func (c *MongoDBConnector) Type() string {
	return "mongodb"
}

// Version returns the connector version.
func (c *MongoDBConnector) Version() string {
	return "1.0.0"
}

// Capabilities returns the supported capabilities.
func (c *MongoDBConnector) Capabilities() []string {
	return []string{
		"query",
		"execute",
		"aggregation",
		"connection_pooling",
	}
}

// parseStatement splits "operation:collection". A bare statement is
// the operation when a default collection is configured, otherwise a
// collection name queried with find.
func (c *MongoDBConnector) parseStatement(statement string) (string, string) {
	parts := strings.SplitN(statement, ":", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	if c.collection != "" {
		return statement, c.collection
	}
	return "find", statement
}

// filterFromParams builds the BSON filter. An explicit "filter" key
// wins; otherwise the parameters themselves form the filter, minus
// option keys.
func filterFromParams(params map[string]interface{}) (bson.M, error) {
	if params == nil {
		return bson.M{}, nil
	}
	if filter, ok := params["filter"]; ok {
		return toBSON(filter)
	}

	filter := bson.M{}
	for k, v := range params {
		switch k {
		case "sort", "projection", "skip", "limit", "pipeline",
			"documents", "document", "update", "field", "upsert", "ordered":
			continue
		}
		filter[k] = v
	}
	return filter, nil
}

func toBSON(v interface{}) (bson.M, error) {
	switch val := v.(type) {
	case bson.M:
		return val, nil
	case map[string]interface{}:
		result := bson.M{}
		for k, v := range val {
			result[k] = toBSONValue(v)
		}
		return result, nil
	case string:
		var result bson.M
		if err := json.Unmarshal([]byte(val), &result); err != nil {
			return nil, fmt.Errorf("invalid BSON/JSON: %w", err)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to BSON", v)
	}
}

// toBSONValue recognizes extended-JSON $oid and $date wrappers and
// converts maps and slices recursively.
func toBSONValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		if oid, ok := val["$oid"].(string); ok {
			if objectID, err := primitive.ObjectIDFromHex(oid); err == nil {
				return objectID
			}
		}
		if date, ok := val["$date"].(string); ok {
			if t, err := time.Parse(time.RFC3339, date); err == nil {
				return t
			}
		}
		result := bson.M{}
		for k, v := range val {
			result[k] = toBSONValue(v)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(val))
		for i, v := range val {
			result[i] = toBSONValue(v)
		}
		return result
	default:
		return val
	}
}

func (c *MongoDBConnector) find(ctx context.Context, collection *mongo.Collection, query *base.Query) ([]map[string]interface{}, error) {
	filter, err := filterFromParams(query.Parameters)
	if err != nil {
		return nil, err
	}

	opts := options.Find()
	if query.Limit > 0 {
		opts.SetLimit(int64(query.Limit))
	} else if limit, ok := query.Parameters["limit"].(float64); ok {
		opts.SetLimit(int64(limit))
	}
	if skip, ok := query.Parameters["skip"].(float64); ok {
		opts.SetSkip(int64(skip))
	}
	if sort, ok := query.Parameters["sort"].(map[string]interface{}); ok {
		sortBSON := bson.D{}
		for k, v := range sort {
			if order, ok := v.(float64); ok {
				sortBSON = append(sortBSON, bson.E{Key: k, Value: int(order)})
			}
		}
		opts.SetSort(sortBSON)
	}
	if projection, ok := query.Parameters["projection"].(map[string]interface{}); ok {
		opts.SetProjection(projection)
	}

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()

	return decodeCursor(ctx, cursor)
}

func (c *MongoDBConnector) findOne(ctx context.Context, collection *mongo.Collection, query *base.Query) ([]map[string]interface{}, error) {
	filter, err := filterFromParams(query.Parameters)
	if err != nil {
		return nil, err
	}

	var result bson.M
	err = collection.FindOne(ctx, filter).Decode(&result)
	if err == mongo.ErrNoDocuments {
		return []map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, err
	}
	return []map[string]interface{}{bsonToMap(result)}, nil
}

func (c *MongoDBConnector) aggregate(ctx context.Context, collection *mongo.Collection, query *base.Query) ([]map[string]interface{}, error) {
	pipelineRaw, ok := query.Parameters["pipeline"]
	if !ok {
		return nil, fmt.Errorf("aggregation requires 'pipeline' parameter")
	}

	var pipeline mongo.Pipeline
	switch p := pipelineRaw.(type) {
	case []interface{}:
		for _, stage := range p {
			stageMap, ok := stage.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("invalid pipeline stage type: %T", stage)
			}
			bsonStage := bson.D{}
			for k, v := range stageMap {
				bsonStage = append(bsonStage, bson.E{Key: k, Value: toBSONValue(v)})
			}
			pipeline = append(pipeline, bsonStage)
		}
	case string:
		var stages []bson.M
		if err := json.Unmarshal([]byte(p), &stages); err != nil {
			return nil, fmt.Errorf("invalid pipeline JSON: %w", err)
		}
		for _, stage := range stages {
			bsonStage := bson.D{}
			for k, v := range stage {
				bsonStage = append(bsonStage, bson.E{Key: k, Value: v})
			}
			pipeline = append(pipeline, bsonStage)
		}
	default:
		return nil, fmt.Errorf("pipeline must be an array or JSON string, got %T", pipelineRaw)
	}

	cursor, err := collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()

	return decodeCursor(ctx, cursor)
}

func (c *MongoDBConnector) count(ctx context.Context, collection *mongo.Collection, query *base.Query) ([]map[string]interface{}, error) {
	filter, err := filterFromParams(query.Parameters)
	if err != nil {
		return nil, err
	}

	count, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}
	return []map[string]interface{}{{"count": count}}, nil
}

func (c *MongoDBConnector) distinct(ctx context.Context, collection *mongo.Collection, query *base.Query) ([]map[string]interface{}, error) {
	field, ok := query.Parameters["field"].(string)
	if !ok {
		return nil, fmt.Errorf("distinct requires 'field' parameter")
	}
	filter, err := filterFromParams(query.Parameters)
	if err != nil {
		return nil, err
	}

	values, err := collection.Distinct(ctx, field, filter)
	if err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, len(values))
	for i, v := range values {
		results[i] = map[string]interface{}{field: v}
	}
	return results, nil
}

func (c *MongoDBConnector) insertOne(ctx context.Context, collection *mongo.Collection, cmd *base.Command) (int, string, error) {
	doc, ok := cmd.Parameters["document"]
	if !ok {
		doc = cmd.Parameters
	}

	result, err := collection.InsertOne(ctx, toBSONValue(doc))
	if err != nil {
		return 0, "", err
	}
	return 1, fmt.Sprintf("Inserted 1 document (id=%v)", result.InsertedID), nil
}

func (c *MongoDBConnector) insertMany(ctx context.Context, collection *mongo.Collection, cmd *base.Command) (int, string, error) {
	docsRaw, ok := cmd.Parameters["documents"]
	if !ok {
		return 0, "", fmt.Errorf("insertMany requires 'documents' parameter")
	}
	docsSlice, ok := docsRaw.([]interface{})
	if !ok {
		return 0, "", fmt.Errorf("documents must be an array")
	}

	docs := make([]interface{}, len(docsSlice))
	for i, doc := range docsSlice {
		docs[i] = toBSONValue(doc)
	}

	result, err := collection.InsertMany(ctx, docs)
	if err != nil {
		return 0, "", err
	}
	return len(result.InsertedIDs), fmt.Sprintf("Inserted %d documents", len(result.InsertedIDs)), nil
}

func (c *MongoDBConnector) update(ctx context.Context, collection *mongo.Collection, cmd *base.Command, many bool) (int, string, error) {
	filter, err := filterFromParams(cmd.Parameters)
	if err != nil {
		return 0, "", err
	}
	updateRaw, ok := cmd.Parameters["update"]
	if !ok {
		return 0, "", fmt.Errorf("update requires 'update' parameter")
	}
	update, err := toBSON(updateRaw)
	if err != nil {
		return 0, "", err
	}

	opts := options.Update()
	if upsert, ok := cmd.Parameters["upsert"].(bool); ok {
		opts.SetUpsert(upsert)
	}

	var result *mongo.UpdateResult
	if many {
		result, err = collection.UpdateMany(ctx, filter, update, opts)
	} else {
		result, err = collection.UpdateOne(ctx, filter, update, opts)
	}
	if err != nil {
		return 0, "", err
	}

	if result.UpsertedCount > 0 {
		return int(result.UpsertedCount), fmt.Sprintf("Upserted %d document(s)", result.UpsertedCount), nil
	}
	affected := int(result.ModifiedCount)
	return affected, fmt.Sprintf("Updated %d document(s)", affected), nil
}

func (c *MongoDBConnector) delete(ctx context.Context, collection *mongo.Collection, cmd *base.Command, many bool) (int, string, error) {
	filter, err := filterFromParams(cmd.Parameters)
	if err != nil {
		return 0, "", err
	}

	var result *mongo.DeleteResult
	if many {
		result, err = collection.DeleteMany(ctx, filter)
	} else {
		result, err = collection.DeleteOne(ctx, filter)
	}
	if err != nil {
		return 0, "", err
	}
	return int(result.DeletedCount), fmt.Sprintf("Deleted %d document(s)", result.DeletedCount), nil
}

func decodeCursor(ctx context.Context, cursor *mongo.Cursor) ([]map[string]interface{}, error) {
	var results []map[string]interface{}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		results = append(results, bsonToMap(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func bsonToMap(doc bson.M) map[string]interface{} {
	result := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		result[k] = fromBSONValue(v)
	}
	return result
}

// fromBSONValue converts BSON driver types into JSON-serializable
// values: ObjectIDs become hex strings and DateTimes become time.Time.
func fromBSONValue(v interface{}) interface{} {
	switch val := v.(type) {
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time()
	case primitive.Binary:
		return val.Data
	case bson.M:
		return bsonToMap(val)
	case bson.A:
		result := make([]interface{}, len(val))
		for i, item := range val {
			result[i] = fromBSONValue(item)
		}
		return result
	case primitive.D:
		result := make(map[string]interface{}, len(val))
		for _, elem := range val {
			result[elem.Key] = fromBSONValue(elem.Value)
		}
		return result
	default:
		return val
	}
}
