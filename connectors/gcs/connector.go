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

package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"strataql/engine/connectors/base"
	"strataql/engine/connectors/sdk"
)

const defaultSignedURLExpiry = 900 // seconds

// GCSConnector exposes Google Cloud Storage buckets as a data source.
type GCSConnector struct {
	sdk.BaseConnector
	client        *storage.Client
	defaultBucket string
	projectID     string
}

// NewGCSConnector creates a new GCS connector. Without explicit
// credentials the client falls back to Application Default Credentials.
func NewGCSConnector() *GCSConnector {
	conn := &GCSConnector{}
	conn.BaseConnector = *sdk.NewBaseConnector("gcs")
	conn.SetCapabilities([]string{"query", "execute", "presign", "streaming"})
	conn.SetValidator(sdk.NewDefaultConfigValidator(nil, map[string]interface{}{
		"signed_url_expiry": defaultSignedURLExpiry,
	}))
	return conn
}

// Connect builds the storage client and verifies connectivity against
// the default bucket or, when only a project is given, by listing
// buckets.
func (c *GCSConnector) Connect(ctx context.Context, cfg *base.ConnectorConfig) error {
	if err := c.BaseConnector.Connect(ctx, cfg); err != nil {
		return err
	}

	c.defaultBucket = c.GetStringOption("default_bucket", "")
	c.projectID = c.GetStringOption("project_id", "")

	var opts []option.ClientOption
	if credFile := c.GetCredential("credentials_file"); credFile != "" {
		opts = append(opts, option.WithCredentialsFile(credFile))
	} else if credJSON := c.GetCredential("credentials_json"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}
	// Custom endpoint supports the fake-gcs-server emulator.
	if endpoint := c.GetStringOption("endpoint", ""); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return base.NewConnectorError(cfg.Name, "Connect", "failed to create GCS client", err)
	}
	c.client = client

	if err := c.probe(ctx); err != nil {
		_ = client.Close()
		c.client = nil
		return base.NewConnectorError(cfg.Name, "Connect", "failed to verify GCS connectivity", err)
	}

	c.Log("Connected to GCS (project=%s, bucket=%s)", c.projectID, c.defaultBucket)
	return nil
}

// Disconnect closes the storage client.
func (c *GCSConnector) Disconnect(ctx context.Context) error {
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			c.Log("Warning: error closing GCS client: %v", err)
		}
		c.client = nil
	}
	return c.BaseConnector.Disconnect(ctx)
}

// HealthCheck verifies the bucket or project is still reachable.
func (c *GCSConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.client == nil {
		return &base.HealthStatus{
			Healthy:   false,
			Error:     "GCS client not initialized",
			Timestamp: time.Now(),
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	err := c.probe(ctx)
	latency := time.Since(start)

	if err != nil {
		return &base.HealthStatus{
			Healthy:   false,
			Error:     err.Error(),
			Latency:   latency,
			Timestamp: time.Now(),
		}, nil
	}

	return &base.HealthStatus{
		Healthy: true,
		Latency: latency,
		Details: map[string]string{
			"project_id":     c.projectID,
			"default_bucket": c.defaultBucket,
		},
		Timestamp: time.Now(),
	}, nil
}

func (c *GCSConnector) probe(ctx context.Context) error {
	if c.defaultBucket != "" {
		_, err := c.client.Bucket(c.defaultBucket).Attrs(ctx)
		return err
	}
	if c.projectID != "" {
		it := c.client.Buckets(ctx, c.projectID)
		if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
			return err
		}
	}
	return nil
}

// Query dispatches read operations selected by the statement.
func (c *GCSConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if c.client == nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "not connected", nil)
	}

	timeout := c.GetTimeout()
	if query.Timeout > 0 {
		timeout = query.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var result *base.QueryResult
	var err error

	switch strings.ToLower(query.Statement) {
	case "list", "list_objects":
		result, err = c.listObjects(ctx, query.Parameters)
	case "get", "get_object":
		result, err = c.getObject(ctx, query.Parameters)
	case "head", "get_object_metadata":
		result, err = c.objectAttrs(ctx, query.Parameters)
	case "list_buckets":
		result, err = c.listBuckets(ctx, query.Parameters)
	case "bucket_attrs", "get_bucket_metadata":
		result, err = c.bucketAttrs(ctx, query.Parameters)
	case "presign", "signed_url":
		result, err = c.signedURL(query.Parameters)
	default:
		err = base.NewConnectorError(c.Name(), "Query", fmt.Sprintf("unsupported operation: %s", query.Statement), nil)
	}
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	result.Connector = c.Name()
	return result, nil
}

// Execute dispatches write operations selected by the command action.
func (c *GCSConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	if c.client == nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "not connected", nil)
	}

	timeout := c.GetTimeout()
	if cmd.Timeout > 0 {
		timeout = cmd.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var result *base.CommandResult
	var err error

	switch strings.ToLower(cmd.Action) {
	case "put", "put_object":
		result, err = c.putObject(ctx, cmd.Parameters)
	case "delete", "delete_object":
		result, err = c.deleteObject(ctx, cmd.Parameters)
	case "copy", "copy_object":
		result, err = c.copyObject(ctx, cmd.Parameters)
	default:
		err = base.NewConnectorError(c.Name(), "Execute", fmt.Sprintf("unsupported action: %s", cmd.Action), nil)
	}
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	result.Connector = c.Name()
	return result, nil
}

func (c *GCSConnector) listObjects(ctx context.Context, params map[string]interface{}) (*base.QueryResult, error) {
	bucket := c.resolveBucket(params)
	if bucket == "" {
		return nil, base.NewConnectorError(c.Name(), "Query", "bucket is required", nil)
	}

	prefix := stringParam(params, "prefix", "")
	maxResults := intParam(params, "max_results", 1000)

	it := c.client.Bucket(bucket).Objects(ctx, &storage.Query{
		Prefix:    prefix,
		Delimiter: stringParam(params, "delimiter", ""),
	})

	var rows []map[string]interface{}
	for len(rows) < maxResults {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, base.NewConnectorError(c.Name(), "Query", "failed to list objects", err)
		}

		// With a delimiter set, the iterator yields synthetic prefix
		// entries alongside objects.
		if attrs.Prefix != "" {
			rows = append(rows, map[string]interface{}{"prefix": attrs.Prefix})
			continue
		}
		rows = append(rows, map[string]interface{}{
			"name":          attrs.Name,
			"bucket":        attrs.Bucket,
			"size":          attrs.Size,
			"content_type":  attrs.ContentType,
			"updated":       attrs.Updated,
			"created":       attrs.Created,
			"generation":    attrs.Generation,
			"storage_class": attrs.StorageClass,
			"etag":          attrs.Etag,
		})
	}

	return &base.QueryResult{
		Rows:     rows,
		RowCount: len(rows),
		Metadata: map[string]interface{}{
			"bucket": bucket,
			"prefix": prefix,
		},
	}, nil
}

func (c *GCSConnector) getObject(ctx context.Context, params map[string]interface{}) (*base.QueryResult, error) {
	bucket, key, err := c.resolveObject(params, "Query")
	if err != nil {
		return nil, err
	}

	reader, err := c.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", fmt.Sprintf("failed to read object: %s", key), err)
	}
	defer func() { _ = reader.Close() }()

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "failed to read object content", err)
	}

	return &base.QueryResult{
		Rows: []map[string]interface{}{{
			"key":          key,
			"bucket":       bucket,
			"content":      string(content),
			"content_type": reader.Attrs.ContentType,
			"size":         reader.Attrs.Size,
			"generation":   reader.Attrs.Generation,
		}},
		RowCount: 1,
	}, nil
}

func (c *GCSConnector) objectAttrs(ctx context.Context, params map[string]interface{}) (*base.QueryResult, error) {
	bucket, key, err := c.resolveObject(params, "Query")
	if err != nil {
		return nil, err
	}

	attrs, err := c.client.Bucket(bucket).Object(key).Attrs(ctx)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "failed to get object attributes", err)
	}

	row := map[string]interface{}{
		"name":           attrs.Name,
		"bucket":         attrs.Bucket,
		"size":           attrs.Size,
		"content_type":   attrs.ContentType,
		"updated":        attrs.Updated,
		"created":        attrs.Created,
		"generation":     attrs.Generation,
		"metageneration": attrs.Metageneration,
		"storage_class":  attrs.StorageClass,
		"etag":           attrs.Etag,
		"crc32c":         attrs.CRC32C,
	}
	if len(attrs.Metadata) > 0 {
		row["metadata"] = attrs.Metadata
	}

	return &base.QueryResult{
		Rows:     []map[string]interface{}{row},
		RowCount: 1,
	}, nil
}

func (c *GCSConnector) listBuckets(ctx context.Context, params map[string]interface{}) (*base.QueryResult, error) {
	projectID := stringParam(params, "project_id", c.projectID)
	if projectID == "" {
		return nil, base.NewConnectorError(c.Name(), "Query", "project_id is required", nil)
	}

	it := c.client.Buckets(ctx, projectID)
	var rows []map[string]interface{}
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, base.NewConnectorError(c.Name(), "Query", "failed to list buckets", err)
		}
		rows = append(rows, map[string]interface{}{
			"name":          attrs.Name,
			"location":      attrs.Location,
			"storage_class": attrs.StorageClass,
			"created":       attrs.Created,
			"versioning":    attrs.VersioningEnabled,
		})
	}

	return &base.QueryResult{
		Rows:     rows,
		RowCount: len(rows),
		Metadata: map[string]interface{}{"project_id": projectID},
	}, nil
}

func (c *GCSConnector) bucketAttrs(ctx context.Context, params map[string]interface{}) (*base.QueryResult, error) {
	bucket := c.resolveBucket(params)
	if bucket == "" {
		return nil, base.NewConnectorError(c.Name(), "Query", "bucket is required", nil)
	}

	attrs, err := c.client.Bucket(bucket).Attrs(ctx)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "failed to get bucket attributes", err)
	}

	row := map[string]interface{}{
		"name":          attrs.Name,
		"location":      attrs.Location,
		"location_type": attrs.LocationType,
		"storage_class": attrs.StorageClass,
		"created":       attrs.Created,
		"versioning":    attrs.VersioningEnabled,
	}
	if len(attrs.Labels) > 0 {
		row["labels"] = attrs.Labels
	}

	return &base.QueryResult{
		Rows:     []map[string]interface{}{row},
		RowCount: 1,
	}, nil
}

// signedURL builds a V4 signed URL for direct object access.
func (c *GCSConnector) signedURL(params map[string]interface{}) (*base.QueryResult, error) {
	bucket, key, err := c.resolveObject(params, "Query")
	if err != nil {
		return nil, err
	}

	expiresIn := intParam(params, "expires_in", c.GetIntOption("signed_url_expiry", defaultSignedURLExpiry))
	expiration := time.Now().Add(time.Duration(expiresIn) * time.Second)
	method := strings.ToUpper(stringParam(params, "method", "GET"))

	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  method,
		Expires: expiration,
	}
	if method == "PUT" {
		if contentType := stringParam(params, "content_type", ""); contentType != "" {
			opts.ContentType = contentType
		}
	}

	url, err := c.client.Bucket(bucket).SignedURL(key, opts)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "failed to generate signed URL", err)
	}

	return &base.QueryResult{
		Rows: []map[string]interface{}{{
			"url":        url,
			"bucket":     bucket,
			"key":        key,
			"method":     method,
			"expires_at": expiration,
		}},
		RowCount: 1,
	}, nil
}

func (c *GCSConnector) putObject(ctx context.Context, params map[string]interface{}) (*base.CommandResult, error) {
	bucket, key, err := c.resolveObject(params, "Execute")
	if err != nil {
		return nil, err
	}

	writer := c.client.Bucket(bucket).Object(key).NewWriter(ctx)
	writer.ContentType = stringParam(params, "content_type", "application/octet-stream")
	if metadata, ok := params["metadata"].(map[string]string); ok {
		writer.Metadata = metadata
	}
	if cacheControl := stringParam(params, "cache_control", ""); cacheControl != "" {
		writer.CacheControl = cacheControl
	}

	if _, err := writer.Write([]byte(stringParam(params, "content", ""))); err != nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "failed to write object", err)
	}
	if err := writer.Close(); err != nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "failed to finalize upload", err)
	}

	return &base.CommandResult{
		Success:      true,
		RowsAffected: 1,
		Message:      fmt.Sprintf("uploaded object %s to bucket %s", key, bucket),
		Metadata: map[string]interface{}{
			"bucket": bucket,
			"key":    key,
		},
	}, nil
}

func (c *GCSConnector) deleteObject(ctx context.Context, params map[string]interface{}) (*base.CommandResult, error) {
	bucket, key, err := c.resolveObject(params, "Execute")
	if err != nil {
		return nil, err
	}

	obj := c.client.Bucket(bucket).Object(key)
	if gen := intParam(params, "generation", 0); gen > 0 {
		obj = obj.Generation(int64(gen))
	}
	if err := obj.Delete(ctx); err != nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "failed to delete object", err)
	}

	return &base.CommandResult{
		Success:      true,
		RowsAffected: 1,
		Message:      fmt.Sprintf("deleted object %s from bucket %s", key, bucket),
	}, nil
}

func (c *GCSConnector) copyObject(ctx context.Context, params map[string]interface{}) (*base.CommandResult, error) {
	srcBucket := stringParam(params, "source_bucket", c.defaultBucket)
	srcKey := stringParam(params, "source_key", "")
	if srcBucket == "" || srcKey == "" {
		return nil, base.NewConnectorError(c.Name(), "Execute", "source_bucket and source_key are required", nil)
	}
	dstBucket := stringParam(params, "destination_bucket", srcBucket)
	dstKey := stringParam(params, "destination_key", "")
	if dstKey == "" {
		return nil, base.NewConnectorError(c.Name(), "Execute", "destination_key is required", nil)
	}

	copier := c.client.Bucket(dstBucket).Object(dstKey).CopierFrom(c.client.Bucket(srcBucket).Object(srcKey))
	if contentType := stringParam(params, "content_type", ""); contentType != "" {
		copier.ContentType = contentType
	}

	attrs, err := copier.Run(ctx)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "failed to copy object", err)
	}

	return &base.CommandResult{
		Success:      true,
		RowsAffected: 1,
		Message:      fmt.Sprintf("copied %s/%s to %s/%s", srcBucket, srcKey, dstBucket, dstKey),
		Metadata: map[string]interface{}{
			"generation": attrs.Generation,
			"size":       attrs.Size,
		},
	}, nil
}

// resolveBucket prefers an explicit bucket parameter over the default.
func (c *GCSConnector) resolveBucket(params map[string]interface{}) string {
	if bucket := stringParam(params, "bucket", ""); bucket != "" {
		return bucket
	}
	return c.defaultBucket
}

// resolveObject extracts the bucket and key, erroring when either is
// missing.
func (c *GCSConnector) resolveObject(params map[string]interface{}, operation string) (string, string, error) {
	bucket := c.resolveBucket(params)
	if bucket == "" {
		return "", "", base.NewConnectorError(c.Name(), operation, "bucket is required", nil)
	}
	key := stringParam(params, "key", "")
	if key == "" {
		return "", "", base.NewConnectorError(c.Name(), operation, "key is required", nil)
	}
	return bucket, key, nil
}

func stringParam(params map[string]interface{}, key, fallback string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return fallback
}

func intParam(params map[string]interface{}, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

var _ base.Connector = (*GCSConnector)(nil)
