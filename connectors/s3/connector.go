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

package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"strataql/engine/connectors/base"
	"strataql/engine/connectors/sdk"
)

const defaultPresignExpiry = 3600 // seconds

// S3Connector exposes S3 buckets and objects as a data source.
type S3Connector struct {
	sdk.BaseConnector
	client        *s3.Client
	presignClient *s3.PresignClient
	defaultBucket string
}

// NewS3Connector creates a new S3 connector. Credentials are optional:
// without explicit keys the default AWS credential chain applies.
func NewS3Connector() *S3Connector {
	conn := &S3Connector{}
	conn.BaseConnector = *sdk.NewBaseConnector("s3")
	conn.SetCapabilities([]string{"query", "execute", "presign", "streaming"})
	conn.SetValidator(sdk.NewDefaultConfigValidator(nil, map[string]interface{}{
		"region":         "us-east-1",
		"presign_expiry": defaultPresignExpiry,
	}))
	return conn
}

// Connect builds the S3 client and verifies connectivity with a
// HeadBucket (when default_bucket is set) or a ListBuckets call.
func (c *S3Connector) Connect(ctx context.Context, cfg *base.ConnectorConfig) error {
	if err := c.BaseConnector.Connect(ctx, cfg); err != nil {
		return err
	}

	region := c.GetStringOption("region", "us-east-1")

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	accessKeyID := c.GetCredential("access_key_id")
	secretAccessKey := c.GetCredential("secret_access_key")
	if accessKeyID != "" && secretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, c.GetCredential("session_token")),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return base.NewConnectorError(cfg.Name, "Connect", "failed to load AWS config", err)
	}

	var clientOpts []func(*s3.Options)
	if endpoint := c.GetStringOption("endpoint", ""); endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if c.GetBoolOption("force_path_style", false) {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	c.client = s3.NewFromConfig(awsCfg, clientOpts...)
	c.presignClient = s3.NewPresignClient(c.client)
	c.defaultBucket = c.GetStringOption("default_bucket", "")

	if err := c.probe(ctx); err != nil {
		c.client = nil
		c.presignClient = nil
		return base.NewConnectorError(cfg.Name, "Connect", "failed to verify S3 connectivity", err)
	}

	c.Log("Connected to S3 (region=%s, bucket=%s)", region, c.defaultBucket)
	return nil
}

// Disconnect drops the client references.
func (c *S3Connector) Disconnect(ctx context.Context) error {
	c.client = nil
	c.presignClient = nil
	return c.BaseConnector.Disconnect(ctx)
}

// HealthCheck verifies the bucket (or account) is still reachable.
func (c *S3Connector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.client == nil {
		return &base.HealthStatus{
			Healthy:   false,
			Error:     "S3 client not initialized",
			Timestamp: time.Now(),
		}, nil
	}

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
			"default_bucket": c.defaultBucket,
			"region":         c.GetStringOption("region", "us-east-1"),
		},
		Timestamp: time.Now(),
	}, nil
}

// probe checks the default bucket when configured, the account otherwise.
func (c *S3Connector) probe(ctx context.Context) error {
	var err error
	if c.defaultBucket != "" {
		_, err = c.client.HeadBucket(ctx, &s3.HeadBucketInput{
			Bucket: aws.String(c.defaultBucket),
		})
	} else {
		_, err = c.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	}
	return err
}

// Query dispatches read operations. The statement names the operation;
// an empty statement lists objects.
func (c *S3Connector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if c.client == nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "S3 client not initialized", nil)
	}

	op := strings.ToLower(query.Statement)
	if op == "" {
		op = "list"
	}

	switch op {
	case "list_buckets":
		return c.listBuckets(ctx)
	case "list", "list_objects":
		return c.listObjects(ctx, query.Parameters)
	case "get", "get_object":
		return c.getObject(ctx, query.Parameters)
	case "head", "head_object":
		return c.headObject(ctx, query.Parameters)
	case "presign_get":
		return c.presignGet(ctx, query.Parameters)
	case "presign_put":
		return c.presignPut(ctx, query.Parameters)
	default:
		return nil, base.NewConnectorError(c.Name(), "Query", fmt.Sprintf("unknown operation: %s", query.Statement), nil)
	}
}

// Execute dispatches write operations selected by the command action.
func (c *S3Connector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	if c.client == nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "S3 client not initialized", nil)
	}

	switch strings.ToLower(cmd.Action) {
	case "put", "put_object", "upload":
		return c.putObject(ctx, cmd.Parameters)
	case "delete", "delete_object":
		return c.deleteObject(ctx, cmd.Parameters)
	case "delete_many", "delete_objects":
		return c.deleteObjects(ctx, cmd.Parameters)
	case "copy", "copy_object":
		return c.copyObject(ctx, cmd.Parameters)
	default:
		return nil, base.NewConnectorError(c.Name(), "Execute", fmt.Sprintf("unknown action: %s", cmd.Action), nil)
	}
}

func (c *S3Connector) listBuckets(ctx context.Context) (*base.QueryResult, error) {
	start := time.Now()

	output, err := c.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "failed to list buckets", err)
	}

	rows := make([]map[string]interface{}, 0, len(output.Buckets))
	for _, bucket := range output.Buckets {
		rows = append(rows, map[string]interface{}{
			"name":          aws.ToString(bucket.Name),
			"creation_date": bucket.CreationDate,
		})
	}

	return &base.QueryResult{
		Rows:      rows,
		RowCount:  len(rows),
		Duration:  time.Since(start),
		Connector: c.Name(),
	}, nil
}

func (c *S3Connector) listObjects(ctx context.Context, params map[string]interface{}) (*base.QueryResult, error) {
	start := time.Now()

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.resolveBucket(params)),
		Prefix:  aws.String(stringParam(params, "prefix", "")),
		MaxKeys: aws.Int32(int32(intParam(params, "max_keys", 1000))),
	}
	if delimiter := stringParam(params, "delimiter", ""); delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}
	if token := stringParam(params, "continuation_token", ""); token != "" {
		input.ContinuationToken = aws.String(token)
	}

	output, err := c.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "failed to list objects", err)
	}

	rows := make([]map[string]interface{}, 0, len(output.Contents))
	for _, obj := range output.Contents {
		rows = append(rows, map[string]interface{}{
			"key":           aws.ToString(obj.Key),
			"size":          obj.Size,
			"last_modified": obj.LastModified,
			"etag":          strings.Trim(aws.ToString(obj.ETag), "\""),
			"storage_class": string(obj.StorageClass),
		})
	}

	metadata := map[string]interface{}{
		"is_truncated": output.IsTruncated,
		"key_count":    output.KeyCount,
	}
	if output.NextContinuationToken != nil {
		metadata["next_continuation_token"] = aws.ToString(output.NextContinuationToken)
	}
	if len(output.CommonPrefixes) > 0 {
		prefixes := make([]string, 0, len(output.CommonPrefixes))
		for _, p := range output.CommonPrefixes {
			prefixes = append(prefixes, aws.ToString(p.Prefix))
		}
		metadata["common_prefixes"] = prefixes
	}

	return &base.QueryResult{
		Rows:      rows,
		RowCount:  len(rows),
		Duration:  time.Since(start),
		Connector: c.Name(),
		Metadata:  metadata,
	}, nil
}

func (c *S3Connector) getObject(ctx context.Context, params map[string]interface{}) (*base.QueryResult, error) {
	start := time.Now()

	key := stringParam(params, "key", "")
	if key == "" {
		return nil, base.NewConnectorError(c.Name(), "Query", "key is required", nil)
	}

	output, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.resolveBucket(params)),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", fmt.Sprintf("failed to get object: %s", key), err)
	}
	defer func() { _ = output.Body.Close() }()

	content, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "failed to read object content", err)
	}

	row := map[string]interface{}{
		"key":            key,
		"content":        string(content),
		"content_length": output.ContentLength,
		"content_type":   aws.ToString(output.ContentType),
		"etag":           strings.Trim(aws.ToString(output.ETag), "\""),
		"last_modified":  output.LastModified,
	}
	if len(output.Metadata) > 0 {
		row["metadata"] = output.Metadata
	}

	return &base.QueryResult{
		Rows:      []map[string]interface{}{row},
		RowCount:  1,
		Duration:  time.Since(start),
		Connector: c.Name(),
	}, nil
}

func (c *S3Connector) headObject(ctx context.Context, params map[string]interface{}) (*base.QueryResult, error) {
	start := time.Now()

	key := stringParam(params, "key", "")
	if key == "" {
		return nil, base.NewConnectorError(c.Name(), "Query", "key is required", nil)
	}

	output, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.resolveBucket(params)),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", fmt.Sprintf("failed to head object: %s", key), err)
	}

	row := map[string]interface{}{
		"key":            key,
		"content_length": output.ContentLength,
		"content_type":   aws.ToString(output.ContentType),
		"etag":           strings.Trim(aws.ToString(output.ETag), "\""),
		"last_modified":  output.LastModified,
		"storage_class":  string(output.StorageClass),
	}
	if len(output.Metadata) > 0 {
		row["metadata"] = output.Metadata
	}

	return &base.QueryResult{
		Rows:      []map[string]interface{}{row},
		RowCount:  1,
		Duration:  time.Since(start),
		Connector: c.Name(),
	}, nil
}

func (c *S3Connector) presignGet(ctx context.Context, params map[string]interface{}) (*base.QueryResult, error) {
	start := time.Now()

	key := stringParam(params, "key", "")
	if key == "" {
		return nil, base.NewConnectorError(c.Name(), "Query", "key is required", nil)
	}
	expiry := c.presignExpiry(params)

	presigned, err := c.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.resolveBucket(params)),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "failed to presign get object", err)
	}

	return &base.QueryResult{
		Rows: []map[string]interface{}{{
			"url":        presigned.URL,
			"method":     presigned.Method,
			"expires_at": time.Now().Add(expiry),
		}},
		RowCount:  1,
		Duration:  time.Since(start),
		Connector: c.Name(),
	}, nil
}

func (c *S3Connector) presignPut(ctx context.Context, params map[string]interface{}) (*base.QueryResult, error) {
	start := time.Now()

	key := stringParam(params, "key", "")
	if key == "" {
		return nil, base.NewConnectorError(c.Name(), "Query", "key is required", nil)
	}
	contentType := stringParam(params, "content_type", "application/octet-stream")
	expiry := c.presignExpiry(params)

	presigned, err := c.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.resolveBucket(params)),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "failed to presign put object", err)
	}

	return &base.QueryResult{
		Rows: []map[string]interface{}{{
			"url":          presigned.URL,
			"method":       presigned.Method,
			"content_type": contentType,
			"expires_at":   time.Now().Add(expiry),
		}},
		RowCount:  1,
		Duration:  time.Since(start),
		Connector: c.Name(),
	}, nil
}

func (c *S3Connector) putObject(ctx context.Context, params map[string]interface{}) (*base.CommandResult, error) {
	start := time.Now()

	key := stringParam(params, "key", "")
	if key == "" {
		return nil, base.NewConnectorError(c.Name(), "Execute", "key is required", nil)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.resolveBucket(params)),
		Key:         aws.String(key),
		Body:        bytes.NewReader([]byte(stringParam(params, "content", ""))),
		ContentType: aws.String(stringParam(params, "content_type", "application/octet-stream")),
	}
	if metadata := metadataParam(params); len(metadata) > 0 {
		input.Metadata = metadata
	}

	output, err := c.client.PutObject(ctx, input)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", fmt.Sprintf("failed to put object: %s", key), err)
	}

	return &base.CommandResult{
		Success:      true,
		RowsAffected: 1,
		Duration:     time.Since(start),
		Message:      fmt.Sprintf("Object uploaded: %s", key),
		Connector:    c.Name(),
		Metadata: map[string]interface{}{
			"etag":       strings.Trim(aws.ToString(output.ETag), "\""),
			"version_id": aws.ToString(output.VersionId),
		},
	}, nil
}

func (c *S3Connector) deleteObject(ctx context.Context, params map[string]interface{}) (*base.CommandResult, error) {
	start := time.Now()

	key := stringParam(params, "key", "")
	if key == "" {
		return nil, base.NewConnectorError(c.Name(), "Execute", "key is required", nil)
	}

	input := &s3.DeleteObjectInput{
		Bucket: aws.String(c.resolveBucket(params)),
		Key:    aws.String(key),
	}
	if versionID := stringParam(params, "version_id", ""); versionID != "" {
		input.VersionId = aws.String(versionID)
	}

	if _, err := c.client.DeleteObject(ctx, input); err != nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", fmt.Sprintf("failed to delete object: %s", key), err)
	}

	return &base.CommandResult{
		Success:      true,
		RowsAffected: 1,
		Duration:     time.Since(start),
		Message:      fmt.Sprintf("Object deleted: %s", key),
		Connector:    c.Name(),
	}, nil
}

func (c *S3Connector) deleteObjects(ctx context.Context, params map[string]interface{}) (*base.CommandResult, error) {
	start := time.Now()

	keys := stringListParam(params, "keys")
	if len(keys) == 0 {
		return nil, base.NewConnectorError(c.Name(), "Execute", "keys is required", nil)
	}

	objects := make([]types.ObjectIdentifier, 0, len(keys))
	for _, key := range keys {
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
	}

	output, err := c.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(c.resolveBucket(params)),
		Delete: &types.Delete{
			Objects: objects,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "failed to delete objects", err)
	}

	deleted := len(keys) - len(output.Errors)
	return &base.CommandResult{
		Success:      true,
		RowsAffected: deleted,
		Duration:     time.Since(start),
		Message:      fmt.Sprintf("Deleted %d objects", deleted),
		Connector:    c.Name(),
	}, nil
}

func (c *S3Connector) copyObject(ctx context.Context, params map[string]interface{}) (*base.CommandResult, error) {
	start := time.Now()

	sourceKey := stringParam(params, "source_key", "")
	destKey := stringParam(params, "dest_key", "")
	if sourceKey == "" || destKey == "" {
		return nil, base.NewConnectorError(c.Name(), "Execute", "source_key and dest_key are required", nil)
	}
	sourceBucket := stringParam(params, "source_bucket", c.defaultBucket)
	destBucket := stringParam(params, "dest_bucket", c.defaultBucket)

	copySource := fmt.Sprintf("%s/%s", sourceBucket, sourceKey)
	_, err := c.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(destBucket),
		Key:        aws.String(destKey),
		CopySource: aws.String(copySource),
	})
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "failed to copy object", err)
	}

	return &base.CommandResult{
		Success:      true,
		RowsAffected: 1,
		Duration:     time.Since(start),
		Message:      fmt.Sprintf("Object copied from %s to %s/%s", copySource, destBucket, destKey),
		Connector:    c.Name(),
	}, nil
}

// resolveBucket prefers an explicit bucket parameter over the default.
func (c *S3Connector) resolveBucket(params map[string]interface{}) string {
	if bucket := stringParam(params, "bucket", ""); bucket != "" {
		return bucket
	}
	return c.defaultBucket
}

func (c *S3Connector) presignExpiry(params map[string]interface{}) time.Duration {
	seconds := intParam(params, "expiry", c.GetIntOption("presign_expiry", defaultPresignExpiry))
	return time.Duration(seconds) * time.Second
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

func stringListParam(params map[string]interface{}, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// metadataParam reads user metadata supplied either as map[string]string
// or as a decoded JSON object.
func metadataParam(params map[string]interface{}) map[string]string {
	switch m := params["metadata"].(type) {
	case map[string]string:
		return m
	case map[string]interface{}:
		out := make(map[string]string, len(m))
		for k, v := range m {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	return nil
}

var _ base.Connector = (*S3Connector)(nil)
