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

package azureblob

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"

	"strataql/engine/connectors/base"
	"strataql/engine/connectors/sdk"
)

const defaultSASExpiry = 3600 // seconds

// AzureBlobConnector exposes Azure Blob Storage as a data source.
type AzureBlobConnector struct {
	sdk.BaseConnector
	client           *azblob.Client
	serviceClient    *service.Client
	accountName      string
	defaultContainer string
}

// NewAzureBlobConnector creates a new Azure Blob connector.
func NewAzureBlobConnector() *AzureBlobConnector {
	conn := &AzureBlobConnector{}
	conn.BaseConnector = *sdk.NewBaseConnector("azure_blob")
	conn.SetCapabilities([]string{"query", "execute", "presign", "streaming"})
	conn.SetValidator(sdk.NewDefaultConfigValidator(
		[]string{"account_name"},
		map[string]interface{}{"sas_expiry": defaultSASExpiry},
	))
	return conn
}

// Connect authenticates against the storage account. A connection
// string wins over a shared account key, which wins over managed
// identity; at least one method must be configured.
func (c *AzureBlobConnector) Connect(ctx context.Context, cfg *base.ConnectorConfig) error {
	if err := c.BaseConnector.Connect(ctx, cfg); err != nil {
		return err
	}

	c.accountName = c.GetStringOption("account_name", "")
	c.defaultContainer = c.GetStringOption("default_container", "")

	if err := c.buildClients(cfg.Name); err != nil {
		return err
	}

	if _, err := c.serviceClient.GetProperties(ctx, nil); err != nil {
		c.client = nil
		c.serviceClient = nil
		return base.NewConnectorError(cfg.Name, "Connect", "failed to verify Azure Blob connectivity", err)
	}

	c.Log("Connected to Azure Blob Storage (account=%s, container=%s)", c.accountName, c.defaultContainer)
	return nil
}

func (c *AzureBlobConnector) buildClients(name string) error {
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", c.accountName)

	switch {
	case c.GetCredential("connection_string") != "":
		connStr := c.GetCredential("connection_string")
		client, err := azblob.NewClientFromConnectionString(connStr, nil)
		if err != nil {
			return base.NewConnectorError(name, "Connect", "failed to create client from connection string", err)
		}
		svc, err := service.NewClientFromConnectionString(connStr, nil)
		if err != nil {
			return base.NewConnectorError(name, "Connect", "failed to create service client from connection string", err)
		}
		c.client, c.serviceClient = client, svc

	case c.GetCredential("account_key") != "":
		cred, err := azblob.NewSharedKeyCredential(c.accountName, c.GetCredential("account_key"))
		if err != nil {
			return base.NewConnectorError(name, "Connect", "failed to create shared key credential", err)
		}
		client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return base.NewConnectorError(name, "Connect", "failed to create client", err)
		}
		svc, err := service.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return base.NewConnectorError(name, "Connect", "failed to create service client", err)
		}
		c.client, c.serviceClient = client, svc

	case c.GetBoolOption("use_managed_identity", false):
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return base.NewConnectorError(name, "Connect", "failed to create Azure credential", err)
		}
		client, err := azblob.NewClient(serviceURL, cred, nil)
		if err != nil {
			return base.NewConnectorError(name, "Connect", "failed to create client", err)
		}
		svc, err := service.NewClient(serviceURL, cred, nil)
		if err != nil {
			return base.NewConnectorError(name, "Connect", "failed to create service client", err)
		}
		c.client, c.serviceClient = client, svc

	default:
		return base.NewConnectorError(name, "Connect", "no authentication method provided", nil)
	}
	return nil
}

// Disconnect drops the client references.
func (c *AzureBlobConnector) Disconnect(ctx context.Context) error {
	c.client = nil
	c.serviceClient = nil
	return c.BaseConnector.Disconnect(ctx)
}

// HealthCheck verifies the storage account is still reachable.
func (c *AzureBlobConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.serviceClient == nil {
		return &base.HealthStatus{
			Healthy:   false,
			Error:     "Azure Blob client not initialized",
			Timestamp: time.Now(),
		}, nil
	}

	start := time.Now()
	_, err := c.serviceClient.GetProperties(ctx, nil)
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
			"account_name":      c.accountName,
			"default_container": c.defaultContainer,
		},
		Timestamp: time.Now(),
	}, nil
}

// Query dispatches read operations. An empty statement lists blobs.
func (c *AzureBlobConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if c.client == nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "Azure Blob client not initialized", nil)
	}

	op := strings.ToLower(query.Statement)
	if op == "" {
		op = "list"
	}

	switch op {
	case "list_containers":
		return c.listContainers(ctx)
	case "list", "list_blobs":
		return c.listBlobs(ctx, query.Parameters)
	case "get", "get_blob":
		return c.getBlob(ctx, query.Parameters)
	case "head", "get_properties":
		return c.blobProperties(ctx, query.Parameters)
	case "sas_url", "generate_sas":
		return c.sasURL(query.Parameters)
	default:
		return nil, base.NewConnectorError(c.Name(), "Query", fmt.Sprintf("unknown operation: %s", query.Statement), nil)
	}
}

// Execute dispatches write operations selected by the command action.
func (c *AzureBlobConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	if c.client == nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "Azure Blob client not initialized", nil)
	}

	switch strings.ToLower(cmd.Action) {
	case "put", "upload", "upload_blob":
		return c.uploadBlob(ctx, cmd.Parameters)
	case "delete", "delete_blob":
		return c.deleteBlob(ctx, cmd.Parameters)
	case "copy", "copy_blob":
		return c.copyBlob(ctx, cmd.Parameters)
	default:
		return nil, base.NewConnectorError(c.Name(), "Execute", fmt.Sprintf("unknown action: %s", cmd.Action), nil)
	}
}

func (c *AzureBlobConnector) listContainers(ctx context.Context) (*base.QueryResult, error) {
	start := time.Now()

	pager := c.serviceClient.NewListContainersPager(nil)
	rows := make([]map[string]interface{}, 0)
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, base.NewConnectorError(c.Name(), "Query", "failed to list containers", err)
		}
		for _, item := range resp.ContainerItems {
			rows = append(rows, map[string]interface{}{
				"name":          derefString(item.Name),
				"last_modified": item.Properties.LastModified,
			})
		}
	}

	return &base.QueryResult{
		Rows:      rows,
		RowCount:  len(rows),
		Duration:  time.Since(start),
		Connector: c.Name(),
	}, nil
}

func (c *AzureBlobConnector) listBlobs(ctx context.Context, params map[string]interface{}) (*base.QueryResult, error) {
	start := time.Now()

	containerName := c.resolveContainer(params)
	prefix := stringParam(params, "prefix", "")
	maxResults := int32(intParam(params, "max_results", 1000))

	pager := c.serviceClient.NewContainerClient(containerName).NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
		Prefix:     &prefix,
		MaxResults: &maxResults,
	})

	rows := make([]map[string]interface{}, 0)
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, base.NewConnectorError(c.Name(), "Query", "failed to list blobs", err)
		}
		for _, item := range resp.Segment.BlobItems {
			row := map[string]interface{}{
				"name":          derefString(item.Name),
				"last_modified": item.Properties.LastModified,
				"content_type":  derefString(item.Properties.ContentType),
				"etag":          derefString((*string)(item.Properties.ETag)),
			}
			if item.Properties.ContentLength != nil {
				row["size"] = *item.Properties.ContentLength
			}
			rows = append(rows, row)
		}
	}

	return &base.QueryResult{
		Rows:      rows,
		RowCount:  len(rows),
		Duration:  time.Since(start),
		Connector: c.Name(),
	}, nil
}

func (c *AzureBlobConnector) getBlob(ctx context.Context, params map[string]interface{}) (*base.QueryResult, error) {
	start := time.Now()

	containerName, blobName, err := c.resolveBlob("Query", params)
	if err != nil {
		return nil, err
	}

	blobClient := c.client.ServiceClient().NewContainerClient(containerName).NewBlobClient(blobName)
	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", fmt.Sprintf("failed to download blob: %s", blobName), err)
	}

	content, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "failed to read blob content", err)
	}

	row := map[string]interface{}{
		"blob":          blobName,
		"container":     containerName,
		"content":       string(content),
		"content_type":  derefString(resp.ContentType),
		"last_modified": resp.LastModified,
	}
	if resp.ContentLength != nil {
		row["content_length"] = *resp.ContentLength
	}

	return &base.QueryResult{
		Rows:      []map[string]interface{}{row},
		RowCount:  1,
		Duration:  time.Since(start),
		Connector: c.Name(),
	}, nil
}

func (c *AzureBlobConnector) blobProperties(ctx context.Context, params map[string]interface{}) (*base.QueryResult, error) {
	start := time.Now()

	containerName, blobName, err := c.resolveBlob("Query", params)
	if err != nil {
		return nil, err
	}

	props, err := c.client.ServiceClient().NewContainerClient(containerName).NewBlobClient(blobName).GetProperties(ctx, nil)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", fmt.Sprintf("failed to get blob properties: %s", blobName), err)
	}

	row := map[string]interface{}{
		"blob":          blobName,
		"container":     containerName,
		"content_type":  derefString(props.ContentType),
		"last_modified": props.LastModified,
		"etag":          derefString((*string)(props.ETag)),
	}
	if props.ContentLength != nil {
		row["content_length"] = *props.ContentLength
	}
	if len(props.Metadata) > 0 {
		row["metadata"] = props.Metadata
	}

	return &base.QueryResult{
		Rows:      []map[string]interface{}{row},
		RowCount:  1,
		Duration:  time.Since(start),
		Connector: c.Name(),
	}, nil
}

// sasURL builds a shared access signature URL. The shared account key
// is required since SAS tokens are signed with it.
func (c *AzureBlobConnector) sasURL(params map[string]interface{}) (*base.QueryResult, error) {
	start := time.Now()

	containerName, blobName, err := c.resolveBlob("Query", params)
	if err != nil {
		return nil, err
	}

	accountKey := c.GetCredential("account_key")
	if accountKey == "" {
		return nil, base.NewConnectorError(c.Name(), "Query", "account key required for SAS generation", nil)
	}

	permissions := stringParam(params, "permissions", "r")
	expiry := intParam(params, "expiry", c.GetIntOption("sas_expiry", defaultSASExpiry))
	expiryTime := time.Now().Add(time.Duration(expiry) * time.Second)

	cred, err := azblob.NewSharedKeyCredential(c.accountName, accountKey)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "failed to create credential for SAS", err)
	}

	blobPermissions := parsePermissions(permissions)
	sasParams, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		StartTime:     time.Now().Add(-10 * time.Minute),
		ExpiryTime:    expiryTime,
		Permissions:   blobPermissions.String(),
		ContainerName: containerName,
		BlobName:      blobName,
	}.SignWithSharedKey(cred)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "failed to generate SAS token", err)
	}

	url := fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s?%s",
		c.accountName, containerName, blobName, sasParams.Encode())

	return &base.QueryResult{
		Rows: []map[string]interface{}{{
			"url":         url,
			"expires_at":  expiryTime,
			"permissions": permissions,
		}},
		RowCount:  1,
		Duration:  time.Since(start),
		Connector: c.Name(),
	}, nil
}

func (c *AzureBlobConnector) uploadBlob(ctx context.Context, params map[string]interface{}) (*base.CommandResult, error) {
	start := time.Now()

	containerName, blobName, err := c.resolveBlob("Execute", params)
	if err != nil {
		return nil, err
	}
	contentType := stringParam(params, "content_type", "application/octet-stream")

	_, err = c.client.UploadBuffer(ctx, containerName, blobName,
		[]byte(stringParam(params, "content", "")),
		&azblob.UploadBufferOptions{
			HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
		})
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", fmt.Sprintf("failed to upload blob: %s", blobName), err)
	}

	return &base.CommandResult{
		Success:      true,
		RowsAffected: 1,
		Duration:     time.Since(start),
		Message:      fmt.Sprintf("Blob uploaded: %s", blobName),
		Connector:    c.Name(),
	}, nil
}

func (c *AzureBlobConnector) deleteBlob(ctx context.Context, params map[string]interface{}) (*base.CommandResult, error) {
	start := time.Now()

	containerName, blobName, err := c.resolveBlob("Execute", params)
	if err != nil {
		return nil, err
	}

	if _, err := c.client.DeleteBlob(ctx, containerName, blobName, nil); err != nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", fmt.Sprintf("failed to delete blob: %s", blobName), err)
	}

	return &base.CommandResult{
		Success:      true,
		RowsAffected: 1,
		Duration:     time.Since(start),
		Message:      fmt.Sprintf("Blob deleted: %s", blobName),
		Connector:    c.Name(),
	}, nil
}

// copyBlob starts a server-side copy. The copy completes
// asynchronously on the Azure side.
func (c *AzureBlobConnector) copyBlob(ctx context.Context, params map[string]interface{}) (*base.CommandResult, error) {
	start := time.Now()

	sourceBlob := stringParam(params, "source_blob", "")
	destBlob := stringParam(params, "dest_blob", "")
	if sourceBlob == "" || destBlob == "" {
		return nil, base.NewConnectorError(c.Name(), "Execute", "source_blob and dest_blob are required", nil)
	}
	sourceContainer := stringParam(params, "source_container", c.defaultContainer)
	destContainer := stringParam(params, "dest_container", c.defaultContainer)

	sourceURL := fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s",
		c.accountName, sourceContainer, sourceBlob)

	destClient := c.client.ServiceClient().NewContainerClient(destContainer).NewBlobClient(destBlob)
	if _, err := destClient.StartCopyFromURL(ctx, sourceURL, nil); err != nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "failed to copy blob", err)
	}

	return &base.CommandResult{
		Success:      true,
		RowsAffected: 1,
		Duration:     time.Since(start),
		Message:      fmt.Sprintf("Blob copy started from %s to %s/%s", sourceURL, destContainer, destBlob),
		Connector:    c.Name(),
	}, nil
}

// resolveContainer prefers an explicit container parameter over the
// default.
func (c *AzureBlobConnector) resolveContainer(params map[string]interface{}) string {
	if name := stringParam(params, "container", ""); name != "" {
		return name
	}
	return c.defaultContainer
}

func (c *AzureBlobConnector) resolveBlob(op string, params map[string]interface{}) (string, string, error) {
	blobName := stringParam(params, "blob", "")
	if blobName == "" {
		return "", "", base.NewConnectorError(c.Name(), op, "blob name is required", nil)
	}
	return c.resolveContainer(params), blobName, nil
}

// parsePermissions maps permission letters (r, w, d, c) onto blob SAS
// permissions.
func parsePermissions(permissions string) sas.BlobPermissions {
	perms := sas.BlobPermissions{}
	for _, p := range permissions {
		switch p {
		case 'r':
			perms.Read = true
		case 'w':
			perms.Write = true
		case 'd':
			perms.Delete = true
		case 'c':
			perms.Create = true
		}
	}
	return perms
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

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ base.Connector = (*AzureBlobConnector)(nil)
