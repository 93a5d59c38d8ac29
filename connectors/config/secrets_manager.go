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

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManager resolves a secret reference into credential key/value
// pairs. Implementations must be safe for concurrent use.
type SecretsManager interface {
	GetSecret(ctx context.Context, ref string) (map[string]string, error)
}

const defaultSecretCacheTTL = 5 * time.Minute

type secretCacheEntry struct {
	values    map[string]string
	expiresAt time.Time
}

// AWSSecretsManager resolves secrets from AWS Secrets Manager with an
// in-memory TTL cache so repeated connector registrations do not hammer
// the API.
type AWSSecretsManager struct {
	client *secretsmanager.Client
	cache  map[string]*secretCacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
	logger *log.Logger
}

// AWSSecretsManagerOptions configures NewAWSSecretsManager.
type AWSSecretsManagerOptions struct {
	Region   string
	CacheTTL time.Duration
	Logger   *log.Logger
}

// NewAWSSecretsManager builds a secrets manager backed by AWS using the
// default credential chain.
func NewAWSSecretsManager(ctx context.Context, opts AWSSecretsManagerOptions) (*AWSSecretsManager, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultSecretCacheTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[SECRETS_MANAGER] ", log.LstdFlags)
	}

	return &AWSSecretsManager{
		client: secretsmanager.NewFromConfig(awsCfg),
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		logger: logger,
	}, nil
}

// GetSecret fetches a secret by name or ARN. JSON secrets are decoded
// into key/value pairs; plain-string secrets are returned under the
// "value" key.
func (m *AWSSecretsManager) GetSecret(ctx context.Context, ref string) (map[string]string, error) {
	m.mu.RLock()
	entry, ok := m.cache[ref]
	m.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.values, nil
	}

	output, err := m.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &ref,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch secret %s: %w", maskSecretRef(ref), err)
	}
	if output.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskSecretRef(ref))
	}

	values := parseSecretString(*output.SecretString)

	m.mu.Lock()
	m.cache[ref] = &secretCacheEntry{
		values:    values,
		expiresAt: time.Now().Add(m.ttl),
	}
	m.mu.Unlock()

	m.logger.Printf("Resolved secret %s (%d keys)", maskSecretRef(ref), len(values))
	return values, nil
}

// InvalidateSecret drops one cached secret.
func (m *AWSSecretsManager) InvalidateSecret(ref string) {
	m.mu.Lock()
	delete(m.cache, ref)
	m.mu.Unlock()
}

// InvalidateAll drops the entire cache.
func (m *AWSSecretsManager) InvalidateAll() {
	m.mu.Lock()
	m.cache = make(map[string]*secretCacheEntry)
	m.mu.Unlock()
}

// parseSecretString decodes a JSON object secret into string pairs.
// Non-JSON secrets become a single "value" entry.
func parseSecretString(raw string) map[string]string {
	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return map[string]string{"value": raw}
	}

	values := make(map[string]string, len(decoded))
	for key, v := range decoded {
		switch typed := v.(type) {
		case string:
			values[key] = typed
		default:
			values[key] = fmt.Sprintf("%v", typed)
		}
	}
	return values
}

// maskSecretRef keeps only the tail of a secret reference so ARNs do
// not leak into logs.
func maskSecretRef(ref string) string {
	if len(ref) <= 12 {
		return "***"
	}
	return "***" + ref[len(ref)-8:]
}

// LocalSecretsManager is an in-memory SecretsManager for tests and
// local development.
type LocalSecretsManager struct {
	mu      sync.RWMutex
	secrets map[string]map[string]string
}

// NewLocalSecretsManager returns an empty local secrets store.
func NewLocalSecretsManager() *LocalSecretsManager {
	return &LocalSecretsManager{secrets: make(map[string]map[string]string)}
}

// SetSecret stores a secret under ref.
func (m *LocalSecretsManager) SetSecret(ref string, values map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	m.secrets[ref] = copied
}

// GetSecret returns the stored secret or an error when absent.
func (m *LocalSecretsManager) GetSecret(_ context.Context, ref string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	values, ok := m.secrets[ref]
	if !ok {
		return nil, fmt.Errorf("secret %s not found", ref)
	}
	return values, nil
}

// EnvSecretsManager resolves secrets from environment variables. The
// ref is used as a prefix: ref "MYAPP_DB" resolves MYAPP_DB_USERNAME,
// MYAPP_DB_PASSWORD, and so on.
type EnvSecretsManager struct{}

// secretEnvFields are the environment suffixes scanned per reference.
var secretEnvFields = []string{
	"USERNAME", "PASSWORD", "API_KEY", "API_SECRET",
	"CLIENT_ID", "CLIENT_SECRET", "TOKEN", "PRIVATE_KEY",
	"ACCESS_KEY", "SECRET_KEY", "HOST", "PORT", "DATABASE",
}

// GetSecret scans the environment for prefix-matched credential fields.
func (EnvSecretsManager) GetSecret(_ context.Context, ref string) (map[string]string, error) {
	values := make(map[string]string)
	for _, field := range secretEnvFields {
		if v := os.Getenv(ref + "_" + field); v != "" {
			values[strings.ToLower(field)] = v
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no environment variables found with prefix %s_", ref)
	}
	return values, nil
}
