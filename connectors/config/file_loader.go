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
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"strataql/engine/connectors/base"
	"strataql/engine/connectors/factory"
)

// File is the root structure of a configuration file.
type File struct {
	Version    string                         `yaml:"version"`
	Connectors map[string]ConnectorFileConfig `yaml:"connectors,omitempty"`
}

// ConnectorFileConfig is one connector entry in the config file.
type ConnectorFileConfig struct {
	Type              string                 `yaml:"type"`
	Enabled           bool                   `yaml:"enabled"`
	DisplayName       string                 `yaml:"display_name,omitempty"`
	Description       string                 `yaml:"description,omitempty"`
	ConnectionURL     string                 `yaml:"connection_url,omitempty"`
	Credentials       map[string]string      `yaml:"credentials,omitempty"`
	CredentialsSecret string                 `yaml:"credentials_secret,omitempty"`
	Options           map[string]interface{} `yaml:"options,omitempty"`
	TimeoutMs         int                    `yaml:"timeout_ms,omitempty"`
	MaxRetries        int                    `yaml:"max_retries,omitempty"`
}

// FileLoader reads connector configurations from a YAML file with
// environment variable expansion.
type FileLoader struct {
	path string
	file *File
	// secret references by connector name, resolved separately
	secretRefs map[string]string
}

// NewFileLoader parses the configuration file at path.
func NewFileLoader(path string) (*FileLoader, error) {
	loader := &FileLoader{path: path}
	if err := loader.Reload(); err != nil {
		return nil, err
	}
	return loader, nil
}

// Reload re-reads and re-parses the configuration file.
func (l *FileLoader) Reload() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", l.path, err)
	}

	var file File
	if err := yaml.Unmarshal([]byte(ExpandEnvVars(string(data))), &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", l.path, err)
	}
	if err := ValidateFile(&file); err != nil {
		return err
	}

	l.file = &file
	l.secretRefs = make(map[string]string)
	for name, entry := range file.Connectors {
		if entry.CredentialsSecret != "" {
			l.secretRefs[strings.ToLower(name)] = entry.CredentialsSecret
		}
	}
	return nil
}

// Connectors returns the enabled connector configurations, sorted by
// name for deterministic registration order.
func (l *FileLoader) Connectors() []*base.ConnectorConfig {
	if l.file == nil {
		return nil
	}

	configs := make([]*base.ConnectorConfig, 0, len(l.file.Connectors))
	for name, entry := range l.file.Connectors {
		if !entry.Enabled {
			continue
		}

		timeout := time.Duration(entry.TimeoutMs) * time.Millisecond
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		maxRetries := entry.MaxRetries
		if maxRetries == 0 {
			maxRetries = defaultMaxRetries
		}

		credentials := entry.Credentials
		if credentials == nil {
			credentials = make(map[string]string)
		}
		options := entry.Options
		if options == nil {
			options = make(map[string]interface{})
		}

		configs = append(configs, &base.ConnectorConfig{
			Name:          strings.ToLower(name),
			Type:          entry.Type,
			ConnectionURL: entry.ConnectionURL,
			Credentials:   credentials,
			Options:       options,
			Timeout:       timeout,
			MaxRetries:    maxRetries,
		})
	}

	sort.Slice(configs, func(i, j int) bool { return configs[i].Name < configs[j].Name })
	return configs
}

// ResolveCredentials fetches each connector's credentials_secret via
// the secrets manager and merges the resolved pairs into the config.
// Inline credentials win over secret values on key collision.
func (l *FileLoader) ResolveCredentials(ctx context.Context, secrets SecretsManager, configs []*base.ConnectorConfig) error {
	if secrets == nil || len(l.secretRefs) == 0 {
		return nil
	}

	for _, cfg := range configs {
		ref, ok := l.secretRefs[cfg.Name]
		if !ok {
			continue
		}
		resolved, err := secrets.GetSecret(ctx, ref)
		if err != nil {
			return fmt.Errorf("failed to resolve credentials for connector %s: %w", cfg.Name, err)
		}
		for key, value := range resolved {
			if _, exists := cfg.Credentials[key]; !exists {
				cfg.Credentials[key] = value
			}
		}
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} references.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandEnvVars replaces ${VAR} and ${VAR:-default} references with
// environment values. Undefined variables without a default expand to
// the empty string.
func ExpandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		expr := match[2 : len(match)-1]

		name := expr
		fallback := ""
		if idx := strings.Index(expr, ":-"); idx != -1 {
			name = expr[:idx]
			fallback = expr[idx+2:]
		}

		if value := os.Getenv(name); value != "" {
			return value
		}
		return fallback
	})
}

// ValidateFile checks the structural invariants of a parsed config
// file: a version, and a known type on every connector entry.
func ValidateFile(file *File) error {
	if file.Version == "" {
		return fmt.Errorf("config file must specify a version")
	}
	for name, entry := range file.Connectors {
		if entry.Type == "" {
			return fmt.Errorf("connector %q must specify a type", name)
		}
		if !factory.IsValidType(entry.Type) {
			return fmt.Errorf("connector %q has unknown type %q", name, entry.Type)
		}
	}
	return nil
}
