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

package server

import (
	"os"
	"path/filepath"
	"testing"

	"strataql/engine/connectors/config"
	"strataql/engine/connectors/registry"
	"strataql/engine/planner"
	"strataql/engine/shared/logger"
)

func TestRegisterConfiguredSources_SkipsUnreachable(t *testing.T) {
	registry.ResetSeedForTesting()
	t.Cleanup(registry.ResetSeedForTesting)

	path := filepath.Join(t.TempDir(), "connectors.yaml")
	content := `
version: "1"
connectors:
  dead_cache:
    type: redis
    enabled: true
    connection_url: redis://127.0.0.1:1
    timeout_ms: 200
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	catalog := planner.NewCatalog(registry.NewRegistry())
	// An unreachable source is skipped, never fatal.
	if err := registerConfiguredSources(catalog, path, logger.New("engined-test")); err != nil {
		t.Fatalf("registerConfiguredSources failed: %v", err)
	}
	if catalog.Exists("dead_cache") {
		t.Error("unreachable source should not be registered")
	}
}

func TestRegisterConfiguredSources_MissingFile(t *testing.T) {
	registry.ResetSeedForTesting()
	t.Cleanup(registry.ResetSeedForTesting)

	catalog := planner.NewCatalog(registry.NewRegistry())
	err := registerConfiguredSources(catalog, filepath.Join(t.TempDir(), "nope.yaml"), logger.New("engined-test"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestBuildSecretsManager_DefaultsToEnv(t *testing.T) {
	t.Setenv("STRATAQL_SECRETS_REGION", "")

	sm, err := buildSecretsManager()
	if err != nil {
		t.Fatalf("buildSecretsManager failed: %v", err)
	}
	if _, ok := sm.(config.EnvSecretsManager); !ok {
		t.Errorf("expected EnvSecretsManager, got %T", sm)
	}
}
