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

package planner

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"strataql/engine/connectors/base"
	"strataql/engine/connectors/registry"
)

type stubConnector struct {
	name string
}

func (s *stubConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	return nil
}
func (s *stubConnector) Disconnect(ctx context.Context) error { return nil }
func (s *stubConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	return &base.HealthStatus{Healthy: true}, nil
}
func (s *stubConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	return &base.QueryResult{}, nil
}
func (s *stubConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	return &base.CommandResult{Success: true}, nil
}
func (s *stubConnector) Name() string           { return s.name }
func (s *stubConnector) Type() string           { return "stub" }
func (s *stubConnector) Version() string        { return "1.0.0" }
func (s *stubConnector) Capabilities() []string { return []string{"query"} }

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	registry.ResetSeedForTesting()
	t.Cleanup(registry.ResetSeedForTesting)
	return NewCatalog(registry.NewRegistry())
}

func TestCatalog_ResolveCaseInsensitive(t *testing.T) {
	catalog := newCatalog(t)
	desc := base.NewDescriptor(&stubConnector{name: "sales"}, "config")
	catalog.Register("Sales", desc)

	got, err := catalog.Resolve("SALES")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != desc {
		t.Error("Resolve returned a different descriptor")
	}
	if !catalog.Exists("sales") {
		t.Error("Exists should match regardless of case")
	}
}

func TestCatalog_ResolveMissSurfacesNotFound(t *testing.T) {
	catalog := newCatalog(t)

	_, err := catalog.Resolve("Orders_V2")
	if err == nil {
		t.Fatal("expected error for unknown source")
	}

	var notFound *registry.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *registry.NotFoundError, got %T", err)
	}
	if notFound.Name != "Orders_V2" {
		t.Errorf("error should carry the name as requested, got %q", notFound.Name)
	}
}

func TestCatalog_ForSessionIsolation(t *testing.T) {
	catalog := newCatalog(t)
	catalog.Register("shared", base.NewDescriptor(&stubConnector{name: "shared"}, "config"))

	session := catalog.ForSession()
	if !session.Exists("shared") {
		t.Fatal("session catalog should start with the source entries")
	}

	session.Register("session_only", base.NewDescriptor(&stubConnector{name: "session_only"}, "api"))
	if catalog.Exists("session_only") {
		t.Error("session registration leaked into the source catalog")
	}

	catalog.Register("late", base.NewDescriptor(&stubConnector{name: "late"}, "api"))
	if session.Exists("late") {
		t.Error("source registration leaked into the session catalog")
	}
}

func TestCatalog_SourcesSorted(t *testing.T) {
	catalog := newCatalog(t)
	for _, name := range []string{"Zeta", "alpha", "Mid"} {
		catalog.Register(name, base.NewDescriptor(&stubConnector{name: name}, "config"))
	}

	want := []string{"alpha", "mid", "zeta"}
	if got := catalog.Sources(); !reflect.DeepEqual(got, want) {
		t.Errorf("Sources() = %v, want %v", got, want)
	}
	if catalog.Len() != 3 {
		t.Errorf("Len() = %d, want 3", catalog.Len())
	}
}

func TestCatalog_NilRegistry(t *testing.T) {
	registry.ResetSeedForTesting()
	t.Cleanup(registry.ResetSeedForTesting)

	catalog := NewCatalog(nil)
	if catalog.Len() != 0 {
		t.Errorf("empty catalog should have no sources, got %d", catalog.Len())
	}
}
