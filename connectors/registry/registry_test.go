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

package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"testing"

	"strataql/engine/connectors/base"
)

// mockConnector implements base.Connector for registry tests.
type mockConnector struct {
	name     string
	connType string
}

func (m *mockConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	return nil
}
func (m *mockConnector) Disconnect(ctx context.Context) error { return nil }
func (m *mockConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	return &base.HealthStatus{Healthy: true}, nil
}
func (m *mockConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	return &base.QueryResult{}, nil
}
func (m *mockConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	return &base.CommandResult{Success: true}, nil
}
func (m *mockConnector) Name() string            { return m.name }
func (m *mockConnector) Type() string            { return m.connType }
func (m *mockConnector) Version() string         { return "1.0.0" }
func (m *mockConnector) Capabilities() []string  { return []string{"query"} }

func testDescriptor(name string) *base.Descriptor {
	return base.NewDescriptor(&mockConnector{name: name, connType: "mock"}, "test")
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Sales":     "sales",
		"SALES":     "sales",
		"sales":     "sales",
		"Orders_V2": "orders_v2",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegisterAndLookup_CaseInsensitive(t *testing.T) {
	ResetSeedForTesting()
	defer ResetSeedForTesting()

	reg := NewRegistry()
	desc := testDescriptor("sales")

	reg.Register("Sales", desc)

	for _, name := range []string{"sales", "SALES", "Sales", "sAlEs"} {
		if !reg.Exists(name) {
			t.Errorf("Exists(%q) = false, want true", name)
		}
		got, err := reg.Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%q): unexpected error: %v", name, err)
		}
		if got != desc {
			t.Errorf("Lookup(%q) returned a different descriptor", name)
		}
	}
}

func TestLookup_NotFound(t *testing.T) {
	ResetSeedForTesting()
	defer ResetSeedForTesting()

	reg := NewRegistry()

	_, err := reg.Lookup("MissingSource")
	if err == nil {
		t.Fatal("expected error for unregistered source")
	}

	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *NotFoundError, got %T", err)
	}
	// The original spelling must survive for diagnostics.
	if nf.Name != "MissingSource" {
		t.Errorf("NotFoundError.Name = %q, want %q", nf.Name, "MissingSource")
	}
}

func TestRegister_OverwriteWarnsAndWins(t *testing.T) {
	ResetSeedForTesting()
	defer ResetSeedForTesting()

	var buf bytes.Buffer
	reg := NewRegistryWithOptions(Options{
		Logger: log.New(&buf, "", 0),
	})

	first := testDescriptor("metrics")
	second := testDescriptor("metrics")

	reg.Register("metrics", first)
	if buf.Len() != 0 {
		t.Errorf("unexpected warning on first registration: %q", buf.String())
	}

	reg.Register("METRICS", second)
	if !bytes.Contains(buf.Bytes(), []byte("replaces an existing registration")) {
		t.Errorf("expected overwrite warning, log output: %q", buf.String())
	}

	got, err := reg.Lookup("metrics")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != second {
		t.Error("expected the second descriptor to win")
	}
}

func TestExists_NoSideEffects(t *testing.T) {
	ResetSeedForTesting()
	defer ResetSeedForTesting()

	reg := NewRegistry()
	if reg.Exists("anything") {
		t.Error("Exists on empty registry should be false")
	}
	if reg.Count() != 0 {
		t.Errorf("Count = %d after Exists probe, want 0", reg.Count())
	}
}

func TestClone_Independence(t *testing.T) {
	ResetSeedForTesting()
	defer ResetSeedForTesting()

	src := NewRegistry()
	shared := testDescriptor("shared")
	src.Register("shared", shared)

	clone := src.Clone()

	// Immediately after cloning the two tables agree.
	if !clone.Exists("SHARED") {
		t.Error("clone is missing entry registered on source")
	}
	got, err := clone.Lookup("shared")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != shared {
		t.Error("clone must share descriptor references, not copies")
	}

	// Later registrations do not leak in either direction.
	clone.Register("clone_only", testDescriptor("clone_only"))
	if src.Exists("clone_only") {
		t.Error("registration on clone leaked into source")
	}

	src.Register("source_only", testDescriptor("source_only"))
	if clone.Exists("source_only") {
		t.Error("registration on source leaked into clone")
	}
}

func TestNamesAndCount(t *testing.T) {
	ResetSeedForTesting()
	defer ResetSeedForTesting()

	reg := NewRegistry()
	reg.Register("Alpha", testDescriptor("alpha"))
	reg.Register("Beta", testDescriptor("beta"))

	if reg.Count() != 2 {
		t.Errorf("Count = %d, want 2", reg.Count())
	}

	seen := make(map[string]bool)
	for _, name := range reg.Names() {
		seen[name] = true
	}
	if !seen["alpha"] || !seen["beta"] {
		t.Errorf("Names() = %v, want normalized alpha and beta", reg.Names())
	}
}

func TestConcurrentRegisterLookupExists(t *testing.T) {
	ResetSeedForTesting()
	defer ResetSeedForTesting()

	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			name := fmt.Sprintf("source%d", idx)
			reg.Register(name, testDescriptor(name))
			_ = reg.Exists(name)
			_, _ = reg.Lookup(name)
			_ = reg.Count()
		}(i)
	}

	// Racing writers on one name must stay atomic; either descriptor may win.
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.Register("contended", testDescriptor("contended"))
		}()
	}
	wg.Wait()

	// No lost entries.
	for i := 0; i < 100; i++ {
		name := fmt.Sprintf("source%d", i)
		if !reg.Exists(name) {
			t.Errorf("entry %q lost under concurrent registration", name)
		}
	}
	if !reg.Exists("contended") {
		t.Error("contended entry missing after racing registrations")
	}
}

func TestConcurrentCloneAndRegister(t *testing.T) {
	ResetSeedForTesting()
	defer ResetSeedForTesting()

	src := NewRegistry()
	src.Register("base", testDescriptor("base"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			clone := src.Clone()
			if !clone.Exists("base") {
				t.Error("clone missing pre-existing entry")
			}
			clone.Register(fmt.Sprintf("local%d", idx), testDescriptor("local"))
		}(i)
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			src.Register(fmt.Sprintf("global%d", idx), testDescriptor("global"))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		if src.Exists(fmt.Sprintf("local%d", i)) {
			t.Errorf("clone-local entry local%d leaked into source", i)
		}
	}
}
