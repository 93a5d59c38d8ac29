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
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"strataql/engine/connectors/base"
)

// fakeDiscoverer is an instrumented discovery collaborator.
type fakeDiscoverer struct {
	names   []string
	handles []base.Connector
	err     error
	panics  bool
	delay   time.Duration
	calls   int64
}

func (f *fakeDiscoverer) DiscoverConnectors(ctx context.Context) ([]string, []base.Connector, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panics {
		panic("discovery bridge exploded")
	}
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.names, f.handles, nil
}

func (f *fakeDiscoverer) callCount() int64 {
	return atomic.LoadInt64(&f.calls)
}

func twoHandles() []base.Connector {
	return []base.Connector{
		&mockConnector{name: "foo", connType: "script"},
		&mockConnector{name: "bar", connType: "script"},
	}
}

func TestSeed_EndToEnd(t *testing.T) {
	ResetSeedForTesting()
	defer ResetSeedForTesting()

	handles := twoHandles()
	SetSeedTestMode(true)
	SetDiscoverer(&fakeDiscoverer{names: []string{"foo", "bar"}, handles: handles}, nil)

	reg := NewRegistry()

	if !reg.Exists("FOO") {
		t.Error(`Exists("FOO") = false, want true`)
	}
	if reg.Exists("baz") {
		t.Error(`Exists("baz") = true, want false`)
	}

	desc, err := reg.Lookup("Bar")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc.Connector != handles[1] {
		t.Error(`Lookup("Bar") does not wrap the second discovered handle`)
	}
	if desc.Source != "discovery" {
		t.Errorf("descriptor source = %q, want %q", desc.Source, "discovery")
	}
}

func TestSeed_ConstructionDoesNotTriggerDiscovery(t *testing.T) {
	ResetSeedForTesting()
	defer ResetSeedForTesting()

	disc := &fakeDiscoverer{names: []string{"foo"}, handles: twoHandles()[:1]}
	SetSeedTestMode(true)
	SetDiscoverer(disc, nil)

	reg := NewRegistry()
	if n := disc.callCount(); n != 0 {
		t.Fatalf("discovery ran %d time(s) during construction, want 0", n)
	}

	_ = reg.Exists("foo") // first table access
	if n := disc.callCount(); n != 1 {
		t.Fatalf("discovery ran %d time(s) after first access, want 1", n)
	}
}

func TestSeed_DiscoveryRunsAtMostOncePerProcess(t *testing.T) {
	ResetSeedForTesting()
	defer ResetSeedForTesting()

	disc := &fakeDiscoverer{
		names:   []string{"foo", "bar"},
		handles: twoHandles(),
		delay:   5 * time.Millisecond, // widen the race window
	}
	SetSeedTestMode(true)
	SetDiscoverer(disc, nil)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg := NewRegistry()
			if !reg.Exists("foo") {
				t.Error("seeded entry missing")
			}
			_ = reg.Clone().Count()
		}()
	}
	wg.Wait()

	if n := disc.callCount(); n != 1 {
		t.Fatalf("discovery invoked %d time(s), want exactly 1", n)
	}
}

func TestSeed_FailureCachedAsEmpty(t *testing.T) {
	ResetSeedForTesting()
	defer ResetSeedForTesting()

	disc := &fakeDiscoverer{err: errors.New("interpreter not responding")}
	SetSeedTestMode(true)
	SetDiscoverer(disc, nil)

	first := NewRegistry()
	if first.Count() != 0 {
		t.Errorf("registry seeded %d entries after discovery failure, want 0", first.Count())
	}

	// No retry within the process: later registries see the cached empty
	// result without another invocation.
	second := NewRegistry()
	if second.Count() != 0 {
		t.Errorf("second registry has %d entries, want 0", second.Count())
	}
	if n := disc.callCount(); n != 1 {
		t.Errorf("discovery invoked %d time(s) after failure, want 1", n)
	}
}

func TestSeed_PanicAbsorbed(t *testing.T) {
	ResetSeedForTesting()
	defer ResetSeedForTesting()

	disc := &fakeDiscoverer{panics: true}
	SetSeedTestMode(true)
	SetDiscoverer(disc, nil)

	reg := NewRegistry()
	if reg.Count() != 0 {
		t.Errorf("registry has %d entries after discovery panic, want 0", reg.Count())
	}
}

func TestSeed_LengthMismatchTreatedAsFailure(t *testing.T) {
	ResetSeedForTesting()
	defer ResetSeedForTesting()

	disc := &fakeDiscoverer{names: []string{"foo", "bar"}, handles: twoHandles()[:1]}
	SetSeedTestMode(true)
	SetDiscoverer(disc, nil)

	if n := NewRegistry().Count(); n != 0 {
		t.Errorf("registry has %d entries after mismatched discovery result, want 0", n)
	}
}

func TestSeed_GateClosedSkipsDiscovery(t *testing.T) {
	ResetSeedForTesting()
	defer ResetSeedForTesting()

	disc := &fakeDiscoverer{names: []string{"foo"}, handles: twoHandles()[:1]}
	SetDiscoverer(disc, func() bool { return false })

	if n := NewRegistry().Count(); n != 0 {
		t.Errorf("registry has %d entries with the gate closed, want 0", n)
	}
	if n := disc.callCount(); n != 0 {
		t.Errorf("discovery invoked %d time(s) with the gate closed, want 0", n)
	}
}

func TestSeed_GateOpenRunsDiscovery(t *testing.T) {
	ResetSeedForTesting()
	defer ResetSeedForTesting()

	disc := &fakeDiscoverer{names: []string{"foo"}, handles: twoHandles()[:1]}
	SetDiscoverer(disc, func() bool { return true })

	reg := NewRegistry()
	if !reg.Exists("foo") {
		t.Error("expected discovered entry with the gate open")
	}
	if n := disc.callCount(); n != 1 {
		t.Errorf("discovery invoked %d time(s), want 1", n)
	}
}

func TestSeed_NoDiscovererMeansEmpty(t *testing.T) {
	ResetSeedForTesting()
	defer ResetSeedForTesting()

	SetSeedTestMode(true)

	if n := NewRegistry().Count(); n != 0 {
		t.Errorf("registry has %d entries with no discoverer wired, want 0", n)
	}
}

func TestSeed_SetDiscovererAfterSeedIsIgnored(t *testing.T) {
	ResetSeedForTesting()
	defer ResetSeedForTesting()

	SetSeedTestMode(true)
	_ = NewRegistry().Count() // seed computes (empty)

	late := &fakeDiscoverer{names: []string{"foo"}, handles: twoHandles()[:1]}
	SetDiscoverer(late, nil)

	if NewRegistry().Exists("foo") {
		t.Error("late-configured discoverer must not affect the cached seed result")
	}
	if n := late.callCount(); n != 0 {
		t.Errorf("late discoverer invoked %d time(s), want 0", n)
	}
}

func TestSeed_TestModeEnvVar(t *testing.T) {
	ResetSeedForTesting()
	defer ResetSeedForTesting()

	t.Setenv(SeedTestModeEnv, "1")

	disc := &fakeDiscoverer{names: []string{"foo"}, handles: twoHandles()[:1]}
	SetDiscoverer(disc, func() bool { return false }) // gate says no, env overrides

	if !NewRegistry().Exists("foo") {
		t.Error("test-mode env var should open the discovery gate")
	}
}
