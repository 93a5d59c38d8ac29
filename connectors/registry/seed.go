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
	"fmt"
	"log"
	"os"
	"sync"

	"strataql/engine/connectors/base"
)

// SeedTestModeEnv forces the discovery gate open when set to "1" or "true",
// regardless of whether the external discovery mechanism looks usable.
const SeedTestModeEnv = "STRATAQL_CONNECTOR_TEST_MODE"

// Discoverer enumerates the connectors available through an external
// discovery mechanism. Implementations return two parallel slices: the
// source names and the opaque connector handles, in matching order. The seed
// loader calls this at most once per process and treats any error as "no
// entries".
type Discoverer interface {
	DiscoverConnectors(ctx context.Context) (names []string, handles []base.Connector, err error)
}

// seedMu guards all seed state below. The cached result is computed at most
// once per process: nil means "not yet attempted", a non-nil map (possibly
// empty) is final and never recomputed.
var (
	seedMu      sync.RWMutex
	seedResult  map[string]*base.Descriptor
	seedSource  Discoverer
	seedGate    func() bool
	seedInTest  bool
	seedLogger  = log.New(os.Stdout, "[SEED_LOADER] ", log.LstdFlags)
)

// SetDiscoverer wires the external discovery collaborator and its
// availability precondition. Must be called before the first registry table
// access to take effect; once a seed result has been cached, it is final for
// the process lifetime.
func SetDiscoverer(d Discoverer, available func() bool) {
	seedMu.Lock()
	defer seedMu.Unlock()
	if seedResult != nil {
		seedLogger.Printf("Warning: discoverer configured after seed entries were already computed; ignored for this process")
		return
	}
	seedSource = d
	seedGate = available
}

// SetSeedTestMode opens the discovery gate unconditionally, bypassing the
// availability precondition. Equivalent to setting SeedTestModeEnv.
func SetSeedTestMode(on bool) {
	seedMu.Lock()
	defer seedMu.Unlock()
	seedInTest = on
}

// SeedEntries returns the initial set of connector descriptors discovered
// for this process, keyed by normalized source name. The first call triggers
// discovery (subject to the gate); every later call, from any goroutine or
// registry, returns the same cached map. The caller must treat the returned
// map as read-only.
//
// A broken or absent discovery mechanism never surfaces here: failures are
// logged and cached as an empty result.
func SeedEntries() map[string]*base.Descriptor {
	seedMu.RLock()
	cached := seedResult
	seedMu.RUnlock()
	if cached != nil {
		return cached
	}

	seedMu.Lock()
	defer seedMu.Unlock()

	// Another goroutine may have completed the computation while we were
	// waiting for the write lock.
	if seedResult != nil {
		return seedResult
	}

	seedResult = computeSeedLocked()
	return seedResult
}

// computeSeedLocked runs the gated discovery step. Caller holds seedMu.
func computeSeedLocked() map[string]*base.Descriptor {
	entries := make(map[string]*base.Descriptor)

	testMode := seedInTest || envTruthy(SeedTestModeEnv)
	if !testMode {
		if seedGate == nil || !seedGate() {
			return entries
		}
	}

	if seedSource == nil {
		return entries
	}

	names, handles, err := invokeDiscoverer(seedSource)
	if err != nil {
		seedLogger.Printf("Warning: connector discovery failed, continuing with no discovered sources: %v", err)
		return entries
	}

	for i, name := range names {
		entries[Normalize(name)] = base.NewDescriptor(handles[i], "discovery")
	}

	seedLogger.Printf("Discovered %d data source connector(s)", len(entries))
	return entries
}

// invokeDiscoverer calls the external discovery collaborator and converts
// every failure mode, including a panic escaping the collaborator, into an
// error. This is the only place in the catalog where failures are absorbed
// wholesale: the health of the discovery mechanism must never destabilize
// the host process.
func invokeDiscoverer(d Discoverer) (names []string, handles []base.Connector, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			names, handles = nil, nil
			err = fmt.Errorf("discovery panicked: %v", rec)
		}
	}()

	names, handles, err = d.DiscoverConnectors(context.Background())
	if err != nil {
		return nil, nil, err
	}
	if len(names) != len(handles) {
		return nil, nil, fmt.Errorf("discovery returned %d names but %d handles", len(names), len(handles))
	}
	return names, handles, nil
}

func envTruthy(key string) bool {
	v := os.Getenv(key)
	return v == "1" || v == "true"
}

// ResetSeedForTesting clears the cached seed result and collaborators so a
// test can exercise the discovery path again. NOT thread-safe; tests only.
func ResetSeedForTesting() {
	seedMu.Lock()
	defer seedMu.Unlock()
	seedResult = nil
	seedSource = nil
	seedGate = nil
	seedInTest = false
}
