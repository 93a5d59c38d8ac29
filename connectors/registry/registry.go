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
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"strataql/engine/connectors/base"
)

// NotFoundError is returned by Lookup when no source matches the requested
// name. It carries the name exactly as the caller wrote it, so the query
// compiler can echo it back in diagnostics.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("data source %q is not registered", e.Name)
}

// Normalize maps a source name to its canonical catalog key. Lookup is
// case-insensitive; strings.ToLower applies Unicode simple case mapping and
// never consults the host locale, so the same name resolves to the same key
// on every machine.
func Normalize(name string) string {
	return strings.ToLower(name)
}

// Registry is a per-session table of data-source name to connector
// descriptor. All methods are safe for concurrent use from any number of
// goroutines; callers never need external locking.
//
// Construction is cheap and touches nothing global. The first access to the
// table pulls the process-wide seed entries (see SeedEntries); deferring that
// to first use keeps registry construction safe during early bootstrap,
// before the discovery machinery is usable.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*base.Descriptor
	seeded  bool
	logger  *log.Logger
}

// Options holds optional settings for a Registry.
type Options struct {
	// Logger receives non-fatal registry warnings, such as a registration
	// overwriting an existing source. Defaults to stdout.
	Logger *log.Logger
}

// NewRegistry creates an empty source registry. The seed entries discovered
// for this process are folded in lazily on first access.
func NewRegistry() *Registry {
	return NewRegistryWithOptions(Options{})
}

// NewRegistryWithOptions creates a source registry with explicit options.
func NewRegistryWithOptions(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[SOURCE_REGISTRY] ", log.LstdFlags)
	}
	return &Registry{
		entries: make(map[string]*base.Descriptor),
		logger:  logger,
	}
}

// ensureSeeded folds the process-wide seed entries into this registry's
// table, once per registry. Every public table operation calls this first,
// so construction itself stays free of any seed-loader interaction.
func (r *Registry) ensureSeeded() {
	r.mu.RLock()
	seeded := r.seeded
	r.mu.RUnlock()
	if seeded {
		return
	}

	// Resolve the seed outside the table lock; the seed loader has its own
	// critical section and may block on first use.
	seed := SeedEntries()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seeded {
		return
	}
	for name, desc := range seed {
		r.entries[name] = desc
	}
	r.seeded = true
}

// Register adds a source under the given name, overwriting any existing
// entry for the same normalized name. Overwriting is not an error; it is
// reported as a warning so operators can spot accidental shadowing.
func (r *Registry) Register(name string, desc *base.Descriptor) {
	r.ensureSeeded()

	key := Normalize(name)

	r.mu.Lock()
	_, replaced := r.entries[key]
	r.entries[key] = desc
	r.mu.Unlock()

	if replaced {
		r.logger.Printf("Warning: data source %q replaces an existing registration", name)
	}
}

// Lookup resolves a source by name. The match is case-insensitive. A miss
// returns a *NotFoundError carrying the name as requested.
func (r *Registry) Lookup(name string) (*base.Descriptor, error) {
	r.ensureSeeded()

	r.mu.RLock()
	desc, ok := r.entries[Normalize(name)]
	r.mu.RUnlock()

	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return desc, nil
}

// Exists reports whether a source is registered under the given name.
func (r *Registry) Exists(name string) bool {
	r.ensureSeeded()

	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[Normalize(name)]
	return ok
}

// Clone returns a new registry pre-populated with the same entries.
// Descriptors are shared by reference; the tables are independent, so later
// registrations on either side do not affect the other. Used to give each
// session its own mutable view of the catalog.
func (r *Registry) Clone() *Registry {
	r.ensureSeeded()

	r.mu.RLock()
	entries := make(map[string]*base.Descriptor, len(r.entries))
	for name, desc := range r.entries {
		entries[name] = desc
	}
	r.mu.RUnlock()

	return &Registry{
		entries: entries,
		seeded:  true,
		logger:  r.logger,
	}
}

// Names returns the normalized names of all registered sources.
func (r *Registry) Names() []string {
	r.ensureSeeded()

	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered sources.
func (r *Registry) Count() int {
	r.ensureSeeded()

	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
