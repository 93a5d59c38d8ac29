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

// Package planner provides the catalog view the query compiler resolves
// data-source references against. A Catalog wraps a source registry;
// each query session gets its own catalog so mid-session registrations
// never leak into concurrently compiling queries.
package planner

import (
	"sort"

	"strataql/engine/connectors/base"
	"strataql/engine/connectors/registry"
)

// Catalog resolves data-source names during query compilation.
type Catalog struct {
	registry *registry.Registry
}

// NewCatalog wraps an existing registry. The catalog shares the
// registry's table; use ForSession for an isolated view.
func NewCatalog(reg *registry.Registry) *Catalog {
	if reg == nil {
		reg = registry.NewRegistry()
	}
	return &Catalog{registry: reg}
}

// Resolve returns the descriptor for a source reference. A miss returns
// the registry's *registry.NotFoundError untouched, carrying the name
// exactly as written in the query, so compilation diagnostics can quote
// the user's spelling.
func (c *Catalog) Resolve(name string) (*base.Descriptor, error) {
	return c.registry.Lookup(name)
}

// Exists reports whether a source reference would resolve.
func (c *Catalog) Exists(name string) bool {
	return c.registry.Exists(name)
}

// Register binds a source into this catalog's underlying registry.
func (c *Catalog) Register(name string, desc *base.Descriptor) {
	c.registry.Register(name, desc)
}

// ForSession returns a catalog backed by an independent copy of the
// table. Registrations on either side are invisible to the other;
// descriptors are shared by reference.
func (c *Catalog) ForSession() *Catalog {
	return &Catalog{registry: c.registry.Clone()}
}

// Sources lists the normalized names of every resolvable source, sorted
// for stable output.
func (c *Catalog) Sources() []string {
	names := c.registry.Names()
	sort.Strings(names)
	return names
}

// Len returns the number of resolvable sources.
func (c *Catalog) Len() int {
	return c.registry.Count()
}
