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

/*
Package registry provides the thread-safe, case-insensitive catalog that maps
data-source names to connector descriptors for the StrataQL query engine.

# Overview

Two pieces cooperate:

  - Registry: a per-session mutable table supporting Register, Lookup,
    Exists, and Clone. Names are normalized to lower case with a
    locale-independent mapping, so "Sales", "SALES", and "sales" resolve to
    the same entry.
  - The global seed loader (SeedEntries): a process-wide, lazily triggered,
    compute-once step that asks an external discovery mechanism which
    connectors exist and uses the result to pre-populate every new Registry.

# Creating a Registry

	reg := registry.NewRegistry()
	reg.Register("sales", base.NewDescriptor(conn, "config"))

	desc, err := reg.Lookup("SALES")
	var nf *registry.NotFoundError
	if errors.As(err, &nf) {
	    // nf.Name is the name exactly as requested
	}

Per-session isolation comes from Clone:

	session := reg.Clone()
	session.Register("tmp", desc2) // invisible to reg

# Seeding

Registry construction never touches the seed loader; the first table access
does. That laziness is load-bearing: the discovery gate and the discovery
call may themselves need a fully-initialized session, so running them during
bootstrap would deadlock initialization. Discovery runs at most once per
process, its failures are logged and absorbed, and the (possibly empty)
result is cached for the lifetime of the process.
*/
package registry
