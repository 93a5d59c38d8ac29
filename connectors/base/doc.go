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
Package base provides the core interfaces and types for StrataQL data-source
connectors.

# Overview

The base package defines the Connector interface that every data source
resolvable by the query engine must implement, and the Descriptor value that
the source catalog stores per registered name.

# Connector Interface

All connectors implement the Connector interface:

	type Connector interface {
	    // Lifecycle
	    Connect(ctx context.Context, config *ConnectorConfig) error
	    Disconnect(ctx context.Context) error
	    HealthCheck(ctx context.Context) (*HealthStatus, error)

	    // Read path
	    Query(ctx context.Context, query *Query) (*QueryResult, error)

	    // Write path
	    Execute(ctx context.Context, cmd *Command) (*CommandResult, error)

	    // Metadata
	    Name() string
	    Type() string
	    Version() string
	    Capabilities() []string
	}

# Descriptors

The catalog never touches a connector's internals. It stores a Descriptor
wrapping the opaque handle plus the provenance of the registration
("discovery", "config", "api"). Descriptors are shared by reference between
catalog clones; the connector instance behind a descriptor is owned by
whoever created it.

# Errors

Connector implementations report failures through ConnectorError, which
carries the connector name, the operation, and the underlying cause and
supports errors.Is/errors.As via Unwrap.
*/
package base
