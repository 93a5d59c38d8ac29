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

// Package factory maps connector type names to constructors so the
// config loader and the admin API can instantiate drivers by type.
package factory

import (
	"fmt"
	"log"
	"sync"

	"strataql/engine/connectors/azureblob"
	"strataql/engine/connectors/base"
	"strataql/engine/connectors/cassandra"
	"strataql/engine/connectors/gcs"
	httpconnector "strataql/engine/connectors/http"
	"strataql/engine/connectors/mongodb"
	"strataql/engine/connectors/mysql"
	"strataql/engine/connectors/postgres"
	"strataql/engine/connectors/redis"
	"strataql/engine/connectors/s3"
)

// Connector type name constants. Use these instead of magic strings
// when referencing driver types.
const (
	TypePostgres  = "postgres"
	TypeMySQL     = "mysql"
	TypeMongoDB   = "mongodb"
	TypeCassandra = "cassandra"
	TypeRedis     = "redis"
	TypeHTTP      = "http"
	TypeS3        = "s3"
	TypeGCS       = "gcs"
	TypeAzureBlob = "azure_blob"
	TypeScript    = "script"
)

// ValidTypes is the list of supported connector types. The script type
// has no factory constructor: script connectors are produced by
// interpreter discovery, not by type name.
var ValidTypes = []string{
	TypePostgres,
	TypeMySQL,
	TypeMongoDB,
	TypeCassandra,
	TypeRedis,
	TypeHTTP,
	TypeS3,
	TypeGCS,
	TypeAzureBlob,
	TypeScript,
}

// IsValidType checks if the given connector type is supported.
func IsValidType(connectorType string) bool {
	for _, ct := range ValidTypes {
		if ct == connectorType {
			return true
		}
	}
	return false
}

// Creator is a function that creates a new connector instance.
type Creator func() base.Connector

// Factory holds registered connector creators keyed by type name.
type Factory struct {
	mu       sync.RWMutex
	creators map[string]Creator
	logger   *log.Logger
}

var defaultFactory *Factory
var defaultFactoryOnce sync.Once

// Default returns the process-wide factory, initialized with all
// builtin connector types on first call.
func Default() *Factory {
	defaultFactoryOnce.Do(func() {
		defaultFactory = New()
		defaultFactory.RegisterBuiltins()
	})
	return defaultFactory
}

// New creates an empty factory.
func New() *Factory {
	return &Factory{
		creators: make(map[string]Creator),
		logger:   log.New(log.Writer(), "[CONNECTOR_FACTORY] ", log.LstdFlags),
	}
}

// Register adds a creator for a known connector type. Returns an error
// if the type is unknown or already registered.
func (f *Factory) Register(connectorType string, creator Creator) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !IsValidType(connectorType) {
		return fmt.Errorf("unknown connector type: %s", connectorType)
	}
	if _, exists := f.creators[connectorType]; exists {
		return fmt.Errorf("connector type '%s' already registered", connectorType)
	}

	f.creators[connectorType] = creator
	f.logger.Printf("Registered connector creator for type: %s", connectorType)
	return nil
}

// RegisterOrReplace adds or replaces a creator. Useful for tests and
// for swapping default implementations.
func (f *Factory) RegisterOrReplace(connectorType string, creator Creator) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.creators[connectorType] = creator
	f.logger.Printf("Registered/replaced connector creator for type: %s", connectorType)
}

// Create instantiates a new connector of the given type.
func (f *Factory) Create(connectorType string) (base.Connector, error) {
	f.mu.RLock()
	creator, exists := f.creators[connectorType]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no creator registered for connector type: %s", connectorType)
	}
	return creator(), nil
}

// IsRegistered checks if a connector type has a creator registered.
func (f *Factory) IsRegistered(connectorType string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, exists := f.creators[connectorType]
	return exists
}

// RegisteredTypes returns all registered connector types.
func (f *Factory) RegisteredTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.creators))
	for t := range f.creators {
		types = append(types, t)
	}
	return types
}

// Count returns the number of registered connector types.
func (f *Factory) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.creators)
}

// Clear removes all registered creators. Useful for tests.
func (f *Factory) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators = make(map[string]Creator)
}

// RegisterBuiltins registers creators for every builtin driver.
func (f *Factory) RegisterBuiltins() {
	f.logger.Println("Registering builtin connectors...")

	f.RegisterOrReplace(TypePostgres, func() base.Connector {
		return postgres.NewPostgresConnector()
	})
	f.RegisterOrReplace(TypeMySQL, func() base.Connector {
		return mysql.NewMySQLConnector()
	})
	f.RegisterOrReplace(TypeMongoDB, func() base.Connector {
		return mongodb.NewMongoDBConnector()
	})
	f.RegisterOrReplace(TypeCassandra, func() base.Connector {
		return cassandra.NewCassandraConnector()
	})
	f.RegisterOrReplace(TypeRedis, func() base.Connector {
		return redis.NewRedisConnector()
	})
	f.RegisterOrReplace(TypeHTTP, func() base.Connector {
		return httpconnector.NewHTTPConnector()
	})
	f.RegisterOrReplace(TypeS3, func() base.Connector {
		return s3.NewS3Connector()
	})
	f.RegisterOrReplace(TypeGCS, func() base.Connector {
		return gcs.NewGCSConnector()
	})
	f.RegisterOrReplace(TypeAzureBlob, func() base.Connector {
		return azureblob.NewAzureBlobConnector()
	})

	f.logger.Printf("Registered %d builtin connectors", f.Count())
}
