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

package sdk

import (
	"fmt"

	"strataql/engine/connectors/base"
)

// ConfigValidator validates connector configuration before Connect.
type ConfigValidator interface {
	// Validate checks if the configuration is valid.
	Validate(config *base.ConnectorConfig) error

	// RequiredFields returns the required configuration fields.
	RequiredFields() []string

	// OptionalFields returns optional fields with their defaults.
	OptionalFields() map[string]interface{}
}

// DefaultConfigValidator checks required fields against Options and
// Credentials and fills in defaults for absent optional fields.
type DefaultConfigValidator struct {
	required []string
	optional map[string]interface{}
}

// NewDefaultConfigValidator creates a validator with the given
// required field names and optional field defaults.
func NewDefaultConfigValidator(required []string, optional map[string]interface{}) *DefaultConfigValidator {
	if optional == nil {
		optional = make(map[string]interface{})
	}
	return &DefaultConfigValidator{
		required: required,
		optional: optional,
	}
}

// Validate checks that the name, type, and all required fields are set.
// A required field may live in either Options or Credentials.
func (v *DefaultConfigValidator) Validate(config *base.ConnectorConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if config.Name == "" {
		return fmt.Errorf("connector name is required")
	}
	if config.Type == "" {
		return fmt.Errorf("connector type is required")
	}

	for _, field := range v.required {
		if _, ok := config.Options[field]; !ok {
			if _, ok := config.Credentials[field]; !ok {
				return fmt.Errorf("required field '%s' is missing", field)
			}
		}
	}
	return nil
}

// RequiredFields returns the required field names.
func (v *DefaultConfigValidator) RequiredFields() []string {
	return v.required
}

// OptionalFields returns the optional fields with defaults.
func (v *DefaultConfigValidator) OptionalFields() map[string]interface{} {
	return v.optional
}

// ApplyDefaults writes defaults into Options for fields not already set.
func (v *DefaultConfigValidator) ApplyDefaults(config *base.ConnectorConfig) {
	if config.Options == nil {
		config.Options = make(map[string]interface{})
	}
	for field, defaultValue := range v.optional {
		if _, exists := config.Options[field]; !exists {
			config.Options[field] = defaultValue
		}
	}
}
