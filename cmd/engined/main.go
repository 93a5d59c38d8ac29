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

// Package main is the entry point for the StrataQL engine daemon.
//
// The daemon wires plugin discovery, loads configured data sources, and
// serves the admin/catalog HTTP API until interrupted.
//
// Usage:
//
//	./engined
//
// Environment Variables:
//
//	STRATAQL_PORT        - HTTP server port (default: 8080)
//	STRATAQL_CONFIG_FILE - connector configuration YAML
//	STRATAQL_AUTH_SECRET - bearer-token HMAC secret
package main

import (
	"log"

	"strataql/engine/server"
)

func main() {
	if err := server.Run(); err != nil {
		log.Fatalf("engined: %v", err)
	}
}
