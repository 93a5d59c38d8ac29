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

// Package sdk provides shared building blocks for data source connectors.
//
// Connector implementations embed BaseConnector to inherit connection
// state tracking, configuration validation with defaults, and option
// accessors, and use RetryWithBackoff for transient upstream failures.
package sdk
