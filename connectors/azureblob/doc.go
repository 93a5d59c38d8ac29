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

// Package azureblob provides an Azure Blob Storage connector. The
// query statement selects read operations (list, get, head,
// list_containers, sas_url) and the command action selects writes
// (put, delete, copy). Authentication supports connection strings,
// shared account keys, and DefaultAzureCredential (managed identity).
package azureblob
