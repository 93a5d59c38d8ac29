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

// Package gcs provides a Google Cloud Storage connector. Read
// operations (list, get, head, list_buckets, bucket_attrs, presign)
// are selected by the query statement; writes (put, delete, copy) by
// the command action. Credentials come from a service account file or
// JSON blob, falling back to Application Default Credentials.
package gcs
