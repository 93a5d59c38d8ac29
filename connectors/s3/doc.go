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

// Package s3 provides an Amazon S3 connector. Query statements select
// read operations (list_buckets, list, get, head, presign_get,
// presign_put) and Execute actions perform writes (put, delete,
// delete_many, copy). S3-compatible stores such as MinIO and
// Cloudflare R2 work through the endpoint and force_path_style
// options.
package s3
