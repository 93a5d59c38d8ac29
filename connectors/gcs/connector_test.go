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

package gcs

import (
	"context"
	"strings"
	"testing"

	"strataql/engine/connectors/base"
)

func TestGCSConnector_Metadata(t *testing.T) {
	conn := NewGCSConnector()

	if conn.Type() != "gcs" {
		t.Errorf("Type() = %q, want gcs", conn.Type())
	}
	if conn.Version() != "1.0.0" {
		t.Errorf("Version() = %q, want 1.0.0", conn.Version())
	}

	hasPresign := false
	for _, c := range conn.Capabilities() {
		if c == "presign" {
			hasPresign = true
		}
	}
	if !hasPresign {
		t.Error("Capabilities() missing presign")
	}
}

func TestGCSConnector_NotConnected(t *testing.T) {
	conn := NewGCSConnector()
	ctx := context.Background()

	if _, err := conn.Query(ctx, &base.Query{Statement: "list"}); err == nil {
		t.Error("Query succeeded without Connect")
	}
	if _, err := conn.Execute(ctx, &base.Command{Action: "put"}); err == nil {
		t.Error("Execute succeeded without Connect")
	}

	status, err := conn.HealthCheck(ctx)
	if err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
	if status.Healthy {
		t.Error("HealthCheck reported healthy without a client")
	}
}

func TestGCSConnector_ResolveBucket(t *testing.T) {
	conn := NewGCSConnector()
	conn.defaultBucket = "default-bucket"

	if got := conn.resolveBucket(map[string]interface{}{"bucket": "explicit"}); got != "explicit" {
		t.Errorf("resolveBucket = %q, want explicit", got)
	}
	if got := conn.resolveBucket(nil); got != "default-bucket" {
		t.Errorf("resolveBucket(nil) = %q, want default-bucket", got)
	}
}

func TestGCSConnector_ResolveObject(t *testing.T) {
	conn := NewGCSConnector()

	_, _, err := conn.resolveObject(map[string]interface{}{"key": "file.txt"}, "Query")
	if err == nil || !strings.Contains(err.Error(), "bucket is required") {
		t.Errorf("missing bucket error = %v", err)
	}

	_, _, err = conn.resolveObject(map[string]interface{}{"bucket": "b"}, "Query")
	if err == nil || !strings.Contains(err.Error(), "key is required") {
		t.Errorf("missing key error = %v", err)
	}

	bucket, key, err := conn.resolveObject(map[string]interface{}{"bucket": "b", "key": "k"}, "Query")
	if err != nil || bucket != "b" || key != "k" {
		t.Errorf("resolveObject = %q, %q, %v", bucket, key, err)
	}

	conn.defaultBucket = "fallback"
	bucket, _, err = conn.resolveObject(map[string]interface{}{"key": "k"}, "Query")
	if err != nil || bucket != "fallback" {
		t.Errorf("resolveObject with default = %q, %v", bucket, err)
	}
}

func TestStringParam(t *testing.T) {
	params := map[string]interface{}{"prefix": "logs/", "n": 1}

	if got := stringParam(params, "prefix", ""); got != "logs/" {
		t.Errorf("stringParam = %q", got)
	}
	if got := stringParam(params, "n", "d"); got != "d" {
		t.Errorf("stringParam on int = %q, want d", got)
	}
	if got := stringParam(nil, "prefix", "d"); got != "d" {
		t.Errorf("stringParam(nil) = %q, want d", got)
	}
}

func TestIntParam(t *testing.T) {
	params := map[string]interface{}{
		"int":   25,
		"int64": int64(30),
		"float": float64(35),
		"str":   "40",
	}

	tests := []struct {
		key  string
		want int
	}{
		{"int", 25},
		{"int64", 30},
		{"float", 35},
		{"str", 7},
		{"missing", 7},
	}
	for _, tt := range tests {
		if got := intParam(params, tt.key, 7); got != tt.want {
			t.Errorf("intParam(%q) = %d, want %d", tt.key, got, tt.want)
		}
	}
}
