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

package azureblob

import (
	"context"
	"strings"
	"testing"

	"strataql/engine/connectors/base"
)

func TestAzureBlobConnector_Metadata(t *testing.T) {
	conn := NewAzureBlobConnector()

	if conn.Type() != "azure_blob" {
		t.Errorf("Type() = %q, want azure_blob", conn.Type())
	}
	if conn.Version() != "1.0.0" {
		t.Errorf("Version() = %q, want 1.0.0", conn.Version())
	}
}

func TestAzureBlobConnector_Connect_RequiresAccountName(t *testing.T) {
	conn := NewAzureBlobConnector()

	err := conn.Connect(context.Background(), &base.ConnectorConfig{
		Name:    "blob-test",
		Type:    "azure_blob",
		Options: map[string]interface{}{},
	})
	if err == nil {
		t.Fatal("Connect succeeded without account_name")
	}
}

func TestAzureBlobConnector_Connect_RequiresAuth(t *testing.T) {
	conn := NewAzureBlobConnector()

	err := conn.Connect(context.Background(), &base.ConnectorConfig{
		Name:    "blob-test",
		Type:    "azure_blob",
		Options: map[string]interface{}{"account_name": "testaccount"},
	})
	if err == nil {
		t.Fatal("Connect succeeded without credentials")
	}
	if !strings.Contains(err.Error(), "no authentication method") {
		t.Errorf("error = %v, want no authentication method", err)
	}
}

func TestAzureBlobConnector_NotConnected(t *testing.T) {
	conn := NewAzureBlobConnector()
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

func TestAzureBlobConnector_ResolveContainerAndBlob(t *testing.T) {
	conn := NewAzureBlobConnector()
	conn.defaultContainer = "default-container"

	if got := conn.resolveContainer(map[string]interface{}{"container": "explicit"}); got != "explicit" {
		t.Errorf("resolveContainer = %q, want explicit", got)
	}
	if got := conn.resolveContainer(nil); got != "default-container" {
		t.Errorf("resolveContainer(nil) = %q, want default-container", got)
	}

	if _, _, err := conn.resolveBlob("Query", map[string]interface{}{}); err == nil {
		t.Error("resolveBlob accepted missing blob name")
	}

	container, blobName, err := conn.resolveBlob("Query", map[string]interface{}{"blob": "data.csv"})
	if err != nil {
		t.Fatalf("resolveBlob failed: %v", err)
	}
	if container != "default-container" || blobName != "data.csv" {
		t.Errorf("resolveBlob = %q, %q", container, blobName)
	}
}

func TestParsePermissions(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"r", "r"},
		{"rw", "rw"},
		{"rwdc", "rcwd"}, // SAS canonical ordering
		{"x", ""},        // unknown letters ignored
	}

	for _, tt := range tests {
		perms := parsePermissions(tt.input)
		if got := perms.String(); got != tt.want {
			t.Errorf("parsePermissions(%q).String() = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDerefString(t *testing.T) {
	s := "value"
	if got := derefString(&s); got != "value" {
		t.Errorf("derefString = %q", got)
	}
	if got := derefString(nil); got != "" {
		t.Errorf("derefString(nil) = %q, want empty", got)
	}
}

func TestStringParam(t *testing.T) {
	params := map[string]interface{}{"blob": "f.txt", "n": 2}

	if got := stringParam(params, "blob", ""); got != "f.txt" {
		t.Errorf("stringParam = %q", got)
	}
	if got := stringParam(params, "n", "d"); got != "d" {
		t.Errorf("stringParam on int = %q", got)
	}
}

func TestIntParam(t *testing.T) {
	params := map[string]interface{}{"a": 1, "b": int64(2), "c": float64(3)}

	for key, want := range map[string]int{"a": 1, "b": 2, "c": 3, "missing": 9} {
		if got := intParam(params, key, 9); got != want {
			t.Errorf("intParam(%q) = %d, want %d", key, got, want)
		}
	}
}
