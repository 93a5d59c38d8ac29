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

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"strataql/engine/connectors/base"
)

func TestPostgresConnector_Metadata(t *testing.T) {
	conn := NewPostgresConnector()

	if got := conn.Name(); got != "postgres" {
		t.Errorf("Name() without config = %q, want postgres", got)
	}
	conn.config = &base.ConnectorConfig{Name: "orders-db"}
	if got := conn.Name(); got != "orders-db" {
		t.Errorf("Name() with config = %q, want orders-db", got)
	}

	if conn.Type() != "postgres" {
		t.Errorf("Type() = %q", conn.Type())
	}
	if conn.Version() == "" {
		t.Error("Version() is empty")
	}
	caps := conn.Capabilities()
	if len(caps) == 0 || caps[0] != "query" {
		t.Errorf("Capabilities() = %v", caps)
	}
}

func TestPostgresConnector_NotConnected(t *testing.T) {
	conn := NewPostgresConnector()
	conn.config = &base.ConnectorConfig{Name: "test", Timeout: time.Second}
	ctx := context.Background()

	if err := conn.Disconnect(ctx); err != nil {
		t.Errorf("Disconnect with nil db should not error: %v", err)
	}

	status, err := conn.HealthCheck(ctx)
	if err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	if status.Healthy {
		t.Error("expected unhealthy with nil db")
	}

	if _, err := conn.Query(ctx, &base.Query{Statement: "SELECT 1"}); err == nil {
		t.Error("Query with nil db should fail")
	}
	if _, err := conn.Execute(ctx, &base.Command{Statement: "DELETE FROM t"}); err == nil {
		t.Error("Execute with nil db should fail")
	}
}

func TestPositionalArgs_SortedKeyOrder(t *testing.T) {
	if args := positionalArgs(nil); args != nil {
		t.Errorf("nil params should give nil args, got %v", args)
	}
	if args := positionalArgs(map[string]interface{}{}); args != nil {
		t.Errorf("empty params should give nil args, got %v", args)
	}

	args := positionalArgs(map[string]interface{}{
		"p2": "second",
		"p1": "first",
		"p3": "third",
	})
	want := []interface{}{"first", "second", "third"}
	if len(args) != len(want) {
		t.Fatalf("len(args) = %d, want %d", len(args), len(want))
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %v, want %v", i, args[i], want[i])
		}
	}
}

func TestPostgresConnector_Query(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	conn := NewPostgresConnector()
	conn.db = db
	conn.config = &base.ConnectorConfig{Name: "orders-db", Timeout: 5 * time.Second}

	rows := sqlmock.NewRows([]string{"id", "name"}).
		AddRow(1, "widget").
		AddRow(2, "gadget")
	mock.ExpectQuery("SELECT id, name FROM products").WillReturnRows(rows)

	result, err := conn.Query(context.Background(), &base.Query{
		Statement: "SELECT id, name FROM products",
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if result.RowCount != 2 {
		t.Errorf("RowCount = %d, want 2", result.RowCount)
	}
	if result.Connector != "orders-db" {
		t.Errorf("Connector = %q", result.Connector)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresConnector_Query_LimitCapsRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	conn := NewPostgresConnector()
	conn.db = db
	conn.config = &base.ConnectorConfig{Name: "orders-db", Timeout: 5 * time.Second}

	rows := sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2).AddRow(3).AddRow(4)
	mock.ExpectQuery("SELECT id FROM products").WillReturnRows(rows)

	result, err := conn.Query(context.Background(), &base.Query{
		Statement: "SELECT id FROM products",
		Limit:     2,
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if result.RowCount != 2 {
		t.Errorf("RowCount = %d, want 2 (limited)", result.RowCount)
	}
}

func TestPostgresConnector_Query_Parameters(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	conn := NewPostgresConnector()
	conn.db = db
	conn.config = &base.ConnectorConfig{Name: "orders-db", Timeout: 5 * time.Second}

	rows := sqlmock.NewRows([]string{"id", "name"}).AddRow(7, "widget")
	mock.ExpectQuery("SELECT").WithArgs(7).WillReturnRows(rows)

	result, err := conn.Query(context.Background(), &base.Query{
		Statement:  "SELECT id, name FROM products WHERE id = $1",
		Parameters: map[string]interface{}{"id": 7},
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if result.RowCount != 1 {
		t.Errorf("RowCount = %d, want 1", result.RowCount)
	}
}

func TestPostgresConnector_Query_BytesBecomeStrings(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	conn := NewPostgresConnector()
	conn.db = db
	conn.config = &base.ConnectorConfig{Name: "orders-db", Timeout: 5 * time.Second}

	rows := sqlmock.NewRows([]string{"payload"}).AddRow([]byte("hello"))
	mock.ExpectQuery("SELECT payload").WillReturnRows(rows)

	result, err := conn.Query(context.Background(), &base.Query{
		Statement: "SELECT payload FROM events",
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if val, ok := result.Rows[0]["payload"].(string); !ok || val != "hello" {
		t.Errorf("payload = %v (%T), want string hello", result.Rows[0]["payload"], result.Rows[0]["payload"])
	}
}

func TestPostgresConnector_Execute(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	conn := NewPostgresConnector()
	conn.db = db
	conn.config = &base.ConnectorConfig{Name: "orders-db", Timeout: 5 * time.Second}

	mock.ExpectExec("UPDATE products SET").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	result, err := conn.Execute(context.Background(), &base.Command{
		Action:    "UPDATE",
		Statement: "UPDATE products SET name = $1 WHERE category = $2",
		Parameters: map[string]interface{}{
			"name":     "renamed",
			"category": "widgets",
		},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Success {
		t.Error("expected Success")
	}
	if result.RowsAffected != 3 {
		t.Errorf("RowsAffected = %d, want 3", result.RowsAffected)
	}
}

func TestPostgresConnector_HealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	conn := NewPostgresConnector()
	conn.db = db
	conn.config = &base.ConnectorConfig{Name: "orders-db"}

	mock.ExpectPing()

	status, err := conn.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	if !status.Healthy {
		t.Errorf("expected healthy, got error %q", status.Error)
	}
	if status.Details["open_connections"] == "" {
		t.Error("expected pool stats in details")
	}
}

func TestPostgresConnector_Disconnect(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}

	conn := NewPostgresConnector()
	conn.db = db
	conn.config = &base.ConnectorConfig{Name: "orders-db"}

	mock.ExpectClose()
	if err := conn.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
}

func TestPoolOptions(t *testing.T) {
	cfg := &base.ConnectorConfig{
		Options: map[string]interface{}{
			"max_open_conns":    float64(10), // numbers decode as float64 from YAML/JSON
			"max_idle_conns":    2,
			"conn_max_lifetime": "10m",
		},
	}
	if got := intOption(cfg, "max_open_conns", 25); got != 10 {
		t.Errorf("max_open_conns = %d", got)
	}
	if got := intOption(cfg, "max_idle_conns", 5); got != 2 {
		t.Errorf("max_idle_conns = %d", got)
	}
	if got := intOption(cfg, "missing", 25); got != 25 {
		t.Errorf("missing int option = %d, want fallback", got)
	}
	if got := durationOption(cfg, "conn_max_lifetime", time.Minute); got != 10*time.Minute {
		t.Errorf("conn_max_lifetime = %v", got)
	}

	cfg.Options["conn_max_lifetime"] = "not-a-duration"
	if got := durationOption(cfg, "conn_max_lifetime", time.Minute); got != time.Minute {
		t.Errorf("invalid duration should fall back, got %v", got)
	}
}
