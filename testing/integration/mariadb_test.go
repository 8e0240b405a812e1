// Package integration runs relq pipelines against real MariaDB.
package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/mariadb"
	"github.com/zoobzio/relq"
	mdb "github.com/zoobzio/relq/providers/mariadb"
)

// MariaDBContainer wraps a testcontainers MariaDB instance.
type MariaDBContainer struct {
	container *mariadb.MariaDBContainer
	connStr   string
}

// openMariaTable creates table in the shared database, loads rows, and
// registers cleanup.
func openMariaTable(ctx context.Context, t *testing.T, mc *MariaDBContainer, table string, schema relq.Schema, rows [][]any) *mdb.DB {
	t.Helper()
	db, err := mdb.Open(ctx, "mysql://"+mc.connStr+"::"+table)
	if err != nil {
		t.Fatalf("open %q: %v", table, err)
	}
	t.Cleanup(func() {
		_ = db.Drop(ctx)
		_ = db.Close()
	})
	if err := db.Drop(ctx); err != nil {
		t.Fatalf("drop %q: %v", table, err)
	}
	if err := db.CreateTable(ctx, schema); err != nil {
		t.Fatalf("create %q: %v", table, err)
	}
	if err := db.Load(ctx, schema, rows); err != nil {
		t.Fatalf("load %q: %v", table, err)
	}
	return db
}

// text renders a scanned value for comparison. The MySQL wire protocol hands
// most column types back as byte slices.
func text(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}

func TestIntegration_MariaDBFilterSort(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	mc := getMariaDBContainer(t)
	schema := relq.Record(
		relq.Column{Name: "name", Type: relq.String},
		relq.Column{Name: "amount", Type: relq.Int64},
	)
	db := openMariaTable(ctx, t, mc, "payments", schema, [][]any{
		{"alice", int64(5)},
		{"bob", int64(20)},
		{"carol", int64(15)},
	})

	sym, binds, err := db.Symbol(ctx, "payments")
	if err != nil {
		t.Fatalf("symbol: %v", err)
	}
	amount, err := relq.Field(sym, "amount")
	if err != nil {
		t.Fatal(err)
	}
	threshold, err := relq.Lit(int64(10))
	if err != nil {
		t.Fatal(err)
	}
	pred, err := relq.Gt(amount, threshold)
	if err != nil {
		t.Fatal(err)
	}
	filtered, err := relq.Filter(sym, pred)
	if err != nil {
		t.Fatal(err)
	}
	sorted, err := relq.Sort(filtered, relq.Desc("amount"))
	if err != nil {
		t.Fatal(err)
	}
	rows, err := db.Rows(ctx, sorted, binds)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 2 || text(rows[0][0]) != "bob" || text(rows[1][0]) != "carol" {
		t.Errorf("rows = %v", rows)
	}
}

func TestIntegration_MariaDBDistinctEmulation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	mc := getMariaDBContainer(t)
	schema := relq.Record(
		relq.Column{Name: "device", Type: relq.Int64},
		relq.Column{Name: "tag", Type: relq.String},
	)
	db := openMariaTable(ctx, t, mc, "events", schema, [][]any{
		{int64(1), "a"},
		{int64(1), "b"},
		{int64(2), "c"},
	})

	sym, binds, err := db.Symbol(ctx, "events")
	if err != nil {
		t.Fatalf("symbol: %v", err)
	}
	sorted, err := relq.Sort(sym, relq.Desc("tag"))
	if err != nil {
		t.Fatal(err)
	}
	d, err := relq.Distinct(sorted, "device")
	if err != nil {
		t.Fatal(err)
	}
	rows, err := db.Rows(ctx, d, binds)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows: %v", len(rows), rows)
	}
	if text(rows[0][0]) != "1" || text(rows[0][1]) != "b" {
		t.Errorf("group 1 kept %v, want (1, b)", rows[0])
	}
	if text(rows[1][0]) != "2" || text(rows[1][1]) != "c" {
		t.Errorf("group 2 kept %v, want (2, c)", rows[1])
	}
}

func TestIntegration_MariaDBDateArithmetic(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	mc := getMariaDBContainer(t)
	schema := relq.Record(relq.Column{Name: "at", Type: relq.Datetime})
	db := openMariaTable(ctx, t, mc, "ticks", schema, [][]any{
		{"2024-01-01 00:00:00"},
	})

	sym, binds, err := db.Symbol(ctx, "ticks")
	if err != nil {
		t.Fatalf("symbol: %v", err)
	}
	at, err := relq.Field(sym, "at")
	if err != nil {
		t.Fatal(err)
	}
	delta, err := relq.Lit(90 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	later, err := relq.Add(at, delta)
	if err != nil {
		t.Fatal(err)
	}
	got, err := db.Scalar(ctx, later, binds)
	if err != nil {
		t.Fatalf("scalar: %v", err)
	}
	if text(got) != "2024-01-01 00:01:30" {
		t.Errorf("scalar = %q", text(got))
	}
}

func TestIntegration_MariaDBCount(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	mc := getMariaDBContainer(t)
	schema := relq.Record(relq.Column{Name: "v", Type: relq.Int64})
	db := openMariaTable(ctx, t, mc, "nums", schema, [][]any{
		{int64(1)}, {int64(2)}, {int64(3)},
	})

	sym, binds, err := db.Symbol(ctx, "nums")
	if err != nil {
		t.Fatalf("symbol: %v", err)
	}
	v, err := relq.Field(sym, "v")
	if err != nil {
		t.Fatal(err)
	}
	n, err := relq.Count(v)
	if err != nil {
		t.Fatal(err)
	}
	got, err := db.Scalar(ctx, n, binds)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if got != int64(3) {
		t.Errorf("count = %v, want 3", got)
	}
}
