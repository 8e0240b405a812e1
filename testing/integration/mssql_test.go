// Package integration runs relq pipelines against real SQL Server.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/mssql"
	"github.com/zoobzio/relq"
	msdb "github.com/zoobzio/relq/providers/mssql"
)

// MSSQLContainer wraps a testcontainers SQL Server instance.
type MSSQLContainer struct {
	container *mssql.MSSQLServerContainer
	connStr   string
}

// openMSSQLTable creates table in the shared database, loads rows, and
// registers cleanup.
func openMSSQLTable(ctx context.Context, t *testing.T, sc *MSSQLContainer, table string, schema relq.Schema, rows [][]any) *msdb.DB {
	t.Helper()
	db, err := msdb.Open(ctx, sc.connStr+"::"+table)
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

func TestIntegration_MSSQLSortedShift(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	sc := getMSSQLContainer(t)
	schema := relq.Record(
		relq.Column{Name: "k", Type: relq.Int32},
		relq.Column{Name: "v", Type: relq.Int32},
	)
	db := openMSSQLTable(ctx, t, sc, "series", schema, [][]any{
		{int32(1), int32(10)},
		{int32(2), int32(20)},
		{int32(3), int32(30)},
	})

	sym, binds, err := db.Symbol(ctx, "series")
	if err != nil {
		t.Fatalf("symbol: %v", err)
	}
	sorted, err := relq.Sort(sym, relq.Asc("k"))
	if err != nil {
		t.Fatal(err)
	}
	v, err := relq.Field(sorted, "v")
	if err != nil {
		t.Fatal(err)
	}
	prev, err := relq.Shift(v, 1)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := db.Rows(ctx, prev, binds)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows: %v", len(rows), rows)
	}
	if rows[0][0] != nil {
		t.Errorf("boundary row = %v, want NULL", rows[0][0])
	}
	if rows[1][0] != int64(10) || rows[2][0] != int64(20) {
		t.Errorf("rows = %v", rows)
	}
}

func TestIntegration_MSSQLConcatCount(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	sc := getMSSQLContainer(t)
	schema := relq.Record(relq.Column{Name: "v", Type: relq.Int32})
	db := openMSSQLTable(ctx, t, sc, "lo", schema, [][]any{
		{int32(0)}, {int32(1)}, {int32(2)},
	})
	openMSSQLTable(ctx, t, sc, "hi", schema, [][]any{
		{int32(3)}, {int32(4)},
	})

	a := relq.NewSymbol("lo", schema)
	b := relq.NewSymbol("hi", schema)
	c, err := relq.Concat(0, a, b)
	if err != nil {
		t.Fatal(err)
	}
	v, err := relq.Field(c, "v")
	if err != nil {
		t.Fatal(err)
	}
	n, err := relq.Count(v)
	if err != nil {
		t.Fatal(err)
	}
	got, err := db.Scalar(ctx, n, relq.Bindings{a: "lo", b: "hi"})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if got != int64(5) {
		t.Errorf("count = %v, want 5", got)
	}
}

func TestIntegration_MSSQLDateAdd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	sc := getMSSQLContainer(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	schema := relq.Record(relq.Column{Name: "at", Type: relq.Datetime})
	db := openMSSQLTable(ctx, t, sc, "ticks", schema, [][]any{{base}})

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
	ts, ok := got.(time.Time)
	if !ok {
		t.Fatalf("scalar = %T(%v), want time.Time", got, got)
	}
	if !ts.Equal(base.Add(90 * time.Second)) {
		t.Errorf("ts = %v, want %v", ts, base.Add(90*time.Second))
	}
}
