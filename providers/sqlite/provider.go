// Package sqlite provides the SQLite dialect rules and a live backend over
// database/sql with the modernc pure-Go driver. SQLite lacks DISTINCT ON and
// interval types; distinct subsets lower to window-function ranking and
// datetime arithmetic goes through the datetime() modifier syntax.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zoobzio/relq"
	"github.com/zoobzio/relq/internal/render"
)

var dialect = &render.Dialect{
	Name:       relq.SQLite,
	Bind:       render.BindQuestion,
	Quote:      render.QuoteDouble,
	RowOrder:   "rowid",
	JoinSyntax: render.AnsiJoins,
	CastType:   castType,
	MathFunc:   mathFunc,
	PowFunc:    "POWER",
	Atan2Func:  "ATAN2",
	DateAdd:    dateAdd,
}

func init() {
	dialect.Register()
}

func castType(t relq.ScalarType) (string, bool) {
	switch t {
	case relq.Bool, relq.Int32, relq.Int64:
		return "INTEGER", true
	case relq.Float64:
		return "REAL", true
	case relq.String:
		return "TEXT", true
	case relq.Datetime:
		return "TEXT", true
	}
	return "", false
}

func mathFunc(fn relq.UnaryFn) (string, bool) {
	switch fn {
	case relq.FnSin:
		return "SIN", true
	case relq.FnCos:
		return "COS", true
	case relq.FnTan:
		return "TAN", true
	case relq.FnSqrt:
		return "SQRT", true
	case relq.FnRadians:
		return "RADIANS", true
	case relq.FnDegrees:
		return "DEGREES", true
	case relq.FnAbs:
		return "ABS", true
	}
	return "", false
}

// dateAdd renders through the datetime() modifier, with the signed seconds
// count travelling as a parameter.
func dateAdd(x relq.SQLExpr, d time.Duration, sub bool) relq.SQLExpr {
	secs := int64(d / time.Second)
	if sub {
		secs = -secs
	}
	return relq.SQLExpr{
		SQL:      "datetime(" + x.SQL + ", ?)",
		Args:     append(append([]any(nil), x.Args...), fmt.Sprintf("%+d seconds", secs)),
		Windowed: x.Windowed,
	}
}

// Compile lowers expr for SQLite and assembles the final statement with
// positional placeholders.
func Compile(expr relq.Expr, binds relq.Bindings) (string, []any, error) {
	frag, err := relq.Lower(expr, relq.SQLite, binds)
	if err != nil {
		return "", nil, err
	}
	return dialect.SQL(frag)
}

// DB is a live SQLite backend bound to one table of a resource address.
type DB struct {
	db    *sql.DB
	table string
}

// Open opens the database file named by a resource address of the form
//
//	sqlite:///path/to.db::table
//
// The path :memory: opens an in-memory database.
func Open(ctx context.Context, resource string) (*DB, error) {
	res, err := relq.ParseResource(resource)
	if err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(res.DSN, res.Scheme+"://")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// Each pooled connection to :memory: would get its own database.
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	return &DB{db: db, table: res.Table}, nil
}

// Table returns the table component of the resource address.
func (db *DB) Table() string { return db.table }

// At returns a sibling handle bound to another table of the same database.
// The two handles share the underlying connection; closing either closes
// both.
func (db *DB) At(table string) *DB {
	return &DB{db: db.db, table: table}
}

// Close releases the database handle.
func (db *DB) Close() error { return db.db.Close() }

// Symbol discovers the bound table's schema and declares a symbol over it,
// already bound to the table.
func (db *DB) Symbol(ctx context.Context, name string) (*relq.Symbol, relq.Bindings, error) {
	schema, err := db.Discover(ctx)
	if err != nil {
		return nil, nil, err
	}
	sym := relq.NewSymbol(name, schema)
	return sym, relq.Bind(sym, db.table), nil
}

// Query executes expr and returns the live row handle. The caller owns the
// handle and must close it.
func (db *DB) Query(ctx context.Context, expr relq.Expr, binds relq.Bindings) (*sql.Rows, error) {
	stmt, args, err := Compile(expr, binds)
	if err != nil {
		return nil, err
	}
	return db.db.QueryContext(ctx, stmt, args...)
}

// Rows executes expr and materializes every result row.
func (db *DB) Rows(ctx context.Context, expr relq.Expr, binds relq.Bindings) ([][]any, error) {
	rows, err := db.Query(ctx, expr, binds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows)
}

// Scalar executes expr and demands a single row with a single column.
func (db *DB) Scalar(ctx context.Context, expr relq.Expr, binds relq.Bindings) (any, error) {
	rows, err := db.Rows(ctx, expr, binds)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 || len(rows[0]) != 1 {
		return nil, &relq.ScalarShapeError{Rows: len(rows)}
	}
	return rows[0][0], nil
}

// Discover reads the bound table's column layout via PRAGMA table_info.
func (db *DB) Discover(ctx context.Context) (relq.Schema, error) {
	rows, err := db.db.QueryContext(ctx, "PRAGMA table_info("+render.QuoteDouble(db.table)+")")
	if err != nil {
		return relq.Schema{}, fmt.Errorf("sqlite: discover %q: %w", db.table, err)
	}
	defer rows.Close()

	var cols []relq.Column
	for rows.Next() {
		var (
			cid     int
			name    string
			dbType  string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &dbType, &notNull, &dflt, &pk); err != nil {
			return relq.Schema{}, err
		}
		t, err := scalarType(dbType)
		if err != nil {
			return relq.Schema{}, fmt.Errorf("sqlite: discover %q: column %q: %w", db.table, name, err)
		}
		cols = append(cols, relq.Column{Name: name, Type: t, Nullable: notNull == 0})
	}
	if err := rows.Err(); err != nil {
		return relq.Schema{}, err
	}
	if len(cols) == 0 {
		return relq.Schema{}, fmt.Errorf("sqlite: table %q not found", db.table)
	}
	return relq.Record(cols...), nil
}

func scalarType(dbType string) (relq.ScalarType, error) {
	switch strings.ToUpper(dbType) {
	case "BOOLEAN":
		return relq.Bool, nil
	case "INT", "INTEGER", "BIGINT":
		return relq.Int64, nil
	case "REAL", "FLOAT", "DOUBLE":
		return relq.Float64, nil
	case "TEXT", "VARCHAR", "CLOB":
		return relq.String, nil
	case "DATETIME", "TIMESTAMP":
		return relq.Datetime, nil
	default:
		return "", fmt.Errorf("no scalar type for %q", dbType)
	}
}

// CreateTable creates the bound table with columns derived from schema.
// Datetime columns are declared DATETIME so Discover can round-trip them.
func (db *DB) CreateTable(ctx context.Context, schema relq.Schema) error {
	defs := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		t, ok := castType(c.Type)
		if !ok {
			return fmt.Errorf("sqlite: no column type for %s", c.Type)
		}
		if c.Type == relq.Datetime {
			t = "DATETIME"
		}
		def := render.QuoteDouble(c.Name) + " " + t
		if !c.Nullable {
			def += " NOT NULL"
		}
		defs[i] = def
	}
	stmt := "CREATE TABLE " + render.QuoteDouble(db.table) + " (" + strings.Join(defs, ", ") + ")"
	if _, err := db.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlite: create %q: %w", db.table, err)
	}
	return nil
}

// Load inserts rows, given in schema column order, inside one transaction.
func (db *DB) Load(ctx context.Context, schema relq.Schema, rows [][]any) error {
	names := schema.Names()
	quoted := make([]string, len(names))
	marks := make([]string, len(names))
	for i, n := range names {
		quoted[i] = render.QuoteDouble(n)
		marks[i] = "?"
	}
	stmt := "INSERT INTO " + render.QuoteDouble(db.table) +
		" (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer prepared.Close()
	for _, row := range rows {
		if _, err := prepared.ExecContext(ctx, row...); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite: load %q: %w", db.table, err)
		}
	}
	return tx.Commit()
}

// Drop removes the bound table if it exists.
func (db *DB) Drop(ctx context.Context) error {
	_, err := db.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+render.QuoteDouble(db.table))
	return err
}

// scanAll drains a database/sql row handle into generic values.
func scanAll(rows *sql.Rows) ([][]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}
