// Package postgres provides the PostgreSQL dialect rules and a live backend
// over pgx. It is the most capable dialect: native DISTINCT ON, a physical
// row identifier (ctid) for canonical window order, interval arithmetic, and
// a not-a-number representation whose equality test holds.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zoobzio/relq"
	"github.com/zoobzio/relq/internal/render"
)

var dialect = &render.Dialect{
	Name:       relq.Postgres,
	Bind:       render.BindDollar,
	Quote:      render.QuoteDouble,
	DistinctOn: true,
	NaN:        "CAST('NaN' AS double precision)",
	RowOrder:   "ctid",
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
	case relq.Bool:
		return "boolean", true
	case relq.Int32:
		return "integer", true
	case relq.Int64:
		return "bigint", true
	case relq.Float64:
		return "double precision", true
	case relq.String:
		return "text", true
	case relq.Datetime:
		return "timestamp", true
	case relq.Duration:
		return "interval", true
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

// dateAdd keeps the magnitude a parameter: the seconds count multiplies a
// unit interval instead of being spliced into the text.
func dateAdd(x relq.SQLExpr, d time.Duration, sub bool) relq.SQLExpr {
	op := "+"
	if sub {
		op = "-"
	}
	return relq.SQLExpr{
		SQL:      "(" + x.SQL + " " + op + " ? * INTERVAL '1 second')",
		Args:     append(append([]any(nil), x.Args...), int64(d/time.Second)),
		Windowed: x.Windowed,
	}
}

// Compile lowers expr for PostgreSQL and assembles the final statement with
// $n placeholders.
func Compile(expr relq.Expr, binds relq.Bindings) (string, []any, error) {
	frag, err := relq.Lower(expr, relq.Postgres, binds)
	if err != nil {
		return "", nil, err
	}
	return dialect.SQL(frag)
}

// DB is a live PostgreSQL backend bound to one table of a resource address.
type DB struct {
	conn  *pgx.Conn
	table string
}

// Open connects to the database named by a resource address of the form
//
//	postgresql://user@host/db::table
func Open(ctx context.Context, resource string) (*DB, error) {
	res, err := relq.ParseResource(resource)
	if err != nil {
		return nil, err
	}
	conn, err := pgx.Connect(ctx, res.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return &DB{conn: conn, table: res.Table}, nil
}

// Table returns the table component of the resource address.
func (db *DB) Table() string { return db.table }

// At returns a sibling handle bound to another table of the same database.
// The two handles share the underlying connection; closing either closes
// both.
func (db *DB) At(table string) *DB {
	return &DB{conn: db.conn, table: table}
}

// Close releases the connection.
func (db *DB) Close(ctx context.Context) error {
	return db.conn.Close(ctx)
}

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
func (db *DB) Query(ctx context.Context, expr relq.Expr, binds relq.Bindings) (pgx.Rows, error) {
	sql, args, err := Compile(expr, binds)
	if err != nil {
		return nil, err
	}
	return db.conn.Query(ctx, sql, args...)
}

// Rows executes expr and materializes every result row.
func (db *DB) Rows(ctx context.Context, expr relq.Expr, binds relq.Bindings) ([][]any, error) {
	rows, err := db.Query(ctx, expr, binds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, rows.Err()
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

// Discover reads the bound table's column layout from the catalog.
func (db *DB) Discover(ctx context.Context) (relq.Schema, error) {
	rows, err := db.conn.Query(ctx,
		`SELECT column_name, data_type, is_nullable
		 FROM information_schema.columns
		 WHERE table_name = $1
		 ORDER BY ordinal_position`, db.table)
	if err != nil {
		return relq.Schema{}, fmt.Errorf("postgres: discover %q: %w", db.table, err)
	}
	defer rows.Close()

	var cols []relq.Column
	for rows.Next() {
		var name, dbType, nullable string
		if err := rows.Scan(&name, &dbType, &nullable); err != nil {
			return relq.Schema{}, err
		}
		t, err := scalarType(dbType)
		if err != nil {
			return relq.Schema{}, fmt.Errorf("postgres: discover %q: column %q: %w", db.table, name, err)
		}
		cols = append(cols, relq.Column{Name: name, Type: t, Nullable: nullable == "YES"})
	}
	if err := rows.Err(); err != nil {
		return relq.Schema{}, err
	}
	if len(cols) == 0 {
		return relq.Schema{}, fmt.Errorf("postgres: table %q not found", db.table)
	}
	return relq.Record(cols...), nil
}

func scalarType(dbType string) (relq.ScalarType, error) {
	switch strings.ToLower(dbType) {
	case "boolean":
		return relq.Bool, nil
	case "smallint", "integer":
		return relq.Int32, nil
	case "bigint":
		return relq.Int64, nil
	case "real", "double precision", "numeric":
		return relq.Float64, nil
	case "text", "character varying", "character", "uuid":
		return relq.String, nil
	case "timestamp without time zone", "timestamp with time zone", "date":
		return relq.Datetime, nil
	case "interval":
		return relq.Duration, nil
	default:
		return "", fmt.Errorf("no scalar type for %q", dbType)
	}
}

// CreateTable creates the bound table with columns derived from schema.
func (db *DB) CreateTable(ctx context.Context, schema relq.Schema) error {
	defs := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		t, ok := castType(c.Type)
		if !ok {
			return fmt.Errorf("postgres: no column type for %s", c.Type)
		}
		def := render.QuoteDouble(c.Name) + " " + t
		if !c.Nullable {
			def += " NOT NULL"
		}
		defs[i] = def
	}
	stmt := "CREATE TABLE " + render.QuoteDouble(db.table) + " (" + strings.Join(defs, ", ") + ")"
	if _, err := db.conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("postgres: create %q: %w", db.table, err)
	}
	return nil
}

// Load bulk-inserts rows, given in schema column order, via COPY.
func (db *DB) Load(ctx context.Context, schema relq.Schema, rows [][]any) error {
	_, err := db.conn.CopyFrom(ctx,
		pgx.Identifier{db.table},
		schema.Names(),
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("postgres: load %q: %w", db.table, err)
	}
	return nil
}

// Drop removes the bound table if it exists.
func (db *DB) Drop(ctx context.Context) error {
	_, err := db.conn.Exec(ctx, "DROP TABLE IF EXISTS "+render.QuoteDouble(db.table))
	return err
}
