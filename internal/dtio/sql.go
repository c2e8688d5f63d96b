package dtio

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"dtl/internal/eval"
	"dtl/internal/ir"
	"dtl/internal/schema"
)

// SQLImporter treats an IMPORT path literal as a table name, queried over
// an already-open *sql.DB, rather than a filesystem path. One IMPORT/EXPORT
// pipeline runs against either the CSV pair or the SQL pair, chosen once
// for the whole evaluation (cmd/dtl's --dsn flag), never mixed mid-script.
//
// Grounded on sentra/internal/database/database.go's driver-registration
// block; its connection pooling, credential table, and security-scan
// features have no DTL analogue and are not reused.
type SQLImporter struct {
	db     *sql.DB
	driver string

	mu    sync.Mutex
	cache map[string]*sqlTable
}

// NewSQLImporter opens dsn with driver (one of "mysql", "postgres",
// "sqlite3", "sqlite", "sqlserver") and returns an Importer reading tables
// from it.
func NewSQLImporter(driver, dsn string) (*SQLImporter, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	return &SQLImporter{db: db, driver: driver, cache: make(map[string]*sqlTable)}, nil
}

type sqlTable struct {
	schema  schema.Schema
	columns map[string]eval.Array
	length  int
}

func (t *sqlTable) Len() int { return t.length }

func (t *sqlTable) Column(name string) (eval.Array, error) {
	col, ok := t.columns[name]
	if !ok {
		return nil, fmt.Errorf("dtio: no column %q", name)
	}
	return col, nil
}

func (imp *SQLImporter) Schema(table string) (schema.Schema, error) {
	t, err := imp.load(table)
	if err != nil {
		return schema.Schema{}, err
	}
	return t.schema, nil
}

func (imp *SQLImporter) Open(table string) (eval.TableHandle, error) {
	return imp.load(table)
}

func (imp *SQLImporter) load(table string) (*sqlTable, error) {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	if t, ok := imp.cache[table]; ok {
		return t, nil
	}

	rows, err := imp.db.Query("SELECT * FROM " + quoteIdent(imp.driver, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	raw := make([][]string, len(names))
	scan := make([]sql.NullString, len(names))
	ptrs := make([]interface{}, len(names))
	for i := range scan {
		ptrs[i] = &scan[i]
	}

	n := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range scan {
			raw[i] = append(raw[i], v.String)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	columns := make(map[string]eval.Array, len(names))
	cols := make([]schema.Column, len(names))
	for i, name := range names {
		dtype, arr := inferColumn(raw[i])
		cols[i] = schema.Column{Name: name, DType: dtype}
		columns[name] = arr
	}

	sch, err := schema.New(cols...)
	if err != nil {
		return nil, err
	}
	t := &sqlTable{schema: sch, columns: columns, length: n}
	imp.cache[table] = t
	return t, nil
}

// SQLExporter replaces a named table's contents with a schema and its
// columns, inside one transaction.
type SQLExporter struct {
	db     *sql.DB
	driver string
}

func NewSQLExporter(driver, dsn string) (*SQLExporter, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	return &SQLExporter{db: db, driver: driver}, nil
}

func (e *SQLExporter) Export(name string, sch schema.Schema, columns []eval.Array) error {
	tx, err := e.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ident := quoteIdent(e.driver, name)
	if _, err := tx.Exec("DROP TABLE IF EXISTS " + ident); err != nil {
		return err
	}

	cols := sch.Columns()
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = quoteIdent(e.driver, c.Name) + " " + sqlType(c.DType)
	}
	if _, err := tx.Exec(fmt.Sprintf("CREATE TABLE %s (%s)", ident, strings.Join(defs, ", "))); err != nil {
		return err
	}

	placeholders := make([]string, len(cols))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)", ident, strings.Join(placeholders, ", "))

	n := 0
	if len(columns) > 0 {
		n = eval.Len(columns[0])
	}
	for r := 0; r < n; r++ {
		args := make([]interface{}, len(columns))
		for c, col := range columns {
			args[c] = cellValue(col, r)
		}
		if _, err := tx.Exec(insert, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func sqlType(d ir.DType) string {
	switch d {
	case ir.Bool:
		return "BOOLEAN"
	case ir.Int64:
		return "BIGINT"
	case ir.Double:
		return "DOUBLE PRECISION"
	case ir.String:
		return "TEXT"
	case ir.Index:
		return "BIGINT"
	default:
		return "TEXT"
	}
}

func cellValue(a eval.Array, i int) interface{} {
	switch v := a.(type) {
	case eval.BoolArray:
		return v[i]
	case eval.Int64Array:
		return v[i]
	case eval.DoubleArray:
		return v[i]
	case eval.StringArray:
		return v[i]
	case eval.IndexArray:
		return v[i]
	default:
		panic(fmt.Sprintf("dtio: unsupported array type %T", a))
	}
}

// quoteIdent wraps name in the identifier-quoting convention of driver,
// doubling any embedded quote character.
func quoteIdent(driver, name string) string {
	if driver == "mysql" {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
