// Package dtio supplies the concrete Importer, Exporter, and Tracer
// collaborators spec section 6 describes abstractly: a CSV pair, a SQL
// pair over database/sql, and a manifest Tracer optionally mirrored over a
// websocket.
//
// Grounded on sentra/internal/dataframe/dataframe.go's ReadCSV/ToCSV
// (encoding/csv, header row, whole-file load) and
// sentra/internal/database/database.go's driver-registration block,
// adapted from dataframe rows of interface{} and ad hoc security scanning
// to typed columnar arrays matching a schema.Schema.
package dtio

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"dtl/internal/eval"
	"dtl/internal/ir"
	"dtl/internal/schema"
)

// CSVImporter loads a whole CSV file into memory on first use, inferring
// each column's scalar dtype from its values, then serves Schema/Open
// calls from that cached table.
type CSVImporter struct {
	mu    sync.Mutex
	cache map[string]*csvTable
}

// NewCSVImporter returns an Importer reading files from the local
// filesystem.
func NewCSVImporter() *CSVImporter {
	return &CSVImporter{cache: make(map[string]*csvTable)}
}

type csvTable struct {
	schema  schema.Schema
	columns map[string]eval.Array
	length  int
}

func (t *csvTable) Len() int { return t.length }

func (t *csvTable) Column(name string) (eval.Array, error) {
	col, ok := t.columns[name]
	if !ok {
		return nil, fmt.Errorf("dtio: no column %q", name)
	}
	return col, nil
}

func (imp *CSVImporter) Schema(path string) (schema.Schema, error) {
	t, err := imp.load(path)
	if err != nil {
		return schema.Schema{}, err
	}
	return t.schema, nil
}

func (imp *CSVImporter) Open(path string) (eval.TableHandle, error) {
	return imp.load(path)
}

func (imp *CSVImporter) load(path string) (*csvTable, error) {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	if t, ok := imp.cache[path]; ok {
		return t, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dtio: %s has no header row", path)
	}

	headers := records[0]
	rows := records[1:]
	raw := make([][]string, len(headers))
	for i := range raw {
		raw[i] = make([]string, len(rows))
	}
	for r, row := range rows {
		for c := range headers {
			if c < len(row) {
				raw[c][r] = row[c]
			}
		}
	}

	columns := make(map[string]eval.Array, len(headers))
	cols := make([]schema.Column, len(headers))
	for i, name := range headers {
		dtype, arr := inferColumn(raw[i])
		cols[i] = schema.Column{Name: name, DType: dtype}
		columns[name] = arr
	}

	sch, err := schema.New(cols...)
	if err != nil {
		return nil, err
	}
	t := &csvTable{schema: sch, columns: columns, length: len(rows)}
	imp.cache[path] = t
	return t, nil
}

// inferColumn picks the narrowest dtype every value in raw parses as,
// falling back to String, matching dataframe.go's Sort doing the same
// best-effort numeric coercion before falling back to string comparison.
func inferColumn(raw []string) (ir.DType, eval.Array) {
	if ints, ok := parseAllInt64(raw); ok {
		return ir.Int64, eval.Int64Array(ints)
	}
	if floats, ok := parseAllFloat64(raw); ok {
		return ir.Double, eval.DoubleArray(floats)
	}
	if bools, ok := parseAllBool(raw); ok {
		return ir.Bool, eval.BoolArray(bools)
	}
	return ir.String, eval.StringArray(raw)
}

func parseAllInt64(raw []string) ([]int64, bool) {
	out := make([]int64, len(raw))
	for i, s := range raw {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func parseAllFloat64(raw []string) ([]float64, bool) {
	out := make([]float64, len(raw))
	for i, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func parseAllBool(raw []string) ([]bool, bool) {
	out := make([]bool, len(raw))
	for i, s := range raw {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// CSVExporter writes a schema and its columns to a CSV file, header row
// first, grounded on dataframe.go's ToCSV.
type CSVExporter struct{}

func NewCSVExporter() CSVExporter { return CSVExporter{} }

func (CSVExporter) Export(name string, sch schema.Schema, columns []eval.Array) error {
	file, err := os.Create(name)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	cols := sch.Columns()
	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = c.Name
	}
	if err := w.Write(headers); err != nil {
		return err
	}

	n := 0
	if len(columns) > 0 {
		n = eval.Len(columns[0])
	}
	row := make([]string, len(cols))
	for r := 0; r < n; r++ {
		for c := range cols {
			row[c] = formatCell(columns[c], r)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func formatCell(a eval.Array, i int) string {
	switch v := a.(type) {
	case eval.BoolArray:
		return strconv.FormatBool(v[i])
	case eval.Int64Array:
		return strconv.FormatInt(v[i], 10)
	case eval.DoubleArray:
		return strconv.FormatFloat(v[i], 'g', -1, 64)
	case eval.StringArray:
		return v[i]
	case eval.IndexArray:
		return strconv.FormatInt(v[i], 10)
	default:
		panic(fmt.Sprintf("dtio: unsupported array type %T", a))
	}
}
