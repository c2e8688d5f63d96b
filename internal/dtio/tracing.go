package dtio

import (
	"github.com/google/uuid"

	"dtl/internal/eval"
	"dtl/internal/schema"
)

// TracingImporter wraps an Importer, persisting every table it opens
// through tracer and recording one record_input entry per table (spec
// section 6), independent of whether the compiled script's own trace
// snapshots happen to reach any of that table's columns — record_input is
// the Importer's own provenance bookkeeping, not a command internal/lower
// ever emits.
type TracingImporter struct {
	inner  eval.Importer
	tracer FullTracer
}

// NewTracingImporter returns an Importer that behaves exactly like inner
// except that every successful Open additionally persists the opened
// table's columns and records a record_input entry for it.
func NewTracingImporter(inner eval.Importer, tracer FullTracer) *TracingImporter {
	return &TracingImporter{inner: inner, tracer: tracer}
}

func (t *TracingImporter) Schema(path string) (schema.Schema, error) {
	return t.inner.Schema(path)
}

func (t *TracingImporter) Open(path string) (eval.TableHandle, error) {
	th, err := t.inner.Open(path)
	if err != nil {
		return nil, err
	}
	sch, err := t.inner.Schema(path)
	if err != nil {
		return nil, err
	}
	cols := sch.Columns()
	ids := make([]uuid.UUID, len(cols))
	for i, col := range cols {
		arr, err := th.Column(col.Name)
		if err != nil {
			return nil, err
		}
		ids[i] = uuid.New()
		if err := t.tracer.WriteArray(ids[i], col.DType, eval.Len(arr), arr); err != nil {
			return nil, err
		}
	}
	if err := t.tracer.RecordInput(path, sch, ids); err != nil {
		return nil, err
	}
	return th, nil
}

// TracingExporter wraps an Exporter, persisting every exported table's
// columns through tracer and recording one record_output entry per table
// before handing the table to inner, the output-side mirror of
// TracingImporter.
type TracingExporter struct {
	inner  eval.Exporter
	tracer FullTracer
}

func NewTracingExporter(inner eval.Exporter, tracer FullTracer) *TracingExporter {
	return &TracingExporter{inner: inner, tracer: tracer}
}

func (t *TracingExporter) Export(name string, sch schema.Schema, columns []eval.Array) error {
	cols := sch.Columns()
	ids := make([]uuid.UUID, len(cols))
	for i, col := range cols {
		ids[i] = uuid.New()
		if err := t.tracer.WriteArray(ids[i], col.DType, eval.Len(columns[i]), columns[i]); err != nil {
			return err
		}
	}
	if err := t.tracer.RecordOutput(name, sch, ids); err != nil {
		return err
	}
	return t.inner.Export(name, sch, columns)
}
