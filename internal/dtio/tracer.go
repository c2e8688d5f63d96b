package dtio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ncruces/go-strftime"
	"golang.org/x/crypto/blake2b"

	"dtl/internal/dtlerr"
	"dtl/internal/eval"
	"dtl/internal/ir"
	"dtl/internal/schema"
)

// FullTracer is eval.Tracer plus the record_input/record_output calls of
// spec section 6 that internal/eval never issues itself (see eval.Tracer's
// doc comment) — the complete Tracer contract a manifest consumer
// implements. dtio.TracingImporter/TracingExporter are the callers that
// exercise the two extra methods.
type FullTracer interface {
	eval.Tracer
	RecordInput(name string, sch schema.Schema, arrayUUIDs []uuid.UUID) error
	RecordOutput(name string, sch schema.Schema, arrayUUIDs []uuid.UUID) error
}

// ManifestTracer implements eval.Tracer by writing one JSON index file plus
// one file per traced array into a directory: the source text, one record
// per trace snapshot, and one record per array with a blake2b checksum of
// its serialized contents. The checksum is only recorded; internal/inspect
// does not check it when it reads an array back.
//
// Grounded on sentra/internal/debugger/debugger.go's append-a-record-per-
// event shape, recast from an in-memory event log to a persisted manifest.
type ManifestTracer struct {
	dir string

	mu       sync.Mutex
	manifest manifestDoc
}

type manifestDoc struct {
	CreatedAt string          `json:"created_at"`
	Source    sourceRecord    `json:"source"`
	Inputs    []ioRecord      `json:"inputs"`
	Outputs   []ioRecord      `json:"outputs"`
	Traces    []traceRecord   `json:"traces"`
	Mappings  []mappingRecord `json:"mappings"`
	Arrays    []arrayRecord   `json:"arrays"`
}

type ioRecord struct {
	Name       string   `json:"name"`
	Columns    []string `json:"columns"`
	ArrayUUIDs []string `json:"array_uuids"`
}

type mappingRecord struct {
	SrcUUID      string  `json:"src_uuid"`
	TgtUUID      string  `json:"tgt_uuid"`
	SrcIndexUUID *string `json:"src_index_uuid,omitempty"`
	TgtIndexUUID *string `json:"tgt_index_uuid,omitempty"`
}

type sourceRecord struct {
	Text     string `json:"text"`
	Filename string `json:"filename"`
}

type traceRecord struct {
	SpanStart  dtlerr.Location `json:"span_start"`
	SpanEnd    dtlerr.Location `json:"span_end"`
	Columns    []string        `json:"columns"`
	ArrayUUIDs []string        `json:"array_uuids"`
}

type arrayRecord struct {
	UUID     string `json:"uuid"`
	DType    string `json:"dtype"`
	Length   int    `json:"length"`
	File     string `json:"file"`
	Checksum string `json:"checksum_blake2b"`
}

// NewManifestTracer returns a Tracer writing into dir, creating it if
// necessary.
func NewManifestTracer(dir string) (*ManifestTracer, error) {
	if err := os.MkdirAll(filepath.Join(dir, "arrays"), 0o755); err != nil {
		return nil, err
	}
	t := &ManifestTracer{dir: dir}
	t.manifest.CreatedAt = strftime.Format("%Y-%m-%dT%H:%M:%SZ", time.Now().UTC())
	return t, nil
}

// TraceDirName returns a trace directory name stamped with the current
// time, for a `dtl run --trace auto` invocation that doesn't want to pick
// its own directory name.
func TraceDirName() string {
	return "trace-" + strftime.Format("%Y%m%d-%H%M%S", time.Now())
}

func (t *ManifestTracer) RecordSource(text, filename string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.manifest.Source = sourceRecord{Text: text, Filename: filename}
	return nil
}

func (t *ManifestTracer) RecordTrace(span dtlerr.Span, sch schema.Schema, arrayUUIDs []uuid.UUID) error {
	cols := sch.Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	ids := make([]string, len(arrayUUIDs))
	for i, u := range arrayUUIDs {
		ids[i] = u.String()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.manifest.Traces = append(t.manifest.Traces, traceRecord{
		SpanStart:  span.Start,
		SpanEnd:    span.End,
		Columns:    names,
		ArrayUUIDs: ids,
	})
	return nil
}

func (t *ManifestTracer) RecordInput(name string, sch schema.Schema, arrayUUIDs []uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.manifest.Inputs = append(t.manifest.Inputs, newIORecord(name, sch, arrayUUIDs))
	return nil
}

func (t *ManifestTracer) RecordOutput(name string, sch schema.Schema, arrayUUIDs []uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.manifest.Outputs = append(t.manifest.Outputs, newIORecord(name, sch, arrayUUIDs))
	return nil
}

func newIORecord(name string, sch schema.Schema, arrayUUIDs []uuid.UUID) ioRecord {
	cols := sch.Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	ids := make([]string, len(arrayUUIDs))
	for i, u := range arrayUUIDs {
		ids[i] = u.String()
	}
	return ioRecord{Name: name, Columns: names, ArrayUUIDs: ids}
}

func (t *ManifestTracer) RecordMapping(srcUUID, tgtUUID uuid.UUID, srcIndexUUID, tgtIndexUUID *uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.manifest.Mappings = append(t.manifest.Mappings, mappingRecord{
		SrcUUID:      srcUUID.String(),
		TgtUUID:      tgtUUID.String(),
		SrcIndexUUID: uuidStringPtr(srcIndexUUID),
		TgtIndexUUID: uuidStringPtr(tgtIndexUUID),
	})
	return nil
}

func uuidStringPtr(u *uuid.UUID) *string {
	if u == nil {
		return nil
	}
	s := u.String()
	return &s
}

func (t *ManifestTracer) WriteArray(id uuid.UUID, dtype ir.DType, length int, data eval.Array) error {
	body, err := json.Marshal(toPlainSlice(data))
	if err != nil {
		return err
	}
	sum := blake2b.Sum256(body)

	file := id.String() + ".json"
	if err := os.WriteFile(filepath.Join(t.dir, "arrays", file), body, 0o644); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.manifest.Arrays = append(t.manifest.Arrays, arrayRecord{
		UUID:     id.String(),
		DType:    dtype.String(),
		Length:   length,
		File:     filepath.Join("arrays", file),
		Checksum: fmt.Sprintf("%x", sum),
	})
	return nil
}

// Flush writes the accumulated manifest index to dir/manifest.json. Call it
// once after an evaluation run finishes; it is not part of eval.Tracer
// because the evaluator has no natural "run complete" command of its own.
func (t *ManifestTracer) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	body, err := json.MarshalIndent(t.manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(t.dir, "manifest.json"), body, 0o644)
}

func toPlainSlice(a eval.Array) interface{} {
	switch v := a.(type) {
	case eval.BoolArray:
		return []bool(v)
	case eval.Int64Array:
		return []int64(v)
	case eval.DoubleArray:
		return []float64(v)
	case eval.StringArray:
		return []string(v)
	case eval.IndexArray:
		return []int64(v)
	default:
		panic(fmt.Sprintf("dtio: unsupported array type %T", a))
	}
}
