package dtio

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"dtl/internal/dtlerr"
	"dtl/internal/eval"
	"dtl/internal/ir"
	"dtl/internal/schema"
)

// WSTracer mirrors every Tracer call as a JSON text message over a
// websocket connection, in addition to forwarding it to an inner Tracer
// (typically a ManifestTracer), so a live viewer can watch a run's
// provenance as it happens rather than only after Flush.
//
// Grounded on sentra/internal/network/websocket.go's dial-and-write
// pattern (DefaultDialer with a handshake timeout, WriteMessage of a text
// frame); the teacher's connection registry and reader goroutine have no
// use here since WSTracer only ever writes.
type WSTracer struct {
	inner FullTracer
	conn  *websocket.Conn
}

// NewWSTracer dials url and returns a Tracer mirroring every call to inner
// over that connection.
func NewWSTracer(inner FullTracer, url string) (*WSTracer, error) {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return &WSTracer{inner: inner, conn: conn}, nil
}

type wsMessage struct {
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload"`
}

func (w *WSTracer) send(kind string, payload interface{}) error {
	body, err := json.Marshal(wsMessage{Kind: kind, Payload: payload})
	if err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, body)
}

func (w *WSTracer) RecordSource(text, filename string) error {
	if err := w.send("source", sourceRecord{Text: text, Filename: filename}); err != nil {
		return err
	}
	return w.inner.RecordSource(text, filename)
}

func (w *WSTracer) RecordTrace(span dtlerr.Span, sch schema.Schema, arrayUUIDs []uuid.UUID) error {
	ids := make([]string, len(arrayUUIDs))
	for i, u := range arrayUUIDs {
		ids[i] = u.String()
	}
	if err := w.send("trace", map[string]interface{}{"span": span, "array_uuids": ids}); err != nil {
		return err
	}
	return w.inner.RecordTrace(span, sch, arrayUUIDs)
}

func (w *WSTracer) RecordInput(name string, sch schema.Schema, arrayUUIDs []uuid.UUID) error {
	if err := w.send("input", newIORecord(name, sch, arrayUUIDs)); err != nil {
		return err
	}
	return w.inner.RecordInput(name, sch, arrayUUIDs)
}

func (w *WSTracer) RecordOutput(name string, sch schema.Schema, arrayUUIDs []uuid.UUID) error {
	if err := w.send("output", newIORecord(name, sch, arrayUUIDs)); err != nil {
		return err
	}
	return w.inner.RecordOutput(name, sch, arrayUUIDs)
}

func (w *WSTracer) RecordMapping(srcUUID, tgtUUID uuid.UUID, srcIndexUUID, tgtIndexUUID *uuid.UUID) error {
	if err := w.send("mapping", mappingRecord{
		SrcUUID:      srcUUID.String(),
		TgtUUID:      tgtUUID.String(),
		SrcIndexUUID: uuidStringPtr(srcIndexUUID),
		TgtIndexUUID: uuidStringPtr(tgtIndexUUID),
	}); err != nil {
		return err
	}
	return w.inner.RecordMapping(srcUUID, tgtUUID, srcIndexUUID, tgtIndexUUID)
}

func (w *WSTracer) WriteArray(id uuid.UUID, dtype ir.DType, length int, data eval.Array) error {
	if err := w.send("array", map[string]interface{}{
		"uuid":   id.String(),
		"dtype":  dtype.String(),
		"length": length,
		"data":   toPlainSlice(data),
	}); err != nil {
		return err
	}
	return w.inner.WriteArray(id, dtype, length, data)
}

// Close closes the underlying websocket connection.
func (w *WSTracer) Close() error {
	return w.conn.Close()
}
