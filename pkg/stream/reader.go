// Package stream provides trace.Source implementations over the transports
// an agent response can arrive on: in-memory records, JSON-lines captures
// and Server-Sent-Event streams.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ravi-parthasarathy/agenttrace/pkg/trace"
)

// maxRecordSize bounds a single record. File outputs carry base64 images,
// so records are much larger than typical text lines.
const maxRecordSize = 64 << 20

// ─── slice ────────────────────────────────────────────────────────────────────

// SliceReader replays a fixed list of records.
type SliceReader struct {
	recs []trace.Record
	pos  int
}

// NewSliceReader returns a reader over recs.
func NewSliceReader(recs ...trace.Record) *SliceReader {
	return &SliceReader{recs: recs}
}

// FromJSON returns a reader over raw JSON records.
func FromJSON(raw ...string) *SliceReader {
	recs := make([]trace.Record, len(raw))
	for i, r := range raw {
		recs[i] = trace.Record{Raw: []byte(r)}
	}
	return NewSliceReader(recs...)
}

// FromEvents returns a reader over typed events.
func FromEvents(evs ...trace.Event) *SliceReader {
	recs := make([]trace.Record, len(evs))
	for i, ev := range evs {
		recs[i] = trace.Record{Event: ev}
	}
	return NewSliceReader(recs...)
}

// Next implements trace.Source.
func (r *SliceReader) Next(ctx context.Context) (trace.Record, error) {
	if err := ctx.Err(); err != nil {
		return trace.Record{}, err
	}
	if r.pos >= len(r.recs) {
		return trace.Record{}, io.EOF
	}
	rec := r.recs[r.pos]
	r.pos++
	return rec, nil
}

// ─── JSON lines ───────────────────────────────────────────────────────────────

// JSONLReader reads one JSON record per line. Blank lines are skipped.
type JSONLReader struct {
	sc   *bufio.Scanner
	line int
}

// NewJSONLReader wraps r.
func NewJSONLReader(r io.Reader) *JSONLReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	return &JSONLReader{sc: sc}
}

// Next implements trace.Source.
func (r *JSONLReader) Next(ctx context.Context) (trace.Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return trace.Record{}, err
		}
		if !r.sc.Scan() {
			if err := r.sc.Err(); err != nil {
				return trace.Record{}, fmt.Errorf("jsonl line %d: %w", r.line+1, err)
			}
			return trace.Record{}, io.EOF
		}
		r.line++
		line := bytes.TrimSpace(r.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		return trace.Record{Raw: bytes.Clone(line)}, nil
	}
}

// ─── server-sent events ───────────────────────────────────────────────────────

// sseDone is the conventional end-of-stream data payload.
const sseDone = "[DONE]"

// SSEReader reads the data payloads of a text/event-stream body. Multiple
// data lines of one event are joined with newlines; the event is
// dispatched on a blank line or at end of input. Comment, event and id
// lines are ignored.
type SSEReader struct {
	sc *bufio.Scanner
}

// NewSSEReader wraps r.
func NewSSEReader(r io.Reader) *SSEReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	return &SSEReader{sc: sc}
}

// Next implements trace.Source.
func (r *SSEReader) Next(ctx context.Context) (trace.Record, error) {
	var data [][]byte
	for {
		if err := ctx.Err(); err != nil {
			return trace.Record{}, err
		}
		if !r.sc.Scan() {
			if err := r.sc.Err(); err != nil {
				return trace.Record{}, fmt.Errorf("sse: %w", err)
			}
			if len(data) > 0 {
				return r.dispatch(data)
			}
			return trace.Record{}, io.EOF
		}
		line := bytes.TrimRight(r.sc.Bytes(), "\r")
		if len(line) == 0 {
			if len(data) == 0 {
				continue
			}
			return r.dispatch(data)
		}
		field, value, _ := bytes.Cut(line, []byte(":"))
		if !bytes.Equal(field, []byte("data")) {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))
		data = append(data, bytes.Clone(value))
	}
}

func (r *SSEReader) dispatch(data [][]byte) (trace.Record, error) {
	payload := bytes.Join(data, []byte("\n"))
	if string(payload) == sseDone {
		return trace.Record{}, io.EOF
	}
	return trace.Record{Raw: payload}, nil
}
