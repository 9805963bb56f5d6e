package trace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/ravi-parthasarathy/agenttrace/pkg/artifact"
)

const (
	// DefaultImageDir is where PNG outputs are written when no image store
	// is configured.
	DefaultImageDir = "images"

	mimePNG = "image/png"
)

// Diagnostic records an event that was dropped.
type Diagnostic struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Result is everything produced by one agent invocation.
type Result struct {
	Text         string       `json:"text"`
	Images       []string     `json:"images"`
	Files        []string     `json:"files"`
	Traces       []Entry      `json:"traces"`
	Warnings     []string     `json:"warnings,omitempty"`
	Diagnostics  []Diagnostic `json:"diagnostics,omitempty"`
	Unrecognized []string     `json:"unrecognized,omitempty"`
}

func newResult() Result {
	return Result{Images: []string{}, Files: []string{}, Traces: []Entry{}}
}

func (r *Result) addDiagnostic(index int, err error) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{Index: index, Message: err.Error(), Err: err})
}

// Notice is delivered to an observer as soon as an entry or warning is
// produced. Exactly one of Entry and Warning is set.
type Notice struct {
	Entry   *Entry
	Warning string
}

// Interpreter folds an event stream into a Result.
type Interpreter struct {
	images          artifact.Store
	files           artifact.Store
	fullText        bool
	observer        func(Notice)
	repeatThreshold int
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithImageStore sets where PNG outputs are saved (default "images/").
func WithImageStore(s artifact.Store) Option {
	return func(in *Interpreter) { in.images = s }
}

// WithFileStore sets where non-image file outputs are saved (default the
// working directory).
func WithFileStore(s artifact.Store) Option {
	return func(in *Interpreter) { in.files = s }
}

// WithFullText keeps reading after the first text chunk and concatenates
// every chunk until the stream ends. Without it the interpreter returns as
// soon as the first chunk arrives.
func WithFullText() Option {
	return func(in *Interpreter) { in.fullText = true }
}

// WithObserver registers a callback for live entries and warnings.
func WithObserver(f func(Notice)) Option {
	return func(in *Interpreter) { in.observer = f }
}

// WithRepeatThreshold sets how many identical action-group calls trigger a
// warning. Negative disables the check; 0 keeps the default (3).
func WithRepeatThreshold(n int) Option {
	return func(in *Interpreter) { in.repeatThreshold = n }
}

// NewInterpreter creates an Interpreter.
func NewInterpreter(opts ...Option) *Interpreter {
	in := &Interpreter{}
	for _, opt := range opts {
		opt(in)
	}
	if in.images == nil {
		in.images = artifact.NewLocalStore(DefaultImageDir)
	}
	if in.files == nil {
		in.files = artifact.NewLocalStore(".")
	}
	return in
}

// Interpret consumes src until it is exhausted or, unless WithFullText is
// set, until the first text chunk.
//
// Records that fail to decode, and file outputs that cannot be saved, are
// recorded in Result.Diagnostics and skipped. A read error from src ends
// the loop; the partial Result is returned with the error.
func (in *Interpreter) Interpret(ctx context.Context, src Source) (Result, error) {
	res := newResult()
	watch := newRepeatWatch(in.repeatThreshold)

	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("interpret: %w", err)
		}
		rec, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("interpret: read event %d: %w", index, err)
		}

		if rec.Err != nil {
			slog.Warn("skipping unconvertible agent event", "index", index, "error", rec.Err)
			res.addDiagnostic(index, rec.Err)
			continue
		}
		ev := rec.Event
		if ev == nil {
			ev, err = Decode(rec.Raw)
			if err != nil {
				slog.Warn("skipping malformed agent event", "index", index, "error", err)
				res.addDiagnostic(index, err)
				continue
			}
		}
		slog.Debug("agent event", "index", index, "event", fmt.Sprintf("%T", ev))

		if in.apply(ctx, index, ev, &res, watch) {
			return res, nil
		}
	}
}

// apply folds one event into res and reports whether interpretation is
// finished.
func (in *Interpreter) apply(ctx context.Context, index int, ev Event, res *Result, watch *repeatWatch) bool {
	switch e := ev.(type) {
	case TextChunk:
		res.Text += e.Text
		return !in.fullText
	case FileOutput:
		in.saveFiles(ctx, index, e, res)
		return false
	case GuardrailAssessment:
		for _, w := range GuardrailWarnings(e) {
			in.warn(res, w)
		}
		return false
	case Unknown:
		slog.Debug("unrecognised agent event", "index", index, "shape", e.Shape)
		res.Unrecognized = append(res.Unrecognized, e.Shape)
		return false
	}

	if entry, ok := EntryFor(ev); ok {
		res.Traces = append(res.Traces, entry)
		in.notify(Notice{Entry: &entry})
	}
	if call, ok := ev.(ActionGroupInvocation); ok {
		if w, repeated := watch.record(call); repeated {
			in.warn(res, w)
		}
	}
	return false
}

func (in *Interpreter) saveFiles(ctx context.Context, index int, fo FileOutput, res *Result) {
	for _, f := range fo.Files {
		if f.MIMEType == mimePNG {
			data, err := artifact.NormalizePNG(f.Data)
			if err != nil {
				res.addDiagnostic(index, fmt.Errorf("image %q: %w", f.Name, err))
				return
			}
			loc, err := in.images.Save(ctx, f.Name, f.MIMEType, data)
			if err != nil {
				res.addDiagnostic(index, fmt.Errorf("image %q: %w", f.Name, err))
				return
			}
			if !slices.Contains(res.Images, loc) {
				res.Images = append(res.Images, loc)
			}
			slog.Info("image saved", "name", f.Name, "location", loc)
			continue
		}
		loc, err := in.files.Save(ctx, f.Name, f.MIMEType, f.Data)
		if err != nil {
			res.addDiagnostic(index, fmt.Errorf("file %q: %w", f.Name, err))
			return
		}
		res.Files = append(res.Files, loc)
		slog.Info("file saved", "name", f.Name, "location", loc)
	}
}

func (in *Interpreter) warn(res *Result, w string) {
	res.Warnings = append(res.Warnings, w)
	in.notify(Notice{Warning: w})
}

func (in *Interpreter) notify(n Notice) {
	if in.observer != nil {
		in.observer(n)
	}
}
