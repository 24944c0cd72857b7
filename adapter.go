package dialectcsv

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Adapter drives whole read or write sessions over one source or destination,
// applying a Transformer to every record or row.
type Adapter struct {
	dialect  *Dialect
	path     string
	encoding string
	src      io.Reader
	dst      io.Writer

	headers    []string
	hasHeaders bool
	logger     *zap.Logger
	metrics    *Metrics
	closed     bool
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithHeaders sets the header row written by WriteAll when the dialect has a header.
func WithHeaders(headers ...string) AdapterOption {
	return func(a *Adapter) {
		a.headers = headers
		a.hasHeaders = true
	}
}

// WithLogger sets the logger used for session events.
func WithLogger(l *zap.Logger) AdapterOption {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics records session counters on m.
func WithMetrics(m *Metrics) AdapterOption {
	return func(a *Adapter) {
		a.metrics = m
	}
}

// NewFileAdapter returns an Adapter that reads from or writes to the file at
// path in the named encoding.
func NewFileAdapter(d *Dialect, path, encoding string, opts ...AdapterOption) (*Adapter, error) {
	if _, err := lookupEncoding(encoding); err != nil {
		return nil, err
	}
	return newAdapter(d, &Adapter{path: path, encoding: encoding}, opts)
}

// NewReaderAdapter returns an Adapter that reads from src.
func NewReaderAdapter(d *Dialect, src io.Reader, opts ...AdapterOption) (*Adapter, error) {
	if src == nil {
		return nil, errNoSource
	}
	return newAdapter(d, &Adapter{src: src}, opts)
}

// NewWriterAdapter returns an Adapter that writes to dst.
func NewWriterAdapter(d *Dialect, dst io.Writer, opts ...AdapterOption) (*Adapter, error) {
	if dst == nil {
		return nil, errWriterNoTarget
	}
	return newAdapter(d, &Adapter{dst: dst}, opts)
}

func newAdapter(d *Dialect, a *Adapter, opts []AdapterOption) (*Adapter, error) {
	dc, err := d.frozen()
	if err != nil {
		return nil, err
	}
	a.dialect = dc
	a.logger = zap.NewNop()
	for _, opt := range opts {
		opt(a)
	}
	if a.hasHeaders && dc.HasHeader && len(a.headers) == 0 {
		return nil, fmt.Errorf("%w: provided header list is empty", ErrHeaderIsNull)
	}
	a.logger = a.logger.With(zap.Stringer("quoting", dc.Quoting), zap.String("delimiter", string(dc.Delimiter)))
	if a.path != "" {
		a.logger = a.logger.With(zap.String("path", a.path))
	}
	return a, nil
}

func (a *Adapter) createReader() (*Reader, error) {
	if a.src != nil {
		return a.dialect.NewReader(a.src)
	}
	if a.path != "" {
		return a.dialect.OpenReader(a.path, a.encoding)
	}
	return nil, fmt.Errorf("%w: adapter has no source", ErrNotOpen)
}

func (a *Adapter) createWriter() (*Writer, error) {
	if a.dst != nil {
		return a.dialect.NewWriter(a.dst)
	}
	if a.path != "" {
		return a.dialect.OpenWriter(a.path, a.encoding)
	}
	return nil, fmt.Errorf("%w: adapter has no destination", ErrNotOpen)
}

// ReadAll reads every record, passes each through t.TransformTuple together
// with the header aliases, and returns t.TransformResult of the collected values.
// The stream is released on every exit path.
//
// A nil t fails with ErrDataTransformerIsNull before any I/O. Only a nil
// interface is detected: a typed nil pointer stored in t is called as is.
func (a *Adapter) ReadAll(ctx context.Context, t Transformer) (result any, err error) {
	if t == nil {
		return nil, ErrDataTransformerIsNull
	}
	if a.closed {
		return nil, ErrClosed
	}
	var rows int
	defer func() {
		a.metrics.addRead(rows)
		a.finish("read", rows, err)
	}()

	reader, err := a.createReader()
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, reader.Close())
	}()

	a.logger.Debug("read session started")
	if err := reader.OpenContext(ctx); err != nil {
		return nil, err
	}

	var aliases []string
	if a.dialect.HasHeader {
		aliases = reader.Headers()
		if len(aliases) == 0 {
			return nil, ErrHeaderIsNull
		}
	}

	var results []any
	for reader.NextContext(ctx) {
		v, err := t.TransformTuple(reader.Record(), aliases)
		if err != nil {
			return nil, fmt.Errorf("dialectcsv: transform record %d: %w", rows+1, err)
		}
		results = append(results, v)
		rows++
	}
	if err := reader.Err(); err != nil {
		return nil, err
	}
	return t.TransformResult(results)
}

// WriteAll writes the header row, when the dialect has one and headers were
// configured, followed by t.TransformRow of every element of data. Rows must
// all have the cell count of the first row; a mismatch aborts the session with
// a *CellCountMismatchError before the offending row is written.
// A nil t is treated as in ReadAll.
func (a *Adapter) WriteAll(ctx context.Context, data []any, t Transformer) (err error) {
	if t == nil {
		return ErrDataTransformerIsNull
	}
	if a.closed {
		return ErrClosed
	}
	var rows int
	defer func() {
		a.metrics.addWritten(rows)
		a.finish("write", rows, err)
	}()

	writer, err := a.createWriter()
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, writer.Close())
	}()

	a.logger.Debug("write session started", zap.Int("elements", len(data)))
	if err := writer.OpenContext(ctx); err != nil {
		return err
	}

	if a.dialect.HasHeader && len(a.headers) > 0 {
		if err := writer.WriteRowContext(ctx, a.headers); err != nil {
			return err
		}
	}

	cellCount := -1
	for i, v := range data {
		cells, err := t.TransformRow(v)
		if err != nil {
			return fmt.Errorf("dialectcsv: transform element %d: %w", i, err)
		}
		if cells == nil {
			continue
		}
		if cellCount == -1 {
			cellCount = len(cells)
		}
		if len(cells) != cellCount {
			return &CellCountMismatchError{Row: rows + 1, Got: len(cells), Want: cellCount}
		}
		if err := writer.WriteRowContext(ctx, cells); err != nil {
			return err
		}
		rows++
	}
	return nil
}

// Close marks the Adapter as disposed. It is safe to call more than once.
func (a *Adapter) Close() error {
	a.closed = true
	return nil
}

func (a *Adapter) finish(op string, rows int, err error) {
	if err == nil {
		a.logger.Debug(op+" session finished", zap.Int("rows", rows))
		return
	}
	a.metrics.sessionFailed(op, err)
	level := a.logger.Warn
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		level = a.logger.Info
	}
	level(op+" session aborted", zap.Int("rows", rows), zap.Error(err))
}
