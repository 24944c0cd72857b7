package dialectcsv

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/multierr"
)

var (
	errNilWriter      = errors.New("dialectcsv: writer is nil")
	errWriterNoTarget = errors.New("dialectcsv: writer destination cannot be nil")
)

// Writer encodes rows as delimited text following the rules of its Dialect.
// Output is buffered; call Flush or Close to push it to the destination.
// A Writer is not safe for concurrent use.
type Writer struct {
	dialect *Dialect
	open    func() (io.Writer, io.Closer, error)

	dst    *bufio.Writer
	closer io.Closer
	closed bool

	row     []byte
	written int
	err     error
}

func newWriter(d *Dialect, open func() (io.Writer, io.Closer, error)) *Writer {
	return &Writer{
		dialect: d,
		open:    open,
		row:     make([]byte, 0, 256),
	}
}

// Dialect returns the frozen dialect the Writer was created with.
func (w *Writer) Dialect() *Dialect {
	return w.dialect
}

// Open acquires the output stream. Calling Open on an open Writer does nothing.
func (w *Writer) Open() error {
	return w.OpenContext(context.Background())
}

// OpenContext is Open with a context checked before the stream is acquired.
func (w *Writer) OpenContext(ctx context.Context) error {
	if w == nil {
		return errNilWriter
	}
	if w.closed {
		return ErrClosed
	}
	if w.dst != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, closer, err := w.open()
	if err != nil {
		return err
	}
	w.dst = bufio.NewWriterSize(dst, defaultBufferSize)
	w.closer = closer
	return nil
}

// Rows reports how many rows have been written.
func (w *Writer) Rows() int {
	return w.written
}

// WriteRow encodes one row terminated by the dialect's line terminator.
// An encoding failure is reported as a *WriteError and leaves no partial row
// in the output; an I/O failure is sticky.
//
// Under QuoteNone a row holding a single empty field cannot be told apart from
// an empty line. Strict dialects reject it with ErrSingleEmptyField; lenient
// ones write the bare terminator, which reads back as a record with no fields.
func (w *Writer) WriteRow(cells []string) error {
	return w.WriteRowContext(context.Background(), cells)
}

// WriteRowContext is WriteRow with a context checked before the row is written.
func (w *Writer) WriteRowContext(ctx context.Context, cells []string) error {
	if err := w.ready(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d := w.dialect
	buf := w.row[:0]
	for i, field := range cells {
		if i > 0 {
			buf = utf8.AppendRune(buf, d.Delimiter)
		}
		var err error
		buf, err = w.appendField(buf, field, len(cells) == 1)
		if err != nil {
			w.row = buf[:0]
			return &WriteError{Row: w.written + 1, Column: i + 1, Err: err}
		}
	}
	buf = append(buf, d.LineTerminator...)
	w.row = buf[:0]

	if _, err := w.dst.Write(buf); err != nil {
		w.err = err
		return err
	}
	w.written++
	return nil
}

// WriteAll writes multiple rows, stopping at the first error.
func (w *Writer) WriteAll(rows [][]string) error {
	if w == nil {
		return errNilWriter
	}
	for _, row := range rows {
		if err := w.WriteRow(row); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes pending buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if err := w.ready(); err != nil {
		return err
	}
	if err := w.dst.Flush(); err != nil {
		w.err = err
		return err
	}
	return nil
}

// Error reports the first I/O error encountered by the writer.
func (w *Writer) Error() error {
	if w == nil {
		return errNilWriter
	}
	return w.err
}

// Close flushes buffered output and releases the stream. It is safe to call
// more than once.
func (w *Writer) Close() error {
	if w == nil {
		return errNilWriter
	}
	if w.closed {
		return nil
	}
	w.closed = true

	var err error
	if w.dst != nil && w.err == nil {
		err = w.dst.Flush()
	}
	w.dst = nil
	if w.closer != nil {
		err = multierr.Append(err, w.closer.Close())
		w.closer = nil
	}
	return err
}

func (w *Writer) ready() error {
	if w == nil {
		return errNilWriter
	}
	if w.closed {
		return ErrClosed
	}
	if w.dst == nil {
		return ErrNotOpen
	}
	return w.err
}

func (w *Writer) appendField(buf []byte, field string, only bool) ([]byte, error) {
	d := w.dialect
	quoted := w.fieldNeedsQuote(field, only)
	if !quoted && only && field == "" && d.Strict {
		return buf, ErrSingleEmptyField
	}
	if quoted {
		buf = utf8.AppendRune(buf, d.Quote)
	}
	for i := 0; i < len(field); {
		c, size := utf8.DecodeRuneInString(field[i:])
		raw := field[i : i+size]
		if c == utf8.RuneError && size == 1 {
			// Copied through as is; an invalid byte never matches a dialect character.
			c = invalidRune
		}
		switch {
		case quoted && c == d.Quote:
			switch {
			case d.DoubleQuote:
				buf = utf8.AppendRune(buf, c)
			case d.Escape != 0:
				buf = utf8.AppendRune(buf, d.Escape)
			case d.Strict:
				return buf, ErrEscapeRequired
			}
		case d.Escape != 0 && c == d.Escape:
			buf = utf8.AppendRune(buf, d.Escape)
		case !quoted && (w.isReserved(c) || (i == 0 && d.SkipInitialSpace && (c == ' ' || c == '\t'))):
			if d.Escape != 0 {
				buf = utf8.AppendRune(buf, d.Escape)
			} else if d.Strict {
				return buf, ErrEscapeRequired
			}
		}
		buf = append(buf, raw...)
		i += size
	}
	if quoted {
		buf = utf8.AppendRune(buf, d.Quote)
	}
	return buf, nil
}

func (w *Writer) fieldNeedsQuote(field string, only bool) bool {
	d := w.dialect
	switch d.Quoting {
	case QuoteAll:
		return true
	case QuoteNone:
		return false
	case QuoteNonNumeric:
		if !isNumeric(field) {
			return true
		}
	}
	if field == "" {
		// A lone empty field would read back as an empty line.
		return only
	}
	if d.SkipInitialSpace && (field[0] == ' ' || field[0] == '\t') {
		return true
	}
	return strings.ContainsFunc(field, w.isReserved)
}

// isReserved reports whether c would be read as syntax outside a quoted field.
func (w *Writer) isReserved(c rune) bool {
	d := w.dialect
	return c == d.Delimiter || (d.Quote != 0 && c == d.Quote) || strings.ContainsRune(d.LineTerminator, c)
}

func isNumeric(field string) bool {
	if !strings.ContainsAny(field, "0123456789") {
		return false
	}
	_, err := strconv.ParseFloat(field, 64)
	return err == nil
}
