package dialectcsv

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"
	"unsafe"
)

const defaultBufferSize = 1 << 10 // 1024 bytes

// invalidRune stands for a byte that is not valid UTF-8. It never equals a
// dialect character, and the byte itself is kept in Reader.raw.
const invalidRune rune = -1

var errNoSource = errors.New("dialectcsv: reader source cannot be nil")

type parseState int

const (
	stateStartRecord parseState = iota
	stateStartField
	stateInField
	stateEscape
	stateInQuoted
	stateQuotedEscape
	stateQuoteInQuoted
)

// Reader is a forward-only tokenizer that turns a character stream into records
// following the rules of its Dialect. It is not safe for concurrent use.
type Reader struct {
	dialect *Dialect
	open    func() (io.Reader, io.Closer, error)

	// ReuseRecord indicates whether Read should reuse the backing array of the returned slice.
	ReuseRecord bool

	src    *bufio.Reader
	closer io.Closer
	closed bool
	err    error

	termFirst rune
	termRest  []byte

	headers []string
	current []string

	record      []string
	dataBuf     []byte
	fieldBounds []int
	fieldStart  int
	line        int
	column      int
	raw         byte
}

func newReader(d *Dialect, open func() (io.Reader, io.Closer, error)) *Reader {
	first, size := utf8.DecodeRuneInString(d.LineTerminator)
	return &Reader{
		dialect:     d,
		open:        open,
		termFirst:   first,
		termRest:    []byte(d.LineTerminator[size:]),
		record:      make([]string, 0, 16),
		dataBuf:     make([]byte, 0, 512),
		fieldBounds: make([]int, 0, 32),
		line:        1,
	}
}

// Dialect returns the frozen dialect the Reader was created with.
func (r *Reader) Dialect() *Dialect {
	return r.dialect
}

// Open acquires the input stream. When the dialect has a header, Open consumes
// the first record as the header row and fails with ErrHeaderIsNull if it is
// missing or empty. Calling Open on an open Reader does nothing.
func (r *Reader) Open() error {
	return r.OpenContext(context.Background())
}

// OpenContext is Open with a context checked before the stream is acquired.
func (r *Reader) OpenContext(ctx context.Context) error {
	if r.closed {
		return ErrClosed
	}
	if r.src != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if errors.Is(r.err, ErrNotOpen) {
		r.err = nil
	}

	src, closer, err := r.open()
	if err != nil {
		return err
	}
	size := defaultBufferSize
	if n := len(r.termRest) + utf8.UTFMax; n > size {
		size = n
	}
	r.src = bufio.NewReaderSize(src, size)
	r.closer = closer

	if !r.dialect.HasHeader {
		return nil
	}
	header, err := r.readRecord()
	if errors.Is(err, io.EOF) || (err == nil && isEmptyRecord(header)) {
		r.err = ErrHeaderIsNull
		return ErrHeaderIsNull
	}
	if err != nil {
		r.err = err
		return err
	}
	r.headers = make([]string, len(header))
	for i, h := range header {
		r.headers[i] = strings.Clone(h)
	}
	return nil
}

// Headers returns the header row consumed by Open, or nil when the dialect has no header.
func (r *Reader) Headers() []string {
	return r.headers
}

// Line reports the 1-based line the Reader is positioned on.
func (r *Reader) Line() int {
	return r.line
}

// Next advances to the next record, which is then available from Record.
// It returns false at the end of input or after an error; see Err.
func (r *Reader) Next() bool {
	return r.NextContext(context.Background())
}

// NextContext is Next with a context checked before the record is read.
// Iterating a Reader that is not open, or already closed, stops with
// ErrNotOpen or ErrClosed reported by Err.
func (r *Reader) NextContext(ctx context.Context) bool {
	r.current = nil
	if r.closed && (r.err == nil || errors.Is(r.err, io.EOF)) {
		r.err = ErrClosed
	}
	if r.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		r.err = err
		return false
	}
	rec, err := r.Read()
	if err != nil {
		r.err = err
		return false
	}
	r.current = rec
	return true
}

// Record returns the record loaded by the last successful Next.
func (r *Reader) Record() []string {
	return r.current
}

// Err returns the first error encountered by Next, ignoring io.EOF.
func (r *Reader) Err() error {
	if errors.Is(r.err, io.EOF) {
		return nil
	}
	return r.err
}

// Read parses the next record from the underlying stream. It returns the field
// values (which may reuse internal storage when ReuseRecord is true) or an error;
// io.EOF signals that no more records remain. Errors are terminal.
func (r *Reader) Read() ([]string, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.src == nil {
		return nil, ErrNotOpen
	}
	rec, err := r.readRecord()
	if err != nil {
		r.err = err
		return nil, err
	}
	return rec, nil
}

// ReadAll exhausts the reader, repeatedly calling Read to collect records until io.EOF
// and returning the accumulated records slice plus the first non-EOF error encountered.
func (r *Reader) ReadAll() (records [][]string, err error) {
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		if r.ReuseRecord {
			record = cloneRecord(record)
		}
		records = append(records, record)
	}
}

// Close releases the input stream. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.src = nil
	r.current = nil
	if r.closer == nil {
		return nil
	}
	c := r.closer
	r.closer = nil
	return c.Close()
}

func (r *Reader) readRecord() ([]string, error) {
	d := r.dialect
	if r.ReuseRecord {
		r.record = r.record[:0]
	} else {
		r.record = nil
	}
	r.dataBuf = r.dataBuf[:0]
	r.fieldBounds = r.fieldBounds[:0]
	r.fieldStart = 0
	state := stateStartRecord

	for {
		c, err := r.readRune()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return r.finishAtEOF(state)
			}
			return nil, err
		}
		r.column++

		if state == stateStartRecord {
			term, err := r.matchTerminator(c)
			if err != nil {
				return nil, err
			}
			if term {
				// Empty line: a record with no fields.
				r.newLine()
				return r.buildRecord()
			}
			state = stateStartField
		}

		switch state {
		case stateStartField:
			if d.Quote != 0 && c == d.Quote {
				state = stateInQuoted
				continue
			}
			if d.Escape != 0 && c == d.Escape {
				state = stateEscape
				continue
			}
			if c == d.Delimiter {
				r.endField()
				continue
			}
			term, err := r.matchTerminator(c)
			if err != nil {
				return nil, err
			}
			if term {
				r.endField()
				r.newLine()
				return r.buildRecord()
			}
			if d.SkipInitialSpace && (c == ' ' || c == '\t') {
				continue
			}
			r.appendRune(c)
			state = stateInField

		case stateInField:
			if d.Escape != 0 && c == d.Escape {
				state = stateEscape
				continue
			}
			if c == d.Delimiter {
				r.endField()
				state = stateStartField
				continue
			}
			term, err := r.matchTerminator(c)
			if err != nil {
				return nil, err
			}
			if term {
				r.endField()
				r.newLine()
				return r.buildRecord()
			}
			if d.Quote != 0 && c == d.Quote && d.Strict {
				return nil, r.wrapError(ErrBareQuote)
			}
			r.appendRune(c)

		case stateEscape:
			r.appendRune(c)
			state = stateInField

		case stateInQuoted:
			switch {
			case d.Escape != 0 && c == d.Escape && c != d.Quote:
				state = stateQuotedEscape
			case c == d.Quote:
				state = stateQuoteInQuoted
			default:
				r.appendRune(c)
				if c == '\n' {
					r.newLine()
				}
			}

		case stateQuotedEscape:
			r.appendRune(c)
			if c == '\n' {
				r.newLine()
			}
			state = stateInQuoted

		case stateQuoteInQuoted:
			if d.DoubleQuote && c == d.Quote {
				r.appendRune(c)
				state = stateInQuoted
				continue
			}
			if c == d.Delimiter {
				r.endField()
				state = stateStartField
				continue
			}
			term, err := r.matchTerminator(c)
			if err != nil {
				return nil, err
			}
			if term {
				r.endField()
				r.newLine()
				return r.buildRecord()
			}
			if d.Strict {
				return nil, r.wrapError(ErrTrailingQuote)
			}
			if d.Escape != 0 && c == d.Escape {
				state = stateEscape
				continue
			}
			r.appendRune(c)
			state = stateInField
		}
	}
}

// finishAtEOF closes the record being assembled when input ends.
func (r *Reader) finishAtEOF(state parseState) ([]string, error) {
	d := r.dialect
	switch state {
	case stateStartRecord:
		return nil, io.EOF
	case stateEscape:
		if d.Strict {
			r.column++
			return nil, r.wrapError(ErrTrailingEscape)
		}
		r.appendRune(d.Escape)
	case stateInQuoted, stateQuotedEscape:
		if d.Strict {
			r.column++
			return nil, r.wrapError(ErrUnterminatedQuote)
		}
		if state == stateQuotedEscape {
			r.appendRune(d.Escape)
		}
	}
	r.endField()
	return r.buildRecord()
}

// matchTerminator reports whether c starts the line terminator and, if so,
// consumes the rest of it from the stream.
func (r *Reader) matchTerminator(c rune) (bool, error) {
	if c != r.termFirst {
		return false, nil
	}
	n := len(r.termRest)
	if n == 0 {
		return true, nil
	}
	next, err := r.src.Peek(n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	if !bytes.Equal(next, r.termRest) {
		return false, nil
	}
	if _, err := r.src.Discard(n); err != nil {
		return false, err
	}
	return true, nil
}

// readRune reads the next character. A byte that is not valid UTF-8 comes
// back as invalidRune so it is copied through unchanged.
func (r *Reader) readRune() (rune, error) {
	c, size, err := r.src.ReadRune()
	if err != nil {
		return 0, err
	}
	if c == utf8.RuneError && size == 1 {
		if err := r.src.UnreadByte(); err != nil {
			return 0, err
		}
		b, err := r.src.ReadByte()
		if err != nil {
			return 0, err
		}
		r.raw = b
		return invalidRune, nil
	}
	return c, nil
}

func (r *Reader) appendRune(c rune) {
	if c == invalidRune {
		r.dataBuf = append(r.dataBuf, r.raw)
		return
	}
	r.dataBuf = utf8.AppendRune(r.dataBuf, c)
}

func (r *Reader) endField() {
	r.fieldBounds = append(r.fieldBounds, r.fieldStart, len(r.dataBuf))
	r.fieldStart = len(r.dataBuf)
}

func (r *Reader) newLine() {
	r.line++
	r.column = 0
}

// buildRecord maps the accumulated fieldBounds onto the data buffer, respecting ReuseRecord,
// and returns the materialised []string representing the current record.
func (r *Reader) buildRecord() ([]string, error) {
	fieldCount := len(r.fieldBounds) / 2

	var recordStr string
	if r.ReuseRecord {
		if len(r.dataBuf) > 0 {
			// Zero-copy string construction so fields can share a single backing buffer.
			recordStr = unsafe.String(unsafe.SliceData(r.dataBuf), len(r.dataBuf))
		}
		if cap(r.record) < fieldCount {
			r.record = make([]string, fieldCount)
		}
		r.record = r.record[:fieldCount]
	} else {
		recordStr = string(r.dataBuf)
		r.record = make([]string, fieldCount)
	}

	for i := 0; i < fieldCount; i++ {
		start := r.fieldBounds[2*i]
		end := r.fieldBounds[2*i+1]
		r.record[i] = recordStr[start:end]
	}
	return r.record, nil
}

// wrapError attaches the current line and column to err, producing a *ParseError.
func (r *Reader) wrapError(err error) error {
	return &ParseError{Line: r.line, Column: r.column, Err: err}
}

func isEmptyRecord(rec []string) bool {
	return len(rec) == 0 || (len(rec) == 1 && rec[0] == "")
}

func cloneRecord(rec []string) []string {
	out := make([]string, len(rec))
	for i, s := range rec {
		out[i] = strings.Clone(s)
	}
	return out
}
