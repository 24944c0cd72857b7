package dialectcsv

import (
	"fmt"
	"io"
	"strings"
)

// QuoteStyle controls when the Writer wraps a field in quote characters.
// The Reader accepts any quoting it encounters.
type QuoteStyle int

const (
	// QuoteMinimal wraps only fields holding a delimiter, quote, escape or line terminator character.
	QuoteMinimal QuoteStyle = iota
	// QuoteAll wraps every field.
	QuoteAll
	// QuoteNonNumeric wraps every field that is not a numeric literal.
	QuoteNonNumeric
	// QuoteNone never wraps and escapes reserved characters instead.
	QuoteNone
)

var quoteStyleNames = [...]string{
	QuoteMinimal:    "minimal",
	QuoteAll:        "all",
	QuoteNonNumeric: "nonnumeric",
	QuoteNone:       "none",
}

// String returns the style name used by MarshalText.
func (q QuoteStyle) String() string {
	if q < 0 || int(q) >= len(quoteStyleNames) {
		return fmt.Sprintf("QuoteStyle(%d)", int(q))
	}
	return quoteStyleNames[q]
}

// MarshalText encodes the style by name.
func (q QuoteStyle) MarshalText() ([]byte, error) {
	if q < 0 || int(q) >= len(quoteStyleNames) {
		return nil, fmt.Errorf("%w: invalid quoting %d", ErrDialectInternal, int(q))
	}
	return []byte(quoteStyleNames[q]), nil
}

// UnmarshalText accepts "all", "minimal", "nonnumeric" and "none", case-insensitively,
// optionally prefixed with "quote" ("QuoteAll", "quote_none").
func (q *QuoteStyle) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	name = strings.TrimPrefix(name, "quote")
	name = strings.Trim(name, "_-")
	name = strings.ReplaceAll(name, "_", "")
	name = strings.ReplaceAll(name, "-", "")
	for i, n := range quoteStyleNames {
		if n == name {
			*q = QuoteStyle(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown quoting %q", ErrDialectInternal, string(text))
}

// Dialect is the set of syntax rules shared by a Reader and Writer.
//
// Fields may be changed freely until the dialect is bound to a Reader or Writer.
// Binding validates the dialect with Check and freezes a private copy, so later
// changes affect only handles created afterwards.
type Dialect struct {
	// DoubleQuote makes two consecutive quote characters inside a quoted field a literal quote.
	DoubleQuote bool
	// Delimiter separates fields.
	Delimiter rune
	// Quote opens and closes quoted regions. It may be zero only with QuoteNone.
	Quote rune
	// Escape escapes the following character. Zero leaves it unset.
	Escape rune
	// SkipInitialSpace discards whitespace at the start of an unquoted field.
	SkipInitialSpace bool
	// LineTerminator ends a record and is matched literally.
	LineTerminator string
	// Quoting is the Writer's quoting policy.
	Quoting QuoteStyle
	// Strict rejects malformed input and unencodable output.
	Strict bool
	// HasHeader marks the first record as a header row.
	HasHeader bool
}

// NewDialect returns a dialect with every field set explicitly.
func NewDialect(doubleQuote bool, delimiter, quote, escape rune, skipInitialSpace bool,
	lineTerminator string, quoting QuoteStyle, strict, hasHeader bool) *Dialect {
	return &Dialect{
		DoubleQuote:      doubleQuote,
		Delimiter:        delimiter,
		Quote:            quote,
		Escape:           escape,
		SkipInitialSpace: skipInitialSpace,
		LineTerminator:   lineTerminator,
		Quoting:          quoting,
		Strict:           strict,
		HasHeader:        hasHeader,
	}
}

// Excel describes the CSV files written by Excel: comma separated, CRLF terminated.
func Excel() *Dialect {
	return NewDialect(true, ',', '"', 0, false, "\r\n", QuoteMinimal, false, false)
}

// ExcelTab is Excel with a tab delimiter.
func ExcelTab() *Dialect {
	d := Excel()
	d.Delimiter = '\t'
	return d
}

// Unix describes files with LF terminators and every field quoted.
func Unix() *Dialect {
	return NewDialect(true, ',', '"', 0, false, "\n", QuoteAll, false, false)
}

// Check validates the dialect. It fails when quoting requires a quote
// character that is not set, or when the line terminator is empty.
func (d *Dialect) Check() error {
	if d == nil {
		return fmt.Errorf("%w: dialect is nil", ErrDialectInternal)
	}
	if d.Quoting != QuoteNone && d.Quote == 0 {
		return fmt.Errorf("%w: quotechar must be set if quoting enabled", ErrDialectInternal)
	}
	if d.LineTerminator == "" {
		return fmt.Errorf("%w: lineterminator must be set", ErrDialectInternal)
	}
	return nil
}

// Clone returns a copy of d.
func (d *Dialect) Clone() *Dialect {
	c := *d
	return &c
}

// frozen validates d and returns the private copy bound to a handle.
func (d *Dialect) frozen() (*Dialect, error) {
	if err := d.Check(); err != nil {
		return nil, err
	}
	return d.Clone(), nil
}

// NewReader binds d to an already-open stream. If src implements io.Closer,
// the Reader owns it and closes it on Close.
func (d *Dialect) NewReader(src io.Reader) (*Reader, error) {
	if src == nil {
		return nil, errNoSource
	}
	dc, err := d.frozen()
	if err != nil {
		return nil, err
	}
	return newReader(dc, func() (io.Reader, io.Closer, error) {
		c, _ := src.(io.Closer)
		return src, c, nil
	}), nil
}

// OpenReader binds d to the file at path decoded with the named encoding.
// The file is opened by Reader.Open.
func (d *Dialect) OpenReader(path, encoding string) (*Reader, error) {
	dc, err := d.frozen()
	if err != nil {
		return nil, err
	}
	enc, err := lookupEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return newReader(dc, func() (io.Reader, io.Closer, error) {
		return openSource(path, enc)
	}), nil
}

// NewWriter binds d to an already-open stream. If dst implements io.Closer,
// the Writer owns it and closes it on Close.
func (d *Dialect) NewWriter(dst io.Writer) (*Writer, error) {
	if dst == nil {
		return nil, errWriterNoTarget
	}
	dc, err := d.frozen()
	if err != nil {
		return nil, err
	}
	return newWriter(dc, func() (io.Writer, io.Closer, error) {
		c, _ := dst.(io.Closer)
		return dst, c, nil
	}), nil
}

// OpenWriter binds d to the file at path encoded with the named encoding.
// The file is created, or truncated, by Writer.Open.
func (d *Dialect) OpenWriter(path, encoding string) (*Writer, error) {
	dc, err := d.frozen()
	if err != nil {
		return nil, err
	}
	enc, err := lookupEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return newWriter(dc, func() (io.Writer, io.Closer, error) {
		return createSink(path, enc)
	}), nil
}
