package dialectcsv

import (
	"errors"
	"fmt"
)

var (
	// ErrDialectInternal is returned by Dialect.Check when the dialect is self-inconsistent.
	ErrDialectInternal = errors.New("dialectcsv: dialect internal error")
	// ErrHeaderIsNull is returned when a header is required but missing or empty.
	ErrHeaderIsNull = errors.New("dialectcsv: header is null")
	// ErrDataTransformerIsNull is returned when a session is started without a transformer.
	ErrDataTransformerIsNull = errors.New("dialectcsv: data transformer is null")
	// ErrCellCountMismatch is matched by *CellCountMismatchError.
	ErrCellCountMismatch = errors.New("dialectcsv: cell count differs between rows")

	// ErrUnsupportedRow is returned when a transformer is given a value it cannot turn into cells.
	ErrUnsupportedRow = errors.New("dialectcsv: unsupported row value")

	// ErrBareQuote is returned in strict mode when a quote appears inside an unquoted field.
	ErrBareQuote = errors.New("dialectcsv: bare quote in non-quoted field")
	// ErrUnterminatedQuote is returned in strict mode when a quoted field is not closed before EOF.
	ErrUnterminatedQuote = errors.New("dialectcsv: unterminated quoted field")
	// ErrTrailingQuote is returned in strict mode when characters follow a closing quote.
	ErrTrailingQuote = errors.New("dialectcsv: unexpected character after closing quote")
	// ErrTrailingEscape is returned in strict mode when input ends right after an escape character.
	ErrTrailingEscape = errors.New("dialectcsv: escape character at end of input")

	// ErrEscapeRequired is returned in strict mode when a field needs escaping but no escape character is set.
	ErrEscapeRequired = errors.New("dialectcsv: need to escape, but no escape character is set")
	// ErrSingleEmptyField is returned in strict mode when a row holding one empty
	// field cannot be quoted and would read back as an empty record.
	ErrSingleEmptyField = errors.New("dialectcsv: single empty field record must be quoted")

	// ErrUnknownEncoding is returned when an encoding name cannot be resolved.
	ErrUnknownEncoding = errors.New("dialectcsv: unknown encoding")
	// ErrUnsupportedConfig is returned for configuration files of an unknown format.
	ErrUnsupportedConfig = errors.New("dialectcsv: unsupported config format")

	// ErrClosed is returned when a closed Reader, Writer or Adapter is used.
	ErrClosed = errors.New("dialectcsv: use of closed handle")
	// ErrNotOpen is returned when a Reader or Writer is used before Open.
	ErrNotOpen = errors.New("dialectcsv: handle is not open")
)

// ParseError contains location information for CSV parsing errors.
type ParseError struct {
	Line   int
	Column int
	Err    error
}

// Error formats the parse error message with the stored line, column, and Err values.
func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("dialectcsv: parse error on line %d, column %d: %v", e.Line, e.Column, e.Err)
}

// Unwrap returns the underlying Err so ParseError participates in errors.Is.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WriteError reports the row and cell a Writer failed to encode.
// Row and Column are 1-based.
type WriteError struct {
	Row    int
	Column int
	Err    error
}

// Error formats the failing row and cell with the underlying error.
func (e *WriteError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("dialectcsv: write error on row %d, cell %d: %v", e.Row, e.Column, e.Err)
}

// Unwrap returns the underlying Err.
func (e *WriteError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CellCountMismatchError is returned by Adapter.WriteAll when a row's width
// differs from the first row written in the session.
type CellCountMismatchError struct {
	Row  int
	Got  int
	Want int
}

// Error reports the row and both cell counts.
func (e *CellCountMismatchError) Error() string {
	return fmt.Sprintf("dialectcsv: row %d has %d cells, expected %d", e.Row, e.Got, e.Want)
}

// Is reports ErrCellCountMismatch as a match.
func (e *CellCountMismatchError) Is(target error) bool {
	return target == ErrCellCountMismatch
}
