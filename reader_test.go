package dialectcsv

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lfDialect is Excel terminated by a bare LF.
func lfDialect(mut func(*Dialect)) *Dialect {
	d := Excel()
	d.LineTerminator = "\n"
	if mut != nil {
		mut(d)
	}
	return d
}

func readString(t *testing.T, d *Dialect, input string) ([][]string, error) {
	t.Helper()
	r, err := d.NewReader(strings.NewReader(input))
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.Open())
	return r.ReadAll()
}

// failingSource fails the test if it is ever read.
type failingSource struct{ t *testing.T }

func (s failingSource) Read([]byte) (int, error) {
	s.t.Errorf("source must not be read")
	return 0, io.EOF
}

type closeCounter struct {
	io.Reader
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

func TestReaderReadRecords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		dialect *Dialect
		want    [][]string
	}{
		{
			name:  "basicRecords",
			input: "one,two\nthree,four\n",
			want:  [][]string{{"one", "two"}, {"three", "four"}},
		},
		{
			name:  "finalRecordWithoutTerminator",
			input: "alpha,beta,gamma",
			want:  [][]string{{"alpha", "beta", "gamma"}},
		},
		{
			name:    "crlfTerminator",
			input:   "a,b\r\nc,d\r\n",
			dialect: Excel(),
			want:    [][]string{{"a", "b"}, {"c", "d"}},
		},
		{
			name:    "bareLFIsContentUnderCRLF",
			input:   "a\nb,c\r\n",
			dialect: Excel(),
			want:    [][]string{{"a\nb", "c"}},
		},
		{
			name:  "quotedDelimiter",
			input: "a,\"b,b\",c\n",
			want:  [][]string{{"a", "b,b", "c"}},
		},
		{
			name:  "doubledQuote",
			input: "a,\"b\"\"c\",d\n",
			want:  [][]string{{"a", "b\"c", "d"}},
		},
		{
			name:  "embeddedTerminator",
			input: "a,\"b\nc\",d\n",
			want:  [][]string{{"a", "b\nc", "d"}},
		},
		{
			name:  "emptyFields",
			input: ",,\n",
			want:  [][]string{{"", "", ""}},
		},
		{
			name:  "emptyLine",
			input: "a\n\nb\n",
			want:  [][]string{{"a"}, {}, {"b"}},
		},
		{
			name:    "customDelimiter",
			input:   "left;right\nup;down\n",
			dialect: lfDialect(func(d *Dialect) { d.Delimiter = ';' }),
			want:    [][]string{{"left", "right"}, {"up", "down"}},
		},
		{
			name:    "customQuote",
			input:   "alpha,'beta''gamma',delta\n",
			dialect: lfDialect(func(d *Dialect) { d.Quote = '\'' }),
			want:    [][]string{{"alpha", "beta'gamma", "delta"}},
		},
		{
			name:    "multibyteDelimiter",
			input:   "α¦β\nγ¦δ\n",
			dialect: lfDialect(func(d *Dialect) { d.Delimiter = '¦' }),
			want:    [][]string{{"α", "β"}, {"γ", "δ"}},
		},
		{
			name:    "escapedDelimiter",
			input:   "a\\,b,c\n",
			dialect: lfDialect(func(d *Dialect) { d.Escape = '\\'; d.DoubleQuote = false }),
			want:    [][]string{{"a,b", "c"}},
		},
		{
			name:    "escapedQuoteInQuotedField",
			input:   "\"a\\\"b\",c\n",
			dialect: lfDialect(func(d *Dialect) { d.Escape = '\\'; d.DoubleQuote = false }),
			want:    [][]string{{"a\"b", "c"}},
		},
		{
			name:    "escapeEscapesItself",
			input:   "a\\\\b,\"c\\\\d\"\n",
			dialect: lfDialect(func(d *Dialect) { d.Escape = '\\' }),
			want:    [][]string{{"a\\b", "c\\d"}},
		},
		{
			name:    "doubleQuoteAndEscape",
			input:   "\"a\"\"b\\\"c\"\n",
			dialect: lfDialect(func(d *Dialect) { d.Escape = '\\' }),
			want:    [][]string{{"a\"b\"c"}},
		},
		{
			name:    "skipInitialSpace",
			input:   "a, b,\t c\n",
			dialect: lfDialect(func(d *Dialect) { d.SkipInitialSpace = true }),
			want:    [][]string{{"a", "b", "c"}},
		},
		{
			name:  "keepInitialSpace",
			input: "a, b\n",
			want:  [][]string{{"a", " b"}},
		},
		{
			name:    "skipInitialSpaceKeepsQuotedSpace",
			input:   "a, \" b\"\n",
			dialect: lfDialect(func(d *Dialect) { d.SkipInitialSpace = true }),
			want:    [][]string{{"a", " b"}},
		},
		{
			name:    "multiCharTerminator",
			input:   "a,b||c|d||",
			dialect: lfDialect(func(d *Dialect) { d.LineTerminator = "||" }),
			want:    [][]string{{"a", "b"}, {"c|d"}},
		},
		{
			name:    "partialTerminatorAtEOF",
			input:   "a,b|",
			dialect: lfDialect(func(d *Dialect) { d.LineTerminator = "||" }),
			want:    [][]string{{"a", "b|"}},
		},
		{
			name:  "invalidUTF8KeptAsBytes",
			input: "caf\xe9,\xff\xfe\n",
			want:  [][]string{{"caf\xe9", "\xff\xfe"}},
		},
		{
			name:  "invalidUTF8InQuotedField",
			input: "\"a\xe9,b\",c\n",
			want:  [][]string{{"a\xe9,b", "c"}},
		},
		{
			name:    "invalidUTF8NeverMatchesReplacementDelimiter",
			input:   "a\xffb\uFFFDc\n",
			dialect: lfDialect(func(d *Dialect) { d.Delimiter = utf8.RuneError }),
			want:    [][]string{{"a\xffb", "c"}},
		},
		{
			name:    "escapedInvalidByte",
			input:   "a\\\xe9b\n",
			dialect: lfDialect(func(d *Dialect) { d.Escape = '\\' }),
			want:    [][]string{{"a\xe9b"}},
		},
		{
			name:  "quotedEOF",
			input: "\"quoted\"",
			want:  [][]string{{"quoted"}},
		},
		{
			name:    "quoteNoneWithoutQuoteChar",
			input:   "a\"b,c\n",
			dialect: lfDialect(func(d *Dialect) { d.Quote = 0; d.Quoting = QuoteNone; d.Strict = true }),
			want:    [][]string{{"a\"b", "c"}},
		},
		{
			name:  "lenientTrailingAfterQuote",
			input: "\"ab\"cd,e\n",
			want:  [][]string{{"abcd", "e"}},
		},
		{
			name:  "lenientBareQuote",
			input: "a\"b,c\n",
			want:  [][]string{{"a\"b", "c"}},
		},
		{
			name:  "lenientUnterminatedQuote",
			input: "x,\"abc",
			want:  [][]string{{"x", "abc"}},
		},
		{
			name:    "lenientTrailingEscape",
			input:   "ab\\",
			dialect: lfDialect(func(d *Dialect) { d.Escape = '\\' }),
			want:    [][]string{{"ab\\"}},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			d := tc.dialect
			if d == nil {
				d = lfDialect(nil)
			}
			records, err := readString(t, d, tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, records)
		})
	}
}

func TestReaderSemicolonDialect(t *testing.T) {
	t.Parallel()

	d := NewDialect(true, ';', '\'', 0, false, "\r\n", QuoteMinimal, true, false)

	records, err := readString(t, d, "a;'b;c'\r\n")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b;c"}}, records)

	records, err = readString(t, d, "a;b;c\r\n")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b", "c"}}, records)
}

func TestReaderStrictErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		mut    func(*Dialect)
		err    error
		line   int
		column int
	}{
		{
			name:   "bareQuote",
			input:  "a\"b,c\n",
			err:    ErrBareQuote,
			line:   1,
			column: 2,
		},
		{
			name:   "unterminatedQuoteSameLine",
			input:  "\"value",
			err:    ErrUnterminatedQuote,
			line:   1,
			column: 7,
		},
		{
			name:   "unterminatedQuoteMultiLine",
			input:  "\"alpha\nbeta",
			err:    ErrUnterminatedQuote,
			line:   2,
			column: 5,
		},
		{
			name:   "trailingAfterClosingQuote",
			input:  "\"ab\"c\n",
			err:    ErrTrailingQuote,
			line:   1,
			column: 5,
		},
		{
			name:   "trailingEscape",
			input:  "ab\\",
			mut:    func(d *Dialect) { d.Escape = '\\' },
			err:    ErrTrailingEscape,
			line:   1,
			column: 4,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			d := lfDialect(tc.mut)
			d.Strict = true
			r, err := d.NewReader(strings.NewReader(tc.input))
			require.NoError(t, err)
			require.NoError(t, r.Open())

			_, err = r.Read()
			require.Error(t, err)

			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.ErrorIs(t, perr.Err, tc.err)
			assert.Equal(t, tc.line, perr.Line, "line")
			assert.Equal(t, tc.column, perr.Column, "column")

			_, again := r.Read()
			assert.Equal(t, err, again, "errors must be terminal")
		})
	}
}

func TestReaderNext(t *testing.T) {
	t.Parallel()

	r, err := lfDialect(nil).NewReader(strings.NewReader("a,b\nc,d\n"))
	require.NoError(t, err)
	require.NoError(t, r.Open())

	var got [][]string
	for r.Next() {
		got = append(got, r.Record())
	}
	require.NoError(t, r.Err())
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}}, got)
	assert.False(t, r.Next(), "end of stream is terminal")
	assert.Nil(t, r.Record())
	assert.Equal(t, 3, r.Line())
}

func TestReaderNextRequiresOpen(t *testing.T) {
	t.Parallel()

	r, err := lfDialect(nil).NewReader(strings.NewReader("a\nb\n"))
	require.NoError(t, err)

	assert.False(t, r.Next())
	assert.ErrorIs(t, r.Err(), ErrNotOpen)

	require.NoError(t, r.Open())
	require.True(t, r.Next(), "Open clears a premature iteration")
	assert.Equal(t, []string{"a"}, r.Record())

	require.NoError(t, r.Close())
	assert.False(t, r.Next())
	assert.ErrorIs(t, r.Err(), ErrClosed)
}

func TestReaderNextAfterCloseKeepsParseError(t *testing.T) {
	t.Parallel()

	d := lfDialect(func(d *Dialect) { d.Strict = true })
	r, err := d.NewReader(strings.NewReader("\"open"))
	require.NoError(t, err)
	require.NoError(t, r.Open())

	assert.False(t, r.Next())
	require.NoError(t, r.Close())
	assert.False(t, r.Next())
	assert.ErrorIs(t, r.Err(), ErrUnterminatedQuote)
}

func TestReaderNextStrictError(t *testing.T) {
	t.Parallel()

	d := lfDialect(func(d *Dialect) { d.Strict = true })
	r, err := d.NewReader(strings.NewReader("ok\n\"broken\n"))
	require.NoError(t, err)
	require.NoError(t, r.Open())

	require.True(t, r.Next())
	assert.Equal(t, []string{"ok"}, r.Record())
	assert.False(t, r.Next())
	assert.ErrorIs(t, r.Err(), ErrUnterminatedQuote)
}

func TestReaderNextContextCanceled(t *testing.T) {
	t.Parallel()

	r, err := lfDialect(nil).NewReader(strings.NewReader("a\nb\n"))
	require.NoError(t, err)
	require.NoError(t, r.Open())

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, r.NextContext(ctx))
	cancel()
	assert.False(t, r.NextContext(ctx))
	assert.ErrorIs(t, r.Err(), context.Canceled)

	assert.NoError(t, r.OpenContext(ctx), "a second open is a no-op")
}

func TestReaderHeaders(t *testing.T) {
	t.Parallel()

	d := lfDialect(func(d *Dialect) { d.HasHeader = true })
	r, err := d.NewReader(strings.NewReader("id,name\n1,ann\n2,bob\n"))
	require.NoError(t, err)
	require.NoError(t, r.Open())

	assert.Equal(t, []string{"id", "name"}, r.Headers())
	records, err := r.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "ann"}, {"2", "bob"}}, records)
}

func TestReaderHeaderIsNull(t *testing.T) {
	t.Parallel()

	for name, input := range map[string]string{
		"emptyInput":      "",
		"emptyFirstLine":  "\n1,2\n",
		"emptyFirstField": "\"\"\n1,2\n",
	} {
		name, input := name, input
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			d := lfDialect(func(d *Dialect) { d.HasHeader = true })
			r, err := d.NewReader(strings.NewReader(input))
			require.NoError(t, err)
			assert.ErrorIs(t, r.Open(), ErrHeaderIsNull)
			assert.False(t, r.Next())
			assert.ErrorIs(t, r.Err(), ErrHeaderIsNull)
		})
	}
}

func TestReaderWithoutHeaderHasNoAliases(t *testing.T) {
	t.Parallel()

	r, err := lfDialect(nil).NewReader(strings.NewReader("a\n"))
	require.NoError(t, err)
	require.NoError(t, r.Open())
	assert.Nil(t, r.Headers())
}

func TestReaderReuseRecord(t *testing.T) {
	t.Parallel()

	r, err := lfDialect(nil).NewReader(strings.NewReader("alpha\nbeta\n"))
	require.NoError(t, err)
	require.NoError(t, r.Open())
	r.ReuseRecord = true

	first, err := r.Read()
	require.NoError(t, err)
	second, err := r.Read()
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Same(t, &first[0], &second[0], "expected backing slice to be reused")
	assert.Equal(t, "beta", second[0])

	_, err = r.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderReuseRecordDisabled(t *testing.T) {
	t.Parallel()

	r, err := lfDialect(nil).NewReader(strings.NewReader("alpha\nbeta\n"))
	require.NoError(t, err)
	require.NoError(t, r.Open())

	first, err := r.Read()
	require.NoError(t, err)
	second, err := r.Read()
	require.NoError(t, err)

	assert.NotSame(t, &first[0], &second[0])
	assert.Equal(t, "alpha", first[0])
	assert.Equal(t, "beta", second[0])
}

func TestReaderLifecycle(t *testing.T) {
	t.Parallel()

	src := &closeCounter{Reader: strings.NewReader("a\n")}
	r, err := lfDialect(nil).NewReader(src)
	require.NoError(t, err)

	_, err = r.Read()
	assert.ErrorIs(t, err, ErrNotOpen)

	require.NoError(t, r.Open())
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, src.closes)

	_, err = r.Read()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, r.Open(), ErrClosed)
}

func TestReaderRejectsInvalidDialect(t *testing.T) {
	t.Parallel()

	d := lfDialect(func(d *Dialect) { d.Quote = 0 })
	_, err := d.NewReader(failingSource{t: t})
	assert.ErrorIs(t, err, ErrDialectInternal)

	_, err = d.OpenReader(filepath.Join(t.TempDir(), "missing.csv"), "")
	assert.ErrorIs(t, err, ErrDialectInternal)
}

func TestReaderOpenMissingFile(t *testing.T) {
	t.Parallel()

	r, err := Excel().OpenReader(filepath.Join(t.TempDir(), "missing.csv"), "utf-8")
	require.NoError(t, err)
	defer r.Close()

	err = r.Open()
	assert.True(t, errors.Is(err, fs.ErrNotExist), "got %v", err)
}

func TestReaderReadAllError(t *testing.T) {
	t.Parallel()

	records, err := readString(t, lfDialect(func(d *Dialect) { d.Strict = true }), "a,\"b\n")
	assert.Nil(t, records)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, perr.Err, ErrUnterminatedQuote)
}

func TestParseErrorMethods(t *testing.T) {
	t.Parallel()

	err := &ParseError{Line: 3, Column: 7, Err: ErrBareQuote}
	assert.Contains(t, err.Error(), "line 3")
	assert.Contains(t, err.Error(), "column 7")
	assert.ErrorIs(t, err, ErrBareQuote)

	var nilErr *ParseError
	assert.Empty(t, nilErr.Error())
	assert.NoError(t, nilErr.Unwrap())
}

func cloneStrings(rec []string) []string {
	out := make([]string, len(rec))
	for i, s := range rec {
		out[i] = string([]byte(s))
	}
	return out
}
