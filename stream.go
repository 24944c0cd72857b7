package dialectcsv

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"go.uber.org/multierr"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// lookupEncoding resolves a WHATWG encoding name or alias. An empty name and
// UTF-8 resolve to nil, meaning bytes pass through untouched.
func lookupEncoding(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
	if enc == unicode.UTF8 {
		return nil, nil
	}
	return enc, nil
}

type compression int

const (
	compressNone compression = iota
	compressGzip
	compressZstd
	compressLZ4
)

func compressionFor(path string) compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return compressGzip
	case ".zst", ".zstd":
		return compressZstd
	case ".lz4":
		return compressLZ4
	default:
		return compressNone
	}
}

// closerChain releases stream layers in reverse order of acquisition.
type closerChain []io.Closer

func (c *closerChain) push(cl io.Closer) {
	*c = append(*c, cl)
}

func (c closerChain) Close() error {
	var err error
	for i := len(c) - 1; i >= 0; i-- {
		err = multierr.Append(err, c[i].Close())
	}
	return err
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openSource opens path for reading: file, then decompressor, then decoder.
// UTF-8 sources may start with a byte order mark, which is dropped.
func openSource(path string, enc encoding.Encoding) (io.Reader, io.Closer, error) {
	f, err := os.Open(path) //nolint:gosec // path is supplied by the caller
	if err != nil {
		return nil, nil, fmt.Errorf("dialectcsv: open %s: %w", path, err)
	}
	chain := closerChain{f}

	var r io.Reader = f
	switch compressionFor(path) {
	case compressGzip:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, multierr.Append(fmt.Errorf("dialectcsv: gzip %s: %w", path, err), chain.Close())
		}
		chain.push(gz)
		r = gz
	case compressZstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, nil, multierr.Append(fmt.Errorf("dialectcsv: zstd %s: %w", path, err), chain.Close())
		}
		chain.push(closerFunc(func() error { zr.Close(); return nil }))
		r = zr
	case compressLZ4:
		r = lz4.NewReader(f)
	}

	if enc != nil {
		r = transform.NewReader(r, enc.NewDecoder())
	} else {
		// Strip a leading byte order mark; a UTF-16 mark switches decoding.
		r = transform.NewReader(r, unicode.BOMOverride(transform.Nop))
	}
	return r, chain, nil
}

// createSink creates path for writing: file, then compressor, then encoder.
// Closing the returned closer flushes the layers from the outermost in.
func createSink(path string, enc encoding.Encoding) (io.Writer, io.Closer, error) {
	f, err := os.Create(path) //nolint:gosec // path is supplied by the caller
	if err != nil {
		return nil, nil, fmt.Errorf("dialectcsv: create %s: %w", path, err)
	}
	chain := closerChain{f}

	var w io.Writer = f
	switch compressionFor(path) {
	case compressGzip:
		gz := gzip.NewWriter(f)
		chain.push(gz)
		w = gz
	case compressZstd:
		zw, err := zstd.NewWriter(f)
		if err != nil {
			return nil, nil, multierr.Append(fmt.Errorf("dialectcsv: zstd %s: %w", path, err), chain.Close())
		}
		chain.push(zw)
		w = zw
	case compressLZ4:
		lw := lz4.NewWriter(f)
		chain.push(lw)
		w = lw
	}

	if enc != nil {
		tw := transform.NewWriter(w, enc.NewEncoder())
		chain.push(tw)
		w = tw
	}
	return w, chain, nil
}
