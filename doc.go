// # dialectcsv: Dialect-Driven CSV Reading and Writing for Go
//
// dialectcsv parses and writes delimited text according to a Dialect: a declarative
// set of syntax rules covering the delimiter, quote and escape characters, double-quote
// handling, initial-space skipping, the line terminator, the quoting policy, strict
// error handling and whether the first record is a header.
//
// # Features
//
//   - Streaming Reader built on a small state machine over quotes, escapes, delimiters and
//     a literal multi-character line terminator, with lenient and strict (ParseError) modes.
//   - Buffered Writer with All, Minimal, NonNumeric and None quoting policies.
//   - Dialect presets (Excel, ExcelTab, Unix) and YAML/JSON dialect config files.
//   - File factories that resolve text encodings by name and transparently handle
//     .gz, .zst and .lz4 files.
//   - Adapter sessions that read or write a whole stream through a Transformer, with
//     header handling, row-shape enforcement, zap logging and Prometheus counters.
//
// # Getting Started
//
//	d := dialectcsv.NewDialect(true, ';', '\'', 0, false, "\r\n", dialectcsv.QuoteMinimal, true, false)
//	r, err := d.NewReader(strings.NewReader("a;'b;c'\r\n"))
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	if err := r.Open(); err != nil {
//	    return err
//	}
//	for r.Next() {
//	    fmt.Println(r.Record()) // [a b;c]
//	}
//	return r.Err()
//
// Readers, Writers and Adapters are not safe for concurrent use. They hold no
// finalizer: a handle that is never closed leaks its stream.
package dialectcsv
