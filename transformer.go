package dialectcsv

import (
	"fmt"
	"strconv"
)

// Transformer maps between raw records and caller data for Adapter sessions.
type Transformer interface {
	// TransformTuple converts one record read from the stream. aliases holds the
	// header row, or nil when the dialect has no header.
	TransformTuple(record, aliases []string) (any, error)
	// TransformResult converts the collected tuples into the session result.
	TransformResult(results []any) (any, error)
	// TransformRow converts one caller value into the cells of a row. A nil
	// slice skips the value.
	TransformRow(v any) ([]string, error)
}

// TransformerFuncs builds a Transformer from functions. A nil Tuple keeps the
// record, a nil Result returns the tuples unchanged and a nil Row expects
// []string values.
type TransformerFuncs struct {
	Tuple  func(record, aliases []string) (any, error)
	Result func(results []any) (any, error)
	Row    func(v any) ([]string, error)
}

// TransformTuple calls Tuple, or returns a copy of record.
func (f TransformerFuncs) TransformTuple(record, aliases []string) (any, error) {
	if f.Tuple == nil {
		return cloneRecord(record), nil
	}
	return f.Tuple(record, aliases)
}

// TransformResult calls Result, or returns results unchanged.
func (f TransformerFuncs) TransformResult(results []any) (any, error) {
	if f.Result == nil {
		return results, nil
	}
	return f.Result(results)
}

// TransformRow calls Row, or accepts a []string or nil value.
func (f TransformerFuncs) TransformRow(v any) ([]string, error) {
	if f.Row != nil {
		return f.Row(v)
	}
	switch row := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return row, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedRow, v)
	}
}

// MapTransformer reads records into map[string]string keyed by header alias and
// writes such maps back in Columns order. Records read without a header are
// keyed by their 0-based position.
type MapTransformer struct {
	// Columns fixes the cell order of written rows.
	Columns []string
}

// TransformTuple keys the record by aliases, falling back to position.
func (m MapTransformer) TransformTuple(record, aliases []string) (any, error) {
	out := make(map[string]string, len(record))
	for i, v := range record {
		key := positionKey(i)
		if i < len(aliases) {
			key = aliases[i]
		}
		out[key] = v
	}
	return out, nil
}

// TransformResult returns the maps as []map[string]string.
func (m MapTransformer) TransformResult(results []any) (any, error) {
	out := make([]map[string]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.(map[string]string))
	}
	return out, nil
}

// TransformRow orders the cells of a map[string]string by Columns.
// Missing keys become empty cells.
func (m MapTransformer) TransformRow(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	row, ok := v.(map[string]string)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedRow, v)
	}
	cells := make([]string, len(m.Columns))
	for i, col := range m.Columns {
		cells[i] = row[col]
	}
	return cells, nil
}

func positionKey(i int) string {
	return strconv.Itoa(i)
}
