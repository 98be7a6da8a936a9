package cypher

import "fmt"

// ResultSet is the decoded output of one statement: column labels in the
// query's RETURN order plus row data. All rows are materialized when the
// response is parsed; there is no streaming, batch sizes are bounded by
// what one HTTP request carries.
type ResultSet struct {
	columns []string
	rows    []Row
	index   map[string]int
}

// newResultSet builds a result set and the shared name→position lookup.
// Every row references the same lookup map; it is read-only after
// construction.
func newResultSet(columns []string, cells [][]Value) *ResultSet {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	rs := &ResultSet{
		columns: columns,
		rows:    make([]Row, len(cells)),
		index:   index,
	}
	for i, row := range cells {
		rs.rows[i] = Row{cells: row, index: index}
	}
	return rs
}

// Columns returns the column labels, in the query's RETURN order.
func (r *ResultSet) Columns() []string { return r.columns }

// Rows returns the decoded rows.
func (r *ResultSet) Rows() []Row { return r.rows }

// Len returns the number of rows.
func (r *ResultSet) Len() int { return len(r.rows) }

// Row is one record of a ResultSet. Cells are positional, in column
// order; Get resolves a column name through the lookup shared with the
// owning ResultSet. Column names are matched case-sensitively, exactly as
// the server returned them.
type Row struct {
	cells []Value
	index map[string]int
}

// Len returns the number of cells, always equal to the column count of
// the owning ResultSet.
func (r Row) Len() int { return len(r.cells) }

// Cell returns the cell at a position.
func (r Row) Cell(i int) (Value, error) {
	if i < 0 || i >= len(r.cells) {
		return Null, fmt.Errorf("no column at index %d (row has %d)", i, len(r.cells))
	}
	return r.cells[i], nil
}

// Get returns the cell under a column name, or ErrColumnNotFound when
// the name is absent from the result's columns.
func (r Row) Get(column string) (Value, error) {
	i, ok := r.index[column]
	if !ok {
		return Null, fmt.Errorf("%w: %q", ErrColumnNotFound, column)
	}
	return r.cells[i], nil
}

// Get reads a cell as a static type. Supported targets are bool, the
// signed integer types, float32/float64, string, []Value,
// map[string]Value, Value itself, any, and pointer forms of the scalars
// for optional columns. The conversion fails with ErrTypeMismatch when
// the cell's variant does not match, and with ErrUnexpectedNull when a
// null cell is read into a non-pointer target.
//
//	name, err := cypher.Get[string](row, "n.name")
func Get[T any](r Row, column string) (T, error) {
	var out T
	v, err := r.Get(column)
	if err != nil {
		return out, err
	}
	switch p := any(&out).(type) {
	case *Value:
		*p = v
	case *any:
		*p = v.Any()
	case *bool:
		*p, err = v.AsBool()
	case *int:
		*p, err = v.AsInt()
	case *int8:
		*p, err = v.AsInt8()
	case *int16:
		*p, err = v.AsInt16()
	case *int32:
		*p, err = v.AsInt32()
	case *int64:
		*p, err = v.AsInt64()
	case *float32:
		*p, err = v.AsFloat32()
	case *float64:
		*p, err = v.AsFloat64()
	case *string:
		*p, err = v.AsString()
	case *[]Value:
		*p, err = v.AsList()
	case *map[string]Value:
		*p, err = v.AsMap()
	case **bool:
		*p, err = v.AsBoolPtr()
	case **int64:
		*p, err = v.AsInt64Ptr()
	case **float64:
		*p, err = v.AsFloat64Ptr()
	case **string:
		*p, err = v.AsStringPtr()
	default:
		err = fmt.Errorf("%w: unsupported target type %T", ErrTypeMismatch, out)
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
