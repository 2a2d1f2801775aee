package extract

// Table is the rectangular merge of a record sequence. Rows keep record order;
// every row has exactly len(Columns()) cells.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// Assemble merges records into a Table. Columns are the fixed columns followed
// by every other key in the order it is first seen across records. A record
// without a given column gets "" in that cell.
//
// Assemble returns ErrNoRecords when records is empty.
func Assemble(records []*Record) (*Table, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	columns := FixedColumns()
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	for _, rec := range records {
		for _, key := range rec.keys {
			if _, ok := index[key]; ok {
				continue
			}
			index[key] = len(columns)
			columns = append(columns, key)
		}
	}

	rows := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(columns))
		for key, value := range rec.values {
			row[index[key]] = value
		}
		rows[i] = row
	}

	return &Table{columns: columns, index: index, rows: rows}, nil
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Rows returns the cell values, one slice per row, aligned with Columns.
// The returned slices are shared with the table and must not be modified.
func (t *Table) Rows() [][]string { return t.rows }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.columns) }

// Cell returns the value at row for column name, or "" when either is unknown.
func (t *Table) Cell(row int, column string) string {
	i, ok := t.index[column]
	if !ok || row < 0 || row >= len(t.rows) {
		return ""
	}
	return t.rows[row][i]
}
