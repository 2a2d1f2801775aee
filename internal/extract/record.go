package extract

// Fixed leading columns present in every record and every table.
const (
	ColumnFile         = "File"
	ColumnSampleID     = "SampleID"
	ColumnAnalysisDate = "AnalysisDate"
)

// FixedColumns returns the leading columns in table order.
func FixedColumns() []string {
	return []string{ColumnFile, ColumnSampleID, ColumnAnalysisDate}
}

// Record is the flattened content of one result document: an insertion-ordered
// mapping from column name to cell value. Setting an existing key replaces the
// value but keeps the key's original position.
type Record struct {
	keys   []string
	values map[string]string
}

// NewRecord returns a record for file with the fixed columns initialised.
func NewRecord(file string) *Record {
	r := &Record{values: make(map[string]string, 8)}
	r.Set(ColumnFile, file)
	r.Set(ColumnSampleID, "")
	r.Set(ColumnAnalysisDate, "")
	return r
}

// Set stores value under key.
func (r *Record) Set(key, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value for key and whether the record has it.
func (r *Record) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Value returns the value for key, or "" when absent.
func (r *Record) Value(key string) string {
	return r.values[key]
}

// Keys returns the record's keys in insertion order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of keys.
func (r *Record) Len() int { return len(r.keys) }

// File returns the name of the result file the record came from.
func (r *Record) File() string { return r.values[ColumnFile] }
