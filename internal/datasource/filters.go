package datasource

import (
	"fmt"
	"os"
	"sort"

	json "github.com/goccy/go-json"
)

// Filters maps a column to the values it is restricted to. A column with no
// values is unfiltered.
//
// On disk the filter file is a JSON object:
//
//	{"carrier": ["AA", "UA"], "hour": [7, 8, 9]}
type Filters map[string][]any

// LoadFilters reads a filter file. A missing file means no filters.
func LoadFilters(path string) (Filters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Filters{}, nil
		}
		return nil, fmt.Errorf("reading filters: %w", err)
	}
	return ParseFilters(data)
}

// ParseFilters decodes a JSON filter object.
func ParseFilters(data []byte) (Filters, error) {
	f := Filters{}
	if len(data) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing filters: %w", err)
	}
	for col := range f {
		if !validIdent(col) {
			return nil, fmt.Errorf("parsing filters: invalid column %q", col)
		}
	}
	return f, nil
}

// Columns returns filtered column names, sorted.
func (f Filters) Columns() []string {
	cols := make([]string, 0, len(f))
	for c, vals := range f {
		if len(vals) > 0 {
			cols = append(cols, c)
		}
	}
	sort.Strings(cols)
	return cols
}

// Clone returns a deep copy.
func (f Filters) Clone() Filters {
	out := make(Filters, len(f))
	for c, vals := range f {
		out[c] = append([]any(nil), vals...)
	}
	return out
}
