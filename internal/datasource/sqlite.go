// Package datasource is a small SQLite-backed cross-filter: one table of rows,
// a set of column filters, and the grouped counts charts draw from.
package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/chartsync/pkg/chart"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdent(s string) bool {
	return identRe.MatchString(s)
}

// Bucket is one group of a grouped count.
type Bucket struct {
	Key   []any
	Count int64
}

// Point is one row's coordinates.
type Point struct {
	X, Y float64
}

// Source reads one table and applies the current filters to every query.
type Source struct {
	db      *sql.DB
	path    string
	table   string
	columns map[string]bool

	mu      sync.RWMutex
	filters Filters
}

// Open opens the database at path read-only and checks that table exists.
func Open(ctx context.Context, path, table string) (*Source, error) {
	if !validIdent(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	// Read-only; the pragmas apply to every pooled connection.
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)&_pragma=cache_size(-64000)&_pragma=temp_store(MEMORY)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	s := &Source{db: db, path: path, table: table, filters: Filters{}}
	if err := s.loadColumns(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Source) loadColumns(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", s.table))
	if err != nil {
		return fmt.Errorf("reading schema: %w", err)
	}
	defer rows.Close()

	s.columns = make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("reading schema: %w", err)
		}
		s.columns[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading schema: %w", err)
	}
	if len(s.columns) == 0 {
		return fmt.Errorf("table %q not found in %s", s.table, s.path)
	}
	return nil
}

// Close closes the database connection.
func (s *Source) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ID identifies the source for the aggregate cache.
func (s *Source) ID() string {
	return "sqlite:" + s.path + "#" + s.table
}

// SetFilters replaces the filter state. Unknown columns are rejected.
func (s *Source) SetFilters(f Filters) error {
	for _, col := range f.Columns() {
		if !s.columns[col] {
			return fmt.Errorf("filter on unknown column %q", col)
		}
	}
	s.mu.Lock()
	s.filters = f.Clone()
	s.mu.Unlock()
	return nil
}

// Filters returns a copy of the current filter state.
func (s *Source) Filters() Filters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters.Clone()
}

// Count returns the number of rows passing every filter.
func (s *Source) Count(ctx context.Context) (int64, error) {
	where, args := s.where(nil)
	var n int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s%s", s.table, where), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// GroupCounts counts rows per distinct value of dims. As in a cross-filter,
// the filters on dims themselves are ignored so a chart still shows the bars
// its own selection excludes.
func (s *Source) GroupCounts(ctx context.Context, dims ...string) ([]Bucket, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("group counts: no dimension")
	}
	for _, d := range dims {
		if !s.columns[d] {
			return nil, fmt.Errorf("group counts: unknown column %q", d)
		}
	}
	cols := strings.Join(dims, ", ")
	where, args := s.where(dims)
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s%s GROUP BY %s ORDER BY %s", cols, s.table, where, cols, cols)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("group counts: %w", err)
	}
	defer rows.Close()

	var buckets []Bucket
	for rows.Next() {
		key := make([]any, len(dims))
		dest := make([]any, len(dims)+1)
		for i := range key {
			dest[i] = &key[i]
		}
		var b Bucket
		dest[len(dims)] = &b.Count
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("group counts: %w", err)
		}
		b.Key = key
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// PointsIn returns up to limit filtered rows whose (xcol, ycol) fall inside b.
func (s *Source) PointsIn(ctx context.Context, xcol, ycol string, b chart.Bounds, limit int) ([]Point, error) {
	if !s.columns[xcol] || !s.columns[ycol] {
		return nil, fmt.Errorf("points: unknown column %q or %q", xcol, ycol)
	}
	where, args := s.where(nil)
	if where == "" {
		where = " WHERE "
	} else {
		where += " AND "
	}
	where += fmt.Sprintf("%s BETWEEN ? AND ? AND %s BETWEEN ? AND ?", xcol, ycol)
	args = append(args, b.MinX, b.MaxX, b.MinY, b.MaxY)
	query := fmt.Sprintf("SELECT %s, %s FROM %s%s LIMIT ?", xcol, ycol, s.table, where)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("points: %w", err)
	}
	defer rows.Close()

	var pts []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.X, &p.Y); err != nil {
			return nil, fmt.Errorf("points: %w", err)
		}
		pts = append(pts, p)
	}
	return pts, rows.Err()
}

// where builds the WHERE clause for the current filters, skipping the
// columns in exclude.
func (s *Source) where(exclude []string) (string, []any) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	skip := make(map[string]bool, len(exclude))
	for _, c := range exclude {
		skip[c] = true
	}
	var (
		clauses []string
		args    []any
	)
	for _, col := range s.filters.Columns() {
		if skip[col] {
			continue
		}
		vals := s.filters[col]
		clauses = append(clauses, fmt.Sprintf("%s IN (%s)", col, strings.TrimSuffix(strings.Repeat("?,", len(vals)), ",")))
		args = append(args, vals...)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
