// Package testutil provides deterministic row fixtures and assertions for
// tests that need a populated SQLite table.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"strings"

	_ "modernc.org/sqlite"
)

// Row is one record of the fixture table.
type Row struct {
	Carrier string
	Hour    int
	Dist    float64
	Delay   float64
}

// GeneratorConfig controls row generation.
type GeneratorConfig struct {
	Seed     int64    // Random seed for determinism
	Carriers []string // Carrier codes drawn uniformly (default: AA, DL, UA, WN)
	MaxDist  float64  // Upper bound for Dist (default: 3000)
	MaxDelay float64  // Upper bound for Delay (default: 120)
}

// DefaultConfig returns a config suitable for most tests.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:     42,
		Carriers: []string{"AA", "DL", "UA", "WN"},
		MaxDist:  3000,
		MaxDelay: 120,
	}
}

// Generator creates fixture rows.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
}

// New creates a generator. Missing fields fall back to DefaultConfig.
func New(cfg GeneratorConfig) *Generator {
	def := DefaultConfig()
	if len(cfg.Carriers) == 0 {
		cfg.Carriers = def.Carriers
	}
	if cfg.MaxDist <= 0 {
		cfg.MaxDist = def.MaxDist
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

// NewDefault creates a generator with DefaultConfig.
func NewDefault() *Generator {
	return New(DefaultConfig())
}

// Rows returns n pseudo-random rows.
func (g *Generator) Rows(n int) []Row {
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{
			Carrier: g.cfg.Carriers[g.rng.Intn(len(g.cfg.Carriers))],
			Hour:    g.rng.Intn(24),
			Dist:    g.rng.Float64() * g.cfg.MaxDist,
			Delay:   g.rng.Float64() * g.cfg.MaxDelay,
		}
	}
	return rows
}

// Flights is a small hand-checked fixture: 6 rows, 3 carriers, hours 7-9,
// Dist and Delay in (0, 1).
func Flights() []Row {
	return []Row{
		{"AA", 7, 0.1, 0.1},
		{"AA", 8, 0.2, 0.2},
		{"UA", 7, 0.3, 0.3},
		{"UA", 9, 0.4, 0.4},
		{"DL", 8, 0.5, 0.5},
		{"DL", 8, 0.6, 0.6},
	}
}

// Schema is the CREATE TABLE statement for table.
func Schema(table string) string {
	return fmt.Sprintf("CREATE TABLE %s (carrier TEXT, hour INTEGER, dist REAL, delay REAL)", table)
}

// WriteSQLite creates table in the database at path and inserts rows in one
// transaction.
func WriteSQLite(ctx context.Context, path, table string, rows []Row) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, Schema(table)); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?)", table))
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Carrier, r.Hour, r.Dist, r.Delay); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert: %w", err)
		}
	}
	return tx.Commit()
}

// CountBy tallies rows by carrier.
func CountBy(rows []Row) map[string]int {
	out := make(map[string]int)
	for _, r := range rows {
		out[r.Carrier]++
	}
	return out
}

// FiltersJSON renders a carrier filter as the JSON filter-file format.
func FiltersJSON(carriers ...string) string {
	quoted := make([]string, len(carriers))
	for i, c := range carriers {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return fmt.Sprintf(`{"carrier":[%s]}`, strings.Join(quoted, ","))
}
