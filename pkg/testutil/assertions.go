package testutil

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/chartsync/pkg/chart"
	"github.com/vanderheijden86/chartsync/pkg/future"
)

// SettleTimeout bounds how long Settle waits for a future.
const SettleTimeout = 5 * time.Second

// SeedDB writes rows into a fresh database under t.TempDir and returns its
// path.
func SeedDB(t testing.TB, table string, rows []Row) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), table+".db")
	if err := WriteSQLite(context.Background(), path, table, rows); err != nil {
		t.Fatalf("seed %s: %v", path, err)
	}
	return path
}

// WriteFile writes content to name under dir and returns the full path.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// Settle waits for f and fails the test if it does not settle in time.
func Settle[T any](t testing.TB, f *future.Future[T]) (T, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), SettleTimeout)
	defer cancel()
	v, err := f.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("future did not settle within %s", SettleTimeout)
	}
	return v, err
}

// MustSettle is Settle that also fails on a rejected future.
func MustSettle[T any](t testing.TB, f *future.Future[T]) T {
	t.Helper()

	v, err := Settle(t, f)
	if err != nil {
		t.Fatalf("future rejected: %v", err)
	}
	return v
}

// AssertOutcomes checks the outcome recorded for each chart id in want.
func AssertOutcomes(t testing.TB, results []chart.Result, want map[string]chart.Outcome) {
	t.Helper()

	got := make(map[string]chart.Outcome, len(results))
	for _, r := range results {
		got[r.ChartID] = r.Outcome
	}
	for id, w := range want {
		g, ok := got[id]
		if !ok {
			t.Errorf("no result for chart %s", id)
			continue
		}
		if g != w {
			t.Errorf("chart %s outcome = %s, want %s", id, g, w)
		}
	}
}

// AssertJSONEqual compares two values after JSON round-tripping.
func AssertJSONEqual(t testing.TB, expected, actual any) {
	t.Helper()

	expectedJSON, err := json.Marshal(expected)
	if err != nil {
		t.Fatalf("failed to marshal expected: %v", err)
	}
	actualJSON, err := json.Marshal(actual)
	if err != nil {
		t.Fatalf("failed to marshal actual: %v", err)
	}
	if string(expectedJSON) != string(actualJSON) {
		t.Errorf("JSON mismatch:\nexpected: %s\nactual:   %s", expectedJSON, actualJSON)
	}
}
