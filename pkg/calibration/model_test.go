package calibration

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func mustModel(t *testing.T, points []Point, opts Options) *Model {
	t.Helper()
	m, err := New(points, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return m
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

var linearTable = []Point{
	{ForceN: 0, Raw: 1000},
	{ForceN: 10, Raw: 2000},
	{ForceN: 20, Raw: 3000},
}

func TestNewRequiresTwoPoints(t *testing.T) {
	if _, err := New([]Point{{ForceN: 1, Raw: 1}}, Options{}); err == nil {
		t.Fatal("expected error for single-point table")
	}
	if _, err := New(nil, Options{}); err == nil {
		t.Fatal("expected error for empty table")
	}
}

func TestNewRejectsUnknownMethod(t *testing.T) {
	if _, err := New(linearTable, Options{Method: "spline"}); err == nil {
		t.Fatal("expected error for unknown method")
	}
}

func TestConvertInterpolates(t *testing.T) {
	m := mustModel(t, linearTable, Options{})

	// Baseline equal to the first raw point leaves the table unshifted.
	got := m.Convert(1500, 1000)
	if !almostEqual(got, 5) {
		t.Fatalf("Convert(1500, 1000) = %v, want 5", got)
	}
	got = m.Convert(2500, 1000)
	if !almostEqual(got, 15) {
		t.Fatalf("Convert(2500, 1000) = %v, want 15", got)
	}
	// Exactly on a table point.
	got = m.Convert(2000, 1000)
	if !almostEqual(got, 10) {
		t.Fatalf("Convert(2000, 1000) = %v, want 10", got)
	}
}

func TestConvertClampsWithoutExtrapolation(t *testing.T) {
	m := mustModel(t, linearTable, Options{AllowExtrapolation: false})

	if got := m.Convert(500, 1000); !almostEqual(got, 0) {
		t.Fatalf("below-range query = %v, want clamp to 0", got)
	}
	if got := m.Convert(9000, 1000); !almostEqual(got, 20) {
		t.Fatalf("above-range query = %v, want clamp to 20", got)
	}
}

func TestConvertExtrapolates(t *testing.T) {
	m := mustModel(t, linearTable, Options{AllowExtrapolation: true})

	if got := m.Convert(500, 1000); !almostEqual(got, -5) {
		t.Fatalf("below-range query = %v, want -5", got)
	}
	if got := m.Convert(4000, 1000); !almostEqual(got, 30) {
		t.Fatalf("above-range query = %v, want 30", got)
	}
}

// Shifting the query by the same amount as the baseline must not change the
// result: the baseline shift is purely a translation of the raw axis.
func TestBaselineShiftIsLinear(t *testing.T) {
	table := []Point{
		{ForceN: 0, Raw: 980},
		{ForceN: 5, Raw: 1400},
		{ForceN: 12, Raw: 2600},
		{ForceN: 30, Raw: 5100},
	}
	m := mustModel(t, table, Options{AllowExtrapolation: true})

	queries := []float64{500, 980, 1234, 2600, 4000, 7000}
	b1, b2 := 1000.0, 1273.5
	for _, raw := range queries {
		at1 := m.Convert(raw+(b2-b1), b2)
		at2 := m.Convert(raw, b1)
		if math.Abs(at1-at2) > 1e-6 {
			t.Fatalf("baseline shift not linear at raw=%v: %v vs %v", raw, at1, at2)
		}
	}
}

func TestConvertIsPure(t *testing.T) {
	m := mustModel(t, linearTable, Options{AllowExtrapolation: true})

	first := m.Convert(1750, 1100)
	for i := 0; i < 10; i++ {
		m.Convert(123, 9999)
		m.Convert(-500, 0)
	}
	if got := m.Convert(1750, 1100); got != first {
		t.Fatalf("Convert accumulated state: %v != %v", got, first)
	}
}

func TestDegeneratePairReturnsBoundaryForce(t *testing.T) {
	table := []Point{
		{ForceN: 3, Raw: 1000},
		{ForceN: 7, Raw: 1000},
	}
	m := mustModel(t, table, Options{AllowExtrapolation: true})

	if got := m.Convert(500, 1000); !almostEqual(got, 3) {
		t.Fatalf("degenerate low extrapolation = %v, want 3", got)
	}
}

func TestLinearFitMethod(t *testing.T) {
	m := mustModel(t, linearTable, Options{Method: MethodLinearFit})

	// The table is exactly linear, so the fit reproduces it and extrapolates.
	if got := m.Convert(1500, 1000); !almostEqual(got, 5) {
		t.Fatalf("linear fit at 1500 = %v, want 5", got)
	}
	if got := m.Convert(5000, 1000); !almostEqual(got, 40) {
		t.Fatalf("linear fit at 5000 = %v, want 40", got)
	}

	slope, intercept := m.LinearModel()
	if !almostEqual(slope, 0.01) || !almostEqual(intercept, -10) {
		t.Fatalf("LinearModel = (%v, %v), want (0.01, -10)", slope, intercept)
	}
}

func TestLoadTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cal.csv")
	content := "Force_N,V3_mean\n0,1000\n10,2000\nnot-a-number,3000\n20,3000\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	points, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable failed: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("got %d points, want 3 (bad row skipped)", len(points))
	}
}

func TestLoadTableMissingColumns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cal.csv")
	if err := os.WriteFile(path, []byte("Force_N,Other\n0,1\n1,2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadTable(path); err == nil {
		t.Fatal("expected error for missing V3_mean column")
	}
}

func TestLoadTableTooFewRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cal.csv")
	if err := os.WriteFile(path, []byte("Force_N,V3_mean\n0,1000\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadTable(path); err == nil {
		t.Fatal("expected error for single-row table")
	}
}
