package despike

import (
	"math"
	"math/rand"
	"testing"
)

func TestFilterReplacesSpike(t *testing.T) {
	vals := make([]float64, 50)
	for i := range vals {
		vals[i] = 100 + math.Sin(float64(i)*0.3)
	}
	vals[25] = 5000

	got := Filter(vals, Options{})
	if got[25] == 5000 {
		t.Fatal("spike survived the filter")
	}
	if math.Abs(got[25]-100) > 2 {
		t.Fatalf("spike replaced with %v, want a value near the local median", got[25])
	}
	for i := range got {
		if i != 25 && got[i] != vals[i] {
			t.Fatalf("sample %d changed from %v to %v without being a spike", i, vals[i], got[i])
		}
	}
}

func TestFilterLeavesCleanSeriesAlone(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	vals := make([]float64, 200)
	for i := range vals {
		vals[i] = 50 + r.NormFloat64()
	}

	got := Filter(vals, Options{})
	changed := 0
	for i := range got {
		if got[i] != vals[i] {
			changed++
		}
	}
	// With a 5-sigma threshold, well-behaved noise should pass essentially
	// untouched; a couple of replacements from noisy small-window MAD
	// estimates are tolerated.
	if changed > 5 {
		t.Fatalf("%d of %d clean samples were replaced", changed, len(vals))
	}
}

func TestFilterZeroMADNeverReplaces(t *testing.T) {
	// Flat run with one huge outlier: the windows around the outlier are
	// dominated by the constant, MAD is zero, and the sample must survive.
	vals := []float64{7, 7, 7, 7, 7, 7, 1e9, 7, 7, 7, 7, 7, 7}

	got := Filter(vals, Options{})
	for i := range got {
		if got[i] != vals[i] {
			t.Fatalf("sample %d changed despite zero MAD windows", i)
		}
	}
}

func TestFilterBoundaries(t *testing.T) {
	vals := make([]float64, 30)
	for i := range vals {
		vals[i] = float64(i) + math.Sin(float64(i))
	}
	vals[0] = -9000
	vals[29] = 9000

	got := Filter(vals, Options{})
	if got[0] == -9000 {
		t.Fatal("leading boundary spike survived")
	}
	if got[29] == 9000 {
		t.Fatal("trailing boundary spike survived")
	}
}

func TestFilterDoesNotModifyInput(t *testing.T) {
	vals := []float64{1, 2, 3, 1000, 5, 6, 7, 8, 9, 10, 11, 12}
	orig := make([]float64, len(vals))
	copy(orig, vals)

	Filter(vals, Options{Window: 5, NSigmas: 3})
	for i := range vals {
		if vals[i] != orig[i] {
			t.Fatalf("input sample %d modified: %v != %v", i, vals[i], orig[i])
		}
	}
}

func TestFilterEmpty(t *testing.T) {
	if got := Filter(nil, Options{}); len(got) != 0 {
		t.Fatalf("Filter(nil) returned %v", got)
	}
}

func TestMedian(t *testing.T) {
	cases := []struct {
		vals []float64
		want float64
	}{
		{[]float64{3, 1, 2}, 2},
		{[]float64{4, 1, 3, 2}, 2.5},
		{[]float64{5}, 5},
		{nil, 0},
	}
	for _, c := range cases {
		if got := Median(c.vals); got != c.want {
			t.Fatalf("Median(%v) = %v, want %v", c.vals, got, c.want)
		}
	}
}

func TestMedianDoesNotModifyInput(t *testing.T) {
	vals := []float64{9, 1, 5, 3}
	Median(vals)
	if vals[0] != 9 || vals[1] != 1 || vals[2] != 5 || vals[3] != 3 {
		t.Fatalf("Median reordered its input: %v", vals)
	}
}
