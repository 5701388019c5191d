package calibration

import (
	"encoding/csv"
	"os"
	"sort"
	"strconv"

	pkgerrors "github.com/pkg/errors"
)

// Method selects how a Model maps raw counts to force.
type Method string

const (
	// MethodPiecewise interpolates linearly between neighboring table points.
	MethodPiecewise Method = "piecewise"
	// MethodLinearFit evaluates a least-squares line over the whole table.
	MethodLinearFit Method = "linear_fit"
)

// Point is one calibration table entry.
type Point struct {
	ForceN float64 `json:"forceN"`
	Raw    float64 `json:"raw"`
}

// Options configure a Model.
type Options struct {
	Method Method
	// AllowExtrapolation lets piecewise conversion extend the two boundary
	// segments beyond the table range. When false, out-of-range queries clamp
	// to the boundary force. Linear fit always extrapolates.
	AllowExtrapolation bool
}

// Model is an immutable raw-count-to-force mapping built from at least two
// calibration points.
type Model struct {
	points []Point
	raw    []float64
	force  []float64

	// Least-squares line over the unshifted table, force = slope*raw + intercept.
	slope     float64
	intercept float64

	method        Method
	extrapolation bool
}

// New builds a Model from calibration points. The points are sorted by raw
// count; at least two are required.
func New(points []Point, opts Options) (*Model, error) {
	if len(points) < 2 {
		return nil, pkgerrors.Errorf("need at least 2 calibration points, got %d", len(points))
	}

	method := opts.Method
	if method == "" {
		method = MethodPiecewise
	}
	if method != MethodPiecewise && method != MethodLinearFit {
		return nil, pkgerrors.Errorf("unknown calibration method %q", method)
	}

	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Raw < sorted[j].Raw })

	m := &Model{
		points:        sorted,
		raw:           make([]float64, len(sorted)),
		force:         make([]float64, len(sorted)),
		method:        method,
		extrapolation: opts.AllowExtrapolation,
	}
	for i, p := range sorted {
		m.raw[i] = p.Raw
		m.force[i] = p.ForceN
	}
	m.slope, m.intercept = linearFit(m.raw, m.force)

	return m, nil
}

// Points returns a copy of the sorted calibration points.
func (m *Model) Points() []Point {
	out := make([]Point, len(m.points))
	copy(out, m.points)
	return out
}

// LinearModel returns (slope, intercept) of the least-squares line over the
// unshifted table, force = slope*raw + intercept.
func (m *Model) LinearModel() (float64, float64) {
	return m.slope, m.intercept
}

// Convert maps one raw reading to force in Newtons. The calibration raw axis
// is shifted by baseline-firstRawPoint first, re-anchoring the table against
// the session's zero-load drift. Convert is pure: it keeps no state between
// calls.
func (m *Model) Convert(raw, baseline float64) float64 {
	offset := baseline - m.raw[0]
	n := len(m.raw)

	if m.method == MethodLinearFit {
		shifted := make([]float64, n)
		for i, r := range m.raw {
			shifted[i] = r + offset
		}
		a, b := linearFit(shifted, m.force)
		return a*raw + b
	}

	lo := m.raw[0] + offset
	hi := m.raw[n-1] + offset

	if m.extrapolation {
		if raw <= lo {
			return m.extrapolate(raw, offset, 0, 1)
		}
		if raw >= hi {
			return m.extrapolate(raw, offset, n-2, n-1)
		}
	} else {
		if raw <= lo {
			return m.force[0]
		}
		if raw >= hi {
			return m.force[n-1]
		}
	}

	// Interpolate on the shifted raw axis against the unshifted force axis.
	i := sort.SearchFloat64s(m.raw, raw-offset)
	if i <= 0 {
		return m.force[0]
	}
	if i >= n {
		return m.force[n-1]
	}
	x0, x1 := m.raw[i-1]+offset, m.raw[i]+offset
	y0, y1 := m.force[i-1], m.force[i]
	if x1 == x0 {
		return y0
	}
	return y0 + (y1-y0)*(raw-x0)/(x1-x0)
}

// extrapolate extends the segment between table points i0 and i1 on the
// shifted raw axis. Degenerate segments (equal raw values) return the first
// point's force instead of dividing by zero.
func (m *Model) extrapolate(raw, offset float64, i0, i1 int) float64 {
	x0, y0 := m.raw[i0]+offset, m.force[i0]
	x1, y1 := m.raw[i1]+offset, m.force[i1]
	if x1 == x0 {
		return y0
	}
	return y0 + (y1-y0)/(x1-x0)*(raw-x0)
}

func linearFit(x, y []float64) (slope, intercept float64) {
	n := float64(len(x))
	var sumX, sumY, sumXY, sumXX float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumXX += x[i] * x[i]
	}
	den := n*sumXX - sumX*sumX
	if den == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / den
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// Table column names required in a calibration CSV.
const (
	ColumnForce = "Force_N"
	ColumnRaw   = "V3_mean"
)

// LoadTable reads calibration points from a CSV file with Force_N and V3_mean
// columns. Rows that fail to parse are skipped; fewer than two valid rows is
// an error.
func LoadTable(path string) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to open calibration table")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to read calibration table header")
	}
	forceIdx, rawIdx := -1, -1
	for i, name := range header {
		switch name {
		case ColumnForce:
			forceIdx = i
		case ColumnRaw:
			rawIdx = i
		}
	}
	if forceIdx < 0 || rawIdx < 0 {
		return nil, pkgerrors.Errorf("calibration table must contain %s and %s columns, got %v", ColumnForce, ColumnRaw, header)
	}

	var points []Point
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		if len(record) <= forceIdx || len(record) <= rawIdx {
			continue
		}
		forceN, err := strconv.ParseFloat(record[forceIdx], 64)
		if err != nil {
			continue
		}
		raw, err := strconv.ParseFloat(record[rawIdx], 64)
		if err != nil {
			continue
		}
		points = append(points, Point{ForceN: forceN, Raw: raw})
	}

	if len(points) < 2 {
		return nil, pkgerrors.Errorf("calibration table %s has %d valid rows, need at least 2", path, len(points))
	}

	return points, nil
}
