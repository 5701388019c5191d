// Package recorder persists finished acquisition sessions to disk as flat CSV
// artifacts, one row per sample.
package recorder

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/lore95/BleMultiForceSensersHandler/pkg/despike"
)

// ErrNoData is returned when there are no samples to persist.
var ErrNoData = errors.New("no data to save")

// Header columns of a persisted artifact.
var header = []string{"Host_Time_s", "Raw_V3", "Force_N", "Raw_V3_Filtered"}

// Meta labels one acquisition session. It is snapshotted by the session when
// reading starts or stops so a later asynchronous disconnect can still name
// the artifact correctly.
type Meta struct {
	AthleteID  string  `json:"athleteId"`
	DistanceCM float64 `json:"distanceCm"`
	WeightKG   int     `json:"weightKg"`
}

// Sample is one timestamped reading.
type Sample struct {
	HostTime float64 `json:"hostTime"`
	Value    float64 `json:"value"`
}

// Recorder writes session artifacts under a base directory.
type Recorder struct {
	dir     string
	despike despike.Options

	// Seams for tests; default to the real clock.
	now   func() time.Time
	today func() string
}

// New returns a Recorder writing under dir.
func New(dir string, despikeOpts despike.Options) *Recorder {
	return &Recorder{
		dir:     dir,
		despike: despikeOpts,
		now:     time.Now,
		today:   func() string { return time.Now().Format("2006-01-02") },
	}
}

// Write persists index-aligned raw and force buffers as one CSV artifact and
// returns its path. The raw series additionally gets a despiked copy in the
// Raw_V3_Filtered column. Returns ErrNoData if the buffers are empty. The
// input slices are never modified.
func (r *Recorder) Write(raw, force []Sample, meta Meta) (string, error) {
	n := len(raw)
	if len(force) < n {
		n = len(force)
	}
	if n == 0 {
		return "", ErrNoData
	}

	dir := filepath.Join(r.dir, r.today())
	if meta.AthleteID != "" {
		dir = filepath.Join(r.dir, r.today()+"_"+meta.AthleteID)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", pkgerrors.Wrap(err, "failed to create readings directory")
	}

	filename := fmt.Sprintf("%d_%dcm_%dkg_grip_data.csv",
		r.now().Unix(), int(meta.DistanceCM), meta.WeightKG)
	path := filepath.Join(dir, filename)

	rawValues := make([]float64, n)
	for i := 0; i < n; i++ {
		rawValues[i] = raw[i].Value
	}
	filtered := despike.Filter(rawValues, r.despike)

	f, err := os.Create(path)
	if err != nil {
		return "", pkgerrors.Wrap(err, "failed to create artifact")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return "", pkgerrors.Wrap(err, "failed to write artifact header")
	}
	for i := 0; i < n; i++ {
		record := []string{
			strconv.FormatFloat(raw[i].HostTime, 'f', 6, 64),
			strconv.FormatFloat(raw[i].Value, 'g', -1, 64),
			strconv.FormatFloat(force[i].Value, 'g', -1, 64),
			strconv.FormatFloat(filtered[i], 'g', -1, 64),
		}
		if err := w.Write(record); err != nil {
			return "", pkgerrors.Wrap(err, "failed to write artifact row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", pkgerrors.Wrap(err, "failed to flush artifact")
	}

	return path, nil
}
