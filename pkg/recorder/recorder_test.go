package recorder

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lore95/BleMultiForceSensersHandler/pkg/despike"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	r := New(t.TempDir(), despike.Options{})
	r.now = func() time.Time { return time.Unix(1700000000, 0) }
	r.today = func() string { return "2026-08-29" }
	return r
}

func makeSamples(values ...float64) []Sample {
	out := make([]Sample, len(values))
	for i, v := range values {
		out[i] = Sample{HostTime: float64(i) * 0.01, Value: v}
	}
	return out
}

func readArtifact(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open artifact: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse artifact: %v", err)
	}
	return rows
}

func TestWriteEmptyBuffers(t *testing.T) {
	r := newTestRecorder(t)

	if _, err := r.Write(nil, nil, Meta{}); !errors.Is(err, ErrNoData) {
		t.Fatalf("Write(nil, nil) = %v, want ErrNoData", err)
	}
}

func TestWriteArtifactLayout(t *testing.T) {
	r := newTestRecorder(t)

	raw := makeSamples(1000, 1010, 1020, 1030)
	force := makeSamples(0, 0.1, 0.2, 0.3)
	path, err := r.Write(raw, force, Meta{DistanceCM: 15, WeightKG: 70})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if filepath.Base(filepath.Dir(path)) != "2026-08-29" {
		t.Fatalf("artifact directory = %s, want date-only without athlete id", filepath.Dir(path))
	}
	if got := filepath.Base(path); got != "1700000000_15cm_70kg_grip_data.csv" {
		t.Fatalf("artifact filename = %s", got)
	}

	rows := readArtifact(t, path)
	if len(rows) != 5 {
		t.Fatalf("got %d rows, want header + 4 samples", len(rows))
	}
	wantHeader := []string{"Host_Time_s", "Raw_V3", "Force_N", "Raw_V3_Filtered"}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Fatalf("header column %d = %s, want %s", i, rows[0][i], col)
		}
	}
	if rows[1][0] != "0.000000" {
		t.Fatalf("host time = %s, want fixed 6-decimal format", rows[1][0])
	}
	if rows[2][1] != "1010" || rows[2][2] != "0.1" {
		t.Fatalf("row 2 = %v", rows[2])
	}
}

func TestWriteAthleteDirectory(t *testing.T) {
	r := newTestRecorder(t)

	path, err := r.Write(makeSamples(1, 2), makeSamples(3, 4), Meta{AthleteID: "A17"})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := filepath.Base(filepath.Dir(path)); got != "2026-08-29_A17" {
		t.Fatalf("artifact directory = %s, want date_athlete", got)
	}
}

func TestWriteTruncatesToShorterBuffer(t *testing.T) {
	r := newTestRecorder(t)

	path, err := r.Write(makeSamples(1, 2, 3), makeSamples(10, 20), Meta{})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	rows := readArtifact(t, path)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2 (shorter buffer wins)", len(rows))
	}
}

func TestWriteFiltersRawColumn(t *testing.T) {
	r := New(t.TempDir(), despike.Options{Window: 5, NSigmas: 3})
	r.now = func() time.Time { return time.Unix(1, 0) }
	r.today = func() string { return "2026-08-29" }

	raw := makeSamples(100, 101, 99, 100, 5000, 100, 101, 99, 100, 101)
	force := makeSamples(0, 0, 0, 0, 0, 0, 0, 0, 0, 0)
	path, err := r.Write(raw, force, Meta{})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	rows := readArtifact(t, path)
	spikeRow := rows[5]
	if spikeRow[1] != "5000" {
		t.Fatalf("Raw_V3 column must keep the spike, got %s", spikeRow[1])
	}
	if spikeRow[3] == "5000" {
		t.Fatal("Raw_V3_Filtered column must not keep the spike")
	}
	if raw[4].Value != 5000 {
		t.Fatal("Write modified its input buffer")
	}
}
