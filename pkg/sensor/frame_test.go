package sensor

import "testing"

func TestParseFrame(t *testing.T) {
	f, ok := ParseFrame([]byte("Time:12345,V1:0.5,V2:-1.25,V3:1532.75,V4:0\r\n"))
	if !ok {
		t.Fatal("valid frame rejected")
	}
	if f.TimeMS != 12345 {
		t.Fatalf("TimeMS = %d", f.TimeMS)
	}
	if f.V1 != 0.5 || f.V2 != -1.25 || f.V3 != 1532.75 || f.V4 != 0 {
		t.Fatalf("values = %+v", f)
	}
}

func TestParseFrameIntegerValues(t *testing.T) {
	f, ok := ParseFrame([]byte("Time:-7,V1:1,V2:2,V3:3,V4:4"))
	if !ok {
		t.Fatal("integer-valued frame rejected")
	}
	if f.TimeMS != -7 || f.V3 != 3 {
		t.Fatalf("parsed = %+v", f)
	}
}

func TestParseFrameMalformed(t *testing.T) {
	malformed := []string{
		"",
		"garbage",
		"Time:1,V1:2,V2:3,V3:4",
		"Time:x,V1:1,V2:2,V3:3,V4:4",
		"V1:1,V2:2,V3:3,V4:4,Time:1",
		"Time:1.5,V1:1,V2:2,V3:3,V4:4",
	}
	for _, line := range malformed {
		if _, ok := ParseFrame([]byte(line)); ok {
			t.Fatalf("malformed frame accepted: %q", line)
		}
	}
}

func TestParseFrameTrailingNoise(t *testing.T) {
	// Extra fields after V4 are tolerated; firmware revisions append to the
	// line without renaming the existing channels.
	f, ok := ParseFrame([]byte("Time:9,V1:1,V2:2,V3:3,V4:4,V5:5"))
	if !ok {
		t.Fatal("frame with trailing fields rejected")
	}
	if f.V3 != 3 {
		t.Fatalf("V3 = %v", f.V3)
	}
}
