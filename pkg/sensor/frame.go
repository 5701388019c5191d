package sensor

import (
	"regexp"
	"strconv"
	"strings"
)

// Notification frames are single text lines:
//
//	Time:<int>,V1:<float>,V2:<float>,V3:<float>,V4:<float>
//
// Only the V3 channel is wired to the force sensor; the rest are ignored.
var lineRe = regexp.MustCompile(`^Time:(-?\d+),V1:(-?\d+(?:\.\d+)?),V2:(-?\d+(?:\.\d+)?),V3:(-?\d+(?:\.\d+)?),V4:(-?\d+(?:\.\d+)?)`)

// Frame is one parsed notification record.
type Frame struct {
	TimeMS int64
	V1     float64
	V2     float64
	V3     float64
	V4     float64
}

// ParseFrame parses one notification payload. Malformed frames are expected
// noise on the wire, so the only failure signal is ok=false.
func ParseFrame(data []byte) (Frame, bool) {
	line := strings.TrimSpace(string(data))
	m := lineRe.FindStringSubmatch(line)
	if m == nil {
		return Frame{}, false
	}

	t, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return Frame{}, false
	}
	var vals [4]float64
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(m[i+2], 64)
		if err != nil {
			return Frame{}, false
		}
		vals[i] = v
	}

	return Frame{TimeMS: t, V1: vals[0], V2: vals[1], V3: vals[2], V4: vals[3]}, true
}
