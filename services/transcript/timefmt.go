package transcript

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatTimestamp renders seconds as MM:SS, or H:MM:SS past the first hour
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// ParseCueTimestamp parses a cue timestamp of the form HH:MM:SS.mmm (WebVTT)
// or HH:MM:SS,mmm (SRT). The hours field is optional in WebVTT.
func ParseCueTimestamp(ts string) (float64, error) {
	ts = strings.TrimSpace(ts)
	// Normalize SRT's comma millisecond separator
	ts = strings.Replace(ts, ",", ".", 1)

	parts := strings.Split(ts, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("malformed cue timestamp %q", ts)
	}

	var h, m int
	var sec float64
	var err error

	if len(parts) == 3 {
		if h, err = strconv.Atoi(parts[0]); err != nil {
			return 0, fmt.Errorf("malformed cue timestamp %q", ts)
		}
		parts = parts[1:]
	}
	if m, err = strconv.Atoi(parts[0]); err != nil {
		return 0, fmt.Errorf("malformed cue timestamp %q", ts)
	}
	if sec, err = strconv.ParseFloat(parts[1], 64); err != nil {
		return 0, fmt.Errorf("malformed cue timestamp %q", ts)
	}
	if m > 59 || sec >= 60 {
		return 0, fmt.Errorf("cue timestamp out of range %q", ts)
	}

	return float64(h)*3600 + float64(m)*60 + sec, nil
}
