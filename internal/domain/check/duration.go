package check

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// durationPattern matches an optional hours/minutes/seconds triple, each
// component optional, in fixed order: "1h30m", "45s", "2h", "90m10s".
var durationPattern = regexp.MustCompile(`^(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

// ParseDuration accepts either a bare number, interpreted as minutes, or a
// string matching `((\d+)h)?((\d+)m)?((\d+)s)?` (any subset, fixed order).
// The parsed duration is always returned in whole seconds.
//
// This standardizes on minutes for bare numbers and seconds once parsed,
// resolving the ambiguity the original implementation left inconsistent
// between its two callers.
func ParseDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("parse duration: empty value")
	}

	if minutes, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return time.Duration(minutes * float64(time.Minute)).Round(time.Second), nil
	}

	matches := durationPattern.FindStringSubmatch(trimmed)
	if matches == nil {
		return 0, fmt.Errorf("parse duration: %q does not match h/m/s grammar", raw)
	}
	if matches[1] == "" && matches[2] == "" && matches[3] == "" {
		return 0, fmt.Errorf("parse duration: %q has no components", raw)
	}

	var total time.Duration
	if matches[1] != "" {
		h, _ := strconv.Atoi(matches[1])
		total += time.Duration(h) * time.Hour
	}
	if matches[2] != "" {
		m, _ := strconv.Atoi(matches[2])
		total += time.Duration(m) * time.Minute
	}
	if matches[3] != "" {
		s, _ := strconv.Atoi(matches[3])
		total += time.Duration(s) * time.Second
	}

	return total, nil
}

// FormatDuration re-emits a duration using the same grammar ParseDuration
// accepts, for round-trip testing and for writing config back out.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60

	var b strings.Builder
	if h > 0 {
		fmt.Fprintf(&b, "%dh", h)
	}
	if m > 0 {
		fmt.Fprintf(&b, "%dm", m)
	}
	if s > 0 || b.Len() == 0 {
		fmt.Fprintf(&b, "%ds", s)
	}
	return b.String()
}
