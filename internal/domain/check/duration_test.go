package check

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "bare integer is minutes", input: "5", want: 5 * time.Minute},
		{name: "bare float is minutes", input: "1.5", want: 90 * time.Second},
		{name: "hours only", input: "2h", want: 2 * time.Hour},
		{name: "minutes only", input: "45m", want: 45 * time.Minute},
		{name: "seconds only", input: "30s", want: 30 * time.Second},
		{name: "combined", input: "1h30m10s", want: time.Hour + 30*time.Minute + 10*time.Second},
		{name: "hours and seconds", input: "2h10s", want: 2*time.Hour + 10*time.Second},
		{name: "whitespace trimmed", input: "  60  ", want: 60 * time.Minute},
		{name: "empty is invalid", input: "", wantErr: true},
		{name: "garbage is invalid", input: "ten minutes", wantErr: true},
		{name: "no components matched is invalid", input: "h", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDurationRoundTrip(t *testing.T) {
	for _, d := range []time.Duration{
		time.Second,
		90 * time.Second,
		45 * time.Minute,
		2 * time.Hour,
		time.Hour + 30*time.Minute + 10*time.Second,
	} {
		formatted := FormatDuration(d)
		got, err := ParseDuration(formatted)
		require.NoError(t, err)
		assert.Equal(t, d, got, "round trip of %s via %q", d, formatted)
	}
}
