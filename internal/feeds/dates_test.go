package feeds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "08/12/2025", want: "2025-12-08"},
		{in: "2025-12-08", want: "2025-12-08"},
		{in: "2025-12-08 18:00:00", want: "2025-12-08"},
		{in: "2025-12-08T18:00:00Z", want: "2025-12-08"},
		{in: " 08/12/2025 ", want: "2025-12-08"},
		{in: "12.08.2025", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeDate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeTime(t *testing.T) {
	for in, want := range map[string]string{
		"18:00":    "18:00",
		"9:05":     "09:05",
		"18:00:00": "18:00",
	} {
		got, err := NormalizeTime(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}

	_, err := NormalizeTime("evening")
	assert.Error(t, err)
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, NormalizeTitle("Yoga  Flow "), NormalizeTitle("yoga flow"))
}

func TestSessionStart(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jerusalem")
	require.NoError(t, err)

	start, err := SessionStart("08/12/2025", "18:00", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 8, 18, 0, 0, 0, loc), start)
}
