package template

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrftime(t *testing.T) {
	// a Friday
	dt := time.Date(2024, 3, 15, 14, 5, 9, 123456000, time.UTC)

	cases := []struct {
		pattern string
		want    string
	}{
		{"%Y-%m-%d", "2024-03-15"},
		{"%Y%m%d%H%M%S", "20240315140509"},
		{"%y/%m", "24/03"},
		{"%H:%M:%S", "14:05:09"},
		{"%I %p", "02 PM"},
		{"%a %A", "Fri Friday"},
		{"%b %B", "Mar March"},
		{"%f", "123456"},
		{"%j", "075"},
		{"%w", "5"},
		{"%u", "5"},
		{"100%%", "100%"},
		{"no directives", "no directives"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Strftime(dt, c.pattern), c.pattern)
	}
}

func TestIsoWeekday(t *testing.T) {
	monday := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		assert.Equal(t, i+1, isoWeekday(monday.AddDate(0, 0, i)))
	}
}

func TestParseTimeAt(t *testing.T) {
	ref := time.Date(2024, 3, 15, 12, 0, 0, 0, time.Local)

	cases := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-15 09:30:00", time.Date(2024, 3, 15, 9, 30, 0, 0, time.Local)},
		{"2024-03-15", time.Date(2024, 3, 15, 0, 0, 0, 0, time.Local)},
		{"20240315", time.Date(2024, 3, 15, 0, 0, 0, 0, time.Local)},
		{"2024/03/15 09:30:00", time.Date(2024, 3, 15, 9, 30, 0, 0, time.Local)},
		// a bare time lands on the reference date
		{"09:30", time.Date(2024, 3, 15, 9, 30, 0, 0, time.Local)},
		{"09:30:15", time.Date(2024, 3, 15, 9, 30, 15, 0, time.Local)},
		{" 09:30 ", time.Date(2024, 3, 15, 9, 30, 0, 0, time.Local)},
	}
	for _, c := range cases {
		got, err := ParseTimeAt(c.in, ref)
		require.NoError(t, err, c.in)
		assert.True(t, c.want.Equal(got), "%s: got %s", c.in, got)
	}

	_, err := ParseTimeAt("not a time", ref)
	assert.Error(t, err)
}
