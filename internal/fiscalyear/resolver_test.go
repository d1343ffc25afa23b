package fiscalyear

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestResolve(t *testing.T) {
	cases := []struct {
		name       string
		at         time.Time
		resetMonth int
		want       string
	}{
		{name: "last day before april reset", at: date(2026, time.March, 31), resetMonth: 4, want: "25"},
		{name: "first day of april reset", at: date(2026, time.April, 1), resetMonth: 4, want: "26"},
		{name: "february belongs to previous start year", at: date(2026, time.February, 10), resetMonth: 4, want: "25"},
		{name: "may", at: date(2025, time.May, 1), resetMonth: 4, want: "25"},
		{name: "calendar year", at: date(2025, time.January, 1), resetMonth: 1, want: "25"},
		{name: "december reset", at: date(2025, time.November, 30), resetMonth: 12, want: "24"},
		{name: "century wrap", at: date(2000, time.March, 1), resetMonth: 4, want: "99"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(tc.at, tc.resetMonth)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolve_InvalidResetMonth(t *testing.T) {
	for _, month := range []int{0, 13, -1} {
		_, err := Resolve(date(2025, time.May, 1), month)
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	}
}

func TestYear_FullLabelAndBounds(t *testing.T) {
	fy, err := Of(date(2026, time.February, 10), 4)
	require.NoError(t, err)

	assert.Equal(t, "2025-26", fy.FullLabel())

	start, end := fy.Bounds()
	assert.Equal(t, time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), end)
	assert.True(t, fy.Contains(date(2026, time.March, 31)))
	assert.False(t, fy.Contains(date(2026, time.April, 1)))

	calendar, err := Of(date(2025, time.July, 1), 1)
	require.NoError(t, err)
	assert.Equal(t, "2025", calendar.FullLabel())
}
