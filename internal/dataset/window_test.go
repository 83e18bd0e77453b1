package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func TestPlanDailySingleWindow(t *testing.T) {
	iv := LookupInterval("1d")
	windows := Plan(iv, day("2022-01-01"), day("2023-02-05"), 50)
	require.Len(t, windows, 1)
	assert.Equal(t, day("2022-01-01"), windows[0].Start)
	assert.Equal(t, day("2023-02-05"), windows[0].End)
}

func TestPlanHourlyBatchesContiguous(t *testing.T) {
	iv := LookupInterval("1h")
	start := day("2023-01-01")
	end := start.AddDate(0, 0, 399) // 400 天跨度

	windows := Plan(iv, start, end, 0)
	require.Len(t, windows, 16)

	assert.Equal(t, start, windows[0].Start)
	assert.Equal(t, start.AddDate(0, 0, 25), windows[0].End)
	assert.Equal(t, end, windows[len(windows)-1].End)
	for i := 1; i < len(windows); i++ {
		assert.Equal(t, windows[i-1].End.AddDate(0, 0, 1), windows[i].Start,
			"窗口 %d 与前一个不连续", i)
		assert.False(t, windows[i].End.Before(windows[i].Start))
	}
}

func TestPlanCapsBatchDaysAtIntervalLimit(t *testing.T) {
	iv := LookupInterval("1h")
	start := day("2023-01-01")
	windows := Plan(iv, start, start.AddDate(0, 0, 100), 100)
	require.True(t, len(windows) > 1)
	for _, w := range windows {
		assert.LessOrEqual(t, w.Days(), 26)
	}
}

func TestPlanSwapsReversedRange(t *testing.T) {
	iv := LookupInterval("1d")
	windows := Plan(iv, day("2024-03-01"), day("2024-01-01"), 0)
	require.Len(t, windows, 1)
	assert.Equal(t, day("2024-01-01"), windows[0].Start)
	assert.Equal(t, day("2024-03-01"), windows[0].End)
}

func TestNeedsBatching(t *testing.T) {
	cases := []struct {
		name string
		iv   string
		days int
		want bool
	}{
		{"小时线超过 30 天", "1h", 31, true},
		{"小时线恰好 30 天", "1h", 30, false},
		{"15 分钟超过 60 天", "15m", 61, true},
		{"15 分钟恰好 60 天", "15m", 60, false},
		{"日线从不分批", "1d", 400, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start := day("2023-01-01")
			got := NeedsBatching(LookupInterval(tc.iv), start, start.AddDate(0, 0, tc.days))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseIntervalRejectsUnknown(t *testing.T) {
	_, err := ParseInterval("42x")
	require.Error(t, err)

	iv, err := ParseInterval(" 1H ")
	require.NoError(t, err)
	assert.Equal(t, "1h", iv.Key)
	assert.True(t, iv.Hourly)
	assert.Equal(t, 25, iv.MaxBatchDays)
}
