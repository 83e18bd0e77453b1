package refresh

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candlesync/internal/dataset"
	"candlesync/internal/market"
	"candlesync/internal/store/history"
)

type fakeSource struct {
	mu       sync.Mutex
	requests []market.FetchRequest
	fn       func(req market.FetchRequest) ([]market.Candle, error)
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(ctx context.Context, req market.FetchRequest) ([]market.Candle, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.fn(req)
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func dailyCandles(symbol string, from time.Time, closes ...float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			Symbol:    symbol,
			Timestamp: from.AddDate(0, 0, i),
			Open:      market.Num(c),
			High:      market.Num(c),
			Low:       market.Num(c),
			Close:     market.Num(c),
			AdjClose:  market.Num(c),
			Volume:    100,
		}
	}
	return out
}

func newTestService(t *testing.T, src market.CandleSource, now time.Time) *Service {
	t.Helper()
	svc, err := NewService(Options{
		Source:        src,
		Interval:      dataset.LookupInterval("1d"),
		Incremental:   true,
		LookbackDays:  5,
		MaxWindowDays: 730,
		Workers:       2,
		Now:           func() time.Time { return now },
	}, nil, nil)
	require.NoError(t, err)
	return svc
}

func TestRunAllWritesDatasetAndMetadata(t *testing.T) {
	now := day("2024-06-20")
	src := &fakeSource{fn: func(req market.FetchRequest) ([]market.Candle, error) {
		return dailyCandles(req.Symbol, day("2024-06-17"), 100, 110, 99), nil
	}}
	svc := newTestService(t, src, now)

	root := t.TempDir()
	jobs := PlanJobs([]string{"TEST.NS"}, root, "1d", 730)
	summary := svc.RunAll(context.Background(), jobs)

	require.Len(t, summary.Results, 1)
	res := summary.Results[0]
	require.NoError(t, res.Err)
	assert.Equal(t, history.StatusOK, res.Status)
	assert.Equal(t, 3, res.RowsFetched)
	assert.Equal(t, 3, res.RowsAdded)
	assert.Equal(t, 0, summary.ExitCode())

	rows, err := dataset.ReadFile(jobs[0].CSVPath)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "10.0000", rows[1].PctChange)

	meta, err := dataset.ReadMetadata(jobs[0].MetadataPath)
	require.NoError(t, err)
	assert.Equal(t, "TEST.NS", meta.Symbol)
	assert.Equal(t, 3, meta.Rows)
}

func TestRunAllIncrementalMerge(t *testing.T) {
	now := day("2024-06-20")
	root := t.TempDir()
	jobs := PlanJobs([]string{"TEST.NS"}, root, "1d", 730)

	// 先落一份旧数据集和元数据
	existing, _ := dataset.Normalize(dailyCandles("TEST.NS", day("2024-06-10"), 90, 95, 100), dataset.Carry{})
	require.NoError(t, dataset.WriteFile(jobs[0].CSVPath, existing, false))
	meta := dataset.BuildMetadata("TEST.NS", "1d", existing)
	require.NoError(t, dataset.WriteMetadata(jobs[0].MetadataPath, []dataset.Metadata{meta}))

	src := &fakeSource{fn: func(req market.FetchRequest) ([]market.Candle, error) {
		// lookback 5 天: 2024-06-12 上次保存 - 5 = 06-07
		assert.Equal(t, day("2024-06-07"), req.Start)
		return dailyCandles(req.Symbol, day("2024-06-12"), 101, 105), nil
	}}
	svc := newTestService(t, src, now)

	summary := svc.RunAll(context.Background(), jobs)
	res := summary.Results[0]
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.RowsAdded, "06-12 被覆盖, 06-13 新增")
	assert.Equal(t, 4, res.RowsTotal)

	rows, err := dataset.ReadFile(jobs[0].CSVPath)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "101", rows[2].Close, "重叠行以新数据为准")
}

func TestRunAllFailedSymbolDoesNotAffectSiblings(t *testing.T) {
	now := day("2024-06-20")
	src := &fakeSource{fn: func(req market.FetchRequest) ([]market.Candle, error) {
		if req.Symbol == "BAD.NS" {
			return nil, fmt.Errorf("boom")
		}
		return dailyCandles(req.Symbol, day("2024-06-18"), 10, 11), nil
	}}
	svc := newTestService(t, src, now)

	jobs := PlanJobs([]string{"GOOD.NS", "BAD.NS"}, t.TempDir(), "1d", 730)
	summary := svc.RunAll(context.Background(), jobs)

	require.Len(t, summary.Results, 2)
	byName := map[string]Result{}
	for _, r := range summary.Results {
		byName[r.Symbol] = r
	}
	assert.NoError(t, byName["GOOD.NS"].Err)
	require.Error(t, byName["BAD.NS"].Err)
	assert.Equal(t, history.StatusFailed, byName["BAD.NS"].Status)
	assert.Equal(t, 0, summary.ExitCode(), "有成功就不报非零")
	assert.Equal(t, 1, summary.Failed())
}

func TestRunAllAllFailedExitCode(t *testing.T) {
	src := &fakeSource{fn: func(req market.FetchRequest) ([]market.Candle, error) {
		return nil, fmt.Errorf("boom")
	}}
	svc := newTestService(t, src, day("2024-06-20"))

	jobs := PlanJobs([]string{"A.NS", "B.NS"}, t.TempDir(), "1d", 730)
	summary := svc.RunAll(context.Background(), jobs)
	assert.Equal(t, 1, summary.ExitCode())
	assert.Equal(t, 2, summary.Failed())
}

func TestRunAllUpToDate(t *testing.T) {
	future := day("2024-07-01")
	src := &fakeSource{fn: func(req market.FetchRequest) ([]market.Candle, error) {
		t.Fatal("不应发起请求")
		return nil, nil
	}}
	svc, err := NewService(Options{
		Source:        src,
		Interval:      dataset.LookupInterval("1d"),
		Start:         &future,
		MaxWindowDays: 730,
		Now:           func() time.Time { return day("2024-06-20") },
	}, nil, nil)
	require.NoError(t, err)

	jobs := PlanJobs([]string{"TEST.NS"}, t.TempDir(), "1d", 730)
	summary := svc.RunAll(context.Background(), jobs)
	res := summary.Results[0]
	require.NoError(t, res.Err)
	assert.Equal(t, history.StatusUpToDate, res.Status)
	assert.Empty(t, src.requests)
	assert.Equal(t, 0, summary.ExitCode())
}

func TestRunAllCorruptExistingDegradesToFull(t *testing.T) {
	now := day("2024-06-20")
	root := t.TempDir()
	jobs := PlanJobs([]string{"TEST.NS"}, root, "1d", 730)

	require.NoError(t, os.MkdirAll(filepath.Dir(jobs[0].CSVPath), 0o755))
	require.NoError(t, os.WriteFile(jobs[0].CSVPath, []byte("a,b\n\"unterminated\n"), 0o644))

	src := &fakeSource{fn: func(req market.FetchRequest) ([]market.Candle, error) {
		return dailyCandles(req.Symbol, day("2024-06-18"), 10, 11), nil
	}}
	svc := newTestService(t, src, now)

	summary := svc.RunAll(context.Background(), jobs)
	res := summary.Results[0]
	require.NoError(t, res.Err)
	assert.NotEmpty(t, res.Warnings, "坏文件应记警告")
	assert.Equal(t, 2, res.RowsTotal)
}

func TestPlanJobsLayout(t *testing.T) {
	jobs := PlanJobs([]string{"reliance.NS"}, "data", "1d", 730)
	require.Len(t, jobs, 1)
	assert.Equal(t, filepath.Join("data", "RELIANCE", "RELIANCE_complete_with_pct.csv"), jobs[0].CSVPath)
	assert.NotEmpty(t, jobs[0].ID)

	hourly := PlanJobs([]string{"TCS.NS"}, "data", "1h", 730)
	assert.Equal(t, filepath.Join("data", "TCS", "TCS_complete_historical_1h_730days.csv"), hourly[0].CSVPath)
}

func TestNewServiceRejectsEndBeforeStart(t *testing.T) {
	start := day("2024-03-01")
	end := day("2024-01-01")
	_, err := NewService(Options{
		Source:   &fakeSource{},
		Interval: dataset.LookupInterval("1d"),
		Start:    &start,
		End:      &end,
	}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before start")
}

func TestRunAllPartialWindowKeepsLaterWindows(t *testing.T) {
	// 1h 跨 61 天触发自动分批: 01-01~01-26 / 01-27~02-21 / 02-22~03-01
	start := day("2024-01-01")
	src := &fakeSource{fn: func(req market.FetchRequest) ([]market.Candle, error) {
		switch req.Start {
		case day("2024-01-27"):
			return nil, fmt.Errorf("boom")
		case day("2024-02-22"):
			return dailyCandles(req.Symbol, day("2024-02-22"), 12, 13), nil
		default:
			return dailyCandles(req.Symbol, day("2024-01-01"), 10, 11), nil
		}
	}}
	svc, err := NewService(Options{
		Source:        src,
		Interval:      dataset.LookupInterval("1h"),
		Start:         &start,
		MaxWindowDays: 730,
		Now:           func() time.Time { return day("2024-03-01") },
	}, nil, nil)
	require.NoError(t, err)

	jobs := PlanJobs([]string{"TEST.NS"}, t.TempDir(), "1h", 730)
	summary := svc.RunAll(context.Background(), jobs)

	require.Len(t, src.requests, 3, "中间窗口失败后仍要拉剩余窗口")
	res := summary.Results[0]
	require.NoError(t, res.Err)
	assert.Equal(t, history.StatusPartial, res.Status)
	assert.Equal(t, 4, res.RowsFetched)
	assert.NotEmpty(t, res.Warnings)
	assert.Equal(t, 0, summary.ExitCode())

	rows, err := dataset.ReadFile(jobs[0].CSVPath)
	require.NoError(t, err)
	require.Len(t, rows, 4, "成功窗口的数据要落盘")
}
