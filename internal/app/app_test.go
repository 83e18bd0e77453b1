package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candlesync/internal/config"
	"candlesync/internal/dataset"
	"candlesync/internal/logger"
	"candlesync/internal/market"
)

type stubSource struct {
	requests int
	fn       func(req market.FetchRequest) ([]market.Candle, error)
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Fetch(ctx context.Context, req market.FetchRequest) ([]market.Candle, error) {
	s.requests++
	return s.fn(req)
}

func newTestApp(t *testing.T, src market.CandleSource) *App {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Output.Root = t.TempDir()
	return &App{Cfg: cfg, source: src}
}

func parseDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d.UTC()
}

func TestResolveDelay(t *testing.T) {
	assert.Equal(t, 0.0, ResolveDelay(0, false, false))
	assert.Equal(t, 2.5, ResolveDelay(2.5, false, false))
	assert.Equal(t, 5.0, ResolveDelay(0, true, false))
	assert.Equal(t, 10.0, ResolveDelay(0, false, true))
	assert.Equal(t, 10.0, ResolveDelay(2.5, true, true), "两档预设同时给出取更慢的")
}

func TestFetchCombinedRejectsEndBeforeStart(t *testing.T) {
	src := &stubSource{fn: func(req market.FetchRequest) ([]market.Candle, error) {
		t.Fatal("不应发起请求")
		return nil, nil
	}}
	a := newTestApp(t, src)

	start := parseDay(t, "2024-03-01")
	end := parseDay(t, "2024-01-01")
	_, err := a.FetchCombined(context.Background(), []string{"TEST"}, RefreshOptions{
		Start: &start,
		End:   &end,
	}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "早于起始日期")
	assert.Zero(t, src.requests)
}

func TestFetchCombinedCorruptExistingWarns(t *testing.T) {
	src := &stubSource{fn: func(req market.FetchRequest) ([]market.Candle, error) {
		ts := parseDay(t, "2024-06-18")
		return []market.Candle{
			{Symbol: req.Symbol, Timestamp: ts, Open: market.Num(10), High: market.Num(10),
				Low: market.Num(10), Close: market.Num(10), AdjClose: market.Num(10), Volume: 100},
			{Symbol: req.Symbol, Timestamp: ts.AddDate(0, 0, 1), Open: market.Num(11), High: market.Num(11),
				Low: market.Num(11), Close: market.Num(11), AdjClose: market.Num(11), Volume: 100},
		}, nil
	}}
	a := newTestApp(t, src)
	a.Cfg.Fetch.DelaySeconds = 0.001

	outPath := filepath.Join(t.TempDir(), "combined_1d.csv")
	require.NoError(t, os.WriteFile(outPath, []byte("a,b\n\"unterminated\n"), 0o644))

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(os.Stdout)

	start := parseDay(t, "2024-06-18")
	end := parseDay(t, "2024-06-19")
	added, err := a.FetchCombined(context.Background(), []string{"TEST"}, RefreshOptions{
		Start: &start,
		End:   &end,
	}, outPath)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Contains(t, buf.String(), "无法解析", "坏文件应记警告而不是静默吞掉")

	rows, err := dataset.ReadFile(outPath)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}
