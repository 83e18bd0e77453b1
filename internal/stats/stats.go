package stats

import (
	"math"
	"sort"
	"strconv"
	"time"

	"candlesync/internal/dataset"
)

// Summary 是单组涨跌幅样本的描述统计。
type Summary struct {
	Count    int
	Mean     float64
	Std      float64
	Min      float64
	Max      float64
	Median   float64
	Skewness float64
	Kurtosis float64
	UpProb   float64
	DownProb float64
	FlatProb float64
}

// Bin 是直方图的一个桶，Lower 为下界（含），宽度由 Options 决定。
type Bin struct {
	Lower float64
	Count int
}

// DayStats 按星期几分组后的完整统计。
type DayStats struct {
	Weekday time.Weekday
	Summary Summary
	Bins    []Bin
}

// StreakStats 连续同向天数的分布。
type StreakStats struct {
	Up   map[int]int
	Down map[int]int
}

type Options struct {
	PctMin   float64
	PctMax   float64
	BinWidth float64
	// Adjusted 为 true 时用复权涨跌幅列。
	Adjusted bool
	// Hourly 为 true 时忽略涨跌幅列，改算 (close-open)/open。
	Hourly bool
}

// Report 是一份数据集的统计汇总。
type Report struct {
	Symbol  string
	Overall Summary
	ByDay   []DayStats
	Bins    []Bin
	Streaks StreakStats
}

// Analyze 从归一化行集提取涨跌幅样本并做分组统计。
// 无法解析的行直接跳过，不中断整份报告。
func Analyze(symbol string, rows []dataset.Row, opts Options) Report {
	if opts.BinWidth <= 0 {
		opts.BinWidth = 0.1
	}
	if opts.PctMax <= opts.PctMin {
		opts.PctMin, opts.PctMax = -20, 20
	}

	type sample struct {
		pct float64
		ts  time.Time
	}
	var samples []sample
	for _, row := range rows {
		pct, ok := extractPct(row, opts)
		if !ok {
			continue
		}
		if row.Timestamp.IsZero() {
			continue
		}
		samples = append(samples, sample{pct: pct, ts: row.Timestamp})
	}

	all := make([]float64, len(samples))
	byDay := make(map[time.Weekday][]float64)
	for i, s := range samples {
		all[i] = s.pct
		wd := s.ts.Weekday()
		byDay[wd] = append(byDay[wd], s.pct)
	}

	report := Report{
		Symbol:  symbol,
		Overall: summarize(all),
		Bins:    histogram(all, opts),
		Streaks: streaks(all),
	}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		vals, ok := byDay[wd]
		if !ok {
			continue
		}
		report.ByDay = append(report.ByDay, DayStats{
			Weekday: wd,
			Summary: summarize(vals),
			Bins:    histogram(vals, opts),
		})
	}
	return report
}

func extractPct(row dataset.Row, opts Options) (float64, bool) {
	if opts.Hourly {
		open, err1 := strconv.ParseFloat(row.Open, 64)
		close, err2 := strconv.ParseFloat(row.Close, 64)
		if err1 != nil || err2 != nil || open == 0 {
			return 0, false
		}
		return (close - open) / open * 100, true
	}
	raw := row.PctChange
	if opts.Adjusted {
		raw = row.AdjPctChange
	}
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func summarize(vals []float64) Summary {
	s := Summary{Count: len(vals)}
	if len(vals) == 0 {
		return s
	}

	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	s.Min, s.Max = sorted[0], sorted[len(sorted)-1]
	s.Median = median(sorted)

	var sum float64
	var up, down, flat int
	for _, v := range vals {
		sum += v
		switch {
		case v > 0:
			up++
		case v < 0:
			down++
		default:
			flat++
		}
	}
	n := float64(len(vals))
	s.Mean = sum / n
	s.UpProb = float64(up) / n
	s.DownProb = float64(down) / n
	s.FlatProb = float64(flat) / n

	var m2, m3, m4 float64
	for _, v := range vals {
		d := v - s.Mean
		m2 += d * d
		m3 += d * d * d
		m4 += d * d * d * d
	}
	m2 /= n
	m3 /= n
	m4 /= n
	if len(vals) > 1 {
		// 样本标准差，分母 n-1
		s.Std = math.Sqrt(m2 * n / (n - 1))
	}
	if m2 > 0 {
		s.Skewness = m3 / math.Pow(m2, 1.5)
		s.Kurtosis = m4/(m2*m2) - 3
	}
	return s
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// histogram 按固定桶宽切分，越界样本归入首尾桶。
func histogram(vals []float64, opts Options) []Bin {
	n := int(math.Round((opts.PctMax - opts.PctMin) / opts.BinWidth))
	if n <= 0 {
		return nil
	}
	bins := make([]Bin, n)
	for i := range bins {
		bins[i].Lower = opts.PctMin + float64(i)*opts.BinWidth
	}
	for _, v := range vals {
		idx := int(math.Floor((v - opts.PctMin) / opts.BinWidth))
		if idx < 0 {
			idx = 0
		}
		if idx >= n {
			idx = n - 1
		}
		bins[idx].Count++
	}
	return bins
}

// streaks 统计连续上涨/下跌天数的出现次数，平盘打断连续段。
func streaks(vals []float64) StreakStats {
	st := StreakStats{Up: map[int]int{}, Down: map[int]int{}}
	var run int // 正数=连涨, 负数=连跌
	flush := func() {
		switch {
		case run > 0:
			st.Up[run]++
		case run < 0:
			st.Down[-run]++
		}
		run = 0
	}
	for _, v := range vals {
		switch {
		case v > 0:
			if run < 0 {
				flush()
			}
			run++
		case v < 0:
			if run > 0 {
				flush()
			}
			run--
		default:
			flush()
		}
	}
	flush()
	return st
}
