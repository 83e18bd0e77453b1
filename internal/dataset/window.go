package dataset

import "time"

// 自动分批阈值：小时线超过 30 天、其余日内粒度超过 60 天时强制分批。
const (
	autoBatchHourlyDays   = 30
	autoBatchIntradayDays = 60
)

// Window 是一个按天划分的闭区间子窗口。
type Window struct {
	Start time.Time
	End   time.Time
}

// Days 返回窗口覆盖的天数（含两端）。
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// NeedsBatching 判断该区间在不显式要求分批时是否也必须分批。
func NeedsBatching(iv Interval, start, end time.Time) bool {
	if !iv.Intraday || start.IsZero() || end.IsZero() {
		return false
	}
	days := int(end.Sub(start).Hours() / 24)
	if iv.Hourly {
		return days > autoBatchHourlyDays
	}
	return days > autoBatchIntradayDays
}

// Plan 把 [start, end] 切成无缝且互不重叠的子窗口。
// 相邻窗口满足 next.Start = prev.End + 1 天；边界时间戳若被两侧都取到，
// 由合并阶段去重，不在这里处理。
// batchDays <= 0 或粒度不分批时返回单一窗口。
func Plan(iv Interval, start, end time.Time, batchDays int) []Window {
	start = truncateDay(start)
	end = truncateDay(end)
	if end.Before(start) {
		start, end = end, start
	}
	if iv.MaxBatchDays > 0 && (batchDays <= 0 || batchDays > iv.MaxBatchDays) {
		batchDays = iv.MaxBatchDays
	}
	if batchDays <= 0 || !iv.Intraday {
		return []Window{{Start: start, End: end}}
	}
	var windows []Window
	current := start
	for !current.After(end) {
		batchEnd := current.AddDate(0, 0, batchDays)
		if batchEnd.After(end) {
			batchEnd = end
		}
		windows = append(windows, Window{Start: current, End: batchEnd})
		current = batchEnd.AddDate(0, 0, 1)
	}
	return windows
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
