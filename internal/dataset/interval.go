package dataset

import (
	"fmt"
	"sort"
	"strings"
)

// Interval 描述一种 K 线粒度及其对应的分批约束。
// MaxBatchDays 为 0 表示该粒度不限制单批天数。
type Interval struct {
	Key          string
	Intraday     bool
	Hourly       bool
	MaxBatchDays int
}

// 分批上限来自数据源的行数/小时数天花板：
// 小时线约 730 小时，25 天 ×6.5 交易小时留足余量；分钟级按行数收紧。
var supportedIntervals = map[string]Interval{
	"1m":  {Key: "1m", Intraday: true, MaxBatchDays: 5},
	"2m":  {Key: "2m", Intraday: true, MaxBatchDays: 5},
	"5m":  {Key: "5m", Intraday: true, MaxBatchDays: 7},
	"15m": {Key: "15m", Intraday: true, MaxBatchDays: 10},
	"30m": {Key: "30m", Intraday: true, MaxBatchDays: 15},
	"60m": {Key: "60m", Intraday: true, Hourly: true, MaxBatchDays: 25},
	"90m": {Key: "90m", Intraday: true},
	"1h":  {Key: "1h", Intraday: true, Hourly: true, MaxBatchDays: 25},
	"1d":  {Key: "1d"},
	"5d":  {Key: "5d"},
	"1wk": {Key: "1wk"},
	"1mo": {Key: "1mo"},
	"3mo": {Key: "3mo"},
}

// ParseInterval 返回标准化的粒度定义，不认识的 key 报错。
func ParseInterval(input string) (Interval, error) {
	key := strings.ToLower(strings.TrimSpace(input))
	iv, ok := supportedIntervals[key]
	if !ok {
		return Interval{}, fmt.Errorf("不支持的粒度: %s (可选: %s)", input, strings.Join(SupportedIntervals(), ", "))
	}
	return iv, nil
}

// LookupInterval 与 ParseInterval 类似，但对未知粒度回退为“非日内、不分批”，
// 供只做读取的路径使用。
func LookupInterval(input string) Interval {
	key := strings.ToLower(strings.TrimSpace(input))
	if iv, ok := supportedIntervals[key]; ok {
		return iv
	}
	return Interval{Key: key}
}

// SupportedIntervals 返回所有支持的 key（排序后）。
func SupportedIntervals() []string {
	keys := make([]string, 0, len(supportedIntervals))
	for k := range supportedIntervals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
