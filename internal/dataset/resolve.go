package dataset

import "time"

// ResolveInput 汇集增量起点推断需要的全部输入。
// Requested 非 nil 表示调用方显式指定了起点，直接采用不做覆盖。
type ResolveInput struct {
	Requested     *time.Time
	LastSaved     *time.Time
	LookbackDays  int
	MaxWindowDays int
	Now           time.Time
}

// ResolveStart 计算本次拉取的有效起始日期。
// 返回 upToDate=true 表示起点已越过当前时间，直接按“已是最新”处理，
// 不发请求。
//
// 无显式起点时：effective = max(lastSaved - lookback, now - maxWindow)，
// lookback 这几天重拉是为了吃到迟到修正（分红复权等）；
// 没有任何已保存状态时回退到整个滚动窗口的最早一天。
func ResolveStart(in ResolveInput) (time.Time, bool) {
	now := truncateDay(in.Now)
	if now.IsZero() {
		now = truncateDay(time.Now().UTC())
	}
	floor := now.AddDate(0, 0, -in.MaxWindowDays)

	var start time.Time
	switch {
	case in.Requested != nil:
		start = truncateDay(*in.Requested)
	case in.LastSaved != nil:
		lookback := in.LookbackDays
		if lookback < 0 {
			lookback = 0
		}
		start = truncateDay(*in.LastSaved).AddDate(0, 0, -lookback)
		if start.Before(floor) {
			start = floor
		}
	default:
		start = floor
	}

	if start.After(now) {
		return start, true
	}
	return start, false
}
