package dataset

import (
	"sort"
	"strings"
	"time"
)

// MergeResult 是一次增量合并的产出。
type MergeResult struct {
	Rows []Row
	// Added = len(Rows) - len(existing 去重后)，完全重叠的重拉为 0，不会为负。
	Added int
}

// Merge 求 existing 与 incoming 的去重有序并集。
// withSymbol 为 true 时按 (symbol, timestamp) 去重，否则只按 timestamp；
// 单/多标的文件由调用方显式指定，不从列推断。
// 键冲突时 incoming 胜出，这样重拉最近窗口可以覆盖迟到修正的数据。
// 时间戳无效的行在合并前被丢弃。
func Merge(existing, incoming []Row, withSymbol bool) MergeResult {
	keyOf := func(r Row) string {
		k := r.Timestamp.UTC().Format(time.RFC3339Nano)
		if withSymbol {
			k = strings.ToUpper(r.Symbol) + "|" + k
		}
		return k
	}

	merged := make(map[string]Row)
	order := make([]string, 0, len(existing)+len(incoming))
	put := func(r Row) {
		if r.Timestamp.IsZero() {
			return
		}
		k := keyOf(r)
		if _, seen := merged[k]; !seen {
			order = append(order, k)
		}
		merged[k] = r
	}

	for _, r := range existing {
		put(r)
	}
	existingKeys := len(merged)
	for _, r := range incoming {
		put(r)
	}

	rows := make([]Row, 0, len(merged))
	for _, k := range order {
		rows = append(rows, merged[k])
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Timestamp.Equal(rows[j].Timestamp) {
			return strings.ToUpper(rows[i].Symbol) < strings.ToUpper(rows[j].Symbol)
		}
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})

	added := len(rows) - existingKeys
	if added < 0 {
		added = 0
	}
	return MergeResult{Rows: rows, Added: added}
}
