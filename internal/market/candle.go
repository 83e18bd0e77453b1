package market

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Candle 是单根 OHLCV K 线。价格字段使用 NullDecimal：
// 行情源偶尔会缺字段（停牌、坏行），缺失与 0 必须区分。
type Candle struct {
	Symbol    string
	Timestamp time.Time
	Open      decimal.NullDecimal
	High      decimal.NullDecimal
	Low       decimal.NullDecimal
	Close     decimal.NullDecimal
	AdjClose  decimal.NullDecimal
	Volume    int64
}

// Num 构造一个有效的 NullDecimal，测试和数据源共用。
func Num(f float64) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(f), Valid: true}
}

// SortByTimestamp 按时间升序原地排序。
func SortByTimestamp(cs []Candle) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Timestamp.Before(cs[j].Timestamp) })
}
