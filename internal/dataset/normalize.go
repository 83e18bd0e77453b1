package dataset

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"candlesync/internal/market"
)

const (
	priceDigits = 6
	pctDigits   = 4
)

var hundred = decimal.NewFromInt(100)

// Carry 是归一化的折叠状态：上一根 K 线的收盘与复权收盘。
// 按时间顺序分批处理时，把上一批返回的 Carry 原样传给下一批，
// 百分比变化就能跨批连续，不需要重算全量历史。
type Carry struct {
	PrevClose    decimal.NullDecimal
	PrevAdjClose decimal.NullDecimal
}

// Normalize 把原始 K 线转成规范化行，并返回推进后的 Carry。
// 输入必须已按时间升序排好（调用方负责，窗口按顺序拉取即可满足）。
func Normalize(candles []market.Candle, carry Carry) ([]Row, Carry) {
	rows := make([]Row, 0, len(candles))
	for _, c := range candles {
		row := Row{
			Symbol:    c.Symbol,
			Timestamp: c.Timestamp,
			Open:      formatPrice(c.Open),
			High:      formatPrice(c.High),
			Low:       formatPrice(c.Low),
			Close:     formatPrice(c.Close),
			AdjClose:  formatPrice(c.AdjClose),
			Volume:    cleanVolume(c.Volume),
		}
		row.PctChange = pctChange(c.Close, carry.PrevClose)
		row.AdjPctChange = pctChange(c.AdjClose, carry.PrevAdjClose)

		// close 可用就推进基线，哪怕 volume 等其他字段缺失；
		// close 缺失的行照常输出，但不动基线。
		if c.Close.Valid {
			carry.PrevClose = c.Close
		}
		if c.AdjClose.Valid {
			carry.PrevAdjClose = c.AdjClose
		}
		rows = append(rows, row)
	}
	return rows, carry
}

// pctChange 计算 (cur-prev)/prev*100，基线缺失或为 0 时返回空串。
func pctChange(cur, prev decimal.NullDecimal) string {
	if !cur.Valid || !prev.Valid || prev.Decimal.IsZero() {
		return ""
	}
	pct := cur.Decimal.Sub(prev.Decimal).Div(prev.Decimal).Mul(hundred)
	return pct.StringFixed(pctDigits)
}

// formatPrice 以 6 位小数渲染并去掉尾部多余的 0。
func formatPrice(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	s := d.Decimal.StringFixed(priceDigits)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

func cleanVolume(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// FormatTimestamp 统一时间戳渲染格式（UTC ISO-8601）。
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
