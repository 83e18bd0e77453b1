package market

import (
	"context"
	"errors"
	"time"
)

// ErrNoData 表示数据源对该区间没有任何返回（区别于网络错误）。
var ErrNoData = errors.New("no data returned")

// FetchRequest 描述一次远端 K 线请求。Start/End 为零值时表示不限制。
type FetchRequest struct {
	Symbol     string
	Interval   string
	Start      time.Time
	End        time.Time
	AutoAdjust bool
}

// CandleSource 统一不同行情源的拉取行为。测试中用脚本化的 fixture 实现。
type CandleSource interface {
	Fetch(ctx context.Context, req FetchRequest) ([]Candle, error)
	Name() string
}
