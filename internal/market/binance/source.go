package binance

import (
	"context"
	"fmt"
	"strings"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"candlesync/internal/market"
)

// Source 基于 Binance 现货 klines，用于加密货币标的。
// 接口形状与 yahoo.Source 一致，refresh 服务按 provider 配置二选一。
type Source struct {
	client *gobinance.Client
}

func NewSource(baseURL string) *Source {
	client := gobinance.NewClient("", "")
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &Source{client: client}
}

func (s *Source) Name() string { return "binance" }

// 常见的 Yahoo 风格 interval 映射到 Binance interval。
var intervalAliases = map[string]string{
	"60m": "1h",
	"1wk": "1w",
	"1mo": "1M",
}

func (s *Source) Fetch(ctx context.Context, req market.FetchRequest) ([]market.Candle, error) {
	if req.Symbol == "" || req.Interval == "" {
		return nil, fmt.Errorf("symbol/interval 不能为空")
	}
	interval := req.Interval
	if alias, ok := intervalAliases[interval]; ok {
		interval = alias
	}
	svc := s.client.NewKlinesService().
		Symbol(strings.ToUpper(req.Symbol)).
		Interval(interval).
		Limit(1000)
	if !req.Start.IsZero() {
		svc = svc.StartTime(req.Start.UnixMilli())
	}
	if !req.End.IsZero() {
		// K 线按开盘时间过滤，补一天保证 end 当天完整
		svc = svc.EndTime(req.End.AddDate(0, 0, 1).UnixMilli())
	}
	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(klines) == 0 {
		return nil, market.ErrNoData
	}
	out := make([]market.Candle, 0, len(klines))
	for _, k := range klines {
		c := market.Candle{
			Symbol:    req.Symbol,
			Timestamp: time.UnixMilli(k.OpenTime).UTC(),
			Open:      parseDec(k.Open),
			High:      parseDec(k.High),
			Low:       parseDec(k.Low),
			Close:     parseDec(k.Close),
		}
		// 加密货币没有复权概念，adj_close 跟随 close
		c.AdjClose = c.Close
		if vol := parseDec(k.Volume); vol.Valid {
			c.Volume = vol.Decimal.IntPart()
			if c.Volume < 0 {
				c.Volume = 0
			}
		}
		out = append(out, c)
	}
	market.SortByTimestamp(out)
	return out, nil
}

func parseDec(s string) decimal.NullDecimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
