package yahoo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"candlesync/internal/market"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// 没有浏览器 UA 时 Yahoo 会直接 429
const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// Source 基于 Yahoo Finance /v8/finance/chart 接口。
type Source struct {
	baseURL string
	client  *http.Client
}

func NewSource(base string, timeout time.Duration) *Source {
	if base == "" {
		base = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Source{
		baseURL: base,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *Source) Name() string { return "yahoo" }

func (s *Source) Fetch(ctx context.Context, req market.FetchRequest) ([]market.Candle, error) {
	if req.Symbol == "" || req.Interval == "" {
		return nil, fmt.Errorf("symbol/interval 不能为空")
	}
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path = "/v8/finance/chart/" + url.PathEscape(req.Symbol)
	q := u.Query()
	q.Set("interval", req.Interval)
	q.Set("events", "div,split")
	q.Set("includeAdjustedClose", "true")
	if !req.Start.IsZero() {
		q.Set("period1", strconv.FormatInt(req.Start.Unix(), 10))
	} else {
		q.Set("period1", "0")
	}
	end := req.End
	if end.IsZero() {
		end = time.Now().UTC()
	}
	// Yahoo 的 period2 为开区间，补一天保证 end 当天完整
	q.Set("period2", strconv.FormatInt(end.AddDate(0, 0, 1).Unix(), 10))
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", userAgent)
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, market.ErrNoData
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("yahoo 返回状态码 %d", resp.StatusCode)
	}
	return parseChart(req, body)
}

func parseChart(req market.FetchRequest, body []byte) ([]market.Candle, error) {
	root := gjson.ParseBytes(body)
	if errDesc := root.Get("chart.error.description"); errDesc.Exists() && errDesc.String() != "" {
		return nil, fmt.Errorf("yahoo: %s", errDesc.String())
	}
	result := root.Get("chart.result.0")
	if !result.Exists() {
		return nil, market.ErrNoData
	}
	timestamps := result.Get("timestamp").Array()
	if len(timestamps) == 0 {
		return nil, market.ErrNoData
	}
	quote := result.Get("indicators.quote.0")
	opens := quote.Get("open").Array()
	highs := quote.Get("high").Array()
	lows := quote.Get("low").Array()
	closes := quote.Get("close").Array()
	volumes := quote.Get("volume").Array()
	adjCloses := result.Get("indicators.adjclose.0.adjclose").Array()

	out := make([]market.Candle, 0, len(timestamps))
	for i, ts := range timestamps {
		c := market.Candle{
			Symbol:    req.Symbol,
			Timestamp: time.Unix(ts.Int(), 0).UTC(),
			Open:      pick(opens, i),
			High:      pick(highs, i),
			Low:       pick(lows, i),
			Close:     pick(closes, i),
			AdjClose:  pick(adjCloses, i),
		}
		if i < len(volumes) && volumes[i].Type == gjson.Number {
			v := volumes[i].Int()
			if v > 0 {
				c.Volume = v
			}
		}
		// 整行为空（常见于当日未收盘的尾巴）直接丢弃
		if !c.Open.Valid && !c.High.Valid && !c.Low.Valid && !c.Close.Valid {
			continue
		}
		if req.AutoAdjust {
			adjust(&c)
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, market.ErrNoData
	}
	market.SortByTimestamp(out)
	return out, nil
}

// adjust 按 adjclose/close 比例回调 OHLC，对齐 yfinance 的 auto_adjust 行为。
func adjust(c *market.Candle) {
	if !c.AdjClose.Valid || !c.Close.Valid || c.Close.Decimal.IsZero() {
		return
	}
	ratio := c.AdjClose.Decimal.Div(c.Close.Decimal)
	scale := func(d *decimal.NullDecimal) {
		if d.Valid {
			d.Decimal = d.Decimal.Mul(ratio)
		}
	}
	scale(&c.Open)
	scale(&c.High)
	scale(&c.Low)
	c.Close = c.AdjClose
}

func pick(arr []gjson.Result, i int) decimal.NullDecimal {
	if i >= len(arr) || arr[i].Type != gjson.Number {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(arr[i].Float()), Valid: true}
}
