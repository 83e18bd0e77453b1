package symbols

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"candlesync/internal/logger"
)

// NSE 官方 EQUITY_L.csv 的可用性时好时坏，按顺序逐个尝试。
var nseListURLs = []string{
	"https://nsearchives.nseindia.com/content/equities/EQUITY_L.csv",
	"https://archives.nseindia.com/content/equities/EQUITY_L.csv",
	"https://www1.nseindia.com/content/equities/EQUITY_L.csv",
}

const nseSuffix = ".NS"

// FetchNSEOptions 控制 ticker 列表抓取。
type FetchNSEOptions struct {
	// Series 过滤证券系列，空表示默认 {"EQ"}。
	Series []string
	// Suffix 追加到每个 ticker 末尾，空串表示不加。
	Suffix string
	Client *http.Client
}

// FetchNSE 抓取 NSE 全量股票 ticker 列表并按系列过滤。
func FetchNSE(ctx context.Context, opts FetchNSEOptions) ([]string, error) {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	allowed := map[string]bool{"EQ": true}
	if len(opts.Series) > 0 {
		allowed = make(map[string]bool, len(opts.Series))
		for _, s := range opts.Series {
			allowed[strings.ToUpper(strings.TrimSpace(s))] = true
		}
	}

	payload, err := fetchWithFallback(ctx, client, nseListURLs)
	if err != nil {
		return nil, err
	}
	return parseNSEList(payload, allowed, opts.Suffix)
}

func fetchWithFallback(ctx context.Context, client *http.Client, urls []string) ([]byte, error) {
	var lastErr error
	for _, u := range urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		// 不带浏览器 UA 会被 NSE 拒掉
		req.Header.Set("User-Agent", "Mozilla/5.0")
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			logger.Warnf("NSE 列表地址不可用 %s: %v", u, err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("NSE 返回状态码 %d (%s)", resp.StatusCode, u)
			logger.Warnf("%v", lastErr)
			continue
		}
		return body, nil
	}
	return nil, fmt.Errorf("所有 NSE 列表地址均失败: %w", lastErr)
}

func parseNSEList(payload []byte, allowed map[string]bool, suffix string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(string(payload)))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing EQUITY_L.csv failed: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("EQUITY_L.csv has no data rows")
	}

	// NSE 的 CSV 列名带前导空格
	symbolIdx, seriesIdx := -1, -1
	for i, col := range records[0] {
		switch strings.ToUpper(strings.TrimSpace(col)) {
		case "SYMBOL":
			symbolIdx = i
		case "SERIES":
			seriesIdx = i
		}
	}
	if symbolIdx < 0 || seriesIdx < 0 {
		return nil, fmt.Errorf("EQUITY_L.csv missing SYMBOL/SERIES columns")
	}

	var out []string
	seen := make(map[string]bool)
	for _, rec := range records[1:] {
		if symbolIdx >= len(rec) || seriesIdx >= len(rec) {
			continue
		}
		sym := strings.ToUpper(strings.TrimSpace(rec[symbolIdx]))
		series := strings.ToUpper(strings.TrimSpace(rec[seriesIdx]))
		if sym == "" || !allowed[series] || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym+suffix)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no tickers matched the requested series")
	}
	return out, nil
}
