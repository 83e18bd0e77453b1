package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// 规范列顺序；symbol 列只在多标的合并文件中出现。
var canonicalColumns = []string{
	"timestamp", "open", "high", "low", "close",
	"adj_close", "volume", "pct_change", "adj_pct_change",
}

// 时间戳列的别名（历史文件可能用 date/datetime）。
var timestampAliases = map[string]bool{
	"timestamp": true,
	"date":      true,
	"datetime":  true,
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp 宽容地解析多种历史格式，失败返回零值。
func ParseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ReadFile 读取既有数据集。未知列保留进 Row.Extra，时间戳解析失败的行
// 保留零值时间戳，由合并阶段丢弃。文件无法解析时返回错误，调用方
// 按“existing 视为空”降级。
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing csv failed: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	header := records[0]
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.ToLower(strings.TrimSpace(h))
	}

	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		var row Row
		for i, col := range cols {
			if i >= len(rec) {
				break
			}
			val := strings.TrimSpace(rec[i])
			switch {
			case timestampAliases[col]:
				row.Timestamp = ParseTimestamp(val)
			case col == "symbol":
				row.Symbol = val
			case col == "open":
				row.Open = val
			case col == "high":
				row.High = val
			case col == "low":
				row.Low = val
			case col == "close":
				row.Close = val
			case col == "adj_close":
				row.AdjClose = val
			case col == "volume":
				row.Volume = parseVolume(val)
			case col == "pct_change":
				row.PctChange = val
			case col == "adj_pct_change":
				row.AdjPctChange = val
			default:
				if row.Extra == nil {
					row.Extra = make(map[string]string)
				}
				row.Extra[col] = val
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteFile 一次性重写整个文件：先写同目录临时文件再 rename，
// 中途退出不会留下半截数据集。
func WriteFile(path string, rows []Row, withSymbol bool) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(dir, ".candlesync-*.csv")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := csv.NewWriter(tmp)
	header := buildHeader(rows, withSymbol)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return err
	}
	for _, row := range rows {
		if err := w.Write(renderRow(row, header)); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func buildHeader(rows []Row, withSymbol bool) []string {
	header := make([]string, 0, len(canonicalColumns)+1)
	if withSymbol {
		header = append(header, "symbol")
	}
	header = append(header, canonicalColumns...)

	extraSet := make(map[string]bool)
	for _, row := range rows {
		for col := range row.Extra {
			extraSet[col] = true
		}
	}
	extras := make([]string, 0, len(extraSet))
	for col := range extraSet {
		extras = append(extras, col)
	}
	sort.Strings(extras)
	return append(header, extras...)
}

func renderRow(row Row, header []string) []string {
	out := make([]string, len(header))
	for i, col := range header {
		switch col {
		case "symbol":
			out[i] = row.Symbol
		case "timestamp":
			if !row.Timestamp.IsZero() {
				out[i] = FormatTimestamp(row.Timestamp)
			}
		case "open":
			out[i] = row.Open
		case "high":
			out[i] = row.High
		case "low":
			out[i] = row.Low
		case "close":
			out[i] = row.Close
		case "adj_close":
			out[i] = row.AdjClose
		case "volume":
			out[i] = strconv.FormatInt(row.Volume, 10)
		case "pct_change":
			out[i] = row.PctChange
		case "adj_pct_change":
			out[i] = row.AdjPctChange
		default:
			out[i] = row.Extra[col]
		}
	}
	return out
}

func parseVolume(raw string) int64 {
	if raw == "" {
		return 0
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if v < 0 {
			return 0
		}
		return v
	}
	// 历史文件可能写成浮点（pandas 的 123.0）
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f > 0 {
		return int64(f + 0.5)
	}
	return 0
}
