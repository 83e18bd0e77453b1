package stats

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"candlesync/internal/dataset"
)

const (
	colorBackground  = "#060c1b"
	colorTextPrimary = "#eceff4"
	colorTextMuted   = "#9ca3af"
	colorUp          = "#34d399"
	colorDown        = "#f87171"
	colorNeutral     = "#3b82f6"

	chartWidthPx  = 1400
	chartHeightPx = 420
	klineHeightPx = 560
)

// RenderHTML 把一份统计报告渲染成单页 HTML：
// 总体直方图、按星期几的直方图，以及原始 K 线。
func RenderHTML(report Report, rows []dataset.Row) ([]byte, error) {
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	page.AddCharts(buildHistChart(fmt.Sprintf("%s 日涨跌幅分布", report.Symbol), report.Overall, report.Bins))
	for _, day := range report.ByDay {
		title := fmt.Sprintf("%s %s", report.Symbol, weekdayLabel(day.Weekday))
		page.AddCharts(buildHistChart(title, day.Summary, day.Bins))
	}
	if len(rows) > 0 {
		page.AddCharts(buildKlineChart(report.Symbol, rows))
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteHTML 渲染并落盘，返回输出路径。
func WriteHTML(report Report, rows []dataset.Row, outDir string) (string, error) {
	html, err := RenderHTML(report, rows)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(outDir, fmt.Sprintf("%s_stats.html", strings.ToLower(report.Symbol)))
	if err := os.WriteFile(path, html, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// WritePNG 通过无头浏览器截图。没有可用的 Chrome 时返回错误，
// 由调用方决定是否降级为只出 HTML。
func WritePNG(ctx context.Context, report Report, rows []dataset.Row, outDir string) (string, error) {
	if err := EnsureHeadlessAvailable(ctx); err != nil {
		return "", err
	}
	html, err := RenderHTML(report, rows)
	if err != nil {
		return "", err
	}
	height := (len(report.ByDay) + 1) * chartHeightPx
	if len(rows) > 0 {
		height += klineHeightPx
	}
	png, err := renderHTMLToPNG(ctx, html, chartWidthPx, height)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(outDir, fmt.Sprintf("%s_stats.png", strings.ToLower(report.Symbol)))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

var (
	headlessOnce sync.Once
	headlessErr  error
)

func EnsureHeadlessAvailable(ctx context.Context) error {
	headlessOnce.Do(func() {
		targetCtx := ctx
		if targetCtx == nil {
			targetCtx = context.Background()
		}
		parent, cancel := chromedp.NewContext(targetCtx)
		if cancel != nil {
			defer cancel()
		}
		headlessErr = chromedp.Run(parent)
	})
	return headlessErr
}

func buildHistChart(title string, summary Summary, bins []Bin) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title: title,
			Subtitle: fmt.Sprintf("n=%d  mean=%.4f  std=%.4f  median=%.4f  up=%.1f%%  down=%.1f%%",
				summary.Count, summary.Mean, summary.Std, summary.Median,
				summary.UpProb*100, summary.DownProb*100),
			Left:          "left",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 16},
			SubtitleStyle: &opts.TextStyle{Color: colorTextMuted},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithXAxisOpts(opts.XAxis{
			AxisLabel: &opts.AxisLabel{Color: colorTextMuted},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Color: colorTextMuted},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextMuted, Opacity: opts.Float(0.15)}},
		}),
	)

	xAxis := make([]string, 0, len(bins))
	data := make([]opts.BarData, 0, len(bins))
	for _, bin := range bins {
		if bin.Count == 0 {
			continue
		}
		xAxis = append(xAxis, strconv.FormatFloat(bin.Lower, 'f', 1, 64))
		color := colorDown
		if bin.Lower >= 0 {
			color = colorUp
		}
		data = append(data, opts.BarData{
			Value:     bin.Count,
			ItemStyle: &opts.ItemStyle{Color: color, Opacity: opts.Float(0.8)},
		})
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("count", data)
	return bar
}

func buildKlineChart(symbol string, rows []dataset.Row) *charts.Kline {
	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", klineHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      fmt.Sprintf("%s 走势", strings.ToUpper(symbol)),
			Left:       "left",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary, FontSize: 16},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextMuted},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextMuted},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorUp,
			Color0:       colorDown,
			BorderColor:  colorUp,
			BorderColor0: colorDown,
		}),
	)

	xAxis := make([]string, 0, len(rows))
	data := make([]opts.KlineData, 0, len(rows))
	for _, row := range rows {
		o, err1 := strconv.ParseFloat(row.Open, 64)
		c, err2 := strconv.ParseFloat(row.Close, 64)
		l, err3 := strconv.ParseFloat(row.Low, 64)
		h, err4 := strconv.ParseFloat(row.High, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		if row.Timestamp.IsZero() {
			continue
		}
		xAxis = append(xAxis, row.Timestamp.Format("2006-01-02"))
		data = append(data, opts.KlineData{Value: [4]float64{o, c, l, h}})
	}
	kline.SetXAxis(xAxis)
	kline.AddSeries(strings.ToUpper(symbol), data)
	return kline
}

func weekdayLabel(wd time.Weekday) string {
	switch wd {
	case time.Monday:
		return "周一"
	case time.Tuesday:
		return "周二"
	case time.Wednesday:
		return "周三"
	case time.Thursday:
		return "周四"
	case time.Friday:
		return "周五"
	}
	return wd.String()
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
