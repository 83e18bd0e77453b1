package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"candlesync/internal/config"
	"candlesync/internal/dataset"
	"candlesync/internal/logger"
	"candlesync/internal/market"
	"candlesync/internal/market/binance"
	"candlesync/internal/market/yahoo"
	"candlesync/internal/refresh"
	"candlesync/internal/store/cache"
	"candlesync/internal/store/history"
	"candlesync/internal/symbols"
	transport "candlesync/internal/transport/http"
)

// App 把配置装配成可运行的组件，生命周期归调用方管。
type App struct {
	Cfg     *config.Config
	History *history.Store
	Cache   *cache.Store

	source  market.CandleSource
	limiter *rate.Limiter
}

func NewApp(cfg *config.Config) (*App, error) {
	a := &App{Cfg: cfg}

	source, err := buildSource(cfg.Provider)
	if err != nil {
		return nil, err
	}
	a.source = source

	if cfg.Provider.RateLimitPerMin > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.Provider.RateLimitPerMin)/60.0, 1)
	}

	if cfg.Store.HistoryPath != "" {
		hist, err := history.Open(cfg.Store.HistoryPath)
		if err != nil {
			return nil, fmt.Errorf("打开同步历史库失败: %w", err)
		}
		a.History = hist
	}
	if cfg.Store.CacheEnabled {
		cch, err := cache.NewStore(cfg.Store.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("初始化本地镜像失败: %w", err)
		}
		a.Cache = cch
	}
	return a, nil
}

func (a *App) Close() {
	if a.History != nil {
		_ = a.History.Close()
	}
	if a.Cache != nil {
		_ = a.Cache.Close()
	}
}

func (a *App) Source() market.CandleSource { return a.source }

func buildSource(p config.ProviderConfig) (market.CandleSource, error) {
	timeout := time.Duration(p.TimeoutSeconds) * time.Second
	switch strings.ToLower(p.Name) {
	case "yahoo", "":
		return yahoo.NewSource(p.BaseURL, timeout), nil
	case "binance":
		return binance.NewSource(p.BaseURL), nil
	default:
		return nil, fmt.Errorf("不支持的数据源: %s", p.Name)
	}
}

// RefreshOptions 是 CLI 对单次运行的覆盖。零值走配置默认。
type RefreshOptions struct {
	Interval string
	Start    *time.Time
	End      *time.Time
	// Full 为 true 时忽略已有文件与元数据，整窗重拉。
	Full      bool
	BatchDays int
	Workers   int
	// DelaySeconds>0 覆盖配置里的请求间隔。
	DelaySeconds float64
	// OutputRoot 覆盖配置里的输出根目录（宇宙分组用）。
	OutputRoot string
}

// 对应限速预设的请求间隔秒数。
const (
	slowDelaySeconds      = 5.0
	ultraSlowDelaySeconds = 10.0
)

// ResolveDelay 把限速预设折算成请求间隔秒数；预设优先于显式值，
// 两档预设同时给出时取更慢的一档。返回 0 表示沿用配置默认。
func ResolveDelay(explicit float64, slow, ultraSlow bool) float64 {
	switch {
	case ultraSlow:
		return ultraSlowDelaySeconds
	case slow:
		return slowDelaySeconds
	default:
		return explicit
	}
}

func (a *App) delaySeconds(o RefreshOptions) float64 {
	if o.DelaySeconds > 0 {
		return o.DelaySeconds
	}
	return a.Cfg.Fetch.DelaySeconds
}

// Refresh 对一批标的执行增量同步，返回汇总结果。
func (a *App) Refresh(ctx context.Context, syms []string, o RefreshOptions) (refresh.Summary, error) {
	ivKey := o.Interval
	if ivKey == "" {
		ivKey = a.Cfg.Fetch.Interval
	}
	iv, err := dataset.ParseInterval(ivKey)
	if err != nil {
		return refresh.Summary{}, err
	}
	if len(syms) == 0 {
		return refresh.Summary{}, fmt.Errorf("没有要同步的标的")
	}
	syms = a.applySuffix(syms)

	batchDays := o.BatchDays
	if batchDays <= 0 {
		batchDays = a.Cfg.Fetch.BatchDays
	}
	workers := o.Workers
	if workers <= 0 {
		workers = a.Cfg.Fetch.Workers
	}

	svc, err := refresh.NewService(refresh.Options{
		Source:        a.source,
		Interval:      iv,
		AutoAdjust:    a.Cfg.Fetch.AutoAdjust,
		Start:         o.Start,
		End:           o.End,
		Incremental:   !o.Full,
		LookbackDays:  a.Cfg.Fetch.LookbackDays,
		MaxWindowDays: a.Cfg.Fetch.MaxWindowDays,
		BatchDays:     batchDays,
		Delay:         time.Duration(a.delaySeconds(o) * float64(time.Second)),
		Workers:       workers,
		Limiter:       a.limiter,
	}, a.History, a.Cache)
	if err != nil {
		return refresh.Summary{}, err
	}

	root := o.OutputRoot
	if root == "" {
		root = a.Cfg.Output.Root
	}
	jobs := refresh.PlanJobs(syms, root, iv.Key, a.Cfg.Fetch.MaxWindowDays)
	return svc.RunAll(ctx, jobs), nil
}

// RefreshUniverse 按宇宙文件逐组同步，每组可自带后缀与输出目录。
func (a *App) RefreshUniverse(ctx context.Context, u *symbols.Universe, o RefreshOptions) (refresh.Summary, error) {
	var total refresh.Summary
	started := time.Now()
	for _, group := range u.Groups {
		syms := group.Symbols
		if group.Suffix != "" {
			syms = symbols.WithSuffix(syms, group.Suffix)
		}
		groupOpts := o
		if group.OutputRoot != "" {
			groupOpts.OutputRoot = group.OutputRoot
		}
		logger.Infof("同步分组 %s (%d 个标的)", group.Name, len(syms))
		summary, err := a.Refresh(ctx, syms, groupOpts)
		if err != nil {
			return total, fmt.Errorf("分组 %s: %w", group.Name, err)
		}
		total.Results = append(total.Results, summary.Results...)
	}
	total.Elapsed = time.Since(started)
	return total, nil
}

// FetchCombined 一次性下载多个标的并写进带 symbol 列的合并文件。
// 逐标的串行拉取，按标的各自维护涨跌幅基线，最后统一合并落盘。
func (a *App) FetchCombined(ctx context.Context, syms []string, o RefreshOptions, outPath string) (int, error) {
	ivKey := o.Interval
	if ivKey == "" {
		ivKey = a.Cfg.Fetch.Interval
	}
	iv, err := dataset.ParseInterval(ivKey)
	if err != nil {
		return 0, err
	}
	if len(syms) == 0 {
		return 0, fmt.Errorf("没有要下载的标的")
	}
	if o.Start != nil && o.End != nil && o.End.Before(*o.Start) {
		return 0, fmt.Errorf("结束日期 %s 早于起始日期 %s",
			o.End.Format("2006-01-02"), o.Start.Format("2006-01-02"))
	}
	syms = a.applySuffix(syms)
	if outPath == "" {
		outPath = filepath.Join(a.Cfg.Output.Root, fmt.Sprintf("combined_%s.csv", iv.Key))
	}

	now := time.Now().UTC()
	end := now
	if o.End != nil {
		end = *o.End
	}
	start := end.AddDate(0, 0, -a.Cfg.Fetch.MaxWindowDays)
	if o.Start != nil {
		start = *o.Start
	}

	batchDays := o.BatchDays
	if batchDays <= 0 {
		batchDays = a.Cfg.Fetch.BatchDays
	}
	delay := time.Duration(a.delaySeconds(o) * float64(time.Second))

	var incoming []dataset.Row
	for si, sym := range syms {
		windows := []dataset.Window{{Start: start, End: end}}
		if batchDays > 0 || dataset.NeedsBatching(iv, start, end) {
			windows = dataset.Plan(iv, start, end, batchDays)
		}
		var carry dataset.Carry
		okWindows := 0
		for wi, w := range windows {
			if a.limiter != nil {
				if err := a.limiter.Wait(ctx); err != nil {
					return 0, err
				}
			}
			candles, err := a.source.Fetch(ctx, market.FetchRequest{
				Symbol:     sym,
				Interval:   iv.Key,
				Start:      w.Start,
				End:        w.End,
				AutoAdjust: a.Cfg.Fetch.AutoAdjust,
			})
			if err != nil {
				logger.Warnf("[%s] 窗口 %s -> %s 拉取失败: %v", strings.ToUpper(sym),
					w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"), err)
			} else {
				var batch []dataset.Row
				batch, carry = dataset.Normalize(candles, carry)
				incoming = append(incoming, batch...)
				okWindows++
			}
			if delay > 0 && (wi < len(windows)-1 || si < len(syms)-1) {
				select {
				case <-ctx.Done():
					return 0, ctx.Err()
				case <-time.After(delay):
				}
			}
		}
		if okWindows == 0 {
			logger.Warnf("[%s] 所有窗口都失败, 跳过该标的", strings.ToUpper(sym))
		}
	}
	if len(incoming) == 0 {
		return 0, fmt.Errorf("没有拉到任何数据")
	}

	var existing []dataset.Row
	if !o.Full {
		rows, err := dataset.ReadFile(outPath)
		switch {
		case err == nil:
			existing = rows
		case !os.IsNotExist(err):
			logger.Warnf("已有合并文件无法解析, 按空文件处理: %v", err)
		}
	}
	merged := dataset.Merge(existing, incoming, true)
	if err := dataset.WriteFile(outPath, merged.Rows, true); err != nil {
		return 0, err
	}
	logger.Infof("合并文件已写入 %s (%d 行, 新增 %d)", outPath, len(merged.Rows), merged.Added)
	return merged.Added, nil
}

// Serve 启动 HTTP 查询服务；刷新入口复用默认配置。
func (a *App) Serve(defaultSymbols []string) error {
	doSync := func(ctx context.Context, syms []string) refresh.Summary {
		if len(syms) == 0 {
			syms = defaultSymbols
		}
		summary, err := a.Refresh(ctx, syms, RefreshOptions{})
		if err != nil {
			logger.Errorf("刷新失败: %v", err)
			return refresh.Summary{}
		}
		return summary
	}
	srv := transport.NewServer(a.Cache, a.History, doSync)
	return srv.Run(a.Cfg.HTTP.Addr)
}

// applySuffix 给裸 ticker 补交易所后缀；binance 的交易对不需要。
func (a *App) applySuffix(syms []string) []string {
	if strings.ToLower(a.Cfg.Provider.Name) == "binance" {
		return syms
	}
	return symbols.WithSuffix(syms, a.Cfg.Output.SymbolSuffix)
}
