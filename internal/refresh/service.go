package refresh

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"candlesync/internal/dataset"
	"candlesync/internal/logger"
	"candlesync/internal/market"
	"candlesync/internal/store/cache"
	"candlesync/internal/store/history"
)

// Options 控制一次同步运行。Source 和 Interval 必填，其余零值
// 都有合理兜底。
type Options struct {
	Source     market.CandleSource
	Interval   dataset.Interval
	AutoAdjust bool

	// Start 显式指定起点时跳过增量推断；End 缺省为当前时间。
	Start *time.Time
	End   *time.Time

	// Incremental 为 false 时忽略已有文件与元数据，整窗重拉。
	Incremental   bool
	LookbackDays  int
	MaxWindowDays int

	// BatchDays>0 强制分批；否则只有超过自动分批阈值的
	// 日内区间才会切窗。
	BatchDays int
	Delay     time.Duration
	Workers   int
	Limiter   *rate.Limiter

	// WithSymbol 控制 CSV 是否带 symbol 列（多标的合并文件用）。
	WithSymbol bool

	Now func() time.Time
}

// Service 按 worker 池并发跑 Job，单个 Job 内的窗口严格串行，
// 保证对数据源的请求间隔可控。
type Service struct {
	opts    Options
	history *history.Store
	cache   *cache.Store
}

func NewService(opts Options, hist *history.Store, cch *cache.Store) (*Service, error) {
	if opts.Source == nil {
		return nil, errors.New("refresh: source is required")
	}
	if opts.Interval.Key == "" {
		return nil, errors.New("refresh: interval is required")
	}
	if opts.Start != nil && opts.End != nil && opts.End.Before(*opts.Start) {
		return nil, fmt.Errorf("refresh: end %s is before start %s",
			opts.End.Format("2006-01-02"), opts.Start.Format("2006-01-02"))
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxWindowDays <= 0 {
		opts.MaxWindowDays = 730
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{opts: opts, history: hist, cache: cch}, nil
}

// RunAll 并发执行全部 Job。返回的 Summary 总是完整覆盖每个 Job，
// 单个失败不会中断其它标的。
func (s *Service) RunAll(ctx context.Context, jobs []Job) Summary {
	started := time.Now()
	results := make([]Result, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			results[i] = s.runJob(gctx, job)
			return nil
		})
	}
	_ = g.Wait()

	return Summary{Results: results, Elapsed: time.Since(started)}
}

func (s *Service) runJob(ctx context.Context, job Job) Result {
	started := time.Now()
	res := Result{JobID: job.ID, Symbol: job.SymbolDisplay(), Status: history.StatusOK}
	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		logger.Warnf("[%s] %s", res.Symbol, msg)
		res.Warnings = append(res.Warnings, msg)
	}

	existing, lastSaved := s.loadState(job, warn)

	now := truncateDay(s.opts.Now())
	start, upToDate := dataset.ResolveStart(dataset.ResolveInput{
		Requested:     s.opts.Start,
		LastSaved:     lastSaved,
		LookbackDays:  s.opts.LookbackDays,
		MaxWindowDays: s.opts.MaxWindowDays,
		Now:           now,
	})
	if upToDate {
		logger.Infof("[%s] 已是最新, 跳过", res.Symbol)
		res.Status = history.StatusUpToDate
		res.RowsTotal = len(existing)
		res.Elapsed = time.Since(started)
		s.record(ctx, job, res)
		return res
	}

	end := now
	if s.opts.End != nil {
		e := truncateDay(*s.opts.End)
		if e.Before(end) {
			end = e
		}
	}
	res.Start, res.End = start, end

	windows := s.planWindows(start, end)
	logger.Infof("[%s] %s 同步 %s -> %s (%d 个窗口)",
		res.Symbol, s.opts.Interval.Key,
		start.Format("2006-01-02"), end.Format("2006-01-02"), len(windows))

	fetched, okWindows := s.fetchWindows(ctx, job, windows, warn)
	res.RowsFetched = len(fetched)
	if okWindows == 0 {
		res.Status = history.StatusFailed
		res.Err = fmt.Errorf("%s: all %d windows failed", res.Symbol, len(windows))
		res.Elapsed = time.Since(started)
		s.record(ctx, job, res)
		return res
	}
	if okWindows < len(windows) {
		res.Status = history.StatusPartial
	}

	merged := dataset.Merge(existing, fetched, s.opts.WithSymbol)
	res.RowsAdded = merged.Added
	res.RowsTotal = len(merged.Rows)

	if err := dataset.WriteFile(job.CSVPath, merged.Rows, s.opts.WithSymbol); err != nil {
		res.Status = history.StatusFailed
		res.Err = fmt.Errorf("write %s: %w", job.CSVPath, err)
		res.Elapsed = time.Since(started)
		s.record(ctx, job, res)
		return res
	}
	meta := dataset.BuildMetadata(res.Symbol, s.opts.Interval.Key, merged.Rows)
	if err := dataset.WriteMetadata(job.MetadataPath, []dataset.Metadata{meta}); err != nil {
		warn("写元数据失败: %v", err)
	}

	if s.cache != nil {
		if _, err := s.cache.ReplaceRows(ctx, res.Symbol, s.opts.Interval.Key, merged.Rows); err != nil {
			warn("写缓存失败: %v", err)
		}
	}

	logger.Infof("[%s] 完成: 拉取 %d 行, 新增 %d 行, 总计 %d 行",
		res.Symbol, res.RowsFetched, res.RowsAdded, res.RowsTotal)
	res.Elapsed = time.Since(started)
	s.record(ctx, job, res)
	return res
}

// loadState 读取已有 CSV 与元数据，推断上次保存到哪一天。
// 文件损坏按告警降级为全量重拉，不让单个坏文件卡死整个标的。
func (s *Service) loadState(job Job, warn func(string, ...any)) ([]dataset.Row, *time.Time) {
	if !s.opts.Incremental {
		return nil, nil
	}

	var existing []dataset.Row
	if _, err := os.Stat(job.CSVPath); err == nil {
		rows, err := dataset.ReadFile(job.CSVPath)
		if err != nil {
			warn("已有 CSV 无法解析, 按空文件处理: %v", err)
		} else {
			existing = rows
		}
	}

	var lastSaved *time.Time
	if meta, err := dataset.ReadMetadata(job.MetadataPath); err == nil && meta != nil {
		if t, ok := meta.EndTime(); ok {
			lastSaved = &t
		}
	} else if err != nil && !os.IsNotExist(err) {
		warn("元数据不可用: %v", err)
	}
	if lastSaved == nil {
		for i := len(existing) - 1; i >= 0; i-- {
			if !existing[i].Timestamp.IsZero() {
				t := existing[i].Timestamp
				lastSaved = &t
				break
			}
		}
	}
	return existing, lastSaved
}

func (s *Service) planWindows(start, end time.Time) []dataset.Window {
	if s.opts.BatchDays > 0 || dataset.NeedsBatching(s.opts.Interval, start, end) {
		return dataset.Plan(s.opts.Interval, start, end, s.opts.BatchDays)
	}
	return []dataset.Window{{Start: start, End: end}}
}

// fetchWindows 串行拉取各窗口并折叠归一化；单窗失败记警告继续,
// 让后续窗口仍有机会成功。
func (s *Service) fetchWindows(ctx context.Context, job Job, windows []dataset.Window, warn func(string, ...any)) ([]dataset.Row, int) {
	var (
		rows  []dataset.Row
		carry dataset.Carry
		ok    int
	)
	for i, w := range windows {
		if s.opts.Limiter != nil {
			if err := s.opts.Limiter.Wait(ctx); err != nil {
				warn("窗口 %s -> %s 取消: %v", w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"), err)
				return rows, ok
			}
		}
		candles, err := s.opts.Source.Fetch(ctx, market.FetchRequest{
			Symbol:     job.Symbol,
			Interval:   s.opts.Interval.Key,
			Start:      w.Start,
			End:        w.End,
			AutoAdjust: s.opts.AutoAdjust,
		})
		switch {
		case errors.Is(err, market.ErrNoData):
			logger.Debugf("[%s] 窗口 %s -> %s 无数据",
				job.SymbolDisplay(), w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
			ok++
		case err != nil:
			warn("窗口 %s -> %s 拉取失败: %v",
				w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"), err)
		default:
			var batch []dataset.Row
			batch, carry = dataset.Normalize(candles, carry)
			rows = append(rows, batch...)
			ok++
		}
		if s.opts.Delay > 0 && i < len(windows)-1 {
			select {
			case <-ctx.Done():
				return rows, ok
			case <-time.After(s.opts.Delay):
			}
		}
	}
	return rows, ok
}

func (s *Service) record(ctx context.Context, job Job, res Result) {
	if s.history == nil {
		return
	}
	run := history.SyncRun{
		ID:          job.ID,
		Symbol:      res.Symbol,
		Interval:    s.opts.Interval.Key,
		Status:      res.Status,
		RowsFetched: res.RowsFetched,
		RowsAdded:   res.RowsAdded,
		Start:       res.Start.Format("2006-01-02"),
		End:         res.End.Format("2006-01-02"),
	}
	if err := s.history.Record(ctx, run, res.Warnings); err != nil {
		logger.Warnf("[%s] 写同步历史失败: %v", res.Symbol, err)
	}
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatSummary 渲染给终端看的运行小结。
func FormatSummary(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "同步完成: %d 成功, %d 失败, 耗时 %s\n",
		s.Succeeded(), s.Failed(), s.Elapsed.Round(time.Millisecond))
	for _, r := range s.Results {
		switch {
		case r.Err != nil:
			fmt.Fprintf(&b, "  %-12s 失败: %v\n", r.Symbol, r.Err)
		case r.Status == history.StatusUpToDate:
			fmt.Fprintf(&b, "  %-12s 已是最新 (%d 行)\n", r.Symbol, r.RowsTotal)
		default:
			fmt.Fprintf(&b, "  %-12s +%d 行 (总计 %d)\n", r.Symbol, r.RowsAdded, r.RowsTotal)
		}
	}
	return b.String()
}
