package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"candlesync/internal/app"
	"candlesync/internal/dataset"
	"candlesync/internal/logger"
	"candlesync/internal/refresh"
	"candlesync/internal/stats"
	"candlesync/internal/symbols"
)

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "candlesync",
		Short:         "历史 K 线下载、规范化与增量同步工具",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "配置文件路径 (缺省读 CANDLESYNC_CONFIG)")

	root.AddCommand(
		newFetchCmd(&cfgPath),
		newRefreshCmd(&cfgPath),
		newSymbolsCmd(&cfgPath),
		newStatsCmd(&cfgPath),
		newServeCmd(&cfgPath),
	)
	return root
}

type fetchFlags struct {
	interval  string
	start     string
	end       string
	out       string
	full      bool
	batchDays int
	delay     float64
	slow      bool
	ultraSlow bool
}

func newFetchCmd(cfgPath *string) *cobra.Command {
	var f fetchFlags
	cmd := &cobra.Command{
		Use:   "fetch SYMBOL [SYMBOL...]",
		Short: "一次性下载多个标的到带 symbol 列的合并 CSV",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			a, err := app.NewApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := app.RefreshOptions{
				Interval:     f.interval,
				Full:         f.full,
				BatchDays:    f.batchDays,
				DelaySeconds: app.ResolveDelay(f.delay, f.slow, f.ultraSlow),
			}
			if opts.Start, err = parseDateFlag(f.start); err != nil {
				return err
			}
			if opts.End, err = parseDateFlag(f.end); err != nil {
				return err
			}
			added, err := a.FetchCombined(cmd.Context(), args, opts, f.out)
			if err != nil {
				return err
			}
			logger.Infof("下载完成, 新增 %d 行", added)
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.interval, "interval", "i", "", "K 线周期 (1m/5m/15m/30m/1h/1d/1wk/1mo...)")
	cmd.Flags().StringVar(&f.start, "start", "", "起始日期 YYYY-MM-DD")
	cmd.Flags().StringVar(&f.end, "end", "", "结束日期 YYYY-MM-DD")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "输出 CSV 路径")
	cmd.Flags().BoolVar(&f.full, "full", false, "忽略已有文件整窗重拉")
	cmd.Flags().IntVar(&f.batchDays, "batch-days", 0, "强制分批天数 (0=按周期自动)")
	cmd.Flags().Float64Var(&f.delay, "delay", 0, "请求间隔秒数 (0=配置默认)")
	cmd.Flags().BoolVar(&f.slow, "slow", false, "慢速预设, 请求间隔 5 秒")
	cmd.Flags().BoolVar(&f.ultraSlow, "ultra-slow", false, "超慢速预设, 请求间隔 10 秒")
	return cmd
}

type refreshFlags struct {
	symbolsCSV  string
	symbolsFile string
	universe    string
	interval    string
	start       string
	end         string
	hourly      bool
	full        bool
	watch       bool
	workers     int
	delay       float64
	slow        bool
	ultraSlow   bool
}

func newRefreshCmd(cfgPath *string) *cobra.Command {
	var f refreshFlags
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "按标的清单增量同步到各自的数据目录",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			a, err := app.NewApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := app.RefreshOptions{
				Interval:     f.interval,
				Full:         f.full,
				Workers:      f.workers,
				DelaySeconds: app.ResolveDelay(f.delay, f.slow, f.ultraSlow),
			}
			if f.hourly {
				// 小时线预设: 1h + 滚动窗口上限
				opts.Interval = "1h"
			}
			if opts.Start, err = parseDateFlag(f.start); err != nil {
				return err
			}
			if opts.End, err = parseDateFlag(f.end); err != nil {
				return err
			}

			if f.universe != "" {
				u, err := symbols.LoadUniverse(f.universe)
				if err != nil {
					return err
				}
				summary, err := a.RefreshUniverse(cmd.Context(), u, opts)
				if err != nil {
					return err
				}
				fmt.Print(refresh.FormatSummary(summary))
				exitCode = summary.ExitCode()
				return nil
			}

			syms, err := resolveSymbols(f.symbolsCSV, f.symbolsFile)
			if err != nil {
				return err
			}

			runOnce := func(ctx context.Context) refresh.Summary {
				summary, err := a.Refresh(ctx, syms, opts)
				if err != nil {
					logger.Errorf("同步失败: %v", err)
					exitCode = 1
					return refresh.Summary{}
				}
				fmt.Print(refresh.FormatSummary(summary))
				return summary
			}

			summary := runOnce(cmd.Context())
			exitCode = summary.ExitCode()

			if f.watch {
				if f.symbolsFile == "" {
					return fmt.Errorf("--watch 需要 --symbols-file")
				}
				return refresh.Watch(cmd.Context(), f.symbolsFile, func(ctx context.Context) refresh.Summary {
					fresh, err := symbols.LoadFile(f.symbolsFile)
					if err != nil {
						logger.Errorf("重新读取标的清单失败: %v", err)
						return refresh.Summary{}
					}
					syms = fresh
					return runOnce(ctx)
				})
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.symbolsCSV, "symbols", "", "逗号分隔的标的列表")
	cmd.Flags().StringVar(&f.symbolsFile, "symbols-file", "", "标的清单文件 (每行一个, # 注释)")
	cmd.Flags().StringVar(&f.universe, "universe", "", "YAML 宇宙文件, 按分组同步")
	cmd.Flags().StringVarP(&f.interval, "interval", "i", "", "K 线周期")
	cmd.Flags().StringVar(&f.start, "start", "", "起始日期 YYYY-MM-DD (缺省增量推断)")
	cmd.Flags().StringVar(&f.end, "end", "", "结束日期 YYYY-MM-DD")
	cmd.Flags().BoolVar(&f.hourly, "hourly", false, "小时线预设 (等价 --interval 1h)")
	cmd.Flags().BoolVar(&f.full, "full", false, "忽略已有文件整窗重拉")
	cmd.Flags().BoolVar(&f.watch, "watch", false, "监听清单文件变更自动重跑")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "并发 worker 数 (0=配置默认)")
	cmd.Flags().Float64Var(&f.delay, "delay", 0, "请求间隔秒数 (0=配置默认)")
	cmd.Flags().BoolVar(&f.slow, "slow", false, "慢速预设, 请求间隔 5 秒")
	cmd.Flags().BoolVar(&f.ultraSlow, "ultra-slow", false, "超慢速预设, 请求间隔 10 秒")
	return cmd
}

func newSymbolsCmd(cfgPath *string) *cobra.Command {
	var (
		out    string
		series []string
		suffix string
	)
	cmd := &cobra.Command{
		Use:   "symbols",
		Short: "从 NSE 官方清单拉取股票列表",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(*cfgPath); err != nil {
				return err
			}
			syms, err := symbols.FetchNSE(cmd.Context(), symbols.FetchNSEOptions{
				Series: series,
				Suffix: suffix,
			})
			if err != nil {
				return err
			}
			if out == "" {
				for _, s := range syms {
					fmt.Println(s)
				}
				return nil
			}
			if err := symbols.WriteList(out, syms); err != nil {
				return err
			}
			logger.Infof("已写入 %d 个标的到 %s", len(syms), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "输出文件 (缺省打印到 stdout)")
	cmd.Flags().StringSliceVar(&series, "series", nil, "保留的 SERIES (缺省 EQ)")
	cmd.Flags().StringVar(&suffix, "suffix", "", "追加的交易所后缀, 如 .NS")
	return cmd
}

func newStatsCmd(cfgPath *string) *cobra.Command {
	var (
		interval string
		adjusted bool
		hourly   bool
		png      bool
		outDir   string
	)
	cmd := &cobra.Command{
		Use:   "stats SYMBOL",
		Short: "对已下载的数据集做涨跌幅分布统计并出图",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			ivKey := interval
			if ivKey == "" {
				ivKey = cfg.Fetch.Interval
			}
			iv := dataset.LookupInterval(ivKey)

			jobs := refresh.PlanJobs(args[:1], cfg.Output.Root, iv.Key, cfg.Fetch.MaxWindowDays)
			rows, err := dataset.ReadFile(jobs[0].CSVPath)
			if err != nil {
				return fmt.Errorf("读取数据集失败 (%s): %w", jobs[0].CSVPath, err)
			}

			report := stats.Analyze(strings.ToUpper(args[0]), rows, stats.Options{
				PctMin:   cfg.Stats.PctMin,
				PctMax:   cfg.Stats.PctMax,
				BinWidth: cfg.Stats.BinWidth,
				Adjusted: adjusted,
				Hourly:   hourly || iv.Hourly,
			})
			printReport(report)

			if outDir == "" {
				outDir = cfg.Output.Root
			}
			htmlPath, err := stats.WriteHTML(report, rows, outDir)
			if err != nil {
				return err
			}
			logger.Infof("图表已写入 %s", htmlPath)
			if png {
				pngPath, err := stats.WritePNG(cmd.Context(), report, rows, outDir)
				if err != nil {
					logger.Warnf("PNG 渲染不可用, 仅保留 HTML: %v", err)
				} else {
					logger.Infof("截图已写入 %s", pngPath)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&interval, "interval", "i", "", "数据集周期")
	cmd.Flags().BoolVar(&adjusted, "adjusted", false, "用复权涨跌幅列")
	cmd.Flags().BoolVar(&hourly, "hourly", false, "按 (close-open)/open 计算小时收益")
	cmd.Flags().BoolVar(&png, "png", false, "额外输出 PNG 截图 (需要本机 Chrome)")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "图表输出目录")
	return cmd
}

func newServeCmd(cfgPath *string) *cobra.Command {
	var symbolsFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动数据集查询与刷新 HTTP 服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			a, err := app.NewApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var defaults []string
			if symbolsFile != "" {
				defaults, err = symbols.LoadFile(symbolsFile)
				if err != nil {
					return err
				}
			}
			return a.Serve(defaults)
		},
	}
	cmd.Flags().StringVar(&symbolsFile, "symbols-file", "", "POST /api/refresh 未带标的时的默认清单")
	return cmd
}

func resolveSymbols(csv, file string) ([]string, error) {
	if csv != "" {
		syms := symbols.Parse(csv)
		if len(syms) == 0 {
			return nil, fmt.Errorf("--symbols 解析不出任何标的")
		}
		return syms, nil
	}
	if file != "" {
		return symbols.LoadFile(file)
	}
	return nil, fmt.Errorf("需要 --symbols 或 --symbols-file")
}

func parseDateFlag(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("日期格式应为 YYYY-MM-DD: %q", raw)
	}
	t = t.UTC()
	return &t, nil
}

func printReport(r stats.Report) {
	fmt.Printf("%s: n=%d mean=%.4f std=%.4f median=%.4f min=%.4f max=%.4f\n",
		r.Symbol, r.Overall.Count, r.Overall.Mean, r.Overall.Std,
		r.Overall.Median, r.Overall.Min, r.Overall.Max)
	fmt.Printf("  上涨 %.1f%%  下跌 %.1f%%  平盘 %.1f%%  偏度 %.3f  峰度 %.3f\n",
		r.Overall.UpProb*100, r.Overall.DownProb*100, r.Overall.FlatProb*100,
		r.Overall.Skewness, r.Overall.Kurtosis)
	for _, day := range r.ByDay {
		fmt.Printf("  %-9s n=%-5d mean=%8.4f std=%7.4f up=%.1f%%\n",
			day.Weekday, day.Summary.Count, day.Summary.Mean, day.Summary.Std,
			day.Summary.UpProb*100)
	}
}
