package config

import (
	"os"
	"runtime"
	"strconv"
)

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultProviderName    = "yahoo"
	defaultProviderTimeout = 15
	defaultProviderRate    = 60
	defaultFetchInterval   = "1d"
	defaultBatchDays       = 50
	defaultDelaySeconds    = 1.0
	defaultLookbackDays    = 5
	defaultMaxWindowDays   = 730
	defaultMaxWorkers      = 8
	defaultOutputRoot      = "data"
	defaultSymbolSuffix    = ".NS"
	defaultHistoryPath     = "data/sync_history.db"
	defaultCacheDir        = "data/cache"
	defaultHTTPAddr        = ":9980"
	defaultStatsPctMin     = -20.0
	defaultStatsPctMax     = 20.0
	defaultStatsBinWidth   = 0.1
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = defaultAppEnv
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = defaultAppLogLevel
	}
	if c.Provider.Name == "" {
		c.Provider.Name = defaultProviderName
	}
	if c.Provider.TimeoutSeconds <= 0 {
		c.Provider.TimeoutSeconds = defaultProviderTimeout
	}
	if c.Provider.RateLimitPerMin <= 0 {
		c.Provider.RateLimitPerMin = defaultProviderRate
	}
	if c.Fetch.Interval == "" {
		c.Fetch.Interval = defaultFetchInterval
	}
	if c.Fetch.BatchDays <= 0 {
		c.Fetch.BatchDays = defaultBatchDays
	}
	if c.Fetch.DelaySeconds <= 0 {
		c.Fetch.DelaySeconds = defaultDelaySeconds
	}
	if c.Fetch.LookbackDays <= 0 {
		c.Fetch.LookbackDays = defaultLookbackDays
	}
	if c.Fetch.MaxWindowDays <= 0 {
		c.Fetch.MaxWindowDays = defaultMaxWindowDays
	}
	if c.Fetch.Workers <= 0 {
		c.Fetch.Workers = DefaultWorkers()
	}
	if c.Output.Root == "" {
		c.Output.Root = defaultOutputRoot
	}
	if c.Output.SymbolSuffix == "" {
		c.Output.SymbolSuffix = defaultSymbolSuffix
	}
	if c.Store.HistoryPath == "" {
		c.Store.HistoryPath = defaultHistoryPath
	}
	if c.Store.CacheDir == "" {
		c.Store.CacheDir = defaultCacheDir
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = defaultHTTPAddr
	}
	if c.Stats.PctMin == 0 && c.Stats.PctMax == 0 {
		c.Stats.PctMin = defaultStatsPctMin
		c.Stats.PctMax = defaultStatsPctMax
	}
	if c.Stats.BinWidth <= 0 {
		c.Stats.BinWidth = defaultStatsBinWidth
	}
}

// DefaultWorkers 返回默认并发数：最多 8，且不超过可用核心数。
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if env := os.Getenv("CANDLESYNC_WORKERS"); env != "" {
		// 环境变量仅作为兜底，解析失败时忽略
		if parsed, err := strconv.Atoi(env); err == nil && parsed > 0 {
			return parsed
		}
	}
	if n > defaultMaxWorkers {
		return defaultMaxWorkers
	}
	if n < 1 {
		return 1
	}
	return n
}
