package config

// Config 是 candlesync 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Provider ProviderConfig `toml:"provider"`
	Fetch    FetchConfig    `toml:"fetch"`
	Output   OutputConfig   `toml:"output"`
	Store    StoreConfig    `toml:"store"`
	HTTP     HTTPConfig     `toml:"http"`
	Stats    StatsConfig    `toml:"stats"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
}

// ProviderConfig 描述行情数据源。默认走 Yahoo chart 接口，
// 加密货币标的可切换到 binance。
type ProviderConfig struct {
	Name            string `toml:"name"`
	BaseURL         string `toml:"base_url"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	RateLimitPerMin int    `toml:"rate_limit_per_min"`
}

// FetchConfig 控制拉取窗口与节奏。
type FetchConfig struct {
	Interval      string  `toml:"interval"`
	AutoAdjust    bool    `toml:"auto_adjust"`
	BatchDays     int     `toml:"batch_days"`
	DelaySeconds  float64 `toml:"delay_seconds"`
	LookbackDays  int     `toml:"lookback_days"`
	MaxWindowDays int     `toml:"max_window_days"`
	Workers       int     `toml:"workers"`
}

type OutputConfig struct {
	Root         string `toml:"root"`
	Split        bool   `toml:"split"`
	SymbolSuffix string `toml:"symbol_suffix"`
}

type StoreConfig struct {
	HistoryPath  string `toml:"history_path"`
	CacheDir     string `toml:"cache_dir"`
	CacheEnabled bool   `toml:"cache_enabled"`
}

type HTTPConfig struct {
	Addr string `toml:"addr"`
}

// StatsConfig 限定分布统计的直方图范围（百分比单位）。
type StatsConfig struct {
	PctMin   float64 `toml:"pct_min"`
	PctMax   float64 `toml:"pct_max"`
	BinWidth float64 `toml:"bin_width"`
}
