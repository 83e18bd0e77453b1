package config

import (
	"fmt"
	"strings"
)

var knownProviders = map[string]bool{
	"yahoo":   true,
	"binance": true,
}

// validate 对配置进行基础校验，配置错误在任何工作开始前直接失败。
func validate(c *Config) error {
	name := strings.ToLower(strings.TrimSpace(c.Provider.Name))
	if !knownProviders[name] {
		return fmt.Errorf("provider.name 不支持: %s (可选: yahoo, binance)", c.Provider.Name)
	}
	c.Provider.Name = name
	if c.Fetch.Workers < 1 {
		return fmt.Errorf("fetch.workers must be >= 1")
	}
	if c.Fetch.LookbackDays < 0 {
		return fmt.Errorf("fetch.lookback_days must be >= 0")
	}
	if c.Fetch.MaxWindowDays < 1 {
		return fmt.Errorf("fetch.max_window_days must be >= 1")
	}
	if c.Stats.PctMax <= c.Stats.PctMin {
		return fmt.Errorf("stats.pct_max must be greater than stats.pct_min")
	}
	return nil
}
