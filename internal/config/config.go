package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取 YAML 配置文件并应用默认值。path 为空时返回纯默认配置，
// 让 CLI 在没有配置文件的环境下也能直接运行。
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", abs, err)
		}
		v := viper.New()
		v.SetConfigFile(abs)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", abs, err)
		}
		if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
			dc.TagName = "toml"
			dc.WeaklyTypedInput = true
		}); err != nil {
			return nil, fmt.Errorf("parsing config failed: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
