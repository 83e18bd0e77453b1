package main

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"candlesync/internal/config"
	"candlesync/internal/logger"
)

func main() {
	// .env 不存在时静默跳过
	_ = godotenv.Load()

	root := newRootCmd()
	code := 0
	if err := root.Execute(); err != nil {
		code = 1
	}
	if exitCode > code {
		code = exitCode
	}
	for _, c := range closers {
		_ = c.Close()
	}
	os.Exit(code)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("CANDLESYNC_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		return nil, err
	}
	if logFile != nil {
		// 进程退出统一关闭，不逐命令追踪
		closers = append(closers, logFile)
	}
	logger.SetLevel(cfg.App.LogLevel)
	return cfg, nil
}

var (
	closers  []io.Closer
	exitCode int
)

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
