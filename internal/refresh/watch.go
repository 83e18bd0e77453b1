package refresh

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"candlesync/internal/logger"
)

const watchDebounce = 2 * time.Second

// Watch 监听标的清单文件，变更后防抖重跑一轮同步。
// 编辑器保存往往触发 RENAME/CHMOD 的事件串，所以监听目录而不是
// 文件本身，按文件名过滤。run 的返回值只记录不中断。
func Watch(ctx context.Context, symbolsFile string, run func(context.Context) Summary) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(symbolsFile)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Base(symbolsFile)
	logger.Infof("监听 %s, 变更后自动重跑", symbolsFile)

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("文件监听错误: %v", err)
		case <-fire:
			logger.Infof("检测到 %s 变更, 重新同步", target)
			summary := run(ctx)
			if summary.Failed() > 0 {
				logger.Warnf("本轮 %d 个标的失败", summary.Failed())
			}
		}
	}
}
