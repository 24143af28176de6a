package network

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"devchain/pkg/truffle"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadFunc 配置重新加载后的回调；解析失败时 cfg 为 nil
type ReloadFunc func(cfg *truffle.Configuration, err error)

// Watcher 监视项目目录中的 truffle 配置文件，变化时刷新 Registry
type Watcher struct {
	watcher    *fsnotify.Watcher
	registry   *Registry
	projectDir string
	defaults   truffle.Directories
	logger     *zap.Logger
	onReload   ReloadFunc

	closeOnce sync.Once
	done      chan struct{}
}

// Watch 启动配置监视。监视的是目录而不是文件本身，编辑器的"写临时文件再改名"也能被捕获。
func Watch(ctx context.Context, projectDir string, registry *Registry, defaults truffle.Directories, logger *zap.Logger, onReload ReloadFunc) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(projectDir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", projectDir, err)
	}

	w := &Watcher{
		watcher:    fw,
		registry:   registry,
		projectDir: projectDir,
		defaults:   defaults,
		logger:     logger,
		onReload:   onReload,
		done:       make(chan struct{}),
	}
	go w.loop(ctx)
	return w, nil
}

// Close 停止监视并等待后台协程退出
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isConfigFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, path, err := truffle.Load(w.projectDir, w.defaults)
	if err != nil {
		// 保留旧配置，编辑过程中的半成品文件很常见
		w.logger.Warn("failed to reload truffle configuration", zap.String("path", path), zap.Error(err))
		if w.onReload != nil {
			w.onReload(nil, err)
		}
		return
	}
	w.registry.Replace(cfg)
	w.logger.Info("truffle configuration reloaded", zap.String("path", path), zap.Int("networks", len(cfg.Networks)))
	if w.onReload != nil {
		w.onReload(cfg, nil)
	}
}

func isConfigFile(name string) bool {
	base := filepath.Base(name)
	for _, n := range truffle.ConfigFileNames {
		if base == n {
			return true
		}
	}
	return false
}
