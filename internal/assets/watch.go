package assets

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher следит за файлом шаблона в каталоге и вызывает OnChange после
// того, как изменения затихли на время Debounce.
type Watcher struct {
	dir    string
	name   string
	logger *zap.Logger

	Debounce time.Duration
	OnChange func(ctx context.Context)
}

func NewWatcher(dir, name string, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{dir: dir, name: name, logger: logger, Debounce: 300 * time.Millisecond}
}

// Run блокируется до отмены ctx
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("ошибка наблюдения за %s: %w", w.dir, err)
	}
	w.logger.Debug("Watching template", zap.String("path", filepath.Join(w.dir, w.name)))

	const ops = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != w.name || ev.Op&ops == 0 {
				continue
			}
			w.logger.Debug("Template event", zap.String("op", ev.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.Debounce)
			} else {
				timer.Reset(w.Debounce)
			}
			fire = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Template watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			if w.OnChange != nil {
				w.OnChange(ctx)
			}
		}
	}
}
