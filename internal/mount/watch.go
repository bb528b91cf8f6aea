package mount

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/memctl/memctl/internal/memory"
)

// Watch runs an fsnotify-driven loop that re-syncs the mount whenever a
// write/create/rename/remove event settles, debounced by quiet so a burst
// of filesystem events (editor saves, git checkouts) triggers one sync,
// not one per event. Net-new relative to the original implementation,
// reusing the same Sync path sync's CLI command calls.
func (sy *Syncer) Watch(ctx context.Context, m memory.Mount, quiet time.Duration, log *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(m.Path); err != nil {
		return err
	}

	timer := time.NewTimer(0)
	<-timer.C // start idle; first tick fires on the first event

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(quiet)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("mount watch error", zap.Error(err))
		case <-timer.C:
			report, err := sy.Sync(ctx, m)
			if err != nil {
				log.Warn("mount watch sync failed", zap.Error(err))
				continue
			}
			log.Info("mount watch synced", zap.String("mount_id", m.ID),
				zap.Int("files", len(report.Files)), zap.Int("orphaned", len(report.Orphaned)))
		}
	}
}
