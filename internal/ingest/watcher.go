package ingest

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/picshelf/internal/storage"
)

const rescanDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on folders (non-recursive) and inserts a
// record for every new image file until ctx is cancelled. Removed files keep
// their records. Renames and watcher errors trigger a debounced rescan of all
// folders so nothing that arrived during the gap is missed.
func (s *Scanner) Watch(ctx context.Context, folders []string, exts []string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dirs := make([]string, 0, len(folders))
	for _, folder := range folders {
		dir := absFolder(folder)
		if err := w.Add(dir); err != nil {
			s.logger.Warn("watcher: folder not watched", slog.String("folder", dir), slog.String("error", err.Error()))
			continue
		}
		dirs = append(dirs, dir)
	}

	s.logger.Info("watcher: started", slog.Int("folders", len(dirs)))

	var rescanTimer *time.Timer
	var rescanCh <-chan time.Time

	scheduleRescan := func() {
		if rescanTimer == nil {
			rescanTimer = time.NewTimer(rescanDelay)
			rescanCh = rescanTimer.C
		} else {
			rescanTimer.Reset(rescanDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if rescanTimer != nil {
				rescanTimer.Stop()
			}
			s.logger.Info("watcher: stopped")
			return nil

		case <-rescanCh:
			res := s.Scan(ctx, dirs, exts)
			s.logger.Debug("watcher: rescan done", slog.Int("added", res.Added))

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Rename != 0 {
				scheduleRescan()
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !storage.HasExtension(ev.Name, exts) {
				continue
			}
			if info, statErr := os.Stat(ev.Name); statErr != nil || !info.Mode().IsRegular() {
				continue
			}

			inserted, insErr := s.store.InsertIfAbsent(ctx, ev.Name)
			if insErr != nil {
				s.logger.Warn("watcher: insert failed", slog.String("path", ev.Name), slog.String("error", insErr.Error()))
				continue
			}
			if !inserted {
				continue
			}
			s.logger.Debug("watcher: added", slog.String("path", ev.Name))
			if s.onAdded != nil {
				s.onAdded(ev.Name)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
			scheduleRescan()
		}
	}
}
