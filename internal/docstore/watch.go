package docstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "planmark/internal/log"
)

var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Watch reports changed document keys until ctx is done. Events are
// coalesced for debounce before fn is called with the sorted keys. New
// subdirectories are picked up as they appear.
func (d *Dir) Watch(ctx context.Context, debounce time.Duration, fn func(keys []string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	defer w.Close()

	if err := d.addTree(w, d.root); err != nil {
		return err
	}

	pending := map[string]struct{}{}
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op.Has(fsnotify.Create) {
				if err := d.addTree(w, ev.Name); err != nil {
					appLog.Warn("docstore watch: add directory", "path", ev.Name, "err", err)
				}
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) &&
				!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			key, ok := d.keyOf(ev.Name)
			if !ok {
				continue
			}
			if len(pending) == 0 {
				timer.Reset(debounce)
			}
			pending[key] = struct{}{}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			appLog.Error("docstore watch error", err, "root", d.root)

		case <-timer.C:
			keys := make([]string, 0, len(pending))
			for k := range pending {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			pending = map[string]struct{}{}
			fn(keys)
		}
	}
}

// addTree watches p and every non-hidden directory below it. Files are
// ignored.
func (d *Dir) addTree(w *fsnotify.Watcher, p string) error {
	return filepath.WalkDir(p, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !e.IsDir() {
			return nil
		}
		if path != d.root && strings.HasPrefix(e.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
