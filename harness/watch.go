package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a change triggers a rerun.
const DefaultDebounce = 500 * time.Millisecond

// watchIgnores are paths, relative to the watched directory, whose changes
// never trigger a rerun: VCS metadata, editor swap files and OS metadata.
var watchIgnores = []string{
	"**/.git/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
}

// WatchConfig configures Watch.
type WatchConfig struct {
	// Dir is watched recursively.
	Dir string
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
	// OnChange receives the changed paths relative to Dir, sorted. It runs on
	// the Watch goroutine, so runs never overlap. An error is logged and
	// watching continues.
	OnChange func(ctx context.Context, changed []string) error
	Logger   *log.Logger
}

// Watch blocks until ctx is cancelled, calling OnChange once for each burst of
// filesystem events under Dir. Editor swap and backup files are ignored.
func Watch(ctx context.Context, cfg WatchConfig) error {
	if cfg.OnChange == nil {
		return errors.New("watch: no change callback")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	base, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return fmt.Errorf("watch: resolve directory: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	defer w.Close()

	err = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("skipping inaccessible path", "path", path, "err", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, err := filepath.Rel(base, path); err == nil && path != base && (ignored(rel) || ignored(rel+"/")) {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch: add %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("watching for changes", "dir", base, "debounce", debounce)

	pending := make(map[string]struct{})
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			rel, err := filepath.Rel(base, ev.Name)
			if err != nil {
				rel = ev.Name
			}
			if ev.Op == fsnotify.Chmod || ignored(rel) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.Add(ev.Name); err != nil {
						logger.Warn("cannot watch new directory", "path", ev.Name, "err", err)
					}
				}
			}
			pending[filepath.ToSlash(rel)] = struct{}{}
			timer.Reset(debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			slices.Sort(changed)
			clear(pending)
			logger.Debug("change detected", "paths", changed)
			if err := cfg.OnChange(ctx, changed); err != nil {
				logger.Error("rerun failed", "err", err)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			logger.Warn("watcher error", "err", err)
		}
	}
}

func ignored(rel string) bool {
	normalized := filepath.ToSlash(rel)
	for _, pat := range watchIgnores {
		if ok, err := doublestar.Match(pat, normalized); err == nil && ok {
			return true
		}
	}
	return false
}
