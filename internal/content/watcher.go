package content

import (
	"context"
	"io/fs"
	"os"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

var watchGlobs = []string{postsGlob, "other/footer-messages.yaml"}

type fileStamp struct {
	mod  time.Time
	size int64
}

// Watch polls the content directory every interval and reloads the library
// once changes have settled for debounce. It blocks until ctx is cancelled.
// Polling works on network file systems where change notifications do not.
func (l *Library) Watch(ctx context.Context, interval, debounce time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	known := l.snapshot()
	l.logger.Info("started content watcher", "dir", l.root, "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		reload  *time.Timer
		reloadC <-chan time.Time
	)
	defer func() {
		if reload != nil {
			reload.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := l.snapshot()
			if sameSnapshot(known, current) {
				continue
			}
			known = current
			if reload == nil {
				reload = time.NewTimer(debounce)
			} else {
				reload.Reset(debounce)
			}
			reloadC = reload.C
		case <-reloadC:
			reloadC = nil
			if err := l.Load(); err != nil {
				l.logger.Error("reload content failed", "error", err)
				continue
			}
			l.logger.Info("content reloaded due to filesystem change")
		}
	}
}

func (l *Library) snapshot() map[string]fileStamp {
	fsys := os.DirFS(l.root)
	out := map[string]fileStamp{}
	for _, pattern := range watchGlobs {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			continue
		}
		for _, m := range matches {
			info, err := fs.Stat(fsys, m)
			if err != nil || info.IsDir() {
				continue
			}
			out[m] = fileStamp{mod: info.ModTime(), size: info.Size()}
		}
	}
	return out
}

func sameSnapshot(a, b map[string]fileStamp) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || !w.mod.Equal(v.mod) || w.size != v.size {
			return false
		}
	}
	return true
}
