package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// debounceWindow absorbs the bursts of write events editors and atomic
// renames produce for a single logical change.
const debounceWindow = 250 * time.Millisecond

// Watcher notifies on changes to the strategy document so the service can
// rebuild the strategy without a restart.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	changes chan string
	logger  zerolog.Logger
}

// NewWatcher starts watching the directory containing path. Watching the
// directory instead of the file keeps the watch alive across atomic
// replace-by-rename writes.
func NewWatcher(path string, logger zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		path:    path,
		watcher: fw,
		changes: make(chan string, 1),
		logger:  logger.With().Str("component", "config-watcher").Logger(),
	}, nil
}

// Changes returns the channel change notifications are delivered on. Each
// value is the changed path; pending notifications coalesce.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

// Run pumps filesystem events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var pending *time.Timer
	var pendingC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending == nil {
				pending = time.NewTimer(debounceWindow)
				pendingC = pending.C
			} else {
				pending.Reset(debounceWindow)
			}
		case <-pendingC:
			pending = nil
			pendingC = nil
			w.logger.Info().Str("path", w.path).Msg("strategy document changed")
			select {
			case w.changes <- w.path:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watch error")
		}
	}
}
