package program

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nvandessel/tendril/internal/logging"
	"github.com/nvandessel/tendril/internal/simulation"
)

// DefaultDebounce collapses the burst of events editors emit on save.
const DefaultDebounce = 300 * time.Millisecond

// Watcher reloads a program file whenever it changes on disk and hands the
// result to a callback. Files that fail to parse are logged and skipped; the
// callback only ever sees valid programs.
type Watcher struct {
	path     string
	onChange func(*Program)
	logger   *slog.Logger
	debounce time.Duration
	base     simulation.Config

	fs     *fsnotify.Watcher
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu    sync.Mutex
	timer *time.Timer
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets how long the watcher waits for events to settle.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithBaseConfig sets the config reloaded files are parsed on top of.
func WithBaseConfig(c simulation.Config) WatchOption {
	return func(w *Watcher) { w.base = c }
}

// WithWatchLogger sets the logger for reload outcomes.
func WithWatchLogger(l *slog.Logger) WatchOption {
	return func(w *Watcher) { w.logger = logging.OrDiscard(l) }
}

// Watch starts watching path. The directory is watched rather than the file
// so that editors replacing the file on save are still seen.
func Watch(path string, onChange func(*Program), opts ...WatchOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve program path: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:     abs,
		onChange: onChange,
		logger:   logging.Discard(),
		debounce: DefaultDebounce,
		base:     simulation.DefaultConfig(),
		fs:       fsw,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.wg.Add(1)
	go w.loop()
	w.logger.Info("watching program", "path", abs)
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			w.logger.Debug("program file changed", "file", event.Name, "op", event.Op.String())
			w.schedule()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "error", err)

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.stopCh:
		return
	default:
	}
	p, err := LoadFileWithBase(w.path, w.base)
	if err != nil {
		w.logger.Warn("program reload failed", "path", w.path, "error", err)
		return
	}
	w.logger.Info("program reloaded", "name", p.Name)
	w.onChange(p)
}

// Close stops the watcher. Pending reloads are dropped.
func (w *Watcher) Close() error {
	close(w.stopCh)
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	err := w.fs.Close()
	w.wg.Wait()
	return err
}
