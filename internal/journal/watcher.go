// Package journal feeds a text file into the generation context and keeps it
// current as the file is edited.
package journal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"imageloop/internal/infra"
)

// DefaultDebounce coalesces bursts of editor writes.
const DefaultDebounce = 300 * time.Millisecond

// Load reads the journal at path. A missing file reads as empty.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("journal: read %s: %w", path, err)
	}
	return string(data), nil
}

// Watcher reloads a journal file on change and hands the text to onChange.
// The parent directory is watched so editors that replace the file by
// rename are followed.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(string)
	logger   *infra.Logger

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}

	mu      sync.Mutex
	pending *time.Timer
	started bool
	stopped bool
}

// NewWatcher prepares a watcher for path. Call Start to begin watching.
func NewWatcher(path string, debounce time.Duration, onChange func(string), logger *infra.Logger) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("journal: path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("journal: resolve path: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("journal: create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("journal: watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		path:     abs,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		watcher:  fsw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start loads the current contents once and begins watching in a goroutine.
func (w *Watcher) Start() {
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	w.reload()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("journal: watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	w.logger.Debug().Str("path", w.path).Str("op", event.Op.String()).Msg("journal: file changed")

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	w.pending = nil
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}

	text, err := Load(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Msg("journal: reload failed")
		return
	}
	w.logger.Info().Str("path", w.path).Int("chars", len(text)).Msg("journal: reloaded")
	if w.onChange != nil {
		w.onChange(text)
	}
}

// Stop ends watching. Pending reloads are cancelled.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	started := w.started
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()

	close(w.stopCh)
	err := w.watcher.Close()
	if started {
		<-w.doneCh
	}
	return err
}
