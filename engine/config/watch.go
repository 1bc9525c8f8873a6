package config

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/tempo/engine/core"
)

// Watcher reloads a config file when it changes on disk and hands every
// valid new version to onChange. Invalid edits are logged and ignored.
type Watcher struct {
	path     string
	onChange func(*Config)

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewWatcher watches the directory holding path, since editors often
// replace a file instead of writing it in place.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{
		path:     abs,
		onChange: onChange,
		watcher:  fw,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	core.LogDebug("watching %s for changes", abs)
	return w, nil
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			core.LogWarn("config watcher error: %s", err)
		}
	}
}

func (w *Watcher) reload() bool {
	// A truncate before the new content lands shows up as an empty file.
	if info, err := os.Stat(w.path); err == nil && info.Size() == 0 {
		return false
	}
	cfg, err := Load(w.path)
	if err != nil {
		core.LogWarn("ignoring config change: %s", err)
		return false
	}
	core.LogInfo("config reloaded from %s", w.path)
	w.onChange(cfg)
	return true
}

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}
