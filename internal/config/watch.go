package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay collapses the burst of events editors emit for one save.
const reloadDelay = 100 * time.Millisecond

// Watcher reloads a config file when it changes on disk and hands each
// valid result to a callback. Invalid edits are logged and ignored; the
// previous config stays in effect.
type Watcher struct {
	path     string
	onChange func(*Config)

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	mu    sync.Mutex
	timer *time.Timer
}

// Watch starts watching path. The directory is watched rather than the file
// so that editors which replace the file on save are still seen.
func Watch(path string, onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch directory: %w", err)
	}

	w := &Watcher{
		path:     path,
		onChange: onChange,
		watcher:  fw,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("config: watch error: %v", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDelay, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}

	cfg, err := Load(w.path)
	if err != nil {
		log.Printf("config: reload of %s ignored: %v", w.path, err)
		return
	}
	log.Printf("config: reloaded %s", w.path)
	w.onChange(cfg)
}

// Close stops watching. No callback starts after Close returns.
func (w *Watcher) Close() error {
	w.mu.Lock()
	select {
	case <-w.done:
		w.mu.Unlock()
		return nil
	default:
	}
	close(w.done)
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
