package registry

import (
	"context"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// SeedWatcher hot-reloads the registry seed file when it changes on disk,
// so new providers can be published without restarting the server.
type SeedWatcher struct {
	store   Store
	path    string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchSeed starts watching the seed file's directory and re-applies the
// seed on every write to the file. Stop the watcher with Close.
func WatchSeed(store Store, path string) (*SeedWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory: editors replace files, which would orphan a
	// watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	sw := &SeedWatcher{
		store:   store,
		path:    path,
		watcher: watcher,
		done:    make(chan struct{}),
	}
	go sw.loop()
	return sw, nil
}

func (sw *SeedWatcher) loop() {
	target := filepath.Clean(sw.path)
	for {
		select {
		case <-sw.done:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			sw.reload()
		case <-sw.watcher.Errors:
			// Keep watching; a failed reload is recoverable on next write.
		}
	}
}

func (sw *SeedWatcher) reload() {
	descs, err := LoadSeed(sw.path)
	if err != nil {
		log.Printf("[registry] seed reload failed: %v", err)
		return
	}
	added, err := ApplySeed(context.Background(), sw.store, descs)
	if err != nil {
		log.Printf("[registry] seed apply failed: %v", err)
		return
	}
	if added > 0 {
		log.Printf("[registry] seed reload: %d new services registered", added)
	}
}

// Close stops the watcher.
func (sw *SeedWatcher) Close() error {
	close(sw.done)
	return sw.watcher.Close()
}
