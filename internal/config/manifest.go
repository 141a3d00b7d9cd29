package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/pjbroadbent/layouts-service/pkg/models"
)

// Loader reads rule manifests from disk into a store and keeps them fresh:
// when the manifest file changes the previous entries from that source are
// dropped and the new ones applied.
type Loader struct {
	logger  *logrus.Logger
	store   *Store
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewLoader builds a manifest loader over the store.
func NewLoader(store *Store, logger *logrus.Logger) *Loader {
	return &Loader{logger: logger, store: store}
}

// LoadFile parses one manifest file and applies it at service scope.
func (l *Loader) LoadFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var manifest models.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return err
	}
	if err := l.store.AddManifest(ctx, models.ServiceScope, manifest); err != nil {
		return err
	}
	l.logger.WithFields(logrus.Fields{
		"path":  path,
		"rules": len(manifest.Rules),
	}).Info("Configuration manifest loaded")
	return nil
}

// WatchFile re-applies the manifest whenever it changes on disk. Stop with
// Close.
func (l *Loader) WatchFile(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}
	l.watcher = watcher
	l.done = make(chan struct{})
	abs, _ := filepath.Abs(path)

	go func() {
		defer close(l.done)
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				evAbs, _ := filepath.Abs(ev.Name)
				if evAbs != abs || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				l.store.RemoveFromSource(ctx, models.ServiceScope)
				if err := l.LoadFile(ctx, path); err != nil {
					l.logger.WithError(err).Warn("Manifest reload failed")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.WithError(err).Warn("Manifest watcher error")
			}
		}
	}()
	return nil
}

// Close stops the file watcher.
func (l *Loader) Close() error {
	if l.watcher == nil {
		return nil
	}
	err := l.watcher.Close()
	<-l.done
	l.watcher = nil
	return err
}
