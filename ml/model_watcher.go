package ml

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ModelHandle publishes the current model. Readers take one snapshot per
// request; a reload replaces the snapshot, never mutates it.
type ModelHandle struct {
	current    atomic.Pointer[modelSnapshot]
	generation atomic.Uint64
}

type modelSnapshot struct {
	model      Classifier
	generation uint64
}

func NewModelHandle(model Classifier) *ModelHandle {
	h := &ModelHandle{}
	h.Swap(model)
	return h
}

// Current returns the model and the generation it was installed at.
func (h *ModelHandle) Current() (Classifier, uint64) {
	snap := h.current.Load()
	if snap == nil {
		return nil, 0
	}
	return snap.model, snap.generation
}

func (h *ModelHandle) Swap(model Classifier) uint64 {
	gen := h.generation.Add(1)
	h.current.Store(&modelSnapshot{model: model, generation: gen})
	return gen
}

// ModelWatcher reloads the model artifact when the file changes on disk.
type ModelWatcher struct {
	handle    *ModelHandle
	modelType string
	path      string
	debounce  time.Duration
	logger    *zap.Logger
}

func NewModelWatcher(handle *ModelHandle, modelType, path string, logger *zap.Logger) *ModelWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelWatcher{
		handle:    handle,
		modelType: modelType,
		path:      path,
		debounce:  500 * time.Millisecond,
		logger:    logger,
	}
}

// Run blocks until ctx is done. The parent directory is watched so that
// artifacts replaced by rename are picked up too.
func (w *ModelWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	target := filepath.Clean(w.path)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			w.Reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("model watcher error", zap.Error(err))
		}
	}
}

// Reload loads the artifact again and installs it if it passes the schema
// check. On failure the previous model stays in place.
func (w *ModelWatcher) Reload() bool {
	model, err := LoadPassengerModel(w.modelType, w.path)
	if err != nil {
		w.logger.Error("model reload failed, keeping previous model",
			zap.String("path", w.path), zap.Error(err))
		return false
	}
	gen := w.handle.Swap(model)
	w.logger.Info("model reloaded", zap.String("path", w.path), zap.Uint64("generation", gen))
	return true
}
