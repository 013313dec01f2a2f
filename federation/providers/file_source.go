package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const reloadDebounce = 500 * time.Millisecond

// FileSource reads provider configs from a JSON document of the form
// {"providers": [{"name": "github", "client_id": "...", ...}]}.
type FileSource struct {
	path string
}

type fileDocument struct {
	Providers []Config `json:"providers"`
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Load() ([]Config, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	var doc fileDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse providers file %s: %w", s.path, err)
	}
	return doc.Providers, nil
}

// Watch reloads the file into registry whenever it changes until ctx is done.
// The parent directory is watched so editors that replace the file by rename
// are picked up. A file that fails to load or validate leaves the registry as it was.
func (s *FileSource) Watch(ctx context.Context, registry *Registry) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("providers watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("providers watcher: %w", err)
	}

	reload := make(chan struct{}, 1)
	go s.handleWatcher(ctx, watcher, reload)
	go s.scheduleReload(ctx, reload, registry)
	return nil
}

func (s *FileSource) handleWatcher(ctx context.Context, watcher *fsnotify.Watcher, reload chan<- struct{}) {
	defer watcher.Close()
	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				select {
				case reload <- struct{}{}:
				default:
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Err(err).Msg("providers watcher error")
		}
	}
}

func (s *FileSource) scheduleReload(ctx context.Context, reload <-chan struct{}, registry *Registry) {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-reload:
			if timer != nil {
				timer.Reset(reloadDebounce)
			} else {
				timer = time.NewTimer(reloadDebounce)
				fire = timer.C
			}
		case <-fire:
			fire = nil
			timer = nil
			s.apply(registry)
		}
	}
}

func (s *FileSource) apply(registry *Registry) {
	configs, err := s.Load()
	if err != nil {
		log.Err(err).Str("path", s.path).Msg("provider reload skipped")
		return
	}
	if err := registry.Replace(configs); err != nil {
		log.Err(err).Str("path", s.path).Msg("provider reload rejected")
	}
}
