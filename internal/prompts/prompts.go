// Package prompts loads step templates from a directory and serves them by
// name, reloading on file changes so prompt copy can be tuned without a
// restart.
package prompts

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrTemplateNotFound indicates no template file exists for the requested
// step name.
var ErrTemplateNotFound = errors.New("template not found")

// Store holds the loaded templates, keyed by file name stem. Reads are
// concurrent with reloads.
type Store struct {
	dir string

	mu        sync.RWMutex
	templates map[string]string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewStore loads every .txt file under dir. The file name stem becomes the
// template name, so saudacao.txt serves the step "saudacao".
func NewStore(dir string) (*Store, error) {
	s := &Store{
		dir:       dir,
		templates: make(map[string]string),
		done:      make(chan struct{}),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the template body for name. An empty or whitespace-only body
// counts as not found: a blank template must abort its step, never run it.
func (s *Store) Get(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.templates[name]
	if !ok || strings.TrimSpace(tpl) == "" {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return tpl, nil
}

// Names returns the loaded template names, for startup validation.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	return names
}

// Watch starts watching the template directory and reloads the whole set on
// any write, create, remove or rename. Call Close to stop.
func (s *Store) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create template watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch template dir %s: %w", s.dir, err)
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.reload(); err != nil {
					slog.Error("Store.Watch: template reload failed", "error", err, "trigger", event.Name)
					continue
				}
				slog.Info("Store.Watch: templates reloaded", "trigger", event.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Store.Watch: watcher error", "error", err)
			case <-s.done:
				return
			}
		}
	}()

	slog.Info("Store.Watch: watching template directory", "dir", s.dir)
	return nil
}

// Close stops the watcher if one was started.
func (s *Store) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// reload rereads every template file and swaps the set atomically. A partial
// failure keeps the previous set.
func (s *Store) reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read template dir %s: %w", s.dir, err)
	}

	templates := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		body, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), ".txt")
		templates[name] = string(body)
	}

	s.mu.Lock()
	s.templates = templates
	s.mu.Unlock()
	slog.Debug("Store.reload: templates loaded", "dir", s.dir, "count", len(templates))
	return nil
}
