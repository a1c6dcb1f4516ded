package filesystem

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

func (s *Server) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	for _, root := range s.roots {
		if err := watchTree(w, root); err != nil {
			_ = w.Close()
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
	}
	s.watcher = w

	s.wg.Add(1)
	go s.runWatcher(w)
	return nil
}

// watchTree adds dir and every directory below it, since fsnotify watches are not recursive.
func watchTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func (s *Server) runWatcher(w *fsnotify.Watcher) {
	defer s.wg.Done()

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			s.handleEvent(w, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("filesystem watcher error", slog.String("err", err.Error()))
		}
	}
}

func (s *Server) handleEvent(w *fsnotify.Watcher, ev fsnotify.Event) {
	s.logger.Debug("filesystem event", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if err := watchTree(w, ev.Name); err != nil {
				s.logger.Warn("failed to watch directory", slog.String("path", ev.Name), slog.String("err", err.Error()))
			}
			s.publishTree(ev.Name)
			return
		}
		s.publish(ev.Name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		s.unpublish(ev.Name)
		s.srv.NotifyResourceUpdated(context.Background(), fileURI(ev.Name))
	case ev.Has(fsnotify.Write):
		s.srv.NotifyResourceUpdated(context.Background(), fileURI(ev.Name))
	}
}
