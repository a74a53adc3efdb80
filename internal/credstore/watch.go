package credstore

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"staffsync-client/internal/logging"
)

// Watch reloads the store when another process rewrites the credentials
// file (for example a second client window rotating the token) and invokes
// onChange with the reloaded session. The watch runs until ctx is canceled.
func (s *Store) Watch(ctx context.Context, onChange func(Session, bool)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("initialize credentials watcher: %w", err)
	}

	// Watch the directory, not the file: atomic rename replaces the inode.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch credentials directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(s.path)
		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("stopping credentials watch: context canceled")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				s.handleExternalChange(onChange)
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("credentials watcher error", logging.Field("error", watchErr))
			}
		}
	}()
	return nil
}

func (s *Store) handleExternalChange(onChange func(Session, bool)) {
	before, hadBefore := s.Session()
	if err := s.Load(); err != nil {
		s.logger.Warn("failed to reload credentials after external change", logging.Field("error", err))
		return
	}
	after, hasAfter := s.Session()
	if hadBefore == hasAfter && before == after {
		return
	}
	s.logger.Debug("credentials changed externally", logging.Field("logged_in", hasAfter))
	if onChange != nil {
		onChange(after, hasAfter)
	}
}
