package program

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ChangeEvent reports a modification of a watched program file
type ChangeEvent struct {
	Path string
	Op   string
}

// Watch reports writes, renames and removals of the program's file until ctx
// is cancelled. The parent directory is watched so that editors and linkers
// that replace the file atomically are still observed.
func Watch(ctx context.Context, p *Program, onChange func(ChangeEvent)) error {
	if p == nil || p.Path == "" {
		return fmt.Errorf("program has no backing file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(p.Path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(p.Path), err)
	}

	target := filepath.Clean(p.Path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if onChange != nil {
				onChange(ChangeEvent{Path: event.Name, Op: event.Op.String()})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}
