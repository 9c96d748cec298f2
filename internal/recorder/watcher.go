package recorder

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FSDetector is the default Detector, built on fsnotify. It watches the
// session root recursively, reads changed files, and emits Changes with
// paths relative to the root. Directories created at runtime are added
// to the watch list automatically.
type FSDetector struct {
	root   string // absolute session root
	logger *slog.Logger
}

// NewFSDetector creates a detector rooted at root, which must be an
// existing directory.
func NewFSDetector(root string, logger *slog.Logger) (*FSDetector, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("recorder: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("recorder: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("recorder: root is not a directory: %s", abs)
	}
	return &FSDetector{root: abs, logger: logger}, nil
}

// Verify FSDetector satisfies Detector at compile time.
var _ Detector = (*FSDetector)(nil)

// Watch runs the fsnotify loop until ctx is cancelled, sending one
// Change per observed file mutation.
func (d *FSDetector) Watch(ctx context.Context, ch chan<- Change) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, d.root); err != nil {
		return err
	}

	d.logger.Info("watcher: started", slog.String("root", d.root))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name
			if ignored(absPath) {
				continue
			}

			// New directories join the watch list.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						d.logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					continue
				}
			}

			rel, relErr := d.relPath(absPath)
			if relErr != nil {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				content, readErr := os.ReadFile(absPath)
				if readErr != nil {
					// File may already be gone (editor temp dance) or
					// unreadable; record the change without content.
					content = nil
				}
				d.deliver(ctx, ch, Change{
					Path:      rel,
					Content:   content,
					Exists:    true,
					Timestamp: time.Now().UnixMilli(),
				})

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// fsnotify fires Rename on the old path only; the new
				// path arrives as a separate Create event.
				d.deliver(ctx, ch, Change{
					Path:      rel,
					Exists:    false,
					Timestamp: time.Now().UnixMilli(),
				})
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			d.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (d *FSDetector) deliver(ctx context.Context, ch chan<- Change, c Change) {
	select {
	case ch <- c:
	case <-ctx.Done():
	}
}

// relPath converts an absolute event path to a root-relative one,
// rejecting anything that escapes the root.
func (d *FSDetector) relPath(abs string) (string, error) {
	rel, err := filepath.Rel(d.root, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("recorder: path escapes root: %s", abs)
	}
	return filepath.ToSlash(rel), nil
}

// ignored filters VCS internals and common editor scratch files.
func ignored(path string) bool {
	base := filepath.Base(path)
	if strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") || strings.HasSuffix(base, ".tmp") {
		return true
	}
	sep := string(os.PathSeparator)
	for _, dir := range []string{".git", ".hg", "node_modules"} {
		if strings.Contains(path, sep+dir+sep) || strings.HasSuffix(path, sep+dir) {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if ignored(path) {
				return filepath.SkipDir
			}
			return w.Add(path)
		}
		return nil
	})
}
