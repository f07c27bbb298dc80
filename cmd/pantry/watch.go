package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watchExecutable calls stop once the running binary is rewritten or
// replaced, so that a supervisor restarts the new build.
//
// The parent directory is watched rather than the file: `go build` replaces
// the binary by renaming over it, which a watch on the old inode misses.
func watchExecutable(ctx context.Context, stop context.CancelFunc) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	if exe, err = filepath.EvalSymlinks(exe); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(exe)); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if replacesExecutable(ev, exe) {
					slog.InfoContext(ctx, "Executable changed, shutting down", "op", ev.Op.String())
					stop()
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Watching executable", "err", err)
			}
		}
	}()
	return nil
}

func replacesExecutable(ev fsnotify.Event, exe string) bool {
	if filepath.Clean(ev.Name) != exe {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Chmod)
}
