package importer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/chime-experiment/alpenhorn-chime/internal/log"
	"github.com/chime-experiment/alpenhorn-chime/internal/nodeio"
)

// Watch imports files as they appear under the node root until ctx is
// cancelled. A file is imported once it has been quiet for the debounce
// period, or when its lock file is removed.
func (im *Importer) Watch(ctx context.Context, nio nodeio.NodeIO) error {
	node := nio.Node()
	logger := im.logger.With().Str(log.FieldNode, node.Name).Logger()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	ready := make(chan string, 64)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	schedule := func(p string) {
		if t, ok := timers[p]; ok {
			t.Reset(im.debounce)
			return
		}
		timers[p] = time.AfterFunc(im.debounce, func() {
			select {
			case ready <- p:
			case <-ctx.Done():
			}
		})
	}

	// addTree watches dir and its subdirectories, scheduling the files
	// already there since they were created before the watch.
	addTree := func(dir string, scheduleFiles bool) error {
		return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if p != node.Root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return watcher.Add(p)
			}
			if scheduleFiles && d.Type().IsRegular() {
				schedule(p)
			}
			return nil
		})
	}
	if err := addTree(node.Root, false); err != nil {
		return fmt.Errorf("watch %s: %w", node.Root, err)
	}
	logger.Info().Str(log.FieldPath, node.Root).Msg("watching node for new files")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			dir, base := filepath.Split(event.Name)
			switch {
			case strings.HasPrefix(base, ".") && strings.HasSuffix(base, ".lock"):
				if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					schedule(filepath.Join(dir, strings.TrimSuffix(strings.TrimPrefix(base, "."), ".lock")))
				}
			case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
				fi, err := os.Stat(event.Name)
				if err != nil {
					continue
				}
				if fi.IsDir() {
					if event.Has(fsnotify.Create) {
						if err := addTree(event.Name, true); err != nil {
							logger.Warn().Err(err).Str(log.FieldPath, event.Name).Msg("watch directory failed")
						}
					}
					continue
				}
				schedule(event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("watcher error")

		case p := <-ready:
			delete(timers, p)
			rel, err := filepath.Rel(node.Root, p)
			if err != nil {
				continue
			}
			outcome, err := im.Enqueue(ctx, nio, rel)
			if err != nil {
				logger.Error().Err(err).Str(log.FieldPath, rel).Msg("import failed")
				continue
			}
			logger.Debug().Str(log.FieldPath, rel).Stringer("outcome", outcome).Msg("watched file handled")
		}
	}
}
