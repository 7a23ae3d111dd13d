package fights

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch reloads the fights file whenever it changes and hands the parsed list
// to onChange. It blocks until ctx is done. A polling ticker backs up file
// events since some editors replace the file instead of writing to it.
func Watch(ctx context.Context, path string, poll time.Duration, logger zerolog.Logger, onChange func([]Fight)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so renames onto path are seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	if poll <= 0 {
		poll = 2 * time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var lastMod time.Time
	if st, err := os.Stat(path); err == nil {
		lastMod = st.ModTime()
	}

	reload := func() {
		list, err := LoadFile(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Failed to reload fights")
			return
		}
		logger.Info().Int("fights", len(list)).Msg("Fights reloaded")
		onChange(list)
	}

	target := filepath.Clean(path)
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
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if st, err := os.Stat(path); err == nil {
				lastMod = st.ModTime()
			}
			reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("File watcher error")
		case <-ticker.C:
			st, err := os.Stat(path)
			if err != nil || !st.ModTime().After(lastMod) {
				continue
			}
			lastMod = st.ModTime()
			reload()
		}
	}
}
