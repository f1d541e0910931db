package scoring

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch reloads the lexicon at path into scorer whenever the file is written
// or recreated. Invalid files are logged and the current lexicon is kept.
// The directory is watched rather than the file so editors that replace the
// file on save are handled.
func Watch(ctx context.Context, path string, scorer *Scorer, logger zerolog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create lexicon watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch lexicon directory: %w", err)
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
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
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				lex, err := LoadLexicon(path)
				if err != nil {
					logger.Warn().Err(err).Str("path", path).Msg("lexicon reload rejected")
					continue
				}
				scorer.Swap(lex)
				logger.Info().Str("path", path).Int("categories", len(lex.Categories)).Msg("lexicon reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("lexicon watcher error")
			}
		}
	}()
	return nil
}
