package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/deusflow/newsdesk/internal/news"
)

// keywordsFile is the on-disk layout:
//
//	keywords:
//	  - keyword: BGB
//	    variations: [বিজিবি, border guard]
//	    kind: monitor
//	    active: true
type keywordsFile struct {
	Keywords []keywordEntry `yaml:"keywords"`
}

type keywordEntry struct {
	Keyword    string    `yaml:"keyword"`
	Variations []string  `yaml:"variations"`
	Kind       news.Kind `yaml:"kind"`
	Active     *bool     `yaml:"active"` // omitted means active
}

// LoadKeywords reads keyword definitions in file order. Order matters: the
// first matching definition tags an article.
func LoadKeywords(path string) ([]news.KeywordDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keywords: %w", err)
	}
	return ParseKeywords(raw)
}

func ParseKeywords(raw []byte) ([]news.KeywordDefinition, error) {
	var f keywordsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse keywords: %w", err)
	}

	defs := make([]news.KeywordDefinition, 0, len(f.Keywords))
	for i, e := range f.Keywords {
		kw := strings.TrimSpace(e.Keyword)
		if kw == "" {
			return nil, fmt.Errorf("keyword %d: empty keyword", i+1)
		}
		switch e.Kind {
		case "", news.KindMonitor, news.KindReport, news.KindBoth:
		default:
			return nil, fmt.Errorf("keyword %q: unknown kind %q", kw, e.Kind)
		}
		kind := e.Kind
		if kind == "" {
			kind = news.KindBoth
		}
		defs = append(defs, news.KeywordDefinition{
			Keyword:    kw,
			Variations: e.Variations,
			Kind:       kind,
			Active:     e.Active == nil || *e.Active,
		})
	}
	return defs, nil
}

// WatchKeywords reloads path whenever it changes and passes the new list to
// onChange. Invalid edits are logged and skipped. It blocks until ctx is done.
func WatchKeywords(ctx context.Context, path string, logger *slog.Logger, onChange func([]news.KeywordDefinition)) error {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so watch the directory.
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	const settle = 200 * time.Millisecond
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(settle)
			} else {
				timer.Reset(settle)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			defs, err := LoadKeywords(abs)
			if err != nil {
				logger.Warn("keywords reload failed", "path", abs, "error", err)
				continue
			}
			logger.Info("keywords reloaded", "path", abs, "count", len(defs))
			onChange(defs)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("keywords watcher error", "error", err)
		}
	}
}
