package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/language"

	"wordfill/internal/config"
	"wordfill/internal/logging"
	"wordfill/internal/suggest"
)

// buildService assembles the configured providers into one chain. It
// returns the names of the providers that loaded. A provider that fails
// to load is skipped with a warning; the daemon still answers from the
// rest.
func buildService(ctx context.Context, cfg config.SuggestConfig, system func() (suggest.Service, error), logger *logging.Logger) (suggest.Service, []string) {
	lang, err := language.Parse(cfg.Locale)
	if err != nil {
		lang = language.Und
	}

	var (
		services []suggest.Service
		names    []string
	)
	for _, name := range cfg.Providers {
		svc, err := loadProvider(ctx, name, cfg, lang, system)
		if err != nil {
			logger.Warn("suggestion provider unavailable", "provider", name, "error", err)
			continue
		}
		services = append(services, svc)
		names = append(names, name)
	}
	if len(services) == 0 {
		return nil, nil
	}

	svc := suggest.Chain(services...)
	if cfg.MaxResults > 0 {
		svc = suggest.Limit(svc, cfg.MaxResults)
	}
	if cfg.MinPrefix > 1 {
		svc = suggest.MinLength(svc, cfg.MinPrefix)
	}
	return svc, names
}

func loadProvider(ctx context.Context, name string, cfg config.SuggestConfig, lang language.Tag, system func() (suggest.Service, error)) (suggest.Service, error) {
	switch name {
	case "system":
		if system == nil {
			return nil, suggest.ErrNoSystemService
		}
		return system()
	case "lexicon":
		path := cfg.WordList
		if path == "" {
			path = firstExisting(config.DefaultWordLists())
		}
		if path == "" {
			return nil, errors.New("no word list configured or found")
		}
		return suggest.LoadWordListFile(path, lang, cfg.MaxResults)
	case "sqlite":
		if cfg.SQLitePath == "" {
			return nil, errors.New("suggest.sqlite_path is empty")
		}
		return suggest.LoadSQLite(ctx, cfg.SQLitePath, lang, cfg.MaxResults)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// defaultSeeds are short prefixes that most typing starts with.
var defaultSeeds = []string{
	"th", "the", "wh", "an", "and", "in", "co", "com", "con", "pro",
	"re", "de", "ex", "st", "pre", "per", "be", "se", "di", "ma",
	"wi", "wo", "fo", "ha", "ca", "pa", "sh", "ch", "tr", "ab",
}

// seedWords reads the preload list, one word per line. Blank lines and
// lines starting with # are ignored. An empty path yields defaultSeeds.
func seedWords(path string) ([]string, error) {
	if path == "" {
		return append([]string(nil), defaultSeeds...), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed words: %w", err)
	}
	defer f.Close()

	var words []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read seed words: %w", err)
	}
	return words, nil
}
