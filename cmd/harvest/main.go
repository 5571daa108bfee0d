// Command harvest extracts posts and notes from Facebook pages as JSON.
//
// Usage:
//
//	harvest --profile somepage --posts 10 --from-date 2019-01-31
//	harvest --profile somepage --notes 5
//	harvest --post-url https://www.facebook.com/somepage/posts/123
//	harvest --note-url https://www.facebook.com/notes/somepage/title/456/
//
// Every flag can also be set through a HARVEST_* environment variable.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/codeGROOVE-dev/harvest/pkg/config"
	"github.com/codeGROOVE-dev/harvest/pkg/facebook"
	"github.com/codeGROOVE-dev/harvest/pkg/httpcache"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg == nil {
		return
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	var httpCache *httpcache.Cache
	if cfg.NoCache {
		httpCache = httpcache.NewNull()
	} else {
		var err error
		httpCache, err = httpcache.New(cfg.CacheTTL)
		if err != nil {
			logger.Warn("failed to initialize cache, continuing without persistence", "error", err)
			httpCache = httpcache.NewNull()
		} else {
			logger.Debug("HTTP cache initialized", "ttl", cfg.CacheTTL.String())
		}
	}
	defer func() {
		if err := httpCache.Close(); err != nil {
			logger.Warn("failed to close cache", "error", err)
		}
	}()

	fetcher := httpcache.NewClient(
		httpcache.WithCache(httpCache),
		httpcache.WithLogger(logger),
		httpcache.WithMinDelay(cfg.MinDelay),
		httpcache.WithHostDelay("m.facebook.com", cfg.MobileMinDelay),
		httpcache.WithTimeout(cfg.Timeout),
		httpcache.WithAttempts(cfg.Retries),
	)
	defer func() {
		stats := fetcher.Stats()
		logger.Debug("HTTP cache stats", "hits", stats.Hits, "misses", stats.Misses)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, err := facebook.New(ctx,
		facebook.WithFetcher(fetcher),
		facebook.WithLogger(logger),
		facebook.WithLocation(cfg.Location),
		facebook.WithConcurrency(cfg.Concurrency),
		facebook.WithStrict(cfg.Strict),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close client", "error", err)
		}
	}()

	logger.Debug("running", "mode", cfg.Mode())

	switch cfg.Mode() {
	case config.ModePost:
		post, err := client.FetchPost(ctx, cfg.PostURL)
		if err != nil {
			return err
		}
		return outputJSON(post)
	case config.ModeNote:
		note, err := client.FetchNote(ctx, cfg.NoteURL)
		if err != nil {
			return err
		}
		return outputJSON(note)
	case config.ModeNotes:
		notes, err := client.FetchNotes(ctx, facebook.NotesQuery{
			Profile: cfg.Profile,
			Count:   cfg.Notes,
			PageID:  cfg.PageID,
		})
		if err != nil {
			return err
		}
		return outputJSON(notes)
	default:
		posts, err := client.FetchPosts(ctx, facebook.PostsQuery{
			Profile:       cfg.Profile,
			FromDate:      cfg.FromDate,
			FromTimestamp: cfg.FromTimestamp,
			Count:         cfg.Posts,
			PageID:        cfg.PageID,
		})
		if err != nil {
			return err
		}
		return outputJSON(posts)
	}
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
