// Package facebook extracts posts, notes and embedded media from Facebook
// page timelines.
//
// Timeline and notes pages are fetched through undocumented pagination
// endpoints that answer with JSON envelopes wrapping HTML fragments. The
// fragments are parsed and the class-marked regions turned into records:
//
//	client, _ := facebook.New(ctx, facebook.WithHTTPCache(cache))
//	posts, err := client.FetchPosts(ctx, facebook.PostsQuery{
//	    Profile: "somepage", FromDate: "2019-01-31", Count: 10,
//	})
package facebook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/sfcache"
	"github.com/codeGROOVE-dev/sfcache/pkg/store/null"
	"golang.org/x/sync/errgroup"

	"github.com/codeGROOVE-dev/harvest/pkg/httpcache"
	"github.com/codeGROOVE-dev/harvest/pkg/markup"
)

// Fetcher retrieves a URL body. httpcache.Client implements it.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

// Client extracts records. It is safe for concurrent use; the only state it
// keeps between calls is the page id memo.
type Client struct {
	fetcher     Fetcher
	identities  *sfcache.TieredCache[string, string]
	logger      *slog.Logger
	location    *time.Location
	markers     Markers
	concurrency int
	strict      bool
}

// Option configures a Client.
type Option func(*config)

type config struct {
	fetcher     Fetcher
	cache       httpcache.Cacher
	logger      *slog.Logger
	location    *time.Location
	markers     Markers
	concurrency int
	strict      bool
}

// WithFetcher sets the HTTP collaborator. It takes precedence over WithHTTPCache.
func WithFetcher(f Fetcher) Option {
	return func(c *config) { c.fetcher = f }
}

// WithHTTPCache sets the HTTP cache used by the default fetcher.
func WithHTTPCache(httpCache httpcache.Cacher) Option {
	return func(c *config) { c.cache = httpCache }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithLocation sets the zone FromDate is interpreted in. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(c *config) { c.location = loc }
}

// WithMarkers replaces the markup convention.
func WithMarkers(mk Markers) Option {
	return func(c *config) { c.markers = mk }
}

// WithConcurrency bounds how many note pages are fetched at once.
func WithConcurrency(n int) Option {
	return func(c *config) { c.concurrency = n }
}

// WithStrict makes a single malformed item fail the whole batch instead of
// being logged and skipped.
func WithStrict(strict bool) Option {
	return func(c *config) { c.strict = strict }
}

// New creates a Facebook client.
func New(_ context.Context, opts ...Option) (*Client, error) {
	cfg := &config{
		logger:      slog.Default(),
		location:    time.Local,
		markers:     DefaultMarkers,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.concurrency < 1 {
		cfg.concurrency = 1
	}
	if cfg.fetcher == nil {
		cfg.fetcher = httpcache.NewClient(httpcache.WithCache(cfg.cache), httpcache.WithLogger(cfg.logger))
	}

	identities, err := sfcache.NewTiered[string, string](null.New[string, string]())
	if err != nil {
		return nil, fmt.Errorf("create identity cache: %w", err)
	}

	return &Client{
		fetcher:     cfg.fetcher,
		identities:  identities,
		logger:      cfg.logger,
		location:    cfg.location,
		markers:     cfg.markers,
		concurrency: cfg.concurrency,
		strict:      cfg.strict,
	}, nil
}

// Close releases the page id memo.
func (c *Client) Close() error {
	return c.identities.Close()
}

// FetchPosts returns up to q.Count timeline posts published before the
// requested date or timestamp.
func (c *Client) FetchPosts(ctx context.Context, q PostsQuery) ([]*Post, error) {
	if q.Profile == "" {
		return nil, fmt.Errorf("%w: empty profile", ErrInput)
	}
	if q.Count <= 0 {
		return nil, fmt.Errorf("%w: post count %d", ErrInput, q.Count)
	}
	from, err := c.startTimestamp(q)
	if err != nil {
		return nil, err
	}

	pageID := q.PageID
	if pageID == "" {
		if pageID, err = c.ResolvePageID(ctx, q.Profile); err != nil {
			return nil, err
		}
	}
	req := Request{Profile: q.Profile, PageID: pageID}

	timelineURL := TimelineURL(TimelineRequest{PageID: pageID, FromTimestamp: from, Count: q.Count})
	c.logger.InfoContext(ctx, "fetching timeline", "profile", q.Profile, "page_id", pageID, "from", from, "count", q.Count)

	doc, err := c.fetchEnvelope(ctx, timelineURL, FamilyTimeline)
	if err != nil {
		return nil, err
	}

	items := doc.ByClass(c.markers.Post)
	posts := make([]*Post, 0, len(items))
	for i, item := range items {
		p, err := extractPost(item, req, c.markers)
		if err != nil {
			if c.skippable(err) {
				c.logger.WarnContext(ctx, "skipping post", "profile", q.Profile, "index", i, "error", err)
				continue
			}
			return nil, &ItemError{Index: i, URL: timelineURL, Err: err}
		}
		posts = append(posts, p)
	}

	c.logger.DebugContext(ctx, "timeline extracted", "profile", q.Profile, "items", len(items), "posts", len(posts))
	return posts, nil
}

// FetchPost extracts a single post from its own page, bypassing pagination.
func (c *Client) FetchPost(ctx context.Context, postURL string) (*Post, error) {
	c.logger.InfoContext(ctx, "fetching post", "url", postURL)

	body, err := c.get(ctx, postURL)
	if err != nil {
		return nil, err
	}
	doc, err := parseMarkup(string(body))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", postURL, err)
	}

	node, err := c.findPost(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", postURL, err)
	}

	p, err := extractPost(node, Request{Profile: ProfileFromURL(postURL)}, c.markers)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", postURL, err)
	}
	return p, nil
}

// findPost locates the post on a permalink page. The page usually ships the
// post pre-rendered inside a comment in a <code> element, or as the body of a
// template <script>.
func (c *Client) findPost(doc *markup.Node) (*markup.Node, error) {
	class := strings.Fields(c.markers.Post)
	blobs := append(doc.Comments("code"), doc.RawText("script")...)
	for _, blob := range blobs {
		if len(class) > 0 && !strings.Contains(blob, class[0]) {
			continue
		}
		inner, err := parseMarkup(blob)
		if err != nil {
			return nil, err
		}
		if n := inner.FirstByClass(c.markers.Post); n != nil {
			return n, nil
		}
	}
	if n := doc.FirstByClass(c.markers.Post); n != nil {
		return n, nil
	}
	return nil, missing("post markup")
}

// FetchNotes returns the q.Count most recent notes of a profile. Each note's
// page is fetched concurrently; any fetch failure fails the whole call.
func (c *Client) FetchNotes(ctx context.Context, q NotesQuery) ([]*Note, error) {
	if q.Profile == "" {
		return nil, fmt.Errorf("%w: empty profile", ErrInput)
	}
	if q.Count <= 0 {
		return nil, fmt.Errorf("%w: notes count %d", ErrInput, q.Count)
	}

	pageID := q.PageID
	if pageID == "" {
		var err error
		if pageID, err = c.ResolvePageID(ctx, q.Profile); err != nil {
			return nil, err
		}
	}

	notesURL := NotesURL(NotesRequest{PageID: pageID, Count: q.Count})
	c.logger.InfoContext(ctx, "fetching notes listing", "profile", q.Profile, "page_id", pageID, "count", q.Count)

	doc, err := c.fetchEnvelope(ctx, notesURL, FamilyNotes)
	if err != nil {
		return nil, err
	}

	var summaries []noteSummary
	var indexes []int
	for i, item := range doc.ByClass(c.markers.Post) {
		s, err := extractNoteSummary(item, c.markers)
		if err != nil {
			if c.skippable(err) {
				c.logger.WarnContext(ctx, "skipping note listing item", "profile", q.Profile, "index", i, "error", err)
				continue
			}
			return nil, &ItemError{Index: i, URL: notesURL, Err: err}
		}
		summaries = append(summaries, s)
		indexes = append(indexes, i)
	}

	notes := make([]*Note, len(summaries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, s := range summaries {
		g.Go(func() error {
			n, err := c.FetchNote(gctx, s.url)
			if err != nil {
				if c.skippable(err) {
					c.logger.WarnContext(gctx, "skipping note", "url", s.url, "error", err)
					return nil
				}
				return &ItemError{Index: indexes[i], URL: notesURL, Err: err}
			}
			n.PublicationDate = s.date
			n.PublicationTimestamp = s.timestamp
			if n.Author == "" {
				n.Author = s.author
			}
			notes[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*Note, 0, len(notes))
	for _, n := range notes {
		if n != nil {
			out = append(out, n)
		}
	}
	c.logger.DebugContext(ctx, "notes extracted", "profile", q.Profile, "listed", len(summaries), "notes", len(out))
	return out, nil
}

// FetchNote extracts a note from its own page.
func (c *Client) FetchNote(ctx context.Context, noteURL string) (*Note, error) {
	c.logger.DebugContext(ctx, "fetching note", "url", noteURL)

	body, err := c.get(ctx, noteURL)
	if err != nil {
		return nil, err
	}
	doc, err := parseMarkup(string(body))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", noteURL, err)
	}
	n, err := extractNote(doc, c.markers)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", noteURL, err)
	}
	return n, nil
}

func (c *Client) startTimestamp(q PostsQuery) (int64, error) {
	if q.FromTimestamp > 0 {
		return q.FromTimestamp, nil
	}
	if q.FromDate == "" {
		return 0, fmt.Errorf("%w: neither a date nor a timestamp given", ErrInput)
	}
	return TimestampFromDate(q.FromDate, c.location)
}

func (c *Client) skippable(err error) bool {
	return !c.strict && errors.Is(err, ErrExtraction)
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	body, err := c.fetcher.Get(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, rawURL, err)
	}
	return body, nil
}

func (c *Client) fetchEnvelope(ctx context.Context, rawURL string, family Family) (*markup.Node, error) {
	raw, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	fragment, err := Unwrap(raw, family)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rawURL, err)
	}
	doc, err := parseMarkup(fragment)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rawURL, err)
	}
	return doc, nil
}

func parseMarkup(s string) (*markup.Node, error) {
	doc, err := markup.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return doc, nil
}

// ProfileFromURL returns the profile name a post or note URL belongs to, or ""
// when the URL does not carry one (e.g. permalink.php?story_fbid=...).
func ProfileFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return ""
	}
	name := segments[0]
	if name == "notes" && len(segments) > 1 {
		name = segments[1]
	}
	if strings.Contains(strings.ToLower(name), ".php") {
		return ""
	}
	return name
}
