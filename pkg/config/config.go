// Package config loads harvest's process configuration from command-line
// flags with environment fallbacks.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// ErrInvalid is returned when flags parse but describe no runnable job.
var ErrInvalid = errors.New("invalid configuration")

// Mode is the extraction the process runs.
type Mode string

// Modes, one per engine entry point.
const (
	ModePosts Mode = "posts"
	ModePost  Mode = "post"
	ModeNotes Mode = "notes"
	ModeNote  Mode = "note"
)

type rawConfig struct {
	// What to extract
	Profile       string `long:"profile" env:"HARVEST_PROFILE" description:"Page or profile name, e.g. somepage"`
	FromDate      string `long:"from-date" env:"HARVEST_FROM_DATE" description:"Return posts published before this day (YYYY-MM-DD)"`
	FromTimestamp int64  `long:"from-timestamp" env:"HARVEST_FROM_TIMESTAMP" description:"Return posts published before this epoch second; wins over --from-date"`
	Posts         int    `long:"posts" env:"HARVEST_POSTS" description:"Number of timeline posts to fetch"`
	Notes         int    `long:"notes" env:"HARVEST_NOTES" description:"Number of notes to fetch"`
	PageID        string `long:"page-id" env:"HARVEST_PAGE_ID" description:"Numeric page id; skips resolving it from the profile"`
	PostURL       string `long:"post-url" env:"HARVEST_POST_URL" description:"Extract a single post from its URL"`
	NoteURL       string `long:"note-url" env:"HARVEST_NOTE_URL" description:"Extract a single note from its URL"`
	Strict        bool   `long:"strict" env:"HARVEST_STRICT" description:"Fail the batch on the first malformed item instead of skipping it"`
	Concurrency   int    `long:"concurrency" env:"HARVEST_CONCURRENCY" default:"4" description:"Note pages fetched at once"`

	// Transport
	NoCache        bool          `long:"no-cache" env:"HARVEST_NO_CACHE" description:"Disable the on-disk HTTP cache"`
	CacheTTL       time.Duration `long:"cache-ttl" env:"HARVEST_CACHE_TTL" default:"24h" description:"HTTP cache time-to-live"`
	MinDelay       time.Duration `long:"min-delay" env:"HARVEST_MIN_DELAY" default:"500ms" description:"Minimum delay between requests to one host"`
	MobileMinDelay time.Duration `long:"mobile-min-delay" env:"HARVEST_MOBILE_MIN_DELAY" default:"2s" description:"Minimum delay between requests to m.facebook.com"`
	Timeout        time.Duration `long:"timeout" env:"HARVEST_TIMEOUT" default:"10s" description:"Per-request timeout"`
	Retries        uint          `long:"retries" env:"HARVEST_RETRIES" default:"2" description:"Attempts per request for transient failures"`

	Timezone string `long:"timezone" env:"HARVEST_TIMEZONE" description:"Zone --from-date is read in (default: local time)"`
	Debug    bool   `long:"debug" env:"HARVEST_DEBUG" description:"Enable debug logging"`
}

// Config is the validated process configuration.
type Config struct {
	Profile       string
	FromDate      string
	FromTimestamp int64
	Posts         int
	Notes         int
	PageID        string
	PostURL       string
	NoteURL       string
	Strict        bool
	Concurrency   int

	NoCache        bool
	CacheTTL       time.Duration
	MinDelay       time.Duration
	MobileMinDelay time.Duration
	Timeout        time.Duration
	Retries        uint

	Location *time.Location
	Debug    bool
}

// Load parses args (without the program name). It returns nil, nil when help
// was requested and printed.
func Load(args []string) (*Config, error) {
	var raw rawConfig

	parser := flags.NewParser(&raw, flags.Default)
	rest, err := parser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%w: unexpected arguments %q", ErrInvalid, rest)
	}

	cfg := &Config{
		Profile:        strings.TrimSpace(raw.Profile),
		FromDate:       strings.TrimSpace(raw.FromDate),
		FromTimestamp:  raw.FromTimestamp,
		Posts:          raw.Posts,
		Notes:          raw.Notes,
		PageID:         strings.TrimSpace(raw.PageID),
		PostURL:        strings.TrimSpace(raw.PostURL),
		NoteURL:        strings.TrimSpace(raw.NoteURL),
		Strict:         raw.Strict,
		Concurrency:    raw.Concurrency,
		NoCache:        raw.NoCache,
		CacheTTL:       raw.CacheTTL,
		MinDelay:       raw.MinDelay,
		MobileMinDelay: raw.MobileMinDelay,
		Timeout:        raw.Timeout,
		Retries:        raw.Retries,
		Location:       time.Local,
		Debug:          raw.Debug,
	}

	if raw.Timezone != "" {
		loc, err := time.LoadLocation(raw.Timezone)
		if err != nil {
			return nil, fmt.Errorf("%w: timezone %q: %w", ErrInvalid, raw.Timezone, err)
		}
		cfg.Location = loc
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Mode reports which extraction the configuration selects. It is only
// meaningful on a Config returned by Load.
func (c *Config) Mode() Mode {
	switch {
	case c.PostURL != "":
		return ModePost
	case c.NoteURL != "":
		return ModeNote
	case c.Notes > 0:
		return ModeNotes
	default:
		return ModePosts
	}
}

func (c *Config) validate() error {
	selected := 0
	for _, set := range []bool{c.PostURL != "", c.NoteURL != "", c.Notes > 0, c.Posts > 0} {
		if set {
			selected++
		}
	}
	switch {
	case selected == 0:
		return fmt.Errorf("%w: one of --posts, --notes, --post-url or --note-url is required", ErrInvalid)
	case selected > 1:
		return fmt.Errorf("%w: --posts, --notes, --post-url and --note-url are mutually exclusive", ErrInvalid)
	}

	if c.Posts < 0 || c.Notes < 0 {
		return fmt.Errorf("%w: counts must be positive", ErrInvalid)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: --concurrency must be at least 1", ErrInvalid)
	}

	switch c.Mode() {
	case ModePosts:
		if c.Profile == "" {
			return fmt.Errorf("%w: --posts needs --profile", ErrInvalid)
		}
		if c.FromDate == "" && c.FromTimestamp <= 0 {
			return fmt.Errorf("%w: --posts needs --from-date or --from-timestamp", ErrInvalid)
		}
	case ModeNotes:
		if c.Profile == "" {
			return fmt.Errorf("%w: --notes needs --profile", ErrInvalid)
		}
	case ModePost, ModeNote:
	}
	return nil
}
