package facebook

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/codeGROOVE-dev/harvest/pkg/markup"
)

// siteURL is the base relative hrefs are resolved against.
const siteURL = "https://facebook.com"

var (
	photosPattern    = regexp.MustCompile(`/photos/|/photo\.php`)
	permalinkPattern = regexp.MustCompile(`/posts/|/permalink\.php|/permalink/|/story\.php`)
)

// facebookHosts are the hosts whose paths the photo and permalink rules read.
// The l.facebook.com tracking redirect is not one of them.
var facebookHosts = map[string]bool{
	"facebook.com":     true,
	"www.facebook.com": true,
	"m.facebook.com":   true,
	"web.facebook.com": true,
}

var youtubeHosts = map[string]bool{
	"youtube.com":          true,
	"youtu.be":             true,
	"youtube-nocookie.com": true,
}

// mediaScope is what every rule sees about one media container.
type mediaScope struct {
	box    *markup.Node
	anchor *markup.Node // first anchor in box, may be nil
	href   string
	path   string // path of href when it points into the site, else ""
	req    Request
	mk     Markers
}

// mediaRule pairs a predicate with the extractor that runs when it matches.
type mediaRule struct {
	name    string
	match   func(*mediaScope) bool
	extract func(*mediaScope) (*Media, error)
}

// mediaRules is evaluated in order and the first match wins. Photo, permalink
// and video containers share their outer shape with plain external links, so
// the specific patterns must be tried before the external fallback.
var mediaRules = []mediaRule{
	{name: "video", match: isVideo, extract: extractVideo},
	{name: "photo", match: isPhoto, extract: extractPhoto},
	{name: "permalink", match: isPermalink, extract: extractSharedPost},
	{name: "external", match: hasAnchor, extract: extractExternal},
}

// classifyMedia returns the media embedded in a post, or nil when there is none.
func classifyMedia(post *markup.Node, req Request, mk Markers) (*Media, error) {
	box := post.FirstByClass(mk.MediaBox)
	if box == nil {
		return nil, nil
	}

	scope := &mediaScope{box: box, req: req, mk: mk}
	if a := box.First("a"); a != nil {
		scope.anchor = a
		scope.href, _ = a.Attr("href")
		scope.path = sitePath(scope.href)
	}

	for _, rule := range mediaRules {
		if rule.match(scope) {
			return rule.extract(scope)
		}
	}
	return nil, nil
}

func isVideo(s *mediaScope) bool { return s.box.First("video") != nil }

func isPhoto(s *mediaScope) bool { return s.path != "" && photosPattern.MatchString(s.path) }

func isPermalink(s *mediaScope) bool { return s.path != "" && permalinkPattern.MatchString(s.path) }

func hasAnchor(s *mediaScope) bool { return s.anchor != nil }

func extractVideo(s *mediaScope) (*Media, error) {
	header := s.box.FirstByClass(s.mk.VideoHeader)
	if header == nil {
		return nil, missing("video header")
	}
	meta := header.FirstByClass(s.mk.VideoMeta)
	if meta == nil {
		return nil, missing("video metadata")
	}
	href, ok := meta.Attr("href")
	if !ok || href == "" {
		return nil, missing("video permalink")
	}
	return &Media{
		Type:  MediaFacebookVideo,
		URL:   absoluteURL(href),
		Title: strings.TrimSpace(meta.Text()),
	}, nil
}

func extractPhoto(s *mediaScope) (*Media, error) {
	img := s.anchor.First("img")
	if img == nil {
		img = s.box.First("img")
	}
	if img == nil {
		return nil, missing("photo image")
	}
	src, ok := img.Attr("src")
	if !ok || src == "" {
		return nil, missing("photo image source")
	}

	kind := MediaSharedFacebookImage
	if ownsPath(s.path, s.req.Profile) {
		kind = MediaFacebookImage
	}
	return &Media{Type: kind, URL: src}, nil
}

func extractSharedPost(s *mediaScope) (*Media, error) {
	return &Media{Type: MediaSharedFacebookPost, URL: absoluteURL(s.href)}, nil
}

func extractExternal(s *mediaScope) (*Media, error) {
	dest, err := externalDestination(s.anchor, s.href)
	if err != nil {
		return nil, err
	}

	m := &Media{Type: MediaExternalLink, URL: dest}
	if isYouTube(dest) {
		m.Type = MediaYouTubeVideo
	}
	if title := strings.TrimSpace(s.anchor.Text()); title != "" {
		m.Title = title
	}
	return m, nil
}

// externalDestination prefers the hover handler's target. An anchor without
// one is accepted only when its href already points off-site.
func externalDestination(anchor *markup.Node, href string) (string, error) {
	if hover, ok := anchor.Attr("onmouseover"); ok {
		dest, ok := hoverURL(hover)
		if !ok {
			return "", missing("external link destination")
		}
		return dest, nil
	}
	if offSite(href) {
		return href, nil
	}
	return "", missing("external link hover attribute")
}

// offSite reports whether href is an absolute http(s) URL outside facebook.com.
func offSite(href string) bool {
	u, err := url.Parse(href)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host != "facebook.com" && !strings.HasSuffix(host, ".facebook.com")
}

// hoverURL recovers the real destination of an external link. The href is a
// tracking redirect; the destination sits as the first double-quoted,
// backslash-escaped token of the hover handler, e.g.
// LinkshimAsyncLink.swap(this, "https:\/\/example.com\/x").
func hoverURL(attr string) (string, bool) {
	start := strings.IndexByte(attr, '"')
	if start < 0 {
		return "", false
	}

	var b strings.Builder
	escaped := false
	for _, r := range attr[start+1:] {
		switch {
		case escaped:
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			if b.Len() == 0 {
				return "", false
			}
			return b.String(), true
		default:
			b.WriteRune(r)
		}
	}
	return "", false
}

func isYouTube(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	return youtubeHosts[host]
}

// ownsPath reports whether a site path lives under the profile, i.e. its first
// segment is the profile name.
func ownsPath(path, profile string) bool {
	if profile == "" {
		return false
	}
	first, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	return strings.EqualFold(first, profile)
}

// sitePath returns the path of href when href is relative or on a Facebook
// host, and "" for anything else.
func sitePath(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if u.Host != "" && !facebookHosts[strings.ToLower(u.Hostname())] {
		return ""
	}
	return u.Path
}

// absoluteURL resolves a site-relative href.
func absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	base, err := url.Parse(siteURL)
	if err != nil {
		return siteURL + href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return siteURL + href
	}
	return base.ResolveReference(ref).String()
}
