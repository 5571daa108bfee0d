package facebook

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var numericPattern = regexp.MustCompile(`^\d+$`)

// Identity resolves a profile name to its page identity. Results are memoized
// for the lifetime of the client and concurrent calls for one profile share a
// single fetch.
func (c *Client) Identity(ctx context.Context, profile string) (PageIdentity, error) {
	if profile == "" {
		return PageIdentity{}, fmt.Errorf("%w: empty profile", ErrInput)
	}

	pageID, err := c.identities.GetSet(ctx, strings.ToLower(profile), func(ctx context.Context) (string, error) {
		return c.fetchPageID(ctx, profile)
	})
	if err != nil {
		return PageIdentity{}, err
	}
	return PageIdentity{Profile: profile, PageID: pageID}, nil
}

// ResolvePageID returns the numeric page id of profile.
func (c *Client) ResolvePageID(ctx context.Context, profile string) (string, error) {
	id, err := c.Identity(ctx, profile)
	if err != nil {
		return "", err
	}
	return id.PageID, nil
}

func (c *Client) fetchPageID(ctx context.Context, profile string) (string, error) {
	mobileURL := MobileProfileURL(url.PathEscape(profile))
	c.logger.InfoContext(ctx, "resolving page id", "profile", profile, "url", mobileURL)

	body, err := c.get(ctx, mobileURL)
	if err != nil {
		return "", err
	}

	pageID, err := parsePageID(body, c.markers)
	if err != nil {
		return "", fmt.Errorf("profile %q: %w", profile, err)
	}

	c.logger.DebugContext(ctx, "page id resolved", "profile", profile, "page_id", pageID)
	return pageID, nil
}

// parsePageID reads the page id out of the profile picture link in the mobile
// header: /<profile>/photos/a.<x>.<y>.<page id>/<photo id>/.
func parsePageID(body []byte, mk Markers) (string, error) {
	doc, err := parseMarkup(string(body))
	if err != nil {
		return "", err
	}

	header := doc.ByID(mk.CoverSection)
	if header == nil {
		return "", fmt.Errorf("%w: #%s absent", ErrPageResolution, mk.CoverSection)
	}
	link := header.First("a")
	if link == nil {
		return "", fmt.Errorf("%w: no link in #%s", ErrPageResolution, mk.CoverSection)
	}
	href, _ := link.Attr("href")
	return pageIDFromHref(href)
}

func pageIDFromHref(href string) (string, error) {
	path := href
	if u, err := url.Parse(href); err == nil {
		path = u.Path
	}

	segments := strings.Split(path, "/")
	if len(segments) < 4 {
		return "", fmt.Errorf("%w: profile link %q too short", ErrPageResolution, href)
	}
	parts := strings.Split(segments[3], ".")
	if len(parts) < 4 {
		return "", fmt.Errorf("%w: album segment %q too short", ErrPageResolution, segments[3])
	}
	if !numericPattern.MatchString(parts[3]) {
		return "", fmt.Errorf("%w: page id %q is not numeric", ErrPageResolution, parts[3])
	}
	return parts[3], nil
}
