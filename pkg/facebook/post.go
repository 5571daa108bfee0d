package facebook

import (
	"strconv"
	"strings"

	"github.com/codeGROOVE-dev/harvest/pkg/markup"
)

// extractPost builds a Post from one timeline item.
func extractPost(n *markup.Node, req Request, mk Markers) (*Post, error) {
	p := &Post{TextContent: postText(n, mk)}

	meta, err := extractItemMeta(n, mk)
	if err != nil {
		return nil, err
	}
	if meta.permalink == "" {
		return nil, missing("permalink")
	}
	p.Author = meta.author
	p.PublicationDate = meta.date
	p.PublicationTimestamp = meta.timestamp
	p.URL = meta.permalink

	media, err := classifyMedia(n, req, mk)
	if err != nil {
		return nil, err
	}
	p.Media = media

	return p, nil
}

// postText flattens the text container with the "see more" affordances removed.
func postText(n *markup.Node, mk Markers) string {
	content := n.FirstByClass(mk.PostText)
	if content == nil {
		return ""
	}
	for _, marker := range mk.TruncateHide {
		content.RemoveClass(marker)
	}
	return strings.TrimSpace(content.Text())
}

type itemMeta struct {
	author    string
	date      string
	permalink string
	timestamp int64
}

// extractItemMeta reads the header shared by posts and notes listings.
func extractItemMeta(n *markup.Node, mk Markers) (itemMeta, error) {
	var m itemMeta

	header := n.FirstByClass(mk.Header)
	if header == nil {
		return m, missing("header")
	}

	ts := header.FirstByClass(mk.Timestamp)
	if ts == nil {
		return m, missing("timestamp")
	}
	date, ok := ts.Attr("title")
	if !ok || strings.TrimSpace(date) == "" {
		return m, missing("timestamp title")
	}
	m.date = strings.TrimSpace(date)

	raw, ok := ts.Attr(mk.TimestampAttr)
	if !ok {
		return m, missing(mk.TimestampAttr)
	}
	epoch, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return m, missing(mk.TimestampAttr + " integer")
	}
	m.timestamp = epoch

	if link := ts.Closest("a"); link != nil {
		if href, ok := link.Attr("href"); ok && href != "" {
			m.permalink = absoluteURL(href)
		}
	}

	authorBox := header.FirstByClass(mk.Author)
	if authorBox == nil {
		return m, missing("author")
	}
	authorLink := authorBox.First("a")
	if authorLink == nil {
		return m, missing("author link")
	}
	m.author = strings.TrimSpace(authorLink.Text())

	return m, nil
}
