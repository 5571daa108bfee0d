package facebook

import (
	"strings"

	"github.com/codeGROOVE-dev/harvest/pkg/markup"
)

// noteSummary is what a notes listing knows about one note.
type noteSummary struct {
	url       string
	author    string
	date      string
	timestamp int64
}

// extractNoteSummary reads one notes listing item. The note's own URL is the
// first link of its media box, not the header timestamp link.
func extractNoteSummary(n *markup.Node, mk Markers) (noteSummary, error) {
	meta, err := extractItemMeta(n, mk)
	if err != nil {
		return noteSummary{}, err
	}

	box := n.FirstByClass(mk.MediaBox)
	if box == nil {
		return noteSummary{}, missing("note media box")
	}
	link := box.First("a")
	if link == nil {
		return noteSummary{}, missing("note link")
	}
	href, ok := link.Attr("href")
	if !ok || href == "" {
		return noteSummary{}, missing("note link href")
	}

	return noteSummary{
		url:       absoluteURL(href),
		author:    meta.author,
		date:      meta.date,
		timestamp: meta.timestamp,
	}, nil
}

// extractNote builds a Note from a full note page.
func extractNote(doc *markup.Node, mk Markers) (*Note, error) {
	header := doc.FirstByClass(mk.NoteHeader)
	if header == nil {
		return nil, missing("note header")
	}

	title := header.FirstByClass(mk.NoteTitle)
	if title == nil {
		return nil, missing("note title")
	}

	links := header.All("a")
	if len(links) < 2 {
		return nil, missing("note author and permalink")
	}
	href, ok := links[1].Attr("href")
	if !ok || href == "" {
		return nil, missing("note permalink")
	}

	n := &Note{
		Author:          strings.TrimSpace(links[0].Text()),
		PublicationDate: strings.TrimSpace(links[1].Text()),
		Title:           strings.TrimSpace(title.Text()),
		URL:             absoluteURL(href),
	}

	if cover := doc.FirstByClass(mk.NoteCover); cover != nil {
		style, _ := cover.Attr("style")
		n.ImageURL = backgroundImageURL(style)
	}

	body, err := extractNoteBody(doc, mk)
	if err != nil {
		return nil, err
	}
	n.Content = body

	return n, nil
}

// extractNoteBody returns the note's paragraphs and images in document order.
// Empty paragraphs and unknown child shapes are skipped.
func extractNoteBody(doc *markup.Node, mk Markers) ([]ContentBlock, error) {
	body := doc.FirstByClass(mk.NoteBody)
	if body == nil {
		return nil, missing("note body")
	}

	blocks := []ContentBlock{}
	for _, child := range body.Children() {
		switch child.Tag() {
		case "div", "p":
			if text := strings.TrimSpace(child.Text()); text != "" {
				blocks = append(blocks, ContentBlock{Type: BlockText, Content: text})
			}
		case "figure":
			img := child.First("img")
			if img == nil {
				continue
			}
			if src, ok := img.Attr("src"); ok && src != "" {
				blocks = append(blocks, ContentBlock{Type: BlockImage, URL: src})
			}
		}
	}
	return blocks, nil
}

// backgroundImageURL pulls the URL out of an inline style such as
// `background-image: url("https://x/y.jpg"); background-size: cover`.
func backgroundImageURL(style string) string {
	const marker = "background-image:"
	idx := strings.Index(strings.ToLower(style), marker)
	if idx < 0 {
		return ""
	}
	v := style[idx+len(marker):]
	if end := strings.IndexByte(v, ';'); end >= 0 {
		v = v[:end]
	}
	v = strings.TrimSpace(v)

	lower := strings.ToLower(v)
	if !strings.HasPrefix(lower, "url(") {
		return ""
	}
	v = v[len("url("):]
	if end := strings.LastIndexByte(v, ')'); end >= 0 {
		v = v[:end]
	}
	v = strings.TrimSpace(v)
	v = strings.Trim(v, `"'`)
	return v
}
