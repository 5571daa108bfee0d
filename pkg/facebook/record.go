package facebook

// MediaType identifies the kind of content embedded in a post.
type MediaType string

// Media types, one per classification outcome.
const (
	MediaFacebookVideo       MediaType = "facebook_video"
	MediaFacebookImage       MediaType = "facebook_image"
	MediaSharedFacebookImage MediaType = "shared_facebook_image"
	MediaSharedFacebookPost  MediaType = "shared_facebook_post"
	MediaYouTubeVideo        MediaType = "youtube_video"
	MediaExternalLink        MediaType = "external_link"
)

// Media is the content embedded in a post.
type Media struct {
	Type  MediaType `json:"type"`
	URL   string    `json:"url"`
	Title string    `json:"title,omitempty"` // videos and external links only
}

// Post is one timeline item.
type Post struct {
	TextContent          string `json:"text_content"`
	Author               string `json:"author"`
	PublicationDate      string `json:"publication_date"`
	PublicationTimestamp int64  `json:"publication_timestamp"` // epoch seconds from data-utime
	URL                  string `json:"url"`
	Media                *Media `json:"media,omitempty"`
}

// BlockType distinguishes the two shapes of note content.
type BlockType string

// Block types.
const (
	BlockText  BlockType = "text"
	BlockImage BlockType = "image"
)

// ContentBlock is one unit of a note body: a paragraph or an image.
type ContentBlock struct {
	Type    BlockType `json:"type"`
	Content string    `json:"content,omitempty"` // text blocks
	URL     string    `json:"url,omitempty"`     // image blocks
}

// Note is a long-form note with an ordered body.
type Note struct {
	Author               string         `json:"author"`
	PublicationDate      string         `json:"publication_date"`
	PublicationTimestamp int64          `json:"publication_timestamp,omitempty"` // only known from a notes listing
	Title                string         `json:"title"`
	URL                  string         `json:"url"`
	ImageURL             string         `json:"image_url"`
	Content              []ContentBlock `json:"content"`
}

// PageIdentity maps a profile name to its numeric page id.
type PageIdentity struct {
	Profile string `json:"profile"`
	PageID  string `json:"page_id"`
}

// Request is the per-call context threaded through extraction. It is passed by
// value and never mutated.
type Request struct {
	Profile string
	PageID  string
}

// PostsQuery selects a slice of a profile's timeline.
// FromTimestamp wins over FromDate when both are set.
type PostsQuery struct {
	Profile       string
	FromDate      string // YYYY-MM-DD
	FromTimestamp int64
	Count         int
	PageID        string // skips page id resolution when set
}

// NotesQuery selects the most recent notes of a profile.
type NotesQuery struct {
	Profile string
	Count   int
	PageID  string // skips page id resolution when set
}
