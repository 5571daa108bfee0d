package facebook

// Markers names every class marker and id the extractors key on. The site
// renames these without notice; a markup change means a new Markers value,
// not edits scattered through the extractors.
type Markers struct {
	Post          string // one timeline item
	PostText      string // text container inside an item
	TruncateHide  []string
	Header        string // item header
	Timestamp     string // element carrying title and data-utime
	Author        string // wraps the author anchor
	MediaBox      string // embedded media container
	VideoHeader   string
	VideoMeta     string
	CoverSection  string // id of the mobile profile header
	NoteHeader    string
	NoteTitle     string
	NoteCover     string
	NoteBody      string
	TimestampAttr string
}

// DefaultMarkers is the markup convention the engine currently targets.
var DefaultMarkers = Markers{
	Post:          "fbUserContent",
	PostText:      "userContent",
	TruncateHide:  []string{"text_exposed_hide", "see_more_link_inner"},
	Header:        "_5x46",
	Timestamp:     "_5ptz",
	Author:        "fwb",
	MediaBox:      "mtm",
	VideoHeader:   "_567_",
	VideoMeta:     "_2za_",
	CoverSection:  "m-timeline-cover-section",
	NoteHeader:    "_39k2",
	NoteTitle:     "_4lmk _5s6c",
	NoteCover:     "_5bdz",
	NoteBody:      "_39k5 _5s6c",
	TimestampAttr: "data-utime",
}
