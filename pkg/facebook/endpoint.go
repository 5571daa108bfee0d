package facebook

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimelineRequest is one page of a timeline.
type TimelineRequest struct {
	PageID        string
	FromTimestamp int64
	Count         int
}

// NotesRequest is one page of a notes listing.
type NotesRequest struct {
	PageID string
	Count  int
}

// TimelineURL builds the pagination URL for a timeline page. The endpoint only
// accepts this literal cursor shape: a fixed unit prefix with ten zeros, then
// the timestamp.
func TimelineURL(r TimelineRequest) string {
	return strings.Join([]string{
		"https://www.facebook.com/pages_reaction_units/more/?page_id=",
		r.PageID,
		"&cursor={%22timeline_cursor%22:%22timeline_unit:1:0000000000",
		strconv.FormatInt(r.FromTimestamp, 10),
		"%22,%22timeline_section_cursor%22:{}",
		",%22has_next_page%22:true}&surface=www_pages_home&unit_count=",
		strconv.Itoa(r.Count),
		"&__a=1",
	}, "")
}

// NotesURL builds the URL of the notes listing pagelet.
func NotesURL(r NotesRequest) string {
	return strings.Join([]string{
		"https://www.facebook.com/ajax/pagelet/generic.php/",
		`TimelineNotesPagelet?dpr=1&data={"s":`,
		strconv.Itoa(r.Count),
		`,"scroll_load":true,"profile_id":`,
		r.PageID,
		`,"is_pages_tab":true,"tab_key":"notes"}&__user=0`,
		"&__a=1&__req=d&__be=-1",
	}, "")
}

// MobileProfileURL is the lightweight front page the page id is read from.
func MobileProfileURL(profile string) string {
	return "https://m.facebook.com/" + profile
}

// TimestampFromDate converts a YYYY-MM-DD date to epoch seconds at midnight in loc.
func TimestampFromDate(date string, loc *time.Location) (int64, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(time.DateOnly, date, loc)
	if err != nil {
		return 0, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInput, date)
	}
	return t.Unix(), nil
}
