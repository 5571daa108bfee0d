package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/codeGROOVE-dev/harvest/pkg/httpcache"
)

// fakeFetcher serves canned bodies by URL and 404s everything else.
type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	calls  map[string]int
}

func newFakeFetcher(bodies map[string]string) *fakeFetcher {
	return &fakeFetcher{bodies: bodies, calls: map[string]int{}}
}

func (f *fakeFetcher) Get(_ context.Context, rawURL string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rawURL]++
	body, ok := f.bodies[rawURL]
	if !ok {
		return nil, &httpcache.HTTPError{URL: rawURL, StatusCode: http.StatusNotFound}
	}
	return []byte(body), nil
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeFetcher) count(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[rawURL]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, f Fetcher, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithFetcher(f), WithLogger(discardLogger()), WithLocation(time.UTC)}, opts...)
	client, err := New(context.Background(), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() }) //nolint:errcheck // test cleanup
	return client
}

func timelineEnvelope(t *testing.T, html string) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"__ar":   1,
		"domops": [][]any{{"replace", "#pagelet", true, map[string]string{"__html": html}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return "for (;;);" + string(b)
}

func notesEnvelope(t *testing.T, html string) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{"__ar": 1, "payload": html})
	if err != nil {
		t.Fatal(err)
	}
	return "for (;;);" + string(b)
}

var (
	photoPost = postHTML(standardHeader, standardText,
		`<div class="mtm"><a href="/somepage/photos/a.1.2.123456789/42/?type=3"><img src="http://img/x.jpg"></a></div>`)
	sharedPost = postHTML(
		`<div class="_5x46"><span class="fwb"><a href="/somepage/">Some Page</a></span>`+
			`<a href="/somepage/posts/222"><abbr class="_5ptz" title="30/01/2019 09:00" data-utime="1548838800"></abbr></a></div>`,
		`<div class="userContent"><p>Look at this</p></div>`,
		`<div class="mtm"><a href="/otherpage/posts/777">Other</a></div>`)
	brokenPost = postHTML("", standardText, "")
)

const testPageID = "123456789"

func TestFetchPosts(t *testing.T) {
	timelineURL := TimelineURL(TimelineRequest{PageID: testPageID, FromTimestamp: 1548892800, Count: 3})
	ff := newFakeFetcher(map[string]string{
		"https://m.facebook.com/somepage": mobileProfileHTML,
		timelineURL:                       timelineEnvelope(t, `<div>`+photoPost+sharedPost+brokenPost+`</div>`),
	})
	client := newTestClient(t, ff)

	posts, err := client.FetchPosts(context.Background(), PostsQuery{Profile: "somepage", FromDate: "2019-01-31", Count: 3})
	if err != nil {
		t.Fatalf("FetchPosts() error = %v", err)
	}

	want := []*Post{
		{
			TextContent:          "Hello world",
			Author:               "Some Page",
			PublicationDate:      "31/01/2019 10:00",
			PublicationTimestamp: 1548928800,
			URL:                  "https://facebook.com/somepage/posts/111",
			Media:                &Media{Type: MediaFacebookImage, URL: "http://img/x.jpg"},
		},
		{
			TextContent:          "Look at this",
			Author:               "Some Page",
			PublicationDate:      "30/01/2019 09:00",
			PublicationTimestamp: 1548838800,
			URL:                  "https://facebook.com/somepage/posts/222",
			Media:                &Media{Type: MediaSharedFacebookPost, URL: "https://facebook.com/otherpage/posts/777"},
		},
	}
	if diff := cmp.Diff(want, posts); diff != "" {
		t.Errorf("FetchPosts() mismatch (-want +got):\n%s", diff)
	}
	if ff.count(timelineURL) != 1 {
		t.Errorf("timeline fetched %d times, want 1", ff.count(timelineURL))
	}
}

func TestFetchPosts_Strict(t *testing.T) {
	timelineURL := TimelineURL(TimelineRequest{PageID: testPageID, FromTimestamp: 1548892800, Count: 3})
	ff := newFakeFetcher(map[string]string{
		timelineURL: timelineEnvelope(t, photoPost+sharedPost+brokenPost),
	})
	client := newTestClient(t, ff, WithStrict(true))

	_, err := client.FetchPosts(context.Background(), PostsQuery{
		Profile: "somepage", FromTimestamp: 1548892800, Count: 3, PageID: testPageID,
	})
	var itemErr *ItemError
	if !errors.As(err, &itemErr) {
		t.Fatalf("FetchPosts() error = %v, want *ItemError", err)
	}
	if itemErr.Index != 2 || itemErr.URL != timelineURL {
		t.Errorf("ItemError = index %d url %q", itemErr.Index, itemErr.URL)
	}
	if !errors.Is(err, ErrExtraction) {
		t.Errorf("FetchPosts() error = %v, want ErrExtraction", err)
	}
}

func TestFetchPosts_SkipsPageResolution(t *testing.T) {
	timelineURL := TimelineURL(TimelineRequest{PageID: testPageID, FromTimestamp: 1600000000, Count: 1})
	ff := newFakeFetcher(map[string]string{
		timelineURL: timelineEnvelope(t, photoPost),
	})
	client := newTestClient(t, ff)

	// FromTimestamp wins over FromDate.
	posts, err := client.FetchPosts(context.Background(), PostsQuery{
		Profile: "somepage", FromDate: "2019-01-31", FromTimestamp: 1600000000, Count: 1, PageID: testPageID,
	})
	if err != nil {
		t.Fatalf("FetchPosts() error = %v", err)
	}
	if len(posts) != 1 {
		t.Errorf("len(posts) = %d, want 1", len(posts))
	}
	if n := ff.total(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
}

func TestFetchPosts_InvalidInput(t *testing.T) {
	client := newTestClient(t, newFakeFetcher(nil))
	ctx := context.Background()

	tests := []struct {
		name string
		q    PostsQuery
	}{
		{"empty profile", PostsQuery{FromDate: "2019-01-31", Count: 1}},
		{"zero count", PostsQuery{Profile: "p", FromDate: "2019-01-31"}},
		{"negative count", PostsQuery{Profile: "p", FromDate: "2019-01-31", Count: -1}},
		{"no start", PostsQuery{Profile: "p", Count: 1}},
		{"bad date", PostsQuery{Profile: "p", FromDate: "31-01-2019", Count: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := client.FetchPosts(ctx, tt.q); !errors.Is(err, ErrInput) {
				t.Errorf("FetchPosts() error = %v, want ErrInput", err)
			}
		})
	}
}

func TestFetchPosts_EnvelopeErrors(t *testing.T) {
	timelineURL := TimelineURL(TimelineRequest{PageID: testPageID, FromTimestamp: 1, Count: 1})
	ff := newFakeFetcher(map[string]string{timelineURL: `<html>login required</html>`})
	client := newTestClient(t, ff)
	ctx := context.Background()

	q := PostsQuery{Profile: "somepage", FromTimestamp: 1, Count: 1, PageID: testPageID}
	if _, err := client.FetchPosts(ctx, q); !errors.Is(err, ErrEnvelope) {
		t.Errorf("FetchPosts() error = %v, want ErrEnvelope", err)
	}

	q.FromTimestamp = 2
	if _, err := client.FetchPosts(ctx, q); !errors.Is(err, ErrFetch) {
		t.Errorf("FetchPosts() error = %v, want ErrFetch", err)
	}
}

func TestFetchPost(t *testing.T) {
	postURL := "https://www.facebook.com/somepage/posts/111"
	page := `<html><body><div id="content"><code id="u_0_x"><!-- ` + photoPost + ` --></code></div></body></html>`
	client := newTestClient(t, newFakeFetcher(map[string]string{postURL: page}))

	got, err := client.FetchPost(context.Background(), postURL)
	if err != nil {
		t.Fatalf("FetchPost() error = %v", err)
	}
	if got.Media == nil || got.Media.Type != MediaFacebookImage {
		t.Errorf("Media = %+v, want facebook_image", got.Media)
	}
	if got.TextContent != "Hello world" || got.PublicationTimestamp != 1548928800 {
		t.Errorf("FetchPost() = %+v", got)
	}
}

func TestFetchPost_InlineMarkup(t *testing.T) {
	postURL := "https://www.facebook.com/permalink.php?story_fbid=1&id=2"
	page := `<html><body><code><!-- unrelated --></code>` + sharedPost + `</body></html>`
	client := newTestClient(t, newFakeFetcher(map[string]string{postURL: page}))

	got, err := client.FetchPost(context.Background(), postURL)
	if err != nil {
		t.Fatalf("FetchPost() error = %v", err)
	}
	if got.URL != "https://facebook.com/somepage/posts/222" {
		t.Errorf("URL = %q", got.URL)
	}
}

func TestFetchPost_ScriptTemplate(t *testing.T) {
	postURL := "https://www.facebook.com/somepage/posts/111"
	page := `<html><head><script>window.boot = {};</script></head><body>` +
		`<script type="text/template">` + photoPost + `</script></body></html>`
	client := newTestClient(t, newFakeFetcher(map[string]string{postURL: page}))

	got, err := client.FetchPost(context.Background(), postURL)
	if err != nil {
		t.Fatalf("FetchPost() error = %v", err)
	}
	if got.URL != "https://facebook.com/somepage/posts/111" || got.Media == nil || got.Media.Type != MediaFacebookImage {
		t.Errorf("FetchPost() = %+v", got)
	}
}

func TestFetchPost_NoPost(t *testing.T) {
	postURL := "https://www.facebook.com/somepage/posts/1"
	client := newTestClient(t, newFakeFetcher(map[string]string{postURL: `<html><body>gone</body></html>`}))

	if _, err := client.FetchPost(context.Background(), postURL); !errors.Is(err, ErrExtraction) {
		t.Errorf("FetchPost() error = %v, want ErrExtraction", err)
	}
}

func notePage(title, href, date string) string {
	return `<html><body><div class="_39k2"><div class="_4lmk _5s6c">` + title + `</div>` +
		`<a href="/somepage/">Some Page</a><a href="` + href + `">` + date + `</a></div>` +
		`<div class="_39k5 _5s6c"><div>Body of ` + title + `</div></div></body></html>`
}

func TestFetchNotes(t *testing.T) {
	notesURL := NotesURL(NotesRequest{PageID: testPageID, Count: 2})
	listing := noteListingItem("First", "/notes/somepage/first/1/") +
		brokenPost +
		noteListingItem("Second", "/notes/somepage/second/2/")
	ff := newFakeFetcher(map[string]string{
		"https://m.facebook.com/somepage":               mobileProfileHTML,
		"https://facebook.com/notes/somepage/first/1/":  notePage("First", "/notes/somepage/first/1/", "Jan 31"),
		"https://facebook.com/notes/somepage/second/2/": notePage("Second", "/notes/somepage/second/2/", "Jan 30"),
	})
	ff.bodies[notesURL] = notesEnvelope(t, listing)
	client := newTestClient(t, ff, WithConcurrency(2))

	notes, err := client.FetchNotes(context.Background(), NotesQuery{Profile: "somepage", Count: 2})
	if err != nil {
		t.Fatalf("FetchNotes() error = %v", err)
	}

	want := []*Note{
		{
			Author:               "Some Page",
			PublicationDate:      "31/01/2019",
			PublicationTimestamp: 1548928800,
			Title:                "First",
			URL:                  "https://facebook.com/notes/somepage/first/1/",
			Content:              []ContentBlock{{Type: BlockText, Content: "Body of First"}},
		},
		{
			Author:               "Some Page",
			PublicationDate:      "31/01/2019",
			PublicationTimestamp: 1548928800,
			Title:                "Second",
			URL:                  "https://facebook.com/notes/somepage/second/2/",
			Content:              []ContentBlock{{Type: BlockText, Content: "Body of Second"}},
		},
	}
	if diff := cmp.Diff(want, notes); diff != "" {
		t.Errorf("FetchNotes() mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchNotes_FetchFailure(t *testing.T) {
	notesURL := NotesURL(NotesRequest{PageID: testPageID, Count: 2})
	listing := noteListingItem("First", "/notes/somepage/first/1/") +
		noteListingItem("Gone", "/notes/somepage/gone/2/")
	ff := newFakeFetcher(map[string]string{
		"https://facebook.com/notes/somepage/first/1/": notePage("First", "/notes/somepage/first/1/", "Jan 31"),
	})
	ff.bodies[notesURL] = notesEnvelope(t, listing)
	client := newTestClient(t, ff)

	_, err := client.FetchNotes(context.Background(), NotesQuery{Profile: "somepage", Count: 2, PageID: testPageID})
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("FetchNotes() error = %v, want ErrFetch", err)
	}
	var itemErr *ItemError
	if !errors.As(err, &itemErr) || itemErr.Index != 1 {
		t.Errorf("FetchNotes() error = %v, want ItemError at index 1", err)
	}
	var httpErr *httpcache.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusNotFound {
		t.Errorf("FetchNotes() error = %v, want HTTP 404", err)
	}
}

func TestFetchNotes_SkipsMalformedNote(t *testing.T) {
	notesURL := NotesURL(NotesRequest{PageID: testPageID, Count: 2})
	listing := noteListingItem("First", "/notes/somepage/first/1/") +
		noteListingItem("Empty", "/notes/somepage/empty/2/")
	ff := newFakeFetcher(map[string]string{
		"https://facebook.com/notes/somepage/first/1/": notePage("First", "/notes/somepage/first/1/", "Jan 31"),
		"https://facebook.com/notes/somepage/empty/2/": `<html><body>removed</body></html>`,
	})
	ff.bodies[notesURL] = notesEnvelope(t, listing)
	ctx := context.Background()
	q := NotesQuery{Profile: "somepage", Count: 2, PageID: testPageID}

	notes, err := newTestClient(t, ff).FetchNotes(ctx, q)
	if err != nil {
		t.Fatalf("FetchNotes() error = %v", err)
	}
	if len(notes) != 1 || notes[0].Title != "First" {
		t.Errorf("FetchNotes() = %+v, want only First", notes)
	}

	if _, err := newTestClient(t, ff, WithStrict(true)).FetchNotes(ctx, q); !errors.Is(err, ErrExtraction) {
		t.Errorf("strict FetchNotes() error = %v, want ErrExtraction", err)
	}
}

func TestFetchNotes_InvalidInput(t *testing.T) {
	client := newTestClient(t, newFakeFetcher(nil))
	ctx := context.Background()

	if _, err := client.FetchNotes(ctx, NotesQuery{Count: 1}); !errors.Is(err, ErrInput) {
		t.Errorf("empty profile error = %v, want ErrInput", err)
	}
	if _, err := client.FetchNotes(ctx, NotesQuery{Profile: "p"}); !errors.Is(err, ErrInput) {
		t.Errorf("zero count error = %v, want ErrInput", err)
	}
}

func TestFetchNote(t *testing.T) {
	noteURL := "https://www.facebook.com/notes/somepage/my-note/1234/"
	client := newTestClient(t, newFakeFetcher(map[string]string{
		noteURL: notePageHTML(`<div class="_39k5 _5s6c"><div>Hello</div></div>`),
	}))

	got, err := client.FetchNote(context.Background(), noteURL)
	if err != nil {
		t.Fatalf("FetchNote() error = %v", err)
	}
	if got.Title != "My Note" || got.ImageURL != "https://scontent/cover.jpg" || got.PublicationTimestamp != 0 {
		t.Errorf("FetchNote() = %+v", got)
	}
}

func TestProfileFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.facebook.com/somepage/posts/111", "somepage"},
		{"https://facebook.com/notes/somepage/my-note/1234/", "somepage"},
		{"https://www.facebook.com/permalink.php?story_fbid=1&id=2", ""},
		{"https://www.facebook.com/", ""},
		{"/somepage/videos/1", "somepage"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := ProfileFromURL(tt.url); got != tt.want {
				t.Errorf("ProfileFromURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

type mockTransport struct {
	mockURL string
}

func (t *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = t.mockURL[7:] // Strip "http://"
	return http.DefaultTransport.RoundTrip(req)
}

func TestFetchPosts_OverHTTP(t *testing.T) {
	var mu sync.Mutex
	var agents []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents = append(agents, r.Header.Get("User-Agent"))
		mu.Unlock()

		switch {
		case r.URL.Path == "/somepage":
			_, _ = w.Write([]byte(mobileProfileHTML)) //nolint:errcheck // test helper
		case strings.HasPrefix(r.URL.Path, "/pages_reaction_units/more"):
			if r.URL.Query().Get("page_id") != testPageID {
				http.Error(w, "wrong page", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(timelineEnvelope(t, photoPost))) //nolint:errcheck // test helper
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	fetcher := httpcache.NewClient(
		httpcache.WithHTTPClient(&http.Client{Transport: &mockTransport{mockURL: server.URL}}),
		httpcache.WithLogger(discardLogger()),
	)
	client := newTestClient(t, fetcher)

	posts, err := client.FetchPosts(context.Background(), PostsQuery{Profile: "somepage", FromDate: "2019-01-31", Count: 1})
	if err != nil {
		t.Fatalf("FetchPosts() error = %v", err)
	}
	if len(posts) != 1 || posts[0].URL != "https://facebook.com/somepage/posts/111" {
		t.Errorf("FetchPosts() = %+v", posts)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(agents) != 2 || agents[0] != httpcache.MobileUserAgent || agents[1] != httpcache.UserAgent {
		t.Errorf("user agents = %q", agents)
	}
}
