package ogservice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/ogfetch/internal/apperr"
	"github.com/starford/ogfetch/internal/cache"
	"github.com/starford/ogfetch/internal/fetcher"
	"github.com/starford/ogfetch/internal/index"
	"github.com/starford/ogfetch/internal/metadata"
	"github.com/starford/ogfetch/internal/planner"
	"github.com/starford/ogfetch/internal/storage"
	"github.com/starford/ogfetch/internal/testutil"
)

var fixedNow = time.Date(2025, 2, 3, 4, 5, 6, 789_000_000, time.UTC)

func clock() time.Time { return fixedNow }

func siteA() metadata.Record {
	return metadata.Record{
		Title:       "A",
		Description: "B",
		Image:       "https://a.test/i.png",
		URL:         "https://a.test",
		FetchedAt:   fixedNow,
	}
}

type env struct {
	store   *storage.FS
	fetch   *testutil.Fetcher
	history *index.DB
	svc     *Service

	mu     sync.Mutex
	events []string
}

func newEnv(t *testing.T, files map[string]string, policy planner.Policy) *env {
	t.Helper()
	_, store := testutil.TestVault(t, files)
	e := &env{
		store:   store,
		fetch:   &testutil.Fetcher{Records: map[string]metadata.Record{"https://a.test": siteA()}},
		history: testutil.TestDB(t),
	}
	e.svc = New(store, e.fetch, Options{
		Policy:  policy,
		Cache:   cache.New(time.Hour, clock),
		History: e.history,
		Logger:  testutil.Logger(),
		Now:     clock,
		OnEvent: func(kind string, _ any) {
			e.mu.Lock()
			e.events = append(e.events, kind)
			e.mu.Unlock()
		},
	})
	return e
}

func (e *env) read(t *testing.T, p string) string {
	t.Helper()
	data, err := e.store.Read(p)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func (e *env) sawEvent(kind string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, k := range e.events {
		if k == kind {
			return true
		}
	}
	return false
}

func TestProcessDocument_Scenario(t *testing.T) {
	e := newEnv(t, map[string]string{"a.md": "---\nurl: https://a.test\n---\nbody"},
		planner.Policy{CreateNewProperties: true, UpdateFetchDate: true})

	res, err := e.svc.ProcessDocument(context.Background(), "a.md", ProcessOptions{})
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if !res.Written || res.Cached {
		t.Errorf("result = %+v", res)
	}
	want := "---\nurl: \"https://a.test\"\nog_title: A\nog_description: B\nog_image: \"https://a.test/i.png\"\nog_last_fetch: \"2025-02-03T04:05:06.789Z\"\n---\nbody"
	if got := e.read(t, "a.md"); got != want {
		t.Errorf("document =\n%s\nwant\n%s", got, want)
	}

	row, err := e.history.Get("a.md")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if row.Status != index.StatusOK || row.Title != "A" || row.Checksum != res.Checksum {
		t.Errorf("history row = %+v", row)
	}
	if !e.sawEvent(EventProcessed) || !e.sawEvent(EventState) {
		t.Error("expected processed and state events")
	}
}

func TestProcessDocument_IdempotentSecondRun(t *testing.T) {
	doc := "---\nurl: https://a.test\nog_title: A\nog_description: B\nog_image: https://a.test/i.png\n---\nbody\n"
	e := newEnv(t, map[string]string{"a.md": doc}, planner.Policy{CreateNewProperties: true})

	if _, err := e.svc.ProcessDocument(context.Background(), "a.md", ProcessOptions{}); err != nil {
		t.Fatal(err)
	}
	first := e.read(t, "a.md")
	res, err := e.svc.ProcessDocument(context.Background(), "a.md", ProcessOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Written {
		t.Error("second run should not write")
	}
	if got := e.read(t, "a.md"); got != first {
		t.Errorf("second run changed document:\n%q\n%q", first, got)
	}
	if !res.Cached {
		t.Error("second run should be served from cache")
	}
	if n := len(e.fetch.Calls()); n != 1 {
		t.Errorf("fetch calls = %d, want 1", n)
	}
}

func TestProcessDocument_ForceBypassesCache(t *testing.T) {
	e := newEnv(t, map[string]string{"a.md": "---\nurl: https://a.test\n---\n"}, planner.DefaultPolicy())
	ctx := context.Background()
	_, _ = e.svc.ProcessDocument(ctx, "a.md", ProcessOptions{})
	res, err := e.svc.ProcessDocument(ctx, "a.md", ProcessOptions{Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached || len(e.fetch.Calls()) != 2 {
		t.Errorf("force did not refetch: cached=%v calls=%v", res.Cached, e.fetch.Calls())
	}
}

func TestProcessDocument_Preconditions(t *testing.T) {
	e := newEnv(t, map[string]string{
		"nourl.md":  "---\ntitle: x\n---\n",
		"plain.md":  "just text",
		"numurl.md": "---\nurl: 42\n---\n",
	}, planner.DefaultPolicy())
	ctx := context.Background()

	cases := []struct {
		path string
		want error
	}{
		{"", apperr.ErrNoActiveDocument},
		{"missing.md", apperr.ErrNoActiveDocument},
		{"nourl.md", apperr.ErrNoURLFound},
		{"plain.md", apperr.ErrNoURLFound},
		{"numurl.md", apperr.ErrNoURLFound},
	}
	for _, tc := range cases {
		_, err := e.svc.ProcessDocument(ctx, tc.path, ProcessOptions{})
		if !errors.Is(err, tc.want) {
			t.Errorf("%q: err = %v, want %v", tc.path, err, tc.want)
		}
	}
	if len(e.fetch.Calls()) != 0 {
		t.Errorf("fetch attempted: %v", e.fetch.Calls())
	}
}

func TestProcessDocument_PolicyGuard(t *testing.T) {
	doc := "---\nurl: https://a.test\n---\n"
	e := newEnv(t, map[string]string{"a.md": doc}, planner.DefaultPolicy())
	no := false
	_, err := e.svc.ProcessDocument(context.Background(), "a.md", ProcessOptions{
		Overrides: planner.Overrides{CreateNewProperties: &no},
	})
	if !errors.Is(err, apperr.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
	if len(e.fetch.Calls()) != 0 || e.read(t, "a.md") != doc {
		t.Error("nothing should happen under an invalid policy")
	}
}

func TestProcessDocument_FailureWritesErrorFields(t *testing.T) {
	e := newEnv(t, map[string]string{"a.md": "---\nurl: https://down.test\nog_title: Keep\n---\nbody\n"}, planner.DefaultPolicy())
	cause := &fetcher.ExhaustedError{URL: "https://down.test", Attempts: 3, Last: errors.New("503")}
	e.fetch.Errors = map[string]error{"https://down.test": cause}

	res, err := e.svc.ProcessDocument(context.Background(), "a.md", ProcessOptions{})
	if !errors.Is(err, apperr.ErrFetchExhausted) {
		t.Fatalf("err = %v, want ErrFetchExhausted", err)
	}
	if res == nil || res.Code != "FETCH_FAILURE" || !res.Written {
		t.Fatalf("result = %+v", res)
	}
	got := e.read(t, "a.md")
	for _, want := range []string{
		"og_title: Keep\n",
		"og_error: ",
		"og_error_timestamp: \"2025-02-03T04:05:06.789Z\"\n",
		"og_error_code: FETCH_FAILURE\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("document missing %q:\n%s", want, got)
		}
	}
	if !strings.HasSuffix(got, "---\nbody\n") {
		t.Errorf("body not preserved: %q", got)
	}
	row, _ := e.history.Get("a.md")
	if row == nil || row.Status != index.StatusError || row.ErrorCode != "FETCH_FAILURE" {
		t.Errorf("history row = %+v", row)
	}
	if !e.sawEvent(EventFailed) {
		t.Error("expected failed event")
	}

	// A later success clears the error fields.
	e.fetch.Errors = nil
	e.fetch.Records["https://down.test"] = metadata.Record{Title: "Up", Description: "D", Image: "I"}
	if _, err := e.svc.ProcessDocument(context.Background(), "a.md", ProcessOptions{}); err != nil {
		t.Fatal(err)
	}
	if got := e.read(t, "a.md"); strings.Contains(got, "og_error") {
		t.Errorf("error fields not cleared:\n%s", got)
	}
}

func TestProcessDocument_FailureWithoutErrorWriting(t *testing.T) {
	doc := "---\nurl: https://down.test\n---\n"
	p := planner.DefaultPolicy()
	p.WriteErrors = false
	e := newEnv(t, map[string]string{"a.md": doc}, p)
	e.fetch.Err = apperr.ErrInvalidResponse

	res, err := e.svc.ProcessDocument(context.Background(), "a.md", ProcessOptions{})
	if !errors.Is(err, apperr.ErrInvalidResponse) {
		t.Fatalf("err = %v", err)
	}
	if res.Written || e.read(t, "a.md") != doc {
		t.Error("document must be untouched when error writing is off")
	}
}

func TestProcessDocument_CancelledNotRecorded(t *testing.T) {
	doc := "---\nurl: https://a.test\n---\n"
	e := newEnv(t, map[string]string{"a.md": doc}, planner.DefaultPolicy())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.svc.ProcessDocument(ctx, "a.md", ProcessOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if e.read(t, "a.md") != doc {
		t.Error("cancelled run wrote to the document")
	}
	if _, err := e.history.Get("a.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Error("cancelled run recorded in history")
	}
}

func TestReadFrontmatter(t *testing.T) {
	e := newEnv(t, map[string]string{
		"a.md": "---\nurl: https://a.test\ntags:\n  - x\n---\n",
		"b.md": "no block",
	}, planner.DefaultPolicy())
	b, err := e.svc.ReadFrontmatter(context.Background(), "a.md")
	if err != nil {
		t.Fatal(err)
	}
	if u, _ := b.Text("url"); u != "https://a.test" || !b.Has("tags") {
		t.Errorf("block = %v", b.Map())
	}
	empty, err := e.svc.ReadFrontmatter(context.Background(), "b.md")
	if err != nil || empty.Len() != 0 {
		t.Errorf("b.md: %v %v", empty, err)
	}
	if _, err := e.svc.ReadFrontmatter(context.Background(), "none.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing: err = %v", err)
	}
}

func TestCreateDocument(t *testing.T) {
	e := newEnv(t, nil, planner.DefaultPolicy())
	e.fetch.Records["https://b.test/post"] = metadata.Record{Title: "Hello, World! 2025", Description: "D"}
	ctx := context.Background()

	res, err := e.svc.CreateDocument(ctx, "links", "https://b.test/post", ProcessOptions{})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if res.Path != "links/hello-world-2025.md" {
		t.Errorf("path = %q", res.Path)
	}
	want := "---\nurl: \"https://b.test/post\"\nog_title: \"Hello, World! 2025\"\nog_description: D\nog_last_fetch: \"2025-02-03T04:05:06.789Z\"\n---\n"
	if got := e.read(t, res.Path); got != want {
		t.Errorf("content =\n%s\nwant\n%s", got, want)
	}

	_, err = e.svc.CreateDocument(ctx, "links", "https://b.test/post", ProcessOptions{})
	if !errors.Is(err, apperr.ErrFileCreation) || !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("second create err = %v", err)
	}

	if _, err := e.svc.CreateDocument(ctx, "links", " ", ProcessOptions{}); !errors.Is(err, apperr.ErrNoURLFound) {
		t.Errorf("blank url err = %v", err)
	}
}

func TestCreateDocument_UntitledFallsBackToURL(t *testing.T) {
	e := newEnv(t, nil, planner.DefaultPolicy())
	e.fetch.Records["https://c.test/some/page"] = metadata.Record{Description: "no title"}
	res, err := e.svc.CreateDocument(context.Background(), "", "https://c.test/some/page", ProcessOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != "c-test-some-page.md" {
		t.Errorf("path = %q", res.Path)
	}
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Hello World":         "hello-world",
		"  --Go: the Good--  ": "go-the-good",
		"Ünïcode Straße":      "unicode-strasse",
		"!!!":                 "",
		strings.Repeat("a", 100):     strings.Repeat("a", maxSlugLen),
		strings.Repeat("ab ", 40):    strings.TrimSuffix(strings.Repeat("ab-", 27), "-"),
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClearCache(t *testing.T) {
	e := newEnv(t, map[string]string{"a.md": "---\nurl: https://a.test\n---\n"}, planner.DefaultPolicy())
	ctx := context.Background()
	_, _ = e.svc.ProcessDocument(ctx, "a.md", ProcessOptions{})
	if e.svc.Cache().Len() != 1 {
		t.Fatalf("cache len = %d", e.svc.Cache().Len())
	}
	e.svc.ClearCache("https://a.test")
	if e.svc.Cache().Len() != 0 {
		t.Error("entry not invalidated")
	}
}
