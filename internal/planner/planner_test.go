package planner

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/starford/ogfetch/internal/apperr"
	"github.com/starford/ogfetch/internal/frontmatter"
	"github.com/starford/ogfetch/internal/metadata"
)

var at = time.Date(2025, 2, 3, 4, 5, 6, 789_000_000, time.UTC)

func record() metadata.Record {
	return metadata.Record{
		Title:       "A",
		Description: "B",
		Image:       "https://a.test/i.png",
		URL:         "https://a.test",
		FetchedAt:   at,
	}
}

func parse(t *testing.T, doc string) *frontmatter.Block {
	t.Helper()
	b, ok := frontmatter.Parse(doc)
	if !ok {
		t.Fatalf("no block in %q", doc)
	}
	return b
}

func text(b *frontmatter.Block, key string) string {
	s, _ := b.Text(key)
	return s
}

func TestPlan_Scenario(t *testing.T) {
	doc := "---\nurl: https://a.test\n---\nbody"
	p := Policy{CreateNewProperties: true, UpdateFetchDate: true}
	out, err := Plan(parse(t, doc), record(), DefaultFieldNames().Table(), p)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	got := frontmatter.Rewrite(doc, out)
	want := "---\nurl: \"https://a.test\"\nog_title: A\nog_description: B\nog_image: \"https://a.test/i.png\"\nog_last_fetch: \"2025-02-03T04:05:06.789Z\"\n---\nbody"
	if got != want {
		t.Errorf("document =\n%s\nwant\n%s", got, want)
	}
}

func TestPlan_MultiLineValueStaysInBlock(t *testing.T) {
	doc := "---\nurl: https://a.test\ntags:\n  - keep\n---\nbody\n"
	rec := record()
	rec.Description = "first line\n---\nsecret: injected"
	out, err := Plan(parse(t, doc), rec, DefaultFieldNames().Table(), DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	written := frontmatter.Rewrite(doc, out)
	again := parse(t, written)
	if strings.Join(again.Keys(), ",") != strings.Join(out.Keys(), ",") {
		t.Fatalf("keys after rewrite = %v, want %v\n%s", again.Keys(), out.Keys(), written)
	}
	if text(again, "og_description") != "first line --- secret: injected" {
		t.Errorf("og_description = %q", text(again, "og_description"))
	}
	if frontmatter.Body(written) != "body\n" {
		t.Errorf("body = %q", frontmatter.Body(written))
	}
}

func TestPlan_PolicyGuard(t *testing.T) {
	b := frontmatter.NewBlock()
	b.Set("og_title", frontmatter.String("keep"))
	out, err := Plan(b, record(), DefaultFieldNames().Table(), Policy{UpdateFetchDate: true})
	if !errors.Is(err, apperr.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
	if out != nil {
		t.Error("no block should be returned on configuration error")
	}
	if text(b, "og_title") != "keep" || b.Len() != 1 {
		t.Error("input block must not be modified")
	}
}

func TestPlan_CreateOnlyKeepsExisting(t *testing.T) {
	b := parse(t, "---\nurl: https://a.test\nog_title: Mine\nog_description: \"\"\n---\n")
	out, err := Plan(b, record(), DefaultFieldNames().Table(), Policy{CreateNewProperties: true})
	if err != nil {
		t.Fatal(err)
	}
	if text(out, "og_title") != "Mine" {
		t.Errorf("existing title overwritten: %q", text(out, "og_title"))
	}
	if text(out, "og_description") != "B" {
		t.Errorf("empty description should be filled, got %q", text(out, "og_description"))
	}
	if out.Has("og_last_fetch") {
		t.Error("fetch date written without UpdateFetchDate")
	}
}

func TestPlan_OverwriteOnlySkipsAbsent(t *testing.T) {
	b := parse(t, "---\nurl: https://old.test\nog_title: Old\n---\n")
	out, err := Plan(b, record(), DefaultFieldNames().Table(), Policy{OverwriteExisting: true})
	if err != nil {
		t.Fatal(err)
	}
	if text(out, "og_title") != "A" {
		t.Errorf("title = %q, want A", text(out, "og_title"))
	}
	if text(out, "url") != "https://a.test" {
		t.Errorf("url = %q", text(out, "url"))
	}
	if out.Has("og_description") || out.Has("og_image") {
		t.Errorf("absent fields created: %v", out.Keys())
	}
}

func TestPlan_EmptyRecordValuesNeverWritten(t *testing.T) {
	b := parse(t, "---\nog_image: https://keep.test/x.png\n---\n")
	rec := record()
	rec.Image = ""
	out, err := Plan(b, rec, DefaultFieldNames().Table(), Policy{CreateNewProperties: true, OverwriteExisting: true})
	if err != nil {
		t.Fatal(err)
	}
	if text(out, "og_image") != "https://keep.test/x.png" {
		t.Errorf("image = %q", text(out, "og_image"))
	}
	if out.Has("og_favicon") {
		t.Error("empty favicon should not be written")
	}
}

func TestPlan_ClearsErrorFields(t *testing.T) {
	b := parse(t, "---\nurl: u\nog_error: boom\nog_error_timestamp: x\nog_error_code: FETCH_FAILURE\n---\n")
	out, err := Plan(b, record(), DefaultFieldNames().Table(), Policy{CreateNewProperties: true})
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{ErrorKey, ErrorTimestampKey, ErrorCodeKey} {
		if out.Has(k) {
			t.Errorf("%s not cleared", k)
		}
	}
}

func TestPlan_CustomFieldNames(t *testing.T) {
	names := FieldNames{Title: "link_title", FetchDate: "fetched"}
	out, err := Plan(nil, record(), names.Table(), Policy{CreateNewProperties: true, UpdateFetchDate: true})
	if err != nil {
		t.Fatal(err)
	}
	if text(out, "link_title") != "A" || !out.Has("fetched") || !out.Has("og_description") {
		t.Errorf("keys = %v", out.Keys())
	}
}

func TestPlan_IdempotentWhenPopulated(t *testing.T) {
	doc := "---\nurl: https://a.test\nog_title: A\nog_description: B\nog_image: \"https://a.test/i.png\"\n---\nbody\n"
	p := Policy{CreateNewProperties: true}
	table := DefaultFieldNames().Table()

	first, err := Plan(parse(t, doc), record(), table, p)
	if err != nil {
		t.Fatal(err)
	}
	once := frontmatter.Rewrite(doc, first)
	second, err := Plan(parse(t, once), record(), table, p)
	if err != nil {
		t.Fatal(err)
	}
	if twice := frontmatter.Rewrite(once, second); twice != once {
		t.Errorf("second run changed document:\n%q\n%q", once, twice)
	}
}

func TestPlanFailure(t *testing.T) {
	b := parse(t, "---\nurl: u\nog_title: Keep\n---\n")
	cause := fmt.Errorf("fetch: %w", apperr.ErrFetchExhausted)

	out := PlanFailure(b, cause, Policy{WriteErrors: true}, at)
	if text(out, ErrorKey) != cause.Error() {
		t.Errorf("og_error = %q", text(out, ErrorKey))
	}
	if text(out, ErrorTimestampKey) != "2025-02-03T04:05:06.789Z" {
		t.Errorf("og_error_timestamp = %q", text(out, ErrorTimestampKey))
	}
	if text(out, ErrorCodeKey) != "FETCH_FAILURE" {
		t.Errorf("og_error_code = %q", text(out, ErrorCodeKey))
	}
	if text(out, "og_title") != "Keep" {
		t.Error("managed field touched on failure")
	}

	plain := PlanFailure(b, errors.New("weird"), Policy{WriteErrors: true}, at)
	if plain.Has(ErrorCodeKey) {
		t.Error("untyped errors should not record a code")
	}

	off := PlanFailure(b, cause, Policy{}, at)
	if !off.Equal(b) {
		t.Error("error writing disabled should leave block unchanged")
	}
}

func TestMissing(t *testing.T) {
	b := parse(t, "---\nog_title: T\nog_image: null\n---\n")
	got := Missing(b, DefaultFieldNames().Table())
	if strings.Join(got, ",") != "description,image" {
		t.Errorf("missing = %v", got)
	}
}

func TestPolicyApply(t *testing.T) {
	yes, no := true, false
	base := DefaultPolicy()
	next := base.Apply(Overrides{OverwriteExisting: &yes, WriteErrors: &no})
	if !next.OverwriteExisting || next.WriteErrors {
		t.Errorf("overrides not applied: %+v", next)
	}
	if base.OverwriteExisting || !base.WriteErrors {
		t.Error("Apply must not mutate the receiver")
	}
}
