package ogservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/gosimple/slug"

	"github.com/starford/ogfetch/internal/apperr"
	"github.com/starford/ogfetch/internal/checksum"
	"github.com/starford/ogfetch/internal/frontmatter"
	"github.com/starford/ogfetch/internal/index"
	"github.com/starford/ogfetch/internal/planner"
)

const maxSlugLen = 80

// CreateDocument fetches metadata for rawURL and writes a new document under
// dir named after the page title. The file must not exist yet.
func (s *Service) CreateDocument(ctx context.Context, dir, rawURL string, opts ProcessOptions) (*Result, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, apperr.ErrNoURLFound
	}
	policy := s.policy.Apply(opts.Overrides)
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	rec, cached, err := s.fetch(ctx, rawURL, opts.Force)
	if err != nil {
		return nil, err
	}
	rec = s.complete(rec, rawURL)

	block := frontmatter.NewBlock()
	block.Set(s.fields.Key(planner.FieldURL), frontmatter.String(rawURL))
	next, err := planner.Plan(block, rec, s.fields, policy)
	if err != nil {
		return nil, err
	}
	content := frontmatter.Rewrite("", next)

	name := Slug(rec.Title)
	if name == "" {
		name = slugFromURL(rawURL)
	}
	p := path.Join(dir, name+".md")
	if err := s.store.Create(p, []byte(content)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", apperr.ErrFileCreation, p, err)
	}

	res := &Result{
		Path:     p,
		URL:      rawURL,
		Record:   &rec,
		Cached:   cached,
		Written:  true,
		Checksum: checksum.Sum([]byte(content)),
	}
	s.record(index.FetchRow{
		Path:     p,
		URL:      rawURL,
		Status:   index.StatusOK,
		Title:    rec.Title,
		Checksum: res.Checksum,
	})
	s.logger.Info("document created", slog.String("path", p), slog.String("url", rawURL))
	s.emit(EventProcessed, res)
	return res, nil
}

// Slug turns a title into a lowercase, dash-separated ASCII file name of at
// most maxSlugLen bytes.
func Slug(title string) string {
	out := slug.Make(title)
	if len(out) > maxSlugLen {
		out = strings.TrimRight(out[:maxSlugLen], "-_")
	}
	return out
}

func slugFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		if s := Slug(raw); s != "" {
			return s
		}
		return "untitled"
	}
	if s := Slug(u.Host + " " + u.Path); s != "" {
		return s
	}
	return "untitled"
}
