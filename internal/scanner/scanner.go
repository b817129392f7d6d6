// Package scanner finds vault documents that reference a URL and reports how
// complete their metadata is.
package scanner

import (
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/araddon/dateparse"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/starford/ogfetch/internal/apperr"
	"github.com/starford/ogfetch/internal/frontmatter"
	"github.com/starford/ogfetch/internal/models"
	"github.com/starford/ogfetch/internal/planner"
	"github.com/starford/ogfetch/internal/storage"
)

// Options configures a Scanner.
type Options struct {
	// Include restricts scanning to paths matching any of these globs.
	// Empty means every Markdown file.
	Include []string
	// Exclude drops paths matching any of these globs.
	Exclude []string
	Fields  planner.Table
	Logger  *slog.Logger
}

// Scanner inspects vault documents.
type Scanner struct {
	store   storage.Provider
	include []string
	exclude []string
	fields  planner.Table
	logger  *slog.Logger
}

// New validates the glob patterns and returns a Scanner.
func New(store storage.Provider, opts Options) (*Scanner, error) {
	for _, p := range append(append([]string{}, opts.Include...), opts.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: invalid scan pattern %q", apperr.ErrConfiguration, p)
		}
	}
	fields := opts.Fields
	if fields == (planner.Table{}) {
		fields = planner.DefaultFieldNames().Table()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		store:   store,
		include: opts.Include,
		exclude: opts.Exclude,
		fields:  fields,
		logger:  logger,
	}, nil
}

// Match reports whether a vault-relative path passes the include and
// exclude globs.
func (s *Scanner) Match(p string) bool {
	for _, pat := range s.exclude {
		if ok, _ := doublestar.Match(pat, p); ok {
			return false
		}
	}
	if len(s.include) == 0 {
		return true
	}
	for _, pat := range s.include {
		if ok, _ := doublestar.Match(pat, p); ok {
			return true
		}
	}
	return false
}

// Scan lists the documents under dir that carry a string url key.
// Unreadable files are logged and skipped.
func (s *Scanner) Scan(dir string) ([]models.FileInfo, error) {
	metas, err := s.store.List(dir)
	if err != nil {
		return nil, err
	}
	var out []models.FileInfo
	for _, m := range metas {
		if !s.Match(m.Path) {
			continue
		}
		data, err := s.store.Read(m.Path)
		if err != nil {
			s.logger.Warn("scan: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if info, ok := s.Inspect(m.Path, string(data)); ok {
			out = append(out, info)
		}
	}
	return out, nil
}

// Inspect builds the FileInfo for one document. It returns false when the
// document has no frontmatter or no non-empty string url.
func (s *Scanner) Inspect(p, doc string) (models.FileInfo, bool) {
	b, ok := frontmatter.Parse(doc)
	if !ok {
		return models.FileInfo{}, false
	}
	u, ok := b.Text(s.fields.Key(planner.FieldURL))
	if !ok || u == "" {
		return models.FileInfo{}, false
	}
	missing := planner.Missing(b, s.fields)
	info := models.FileInfo{
		Path:          p,
		Name:          path.Base(p),
		URL:           u,
		HasMetadata:   len(missing) == 0,
		MissingFields: missing,
		HasError:      b.Populated(planner.ErrorKey),
	}
	if raw, ok := b.Text(s.fields.Key(planner.FieldFetchDate)); ok && raw != "" {
		if at, err := dateparse.ParseStrict(raw); err == nil {
			at = at.UTC()
			info.LastFetch = &at
		}
	}
	return info, true
}

// Eligible decides whether a scanned document should be fetched by a batch.
// Complete documents are skipped under SkipExistingData unless refreshAfter
// is positive and their last fetch is older than that.
func Eligible(info models.FileInfo, p planner.Policy, refreshAfter time.Duration, now time.Time) bool {
	if !info.HasMetadata || !p.SkipExistingData {
		return true
	}
	if refreshAfter <= 0 {
		return false
	}
	return info.LastFetch == nil || now.Sub(*info.LastFetch) >= refreshAfter
}

// Select scans dir and returns the paths a batch should fetch, in listing order.
func (s *Scanner) Select(dir string, p planner.Policy, refreshAfter time.Duration, now time.Time) ([]string, error) {
	infos, err := s.Scan(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, info := range infos {
		if Eligible(info, p, refreshAfter, now) {
			out = append(out, info.Path)
		}
	}
	return out, nil
}
