// Package ogservice runs the fetch, plan and write pipeline for vault documents.
package ogservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/starford/ogfetch/internal/apperr"
	"github.com/starford/ogfetch/internal/cache"
	"github.com/starford/ogfetch/internal/checksum"
	"github.com/starford/ogfetch/internal/fetcher"
	"github.com/starford/ogfetch/internal/frontmatter"
	"github.com/starford/ogfetch/internal/index"
	"github.com/starford/ogfetch/internal/metadata"
	"github.com/starford/ogfetch/internal/planner"
	"github.com/starford/ogfetch/internal/storage"
)

// Fetcher retrieves normalized metadata for a URL.
type Fetcher interface {
	FetchMetadata(ctx context.Context, url string) (metadata.Record, error)
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Fields  planner.Table
	Policy  planner.Policy
	Cache   *cache.Cache
	History index.History
	Logger  *slog.Logger
	OnEvent EventFunc
	Sleep   fetcher.SleepFunc
	Now     func() time.Time
}

// Service coordinates storage, fetching and the fetch history.
type Service struct {
	store   storage.Provider
	fetcher Fetcher
	fields  planner.Table
	policy  planner.Policy
	cache   *cache.Cache
	history index.History
	logger  *slog.Logger
	onEvent EventFunc
	sleep   fetcher.SleepFunc
	now     func() time.Time

	mu     sync.Mutex
	active *Batch
	last   *Summary
}

// New creates a Service.
func New(store storage.Provider, f Fetcher, opts Options) *Service {
	s := &Service{
		store:   store,
		fetcher: f,
		fields:  opts.Fields,
		policy:  opts.Policy,
		cache:   opts.Cache,
		history: opts.History,
		logger:  opts.Logger,
		onEvent: opts.OnEvent,
		sleep:   opts.Sleep,
		now:     opts.Now,
	}
	if s.fields == (planner.Table{}) {
		s.fields = planner.DefaultFieldNames().Table()
	}
	if s.cache == nil {
		s.cache = cache.New(0, nil)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.sleep == nil {
		s.sleep = fetcher.Sleep
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Policy returns the configured write policy.
func (s *Service) Policy() planner.Policy { return s.policy }

// Fields returns the resolved field table.
func (s *Service) Fields() planner.Table { return s.fields }

// Cache exposes the metadata cache for explicit invalidation.
func (s *Service) Cache() *cache.Cache { return s.cache }

// ProcessOptions adjusts one run.
type ProcessOptions struct {
	Overrides planner.Overrides `json:"overrides"`
	// Force bypasses and refreshes the cache entry for the document's URL.
	Force bool `json:"force"`
}

// Result describes the outcome of processing one document.
type Result struct {
	Path     string           `json:"path"`
	URL      string           `json:"url,omitempty"`
	Record   *metadata.Record `json:"record,omitempty"`
	Cached   bool             `json:"cached"`
	Written  bool             `json:"written"`
	Checksum string           `json:"checksum,omitempty"`
	Error    string           `json:"error,omitempty"`
	Code     string           `json:"code,omitempty"`
}

func (s *Service) emit(kind string, data any) {
	if s.onEvent != nil {
		s.onEvent(kind, data)
	}
}

func (s *Service) setState(path string, st State) {
	s.logger.Debug("document state", slog.String("path", path), slog.String("state", st.String()))
	s.emit(EventState, StateChange{Path: path, State: st})
}

// ProcessDocument fetches metadata for the url in the document at path and
// writes the planned frontmatter back. On a fetch failure the error fields are
// written when the policy allows it and the fetch error is returned together
// with a non-nil Result.
func (s *Service) ProcessDocument(ctx context.Context, path string, opts ProcessOptions) (*Result, error) {
	if path == "" {
		return nil, apperr.ErrNoActiveDocument
	}
	policy := s.policy.Apply(opts.Overrides)
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, apperr.ErrNoActiveDocument)
		}
		return nil, err
	}
	doc := string(data)

	block, ok := frontmatter.Parse(doc)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, apperr.ErrNoURLFound)
	}
	u, _ := block.Text(s.fields.Key(planner.FieldURL))
	if u == "" {
		return nil, fmt.Errorf("%s: %w", path, apperr.ErrNoURLFound)
	}

	res := &Result{Path: path, URL: u}
	s.setState(path, StateFetching)
	rec, cached, err := s.fetch(ctx, u, opts.Force)
	if err != nil {
		return s.fail(ctx, res, doc, block, policy, err)
	}
	res.Cached = cached

	s.setState(path, StateNormalizing)
	rec = s.complete(rec, u)

	s.setState(path, StatePlanning)
	next, err := planner.Plan(block, rec, s.fields, policy)
	if err != nil {
		return nil, err
	}

	s.setState(path, StateSerializing)
	out := frontmatter.Rewrite(doc, next)
	if out != doc {
		if err := s.store.Write(path, []byte(out)); err != nil {
			s.setState(path, StateFailed)
			return nil, fmt.Errorf("%w: %s: %v", apperr.ErrFileWrite, path, err)
		}
		res.Written = true
	}
	res.Record = &rec
	res.Checksum = checksum.Sum([]byte(out))

	s.record(index.FetchRow{
		Path:     path,
		URL:      u,
		Status:   index.StatusOK,
		Title:    rec.Title,
		Checksum: res.Checksum,
	})
	s.setState(path, StateDone)
	s.logger.Info("document processed",
		slog.String("path", path),
		slog.String("url", u),
		slog.Bool("cached", cached),
		slog.Bool("written", res.Written))
	s.emit(EventProcessed, res)
	return res, nil
}

// fail records a fetch failure in the document and the history.
func (s *Service) fail(ctx context.Context, res *Result, doc string, block *frontmatter.Block, policy planner.Policy, cause error) (*Result, error) {
	s.setState(res.Path, StateFailed)
	res.Error = cause.Error()
	res.Code = apperr.Code(cause)
	s.logger.Warn("document fetch failed",
		slog.String("path", res.Path),
		slog.String("url", res.URL),
		slog.String("error", cause.Error()))

	// A cancelled run is not a property of the document.
	if ctx.Err() != nil {
		return res, cause
	}

	out := doc
	if policy.WriteErrors {
		s.setState(res.Path, StateErrorWriting)
		next := planner.PlanFailure(block, cause, policy, s.now())
		out = frontmatter.Rewrite(doc, next)
		if out != doc {
			if err := s.store.Write(res.Path, []byte(out)); err != nil {
				return res, errors.Join(cause, fmt.Errorf("%w: %s: %v", apperr.ErrFileWrite, res.Path, err))
			}
			res.Written = true
		}
	}
	res.Checksum = checksum.Sum([]byte(out))

	s.record(index.FetchRow{
		Path:      res.Path,
		URL:       res.URL,
		Status:    index.StatusError,
		ErrorCode: res.Code,
		Error:     res.Error,
		Checksum:  res.Checksum,
	})
	s.setState(res.Path, StateDone)
	s.emit(EventFailed, res)
	return res, cause
}

// fetch consults the cache before calling the fetcher. force drops any
// cached entry first.
func (s *Service) fetch(ctx context.Context, url string, force bool) (metadata.Record, bool, error) {
	if force {
		s.cache.Invalidate(url)
	} else if rec, ok := s.cache.Get(url); ok {
		return rec, true, nil
	}
	rec, err := s.fetcher.FetchMetadata(ctx, url)
	if err != nil {
		return metadata.Record{}, false, err
	}
	s.cache.Put(url, rec)
	return rec, false, nil
}

// complete fills the fields a fetcher may leave unset.
func (s *Service) complete(rec metadata.Record, requested string) metadata.Record {
	if rec.URL == "" {
		rec.URL = requested
	}
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = s.now()
	}
	return rec
}

func (s *Service) record(row index.FetchRow) {
	if s.history == nil {
		return
	}
	row.FetchedAt = s.now()
	if err := s.history.Record(row); err != nil {
		s.logger.Warn("history record failed", slog.String("path", row.Path), slog.String("error", err.Error()))
	}
}

// ReadFrontmatter returns the parsed frontmatter of the document at path.
// A document without a block yields an empty block.
func (s *Service) ReadFrontmatter(_ context.Context, path string) (*frontmatter.Block, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, apperr.ErrNotFound)
		}
		return nil, err
	}
	b, ok := frontmatter.Parse(string(data))
	if !ok {
		return frontmatter.NewBlock(), nil
	}
	return b, nil
}

// ClearCache drops the cached record for url, or every record when url is empty.
func (s *Service) ClearCache(url string) {
	if url == "" {
		s.cache.Clear()
		return
	}
	s.cache.Invalidate(url)
}
