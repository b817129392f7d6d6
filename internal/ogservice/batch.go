package ogservice

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/starford/ogfetch/internal/apperr"
)

// DelayFor returns the pause between batch documents: the configured delay
// when set, otherwise one minute spread over rateLimit requests.
func DelayFor(delay time.Duration, rateLimit int) time.Duration {
	if delay > 0 {
		return delay
	}
	if rateLimit > 0 {
		return time.Minute / time.Duration(rateLimit)
	}
	return 0
}

// BatchOptions configures a batch run.
type BatchOptions struct {
	Process ProcessOptions
	Delay   time.Duration
}

// Progress is a snapshot of a running batch.
type Progress struct {
	RunID     string `json:"run_id"`
	Total     int    `json:"total"`
	Index     int    `json:"index"`
	Current   string `json:"current,omitempty"`
	Success   int    `json:"success"`
	Errors    int    `json:"errors"`
	Running   bool   `json:"running"`
	Cancelled bool   `json:"cancelled"`
}

// Summary is the final outcome of a batch run.
type Summary struct {
	RunID      string    `json:"run_id"`
	Total      int       `json:"total"`
	Success    int       `json:"success"`
	Errors     int       `json:"errors"`
	Cancelled  bool      `json:"cancelled"`
	Results    []Result  `json:"results"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Batch processes documents one after another. Cancel is checked between
// documents only; the document in flight always runs to completion.
type Batch struct {
	svc       *Service
	id        string
	cancelled atomic.Bool
	done      chan struct{}

	mu       sync.Mutex
	progress Progress
	summary  Summary
}

// NewBatch creates a batch bound to s with a fresh run id.
func (s *Service) NewBatch() *Batch {
	id := uuid.NewString()
	return &Batch{
		svc:      s,
		id:       id,
		done:     make(chan struct{}),
		progress: Progress{RunID: id},
	}
}

// ID returns the run id.
func (b *Batch) ID() string { return b.id }

// Cancel stops the batch before its next document.
func (b *Batch) Cancel() { b.cancelled.Store(true) }

// Progress returns the latest progress snapshot.
func (b *Batch) Progress() Progress {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.progress
}

// Done is closed when Run returns.
func (b *Batch) Done() <-chan struct{} { return b.done }

// Summary returns the final summary once Done is closed.
func (b *Batch) Summary() Summary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.summary
}

func (b *Batch) update(fn func(p *Progress)) Progress {
	b.mu.Lock()
	fn(&b.progress)
	p := b.progress
	b.mu.Unlock()
	b.svc.emit(EventBatchProgress, p)
	return p
}

func (b *Batch) stopped(ctx context.Context) bool {
	return b.cancelled.Load() || ctx.Err() != nil
}

// Run processes paths sequentially, pausing opts.Delay between documents but
// not after the last one. Per-document failures are counted, not returned.
func (b *Batch) Run(ctx context.Context, paths []string, opts BatchOptions) Summary {
	defer close(b.done)
	log := b.svc.logger.With(slog.String("run_id", b.id))

	sum := Summary{RunID: b.id, Total: len(paths), StartedAt: b.svc.now()}
	b.update(func(p *Progress) {
		p.Total = len(paths)
		p.Running = true
	})
	log.Info("batch started", slog.Int("total", len(paths)), slog.Duration("delay", opts.Delay))

	for i, path := range paths {
		if b.stopped(ctx) {
			sum.Cancelled = true
			break
		}
		b.update(func(p *Progress) {
			p.Index = i + 1
			p.Current = path
		})

		res, err := b.svc.ProcessDocument(ctx, path, opts.Process)
		if res == nil {
			res = &Result{Path: path}
		}
		if err != nil {
			sum.Errors++
			res.Error = err.Error()
			res.Code = apperr.Code(err)
		} else {
			sum.Success++
		}
		sum.Results = append(sum.Results, *res)
		b.update(func(p *Progress) {
			p.Success = sum.Success
			p.Errors = sum.Errors
		})

		if i < len(paths)-1 && opts.Delay > 0 && !b.stopped(ctx) {
			if err := b.svc.sleep(ctx, opts.Delay); err != nil {
				sum.Cancelled = true
				break
			}
		}
	}
	if b.stopped(ctx) && len(sum.Results) < len(paths) {
		sum.Cancelled = true
	}
	sum.FinishedAt = b.svc.now()

	b.mu.Lock()
	b.summary = sum
	b.progress.Running = false
	b.progress.Cancelled = sum.Cancelled
	b.progress.Current = ""
	b.mu.Unlock()

	log.Info("batch finished",
		slog.Int("success", sum.Success),
		slog.Int("errors", sum.Errors),
		slog.Bool("cancelled", sum.Cancelled))
	b.svc.emit(EventBatchFinished, sum)
	return sum
}

// StartBatch runs a batch in the background. Only one batch may run at a
// time; a second start fails with apperr.ErrAlreadyExists.
func (s *Service) StartBatch(ctx context.Context, paths []string, opts BatchOptions) (*Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return nil, apperr.ErrAlreadyExists
	}
	b := s.NewBatch()
	s.active = b
	go func() {
		sum := b.Run(ctx, paths, opts)
		s.mu.Lock()
		s.active = nil
		s.last = &sum
		s.mu.Unlock()
	}()
	return b, nil
}

// ActiveBatch returns the running batch, if any.
func (s *Service) ActiveBatch() *Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// LastSummary returns the summary of the most recent finished background batch.
func (s *Service) LastSummary() (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Summary{}, false
	}
	return *s.last, true
}

// CancelBatch cancels the running batch and reports whether there was one.
func (s *Service) CancelBatch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return false
	}
	s.active.Cancel()
	return true
}
