// Package collector implements the scroll-and-extract convergence loop.
//
// The feed is a virtualized list with no end marker and no stable cursor:
// nodes are appended as the page scrolls and may be recycled once they
// leave the viewport. The loop therefore re-reads every rendered
// container on each cycle, deduplicates by identifier, and declares
// convergence after a run of consecutive cycles that found nothing new.
package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/markbook/internal/observability"
	"github.com/IshaanNene/markbook/internal/progress"
	"github.com/IshaanNene/markbook/internal/types"
)

// View is the read side and scroll primitive of a rendered feed.
type View interface {
	// Containers returns every item container currently rendered.
	Containers(ctx context.Context) ([]*goquery.Selection, error)

	// ScrollBy scrolls the view down by the given number of viewport heights.
	ScrollBy(ctx context.Context, viewports float64) error
}

// Extractor turns a container into a Record.
type Extractor interface {
	Extract(container *goquery.Selection) (types.Record, bool)
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options tunes the loop.
type Options struct {
	// ScrollPause is the delay between a scroll and the next sample.
	ScrollPause time.Duration

	// StallThreshold is the number of consecutive cycles without a novel
	// identifier after which the loop stops.
	StallThreshold int

	// ScrollStep is the scroll distance in viewport heights.
	ScrollStep float64

	// MaxCycles caps the number of cycles. Zero means no cap.
	MaxCycles int
}

// DefaultOptions returns the stock loop tuning.
func DefaultOptions() Options {
	return Options{
		ScrollPause:    2 * time.Second,
		StallThreshold: 5,
		ScrollStep:     2,
	}
}

// Result is the outcome of a converged run.
type Result struct {
	Records []types.Record
	Cycles  int
	Capped  bool
}

// Collector drives one view to convergence.
type Collector struct {
	view      View
	extractor Extractor
	opts      Options
	reporter  progress.Reporter
	metrics   *observability.Metrics
	sleep     SleepFunc
	logger    *slog.Logger
}

// Option configures the Collector.
type Option func(*Collector)

// WithReporter sets the listener for per-cycle progress events.
func WithReporter(r progress.Reporter) Option {
	return func(c *Collector) { c.reporter = r }
}

// WithMetrics records loop counters into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Collector) { c.metrics = m }
}

// WithSleep replaces the pause primitive.
func WithSleep(fn SleepFunc) Option {
	return func(c *Collector) { c.sleep = fn }
}

// New creates a Collector over view.
func New(view View, extractor Extractor, opts Options, logger *slog.Logger, options ...Option) *Collector {
	if opts.StallThreshold < 1 {
		opts.StallThreshold = 1
	}
	c := &Collector{
		view:      view,
		extractor: extractor,
		opts:      opts,
		reporter:  progress.Discard,
		metrics:   observability.NewMetrics(logger),
		sleep:     Sleep,
		logger:    logger.With("component", "collector"),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Run scrolls and samples the view until StallThreshold consecutive
// cycles discover nothing new. Extraction failures are skipped; a failure
// to list, scroll or pause aborts the run with a *types.SessionError.
func (c *Collector) Run(ctx context.Context) (*Result, error) {
	acc := NewAccumulator(128)
	stall := 0
	cycle := 0
	capped := false

	for stall < c.opts.StallThreshold {
		if c.opts.MaxCycles > 0 && cycle >= c.opts.MaxCycles {
			c.logger.Warn("cycle cap reached before convergence", "cycles", cycle, "records", acc.Len())
			capped = true
			break
		}
		cycle++
		c.metrics.Cycles.Add(1)

		containers, err := c.view.Containers(ctx)
		if err != nil {
			return nil, &types.SessionError{Op: "list", Cycle: cycle, Err: err}
		}

		novel := 0
		for _, container := range containers {
			rec, ok := c.extractor.Extract(container)
			if !ok {
				c.metrics.ContainersSkipped.Add(1)
				continue
			}
			if acc.Add(rec) {
				novel++
			}
		}
		c.metrics.ContainersSeen.Add(int64(len(containers)))
		c.metrics.RecordsCollected.Add(int64(novel))

		if novel > 0 {
			stall = 0
			c.reporter.Report(types.Progress("Found %d bookmarks so far...", acc.Len()))
		} else {
			stall++
			c.metrics.Stalls.Add(1)
		}

		c.logger.Debug("cycle complete",
			"cycle", cycle,
			"containers", len(containers),
			"novel", novel,
			"total", acc.Len(),
			"stall", stall,
		)

		if err := c.view.ScrollBy(ctx, c.opts.ScrollStep); err != nil {
			return nil, &types.SessionError{Op: "scroll", Cycle: cycle, Err: err}
		}
		if err := c.sleep(ctx, c.opts.ScrollPause); err != nil {
			return nil, &types.SessionError{Op: "pause", Cycle: cycle, Err: err}
		}
	}

	c.logger.Info("collection converged", "cycles", cycle, "records", acc.Len(), "capped", capped)

	return &Result{
		Records: acc.Records(),
		Cycles:  cycle,
		Capped:  capped,
	}, nil
}

// Sleep waits for d, returning early with ctx.Err() if ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
