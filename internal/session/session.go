// Package session runs one user-initiated collection from precondition
// check to submission and reports exactly one terminal event.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/IshaanNene/markbook/internal/collector"
	"github.com/IshaanNene/markbook/internal/observability"
	"github.com/IshaanNene/markbook/internal/progress"
	"github.com/IshaanNene/markbook/internal/types"
)

// WrongPageMessage is shown when a session is started away from the feed.
const WrongPageMessage = "Please navigate to x.com/i/bookmarks first."

// ErrBusy is returned by Trigger.Start while a session is running.
var ErrBusy = types.ErrBusy

// View is a collector.View that can also report where it is.
type View interface {
	collector.View
	URL(ctx context.Context) (string, error)
}

// Submitter delivers the final collection and returns the accepted count.
type Submitter interface {
	Submit(ctx context.Context, records []types.Record) (int, error)
}

// Runner wires a view, extractor and submitter into one session.
type Runner struct {
	view      View
	extractor collector.Extractor
	submitter Submitter
	opts      collector.Options
	sourceURL string
	reporter  progress.Reporter
	metrics   *observability.Metrics
	collOpts  []collector.Option
	base      *slog.Logger
	logger    *slog.Logger
}

// Config holds the Runner's collaborators.
type Config struct {
	View      View
	Extractor collector.Extractor
	Submitter Submitter
	Options   collector.Options
	SourceURL string
	Reporter  progress.Reporter
	Metrics   *observability.Metrics

	// CollectorOptions are passed through to collector.New.
	CollectorOptions []collector.Option
}

// NewRunner creates a Runner. Reporter and Metrics may be nil.
func NewRunner(cfg Config, logger *slog.Logger) *Runner {
	r := &Runner{
		view:      cfg.View,
		extractor: cfg.Extractor,
		submitter: cfg.Submitter,
		opts:      cfg.Options,
		sourceURL: cfg.SourceURL,
		reporter:  cfg.Reporter,
		metrics:   cfg.Metrics,
		collOpts:  cfg.CollectorOptions,
		base:      logger,
		logger:    logger.With("component", "session"),
	}
	if r.reporter == nil {
		r.reporter = progress.Discard
	}
	if r.metrics == nil {
		r.metrics = observability.NewMetrics(logger)
	}
	return r
}

// Run executes one session. The returned error mirrors the terminal
// event: nil after Done, non-nil after Failed.
func (r *Runner) Run(ctx context.Context) (int, error) {
	r.metrics.SessionsStarted.Add(1)

	count, err := r.run(ctx)
	if err != nil {
		r.metrics.SessionsFailed.Add(1)
		r.logger.Error("session failed", "error", err)
		if errors.Is(err, types.ErrWrongPage) {
			r.reporter.Report(types.Failed(WrongPageMessage))
		} else {
			r.reporter.Report(types.Failed(err.Error()))
		}
		return 0, err
	}

	r.reporter.Report(types.Done(count))
	return count, nil
}

func (r *Runner) run(ctx context.Context) (int, error) {
	if err := r.checkPage(ctx); err != nil {
		return 0, err
	}

	r.reporter.Report(types.Progress("Scrolling through bookmarks..."))

	c := collector.New(r.view, r.extractor, r.opts, r.base,
		append([]collector.Option{
			collector.WithReporter(r.reporter),
			collector.WithMetrics(r.metrics),
		}, r.collOpts...)...,
	)
	result, err := c.Run(ctx)
	if err != nil {
		return 0, err
	}

	r.reporter.Report(types.Progress("Sending %d bookmarks to server...", len(result.Records)))

	r.metrics.Submissions.Add(1)
	count, err := r.submitter.Submit(ctx, result.Records)
	if err != nil {
		r.metrics.SubmissionsFailed.Add(1)
		return 0, err
	}
	r.metrics.RecordsSubmitted.Add(int64(len(result.Records)))

	r.logger.Info("session complete",
		"collected", len(result.Records),
		"accepted", count,
		"cycles", result.Cycles,
	)
	return count, nil
}

// checkPage verifies the view is on the source host.
func (r *Runner) checkPage(ctx context.Context) error {
	current, err := r.view.URL(ctx)
	if err != nil {
		return fmt.Errorf("read view url: %w", err)
	}
	if !SameSite(current, r.sourceURL) {
		r.logger.Warn("view is not on the source page", "url", current, "source", r.sourceURL)
		return types.ErrWrongPage
	}
	return nil
}

// SameSite reports whether current is served by the host of source or one
// of its sub-domains.
func SameSite(current, source string) bool {
	cu, err := url.Parse(current)
	if err != nil || cu.Hostname() == "" {
		return false
	}
	su, err := url.Parse(source)
	if err != nil || su.Hostname() == "" {
		return false
	}
	host := strings.ToLower(cu.Hostname())
	want := strings.ToLower(su.Hostname())
	return host == want || strings.HasSuffix(host, "."+want)
}

// Trigger allows at most one session at a time.
type Trigger struct {
	busy atomic.Bool
}

// Start runs fn unless a session is already running, in which case it
// returns ErrBusy without calling fn. The trigger re-arms when fn returns.
func (t *Trigger) Start(ctx context.Context, fn func(ctx context.Context) (int, error)) (int, error) {
	if !t.busy.CompareAndSwap(false, true) {
		return 0, ErrBusy
	}
	defer t.busy.Store(false)
	return fn(ctx)
}

// Busy reports whether a session is running.
func (t *Trigger) Busy() bool {
	return t.busy.Load()
}
