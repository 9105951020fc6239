package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/markbook/internal/browser"
	"github.com/IshaanNene/markbook/internal/collector"
	"github.com/IshaanNene/markbook/internal/config"
	"github.com/IshaanNene/markbook/internal/extract"
	"github.com/IshaanNene/markbook/internal/observability"
	"github.com/IshaanNene/markbook/internal/progress"
	"github.com/IshaanNene/markbook/internal/session"
	"github.com/IshaanNene/markbook/internal/storage"
	"github.com/IshaanNene/markbook/internal/submit"
	"github.com/IshaanNene/markbook/internal/types"
	"github.com/IshaanNene/markbook/internal/view"
)

var (
	replayDir      string
	collectOutput  string
	endpoint       string
	headless       bool
	controlURL     string
	userDataDir    string
	stallThreshold int
	scrollPause    time.Duration
	maxCycles      int
)

// collectCmd creates the "collect" subcommand.
func collectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Scroll the bookmarks feed and submit every post found",
		Long: `Open the bookmarks page, scroll until no new posts appear, and send the
collection to the collector endpoint (or to a file with --output).

Use --control-url to attach to a browser you are already signed in to, or
--user-data-dir to reuse a signed-in profile. With --replay the same loop
runs over saved HTML snapshots instead of a live page.`,
		Args: cobra.NoArgs,
		RunE: runCollect,
	}

	cmd.Flags().StringVar(&replayDir, "replay", "", "directory of *.html snapshots to replay instead of a live browser")
	cmd.Flags().StringVarP(&collectOutput, "output", "o", "", "write the collection to a .json, .jsonl or .csv file instead of submitting it")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "collector endpoint URL")
	cmd.Flags().BoolVar(&headless, "headless", false, "run the launched browser headless")
	cmd.Flags().StringVar(&controlURL, "control-url", "", "DevTools URL or host:port of a running browser to attach to")
	cmd.Flags().StringVar(&userDataDir, "user-data-dir", "", "browser profile directory to reuse")
	cmd.Flags().IntVar(&stallThreshold, "stall-threshold", 0, "idle cycles before stopping (0 = config default)")
	cmd.Flags().DurationVar(&scrollPause, "scroll-pause", 0, "pause after each scroll (0 = config default)")
	cmd.Flags().IntVar(&maxCycles, "max-cycles", 0, "stop after this many cycles even if still finding posts (0 = no cap)")

	return cmd
}

// runCollect executes the collect command.
func runCollect(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(func(cfg *config.Config) {
		flags := cmd.Flags()
		if endpoint != "" {
			cfg.Submit.Endpoint = endpoint
		}
		if flags.Changed("headless") {
			cfg.Browser.Headless = headless
		}
		if controlURL != "" {
			cfg.Browser.ControlURL = controlURL
		}
		if userDataDir != "" {
			cfg.Browser.UserDataDir = userDataDir
		}
		if stallThreshold > 0 {
			cfg.Collector.StallThreshold = stallThreshold
		}
		if scrollPause > 0 {
			cfg.Collector.ScrollPause = scrollPause
		}
		if maxCycles > 0 {
			cfg.Collector.MaxCycles = maxCycles
		}
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	v, closeView, err := openView(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeView()

	submitter, err := openSubmitter(cfg, logger)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics(logger)
	events := progress.NewChannel(64, logger)
	rendered := make(chan struct{})
	var sawTerminal bool
	go func() {
		defer close(rendered)
		for ev := range events.Events() {
			if ev.IsTerminal() {
				sawTerminal = true
			}
			fmt.Fprintln(os.Stderr, renderEvent(ev))
		}
	}()

	fmt.Fprintln(os.Stderr, titleStyle.Render("markbook "+config.Version))

	runner := session.NewRunner(session.Config{
		View:      v,
		Extractor: extract.New(cfg.Collector.Origin, logger),
		Submitter: submitter,
		Options: collector.Options{
			ScrollPause:    cfg.Collector.ScrollPause,
			StallThreshold: cfg.Collector.StallThreshold,
			ScrollStep:     cfg.Collector.ScrollStep,
			MaxCycles:      cfg.Collector.MaxCycles,
		},
		SourceURL: cfg.Collector.SourceURL,
		Reporter:  events,
		Metrics:   metrics,
	}, logger)

	var trigger session.Trigger
	start := time.Now()
	count, err := trigger.Start(ctx, runner.Run)

	events.Close()
	<-rendered

	if !sawTerminal {
		if err != nil {
			fmt.Fprintln(os.Stderr, renderEvent(types.Failed(err.Error())))
		} else {
			fmt.Fprintln(os.Stderr, renderEvent(types.Done(count)))
		}
	}

	metrics.LogSummary("collect finished")
	if err != nil {
		return err
	}

	logger.Info("collect complete", "count", count, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// openView returns the replay view when --replay is set, otherwise a
// live browser page on the source URL.
func openView(ctx context.Context, cfg *config.Config, logger *slog.Logger) (session.View, func(), error) {
	if replayDir != "" {
		v, err := view.NewReplayView(replayDir, cfg.Collector.ContainerXPath, cfg.Collector.SourceURL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open replay: %w", err)
		}
		return v, func() {}, nil
	}

	b, err := browser.Open(cfg.Browser, logger)
	if err != nil {
		return nil, nil, err
	}
	page, err := b.Page(ctx, cfg.Collector.SourceURL)
	if err != nil {
		_ = b.Close()
		return nil, nil, fmt.Errorf("open page: %w", err)
	}
	closeFn := func() {
		if err := b.Close(); err != nil {
			logger.Warn("browser close failed", "error", err)
		}
	}
	return view.NewBrowserView(page, cfg.Collector.ContainerSelector, logger), closeFn, nil
}

// openSubmitter returns a file sink when --output is set, otherwise the
// HTTP submission client.
func openSubmitter(cfg *config.Config, logger *slog.Logger) (session.Submitter, error) {
	if collectOutput != "" {
		sink, err := storage.NewFileSink(collectOutput, logger)
		if err != nil {
			return nil, fmt.Errorf("create output: %w", err)
		}
		return sink, nil
	}
	return submit.New(cfg.Submit, logger), nil
}
