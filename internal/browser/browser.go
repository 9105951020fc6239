// Package browser obtains the Chromium page a collection session runs on.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/markbook/internal/config"
)

// process is the launched Chromium instance.
type process interface {
	Kill()
	Cleanup()
}

// Browser owns a rod browser connection and the page being collected.
type Browser struct {
	browser  *rod.Browser
	launcher process
	cfg      config.BrowserConfig
	logger   *slog.Logger
	attached bool
}

// Open launches Chromium, or attaches to a running one when
// cfg.ControlURL is set (for example a browser started with
// --remote-debugging-port where the user is already signed in).
func Open(cfg config.BrowserConfig, logger *slog.Logger) (*Browser, error) {
	b := &Browser{
		cfg:    cfg,
		logger: logger.With("component", "browser"),
	}

	controlURL := cfg.ControlURL
	if controlURL != "" {
		resolved, err := launcher.ResolveURL(controlURL)
		if err != nil {
			return nil, fmt.Errorf("resolve control url: %w", err)
		}
		controlURL = resolved
		b.attached = true
	} else {
		var err error
		controlURL, err = b.launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
	}

	if err := b.connect(controlURL); err != nil {
		return nil, err
	}

	b.logger.Info("browser ready",
		"attached", b.attached,
		"headless", cfg.Headless,
		"stealth", cfg.Stealth,
	)
	return b, nil
}

// connect attaches to controlURL. A browser launched by Open is killed
// when the connection fails.
func (b *Browser) connect(controlURL string) error {
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		b.release()
		return fmt.Errorf("connect browser: %w", err)
	}
	b.browser = browser
	return nil
}

// release stops the launched process. A temporary profile is removed;
// a configured user data dir is kept for the next run.
func (b *Browser) release() {
	if b.launcher == nil {
		return
	}
	b.launcher.Kill()
	if b.cfg.UserDataDir == "" {
		b.launcher.Cleanup()
	}
	b.launcher = nil
}

// launch starts a Chromium instance with appropriate flags.
func (b *Browser) launch() (string, error) {
	l := launcher.New().
		Headless(b.cfg.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled")

	if b.cfg.Bin != "" {
		l = l.Bin(b.cfg.Bin)
	}
	if b.cfg.UserDataDir != "" {
		// Leave the profile on disk so the next run reuses the session.
		l = l.UserDataDir(b.cfg.UserDataDir).Leakless(false)
	}
	if b.cfg.WindowSize != "" {
		l = l.Set("window-size", b.cfg.WindowSize)
	}

	u, err := l.Launch()
	if err != nil {
		return "", err
	}
	b.launcher = l
	return u, nil
}

// Page returns the page to collect from. When attached to a running
// browser, an open tab already showing sourceURL is reused;
// otherwise a fresh page is opened and navigated to sourceURL.
func (b *Browser) Page(ctx context.Context, sourceURL string) (*rod.Page, error) {
	if b.attached {
		if page := b.findTab(sourceURL); page != nil {
			return page.Context(ctx), nil
		}
	}

	var (
		page *rod.Page
		err  error
	)
	if b.cfg.Stealth {
		page, err = stealth.Page(b.browser)
	} else {
		page, err = b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}

	page = page.Context(ctx)
	if err := withTimeout(page, b.cfg.NavigateTimeout, func(p *rod.Page) error {
		return p.Navigate(sourceURL)
	}); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", sourceURL, err)
	}
	if err := withTimeout(page, b.cfg.NavigateTimeout, (*rod.Page).WaitLoad); err != nil {
		b.logger.Warn("page load timeout, continuing", "url", sourceURL, "error", err)
	}
	return page, nil
}

// withTimeout runs fn on a clone of page bounded by d and releases the
// timer afterwards.
func withTimeout(page *rod.Page, d time.Duration, fn func(*rod.Page) error) error {
	if d <= 0 {
		return fn(page)
	}
	p := page.Timeout(d)
	defer p.CancelTimeout()
	return fn(p)
}

func (b *Browser) findTab(sourceURL string) *rod.Page {
	pages, err := b.browser.Pages()
	if err != nil {
		b.logger.Warn("list tabs failed", "error", err)
		return nil
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil || info == nil {
			continue
		}
		if strings.HasPrefix(info.URL, sourceURL) {
			b.logger.Info("reusing open tab", "url", info.URL)
			return p
		}
	}
	return nil
}

// Close shuts down a launched browser. An attached browser is left
// running so the user's session survives.
func (b *Browser) Close() error {
	if b.browser == nil {
		return nil
	}
	if b.attached {
		return nil
	}
	err := b.browser.Close()
	if b.launcher != nil && b.cfg.UserDataDir == "" {
		b.launcher.Cleanup()
	}
	b.launcher = nil
	return err
}
