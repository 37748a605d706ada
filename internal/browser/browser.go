// Package browser owns the chromedp session: one shared browser process,
// a fresh tab context per Render. Render and Click both settle the page and
// return a snapshot of the resulting DOM and location.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chromedp/chromedp"

	"github.com/go-scripts/uniscrape/internal/types"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config holds browser session settings.
type Config struct {
	// Headless runs the browser without a window. Some sites front their
	// content with bot checks that trip on headless mode.
	Headless  bool
	UserAgent string
	Timeout   time.Duration
	// WaitTime is a fixed settle delay after load, for script-rendered
	// content that keeps mutating past WaitReady.
	WaitTime time.Duration
}

func (c *Config) applyDefaults() {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = 45 * time.Second
	}
	if c.WaitTime < 0 {
		c.WaitTime = 0
	}
}

// Session is a live browser. Every Render opens its own tab off the shared
// browser context, so concurrent Render calls never observe each other's
// pages. The most recently rendered tab is kept current so that Click
// operates on whatever page the last Render produced.
type Session struct {
	config        Config
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	mu            sync.Mutex
	currentCtx    context.Context
	currentCancel context.CancelFunc
}

// NewSession launches the browser.
func NewSession(config Config) (*Session, error) {
	config.applyDefaults()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.UserAgent(config.UserAgent),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if config.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the browser process eagerly so a broken Chrome install fails
	// at construction, not mid-run.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	log.Debug("Browser session started", "headless", config.Headless)
	return &Session{
		config:        config,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

// Close shuts the browser down.
func (s *Session) Close() {
	s.mu.Lock()
	if s.currentCancel != nil {
		s.currentCancel()
		s.currentCtx = nil
		s.currentCancel = nil
	}
	s.mu.Unlock()
	s.browserCancel()
	s.allocCancel()
}

// Render loads url in a new tab and returns the settled page. The tab
// becomes the current one for Click; the previously current tab is closed.
func (s *Session) Render(ctx context.Context, url string) (types.Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)

	page, err := s.run(ctx, tabCtx, chromedp.Navigate(url))
	if err != nil {
		tabCancel()
		return types.Page{}, err
	}

	s.mu.Lock()
	if s.currentCancel != nil {
		s.currentCancel()
	}
	s.currentCtx = tabCtx
	s.currentCancel = tabCancel
	s.mu.Unlock()

	return page, nil
}

// Click clicks the first visible element matching selector on the current
// tab and returns the resulting page, whether the click navigated or only
// mutated the DOM.
func (s *Session) Click(ctx context.Context, selector string) (types.Page, error) {
	s.mu.Lock()
	tabCtx := s.currentCtx
	s.mu.Unlock()
	if tabCtx == nil {
		return types.Page{}, errors.New("click with no rendered page")
	}
	return s.run(ctx, tabCtx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (s *Session) run(ctx context.Context, tabCtx context.Context, action chromedp.Action) (types.Page, error) {
	timeoutCtx, cancel := context.WithTimeout(tabCtx, s.config.Timeout)
	defer cancel()

	// Propagate caller cancellation into the tab context.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	tasks := []chromedp.Action{
		action,
		chromedp.WaitReady("body"),
	}
	if s.config.WaitTime > 0 {
		tasks = append(tasks, chromedp.Sleep(s.config.WaitTime))
	}

	var pageHTML, currentURL string
	tasks = append(tasks,
		chromedp.Location(&currentURL),
		chromedp.OuterHTML("html", &pageHTML),
	)

	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return types.Page{}, fmt.Errorf("browser action failed: %w", err)
	}

	return types.Page{URL: currentURL, HTML: pageHTML}, nil
}
