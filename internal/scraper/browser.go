package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
)

// BrowserConfig configures the headless browser
type BrowserConfig struct {
	Timeout       time.Duration
	UserAgent     string
	ProxyURL      string
	DisableImages bool
	WindowWidth   int
	WindowHeight  int
}

// BrowserRenderer renders listing pages in headless Chrome so that
// scroll- and click-paginated sources expose all their cards. One Chrome
// process serves every Render; each Render gets its own tab.
type BrowserRenderer struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	config   BrowserConfig
	logger   *zap.Logger

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewBrowserRenderer prepares an exec allocator. Chrome is launched on
// the first Render and relaunched if it has exited.
func NewBrowserRenderer(config BrowserConfig, logger *zap.Logger) *BrowserRenderer {
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	if config.WindowWidth == 0 {
		config.WindowWidth, config.WindowHeight = 1920, 1080
	}

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Headless,
		chromedp.UserAgent(config.UserAgent),
		chromedp.WindowSize(config.WindowWidth, config.WindowHeight),
	}
	if config.ProxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(config.ProxyURL))
	}
	if config.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &BrowserRenderer{
		allocCtx: allocCtx,
		cancel:   cancel,
		config:   config,
		logger:   logger,
	}
}

// Close shuts the browser down
func (r *BrowserRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browserCancel != nil {
		r.browserCancel()
		r.browserCtx, r.browserCancel = nil, nil
	}
	r.cancel()
}

// browser returns the shared browser context, launching Chrome if needed
func (r *BrowserRenderer) browser() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browserCtx != nil && r.browserCtx.Err() == nil {
		return r.browserCtx, nil
	}
	if r.browserCancel != nil {
		r.browserCancel()
	}

	ctx, cancel := chromedp.NewContext(r.allocCtx)
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		r.browserCtx, r.browserCancel = nil, nil
		return nil, fmt.Errorf("start browser: %w", err)
	}
	r.browserCtx, r.browserCancel = ctx, cancel
	r.logger.Info("Browser started")
	return ctx, nil
}

// Render navigates to url, then scrolls or clicks nextSelector up to
// MaxPages-1 times, waiting WaitTime after each step, and returns the
// final document HTML.
func (r *BrowserRenderer) Render(ctx context.Context, url string, pagination domain.Pagination, nextSelector string) (string, error) {
	browserCtx, err := r.browser()
	if err != nil {
		return "", err
	}
	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.config.Timeout)
	defer cancelTimeout()

	// Tie the tab to the caller's cancellation as well.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	wait := pagination.WaitTime
	if wait <= 0 {
		wait = time.Second
	}

	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}

	for i := 1; i < pagination.MaxPages; i++ {
		switch pagination.Type {
		case domain.PaginationScroll:
			actions = append(actions,
				chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
				chromedp.Sleep(wait),
			)
		case domain.PaginationClick:
			if nextSelector != "" {
				actions = append(actions, r.clickIfPresent(nextSelector), chromedp.Sleep(wait))
			}
		}
	}

	var html string
	actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))

	r.logger.Debug("Rendering page",
		zap.String("url", url),
		zap.String("pagination", string(pagination.Type)),
		zap.Int("max_pages", pagination.MaxPages),
	)

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}

	r.logger.Debug("Page rendered", zap.String("url", url), zap.Int("length", len(html)))
	return html, nil
}

// clickIfPresent clicks the first element matching selector; a missing
// element ends pagination without failing the render.
func (r *BrowserRenderer) clickIfPresent(selector string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var present bool
		check := fmt.Sprintf(`document.querySelector(%q) !== null`, selector)
		if err := chromedp.Evaluate(check, &present).Do(ctx); err != nil || !present {
			return nil
		}
		return chromedp.Click(selector, chromedp.ByQuery).Do(ctx)
	})
}
