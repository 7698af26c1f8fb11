// internal/browser/cdp/driver.go
package cdp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// Driver drives a local Chromium over the DevTools protocol with chromedp.
type Driver struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

var _ browser.Driver = (*Driver)(nil)

// NewDriver creates a chromedp backed driver.
func NewDriver(cfg config.BrowserConfig, logger *zap.Logger) *Driver {
	return &Driver{cfg: cfg, logger: logger.Named("cdp")}
}

// Name implements browser.Driver.
func (d *Driver) Name() string { return config.DriverCDP }

// allocatorFlags are the command line flags set on top of chromedp's
// defaults. Later sources win: headless, base flags, window size, then the
// configured args.
func (d *Driver) allocatorFlags() map[string]interface{} {
	// The defaults include headless; override it either way.
	fl := map[string]interface{}{"headless": d.cfg.Headless}
	for _, f := range browser.DefaultFlags {
		fl[f.Name] = true
	}
	if w, h := d.cfg.Viewport.Width, d.cfg.Viewport.Height; w > 0 && h > 0 {
		fl["window-size"] = fmt.Sprintf("%d,%d", w, h)
	}
	for _, f := range browser.ParseFlags(d.cfg.Args) {
		if f.Value == "" {
			fl[f.Name] = true
			continue
		}
		fl[f.Name] = f.Value
	}
	return fl
}

// execOptions builds the allocator options from configuration.
func (d *Driver) execOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range d.allocatorFlags() {
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// Launch implements browser.Driver. The browser is allocated on a context
// detached from ctx, since chromedp kills the process when the context of the
// first Run is canceled.
func (d *Driver) Launch(ctx context.Context) (browser.Browser, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(browser.Detach(ctx), d.execOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(d.logger.Sugar().Debugf),
		chromedp.WithErrorf(d.logger.Sugar().Debugf),
	)

	if err := startBounded(ctx, browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chromium: %w", err)
	}
	d.logger.Debug("Chromium started.")

	return &cdpBrowser{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		cfg:         d.cfg,
		logger:      d.logger,
	}, nil
}

// startBounded performs the first Run on a long-lived chromedp context while
// honoring the deadline of limit. On timeout the caller must cancel target,
// which also ends the background Run.
func startBounded(limit, target context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(target, actions...) }()
	select {
	case err := <-done:
		return err
	case <-limit.Done():
		return limit.Err()
	}
}

type cdpBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	cfg         config.BrowserConfig
	logger      *zap.Logger
	closeOnce   sync.Once
	closeErr    error
}

func (b *cdpBrowser) NewContext(ctx context.Context) (browser.Context, error) {
	// Each context gets its own incognito-like browser context with one
	// initial target.
	tabCtx, tabCancel := chromedp.NewContext(b.ctx, chromedp.WithNewBrowserContext())
	if err := startBounded(ctx, tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	return &cdpContext{ctx: tabCtx, cancel: tabCancel, cfg: b.cfg}, nil
}

func (b *cdpBrowser) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		b.closeErr = closeTarget(ctx, b.ctx, b.cancel)
		// Waits for the process to exit.
		b.allocCancel()
	})
	return b.closeErr
}

type cdpContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config.BrowserConfig

	mu          sync.Mutex
	initialUsed bool
}

// NewPage returns the context's initial target first, then new tabs.
func (c *cdpContext) NewPage(ctx context.Context) (browser.Page, error) {
	c.mu.Lock()
	reuse := !c.initialUsed
	c.initialUsed = true
	c.mu.Unlock()

	p := &cdpPage{ctx: c.ctx}
	if !reuse {
		tabCtx, tabCancel := chromedp.NewContext(c.ctx)
		if err := startBounded(ctx, tabCtx); err != nil {
			tabCancel()
			return nil, fmt.Errorf("failed to open tab: %w", err)
		}
		p = &cdpPage{ctx: tabCtx, cancel: tabCancel}
	}

	if w, h := c.cfg.Viewport.Width, c.cfg.Viewport.Height; w > 0 && h > 0 {
		err := p.run(ctx, emulation.SetDeviceMetricsOverride(int64(w), int64(h), 1, false))
		if err != nil {
			_ = p.Close(ctx)
			return nil, fmt.Errorf("failed to set viewport: %w", err)
		}
	}
	return p, nil
}

func (c *cdpContext) Close(ctx context.Context) error {
	return closeTarget(ctx, c.ctx, c.cancel)
}

// closeTarget gracefully closes the target (or browser) behind target, giving
// up when ctx expires.
func closeTarget(ctx, target context.Context, cancel context.CancelFunc) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(target) }()
	select {
	case err := <-done:
		cancel()
		return err
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

type cdpPage struct {
	ctx context.Context
	// cancel is nil for the context's initial target, which is closed with
	// the context.
	cancel context.CancelFunc
}

var _ browser.Page = (*cdpPage)(nil)

func (p *cdpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := browser.CombineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (p *cdpPage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *cdpPage) Fill(ctx context.Context, selector, value string) error {
	return p.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (p *cdpPage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.NodeVisible, chromedp.ByQuery))
}

func (p *cdpPage) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// namedKeys maps key names to the runes chromedp's keyboard emulation uses.
var namedKeys = map[string]string{
	"Enter":      kb.Enter,
	"Tab":        kb.Tab,
	"Escape":     kb.Escape,
	"Backspace":  kb.Backspace,
	"Delete":     kb.Delete,
	"ArrowUp":    kb.ArrowUp,
	"ArrowDown":  kb.ArrowDown,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
	"Home":       kb.Home,
	"End":        kb.End,
	"PageUp":     kb.PageUp,
	"PageDown":   kb.PageDown,
}

func (p *cdpPage) Press(ctx context.Context, selector, key string) error {
	return p.run(ctx, chromedp.SendKeys(selector, keyInput(key), chromedp.ByQuery))
}

// keyInput translates a key name into what SendKeys types. Anything that is
// not a known name is typed as is.
func keyInput(key string) string {
	if k, ok := namedKeys[key]; ok {
		return k
	}
	return key
}

func (p *cdpPage) Sleep(ctx context.Context, d time.Duration) error {
	return p.run(ctx, chromedp.Sleep(d))
}

func (p *cdpPage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = cdppage.CaptureScreenshot().
			WithFormat(cdppage.CaptureScreenshotFormatPng).
			Do(ctx)
		return err
	}))
	return buf, err
}

func (p *cdpPage) URL(ctx context.Context) (string, error) {
	var u string
	err := p.run(ctx, chromedp.Location(&u))
	return u, err
}

func (p *cdpPage) Close(ctx context.Context) error {
	if p.cancel == nil {
		return nil
	}
	return closeTarget(ctx, p.ctx, p.cancel)
}
