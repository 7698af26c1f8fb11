// internal/browser/pwdriver/driver.go
package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// Function variables for substitution in tests.
var (
	installTimeout  = 5 * time.Minute
	installBrowsers = func() error {
		return playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
	}
)

// Driver runs Chromium through the Playwright driver process.
type Driver struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
	// install controls whether missing browsers are downloaded before the
	// first launch.
	install bool

	mu        sync.Mutex
	installed bool
}

var (
	_ browser.Driver    = (*Driver)(nil)
	_ browser.Installer = (*Driver)(nil)
)

// NewDriver creates a Playwright backed driver. When install is set, Install
// makes sure the Chromium build Playwright expects is present.
func NewDriver(cfg config.BrowserConfig, install bool, logger *zap.Logger) *Driver {
	return &Driver{cfg: cfg, install: install, logger: logger.Named("playwright")}
}

func (d *Driver) Name() string { return config.DriverPlaywright }

// Install implements browser.Installer. It runs at most once successfully per
// Driver and is bounded by its own timeout rather than the launch timeout.
func (d *Driver) Install(ctx context.Context) error {
	if !d.install {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.installed {
		return nil
	}

	d.logger.Info("Verifying Playwright browser installation...")
	installCtx, cancel := context.WithTimeout(ctx, installTimeout)
	defer cancel()

	// playwright.Install cannot be interrupted; on timeout it finishes in the
	// background and the next Install call repeats the check.
	if _, err := call(installCtx, func() (struct{}, error) { return struct{}{}, installBrowsers() }, nil); err != nil {
		if installCtx.Err() != nil {
			return fmt.Errorf("timeout waiting for Playwright installation: %w", err)
		}
		return fmt.Errorf("failed to install playwright browsers: %w", err)
	}
	d.installed = true
	return nil
}

func (d *Driver) launchOptions(ctx context.Context) playwright.BrowserTypeLaunchOptions {
	args := make([]string, 0, len(browser.DefaultFlags)+len(d.cfg.Args))
	for _, f := range browser.DefaultFlags {
		args = append(args, f.String())
	}
	for _, f := range browser.ParseFlags(d.cfg.Args) {
		args = append(args, f.String())
	}
	return playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(d.cfg.Headless),
		Args:     args,
		Timeout:  timeoutMillis(ctx),
	}
}

// Launch implements browser.Driver.
func (d *Driver) Launch(ctx context.Context) (browser.Browser, error) {
	pw, err := call(ctx, func() (*playwright.Playwright, error) {
		return playwright.Run()
	}, func(late *playwright.Playwright) error { return late.Stop() })
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright driver: %w", err)
	}

	b, err := call(ctx, func() (playwright.Browser, error) {
		return pw.Chromium.Launch(d.launchOptions(ctx))
	}, func(late playwright.Browser) error { return late.Close() })
	if err != nil {
		if stopErr := pw.Stop(); stopErr != nil {
			d.logger.Warn("Failed to stop playwright driver after launch failure.", zap.Error(stopErr))
		}
		return nil, fmt.Errorf("failed to launch browser instance: %w", err)
	}
	d.logger.Debug("Chromium launched.", zap.String("browser_version", b.Version()))
	return &pwBrowser{pw: pw, browser: b, cfg: d.cfg}, nil
}

type pwBrowser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	cfg     config.BrowserConfig
}

func (b *pwBrowser) NewContext(ctx context.Context) (browser.Context, error) {
	opts := playwright.BrowserNewContextOptions{}
	if w, h := b.cfg.Viewport.Width, b.cfg.Viewport.Height; w > 0 && h > 0 {
		opts.Viewport = &playwright.Size{Width: w, Height: h}
	}
	bc, err := call(ctx, func() (playwright.BrowserContext, error) {
		return b.browser.NewContext(opts)
	}, func(late playwright.BrowserContext) error { return late.Close() })
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	return &pwContext{context: bc}, nil
}

func (b *pwBrowser) Close(ctx context.Context) error {
	closeErr := run(ctx, func() error { return b.browser.Close() })
	stopErr := run(ctx, b.pw.Stop)
	return errors.Join(closeErr, stopErr)
}

type pwContext struct {
	context playwright.BrowserContext
}

func (c *pwContext) NewPage(ctx context.Context) (browser.Page, error) {
	p, err := call(ctx, c.context.NewPage, func(late playwright.Page) error { return late.Close() })
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return &pwPage{page: p}, nil
}

func (c *pwContext) Close(ctx context.Context) error {
	return run(ctx, func() error { return c.context.Close() })
}

type pwPage struct {
	page playwright.Page
}

var _ browser.Page = (*pwPage)(nil)

func (p *pwPage) Navigate(ctx context.Context, url string) error {
	return run(ctx, func() error {
		_, err := p.page.Goto(url, playwright.PageGotoOptions{Timeout: timeoutMillis(ctx)})
		return err
	})
}

func (p *pwPage) Fill(ctx context.Context, selector, value string) error {
	return run(ctx, func() error {
		return p.page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{Timeout: timeoutMillis(ctx)})
	})
}

func (p *pwPage) Click(ctx context.Context, selector string) error {
	return run(ctx, func() error {
		return p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{Timeout: timeoutMillis(ctx)})
	})
}

func (p *pwPage) WaitVisible(ctx context.Context, selector string) error {
	return run(ctx, func() error {
		return p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: timeoutMillis(ctx),
		})
	})
}

func (p *pwPage) Press(ctx context.Context, selector, key string) error {
	return run(ctx, func() error {
		return p.page.Locator(selector).First().Press(key, playwright.LocatorPressOptions{Timeout: timeoutMillis(ctx)})
	})
}

// Sleep waits on the Go side so cancellation is immediate.
func (p *pwPage) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pwPage) Screenshot(ctx context.Context) ([]byte, error) {
	return call(ctx, func() ([]byte, error) {
		return p.page.Screenshot(playwright.PageScreenshotOptions{
			Type:    playwright.ScreenshotTypePng,
			Timeout: timeoutMillis(ctx),
		})
	}, nil)
}

func (p *pwPage) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.URL(), nil
}

func (p *pwPage) Close(ctx context.Context) error {
	return run(ctx, func() error { return p.page.Close() })
}

// timeoutMillis converts the remaining time on ctx into a Playwright timeout.
// Zero disables Playwright's own timeout, leaving ctx in charge.
func timeoutMillis(ctx context.Context) *float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return playwright.Float(0)
	}
	ms := float64(time.Until(deadline).Milliseconds())
	if ms < 1 {
		ms = 1
	}
	return playwright.Float(ms)
}

// call runs a blocking Playwright call and returns early when ctx ends. The
// abandoned call finishes on its own timeout; if it then succeeds, release
// disposes of the resource it produced. release may be nil.
func call[T any](ctx context.Context, fn func() (T, error), release func(T) error) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, translate(r.err)
	case <-ctx.Done():
		if release != nil {
			go func() {
				if r := <-ch; r.err == nil {
					_ = release(r.v)
				}
			}()
		}
		var zero T
		return zero, ctx.Err()
	}
}

func run(ctx context.Context, fn func() error) error {
	_, err := call(ctx, func() (struct{}, error) { return struct{}{}, fn() }, nil)
	return err
}

// translate folds Playwright's timeout into context.DeadlineExceeded so
// callers classify it like any other expired deadline.
func translate(err error) error {
	if err != nil && errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return err
}
