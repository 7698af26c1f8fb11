// internal/browser/roddriver/driver.go
package roddriver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// Driver launches Chromium with rod's launcher and drives it over CDP.
type Driver struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

var _ browser.Driver = (*Driver)(nil)

// NewDriver creates a rod backed driver.
func NewDriver(cfg config.BrowserConfig, logger *zap.Logger) *Driver {
	return &Driver{cfg: cfg, logger: logger.Named("rod")}
}

func (d *Driver) Name() string { return config.DriverRod }

func (d *Driver) newLauncher() *launcher.Launcher {
	l := launcher.New().Headless(d.cfg.Headless)
	for _, f := range browser.DefaultFlags {
		l = l.Set(flags.Flag(f.Name))
	}
	if w, h := d.cfg.Viewport.Width, d.cfg.Viewport.Height; w > 0 && h > 0 {
		l = l.Set("window-size", fmt.Sprintf("%d,%d", w, h))
	}
	for _, f := range browser.ParseFlags(d.cfg.Args) {
		if f.Value == "" {
			l = l.Set(flags.Flag(f.Name))
			continue
		}
		l = l.Set(flags.Flag(f.Name), f.Value)
	}
	return l
}

// Launch implements browser.Driver.
func (d *Driver) Launch(ctx context.Context) (browser.Browser, error) {
	l := d.newLauncher()

	controlURL, err := bounded(ctx, l.Launch, func(string) error {
		l.Kill()
		return nil
	})
	if err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	connect := func() (*rod.Browser, error) { return b, b.Connect() }
	if _, err := bounded(ctx, connect, func(late *rod.Browser) error { return late.Close() }); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	d.logger.Debug("Chromium launched.", zap.String("control_url", controlURL))
	return &rodBrowser{launcher: l, browser: b, cfg: d.cfg}, nil
}

// bounded runs a blocking call and gives up when ctx ends. A result that
// arrives after that is handed to release, which may be nil.
func bounded[T any](ctx context.Context, fn func() (T, error), release func(T) error) (T, error) {
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
		return r.v, r.err
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

type rodBrowser struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	cfg      config.BrowserConfig
}

func (b *rodBrowser) NewContext(ctx context.Context) (browser.Context, error) {
	inc, err := b.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	return &rodContext{browser: inc, cfg: b.cfg}, nil
}

func (b *rodBrowser) Close(ctx context.Context) error {
	closeErr := b.browser.Context(ctx).Close()
	// Cleanup waits for the process to exit and removes its profile dir.
	_, cleanupErr := bounded(ctx, func() (struct{}, error) {
		b.launcher.Cleanup()
		return struct{}{}, nil
	}, nil)
	if cleanupErr != nil {
		b.launcher.Kill()
	}
	return errors.Join(closeErr, cleanupErr)
}

type rodContext struct {
	browser *rod.Browser
	cfg     config.BrowserConfig
}

func (c *rodContext) NewPage(ctx context.Context) (browser.Page, error) {
	p, err := c.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	if w, h := c.cfg.Viewport.Width, c.cfg.Viewport.Height; w > 0 && h > 0 {
		err := proto.EmulationSetDeviceMetricsOverride{
			Width:             w,
			Height:            h,
			DeviceScaleFactor: 1.0,
		}.Call(p)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("set viewport: %w", err)
		}
	}
	return &rodPage{page: p}, nil
}

// Close disposes the incognito browser context.
func (c *rodContext) Close(ctx context.Context) error {
	return c.browser.Context(ctx).Close()
}

type rodPage struct {
	page *rod.Page
}

var _ browser.Page = (*rodPage)(nil)

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return err
	}
	return pg.WaitLoad()
}

func (p *rodPage) visible(ctx context.Context, selector string) (*rod.Element, error) {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return nil, err
	}
	if err := el.WaitVisible(); err != nil {
		return nil, err
	}
	return el, nil
}

func (p *rodPage) Fill(ctx context.Context, selector, value string) error {
	el, err := p.visible(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(value)
}

func (p *rodPage) Click(ctx context.Context, selector string) error {
	el, err := p.visible(ctx, selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) WaitVisible(ctx context.Context, selector string) error {
	_, err := p.visible(ctx, selector)
	return err
}

var namedKeys = map[string]input.Key{
	"Enter":      input.Enter,
	"Tab":        input.Tab,
	"Escape":     input.Escape,
	"Backspace":  input.Backspace,
	"Delete":     input.Delete,
	"ArrowUp":    input.ArrowUp,
	"ArrowDown":  input.ArrowDown,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
	"Home":       input.Home,
	"End":        input.End,
	"PageUp":     input.PageUp,
	"PageDown":   input.PageDown,
	"Space":      input.Space,
}

func (p *rodPage) Press(ctx context.Context, selector, key string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return err
	}
	if err := el.Focus(); err != nil {
		return err
	}
	k, err := keyFor(key)
	if err != nil {
		return err
	}
	return p.page.Keyboard.Type(k)
}

// keyFor resolves a key name, or a single character, to a rod key.
func keyFor(key string) (input.Key, error) {
	if k, ok := namedKeys[key]; ok {
		return k, nil
	}
	runes := []rune(key)
	if len(runes) != 1 {
		return 0, fmt.Errorf("unknown key %q", key)
	}
	return input.Key(runes[0]), nil
}

func (p *rodPage) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *rodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (p *rodPage) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *rodPage) Close(ctx context.Context) error {
	return p.page.Context(ctx).Close()
}
