// Package fakedriver is an in-memory browser driver. It lets the engine, the
// loop and the CLI run end to end without a real browser.
package fakedriver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/webpilot/internal/browser"
)

// PNG is the screenshot payload returned by fake pages.
var PNG = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Stage names a point that can be made to fail.
type Stage string

const (
	StageLaunch     Stage = "launch"
	StageContext    Stage = "context"
	StagePage       Stage = "page"
	StageScreenshot Stage = "screenshot"
)

// Driver records every lifecycle event in order. Elements lists the selectors
// that exist on every page; anything else is reported missing.
type Driver struct {
	mu       sync.Mutex
	events   []string
	failures map[Stage]error

	// Elements are the selectors present on pages. Nil means every selector exists.
	Elements map[string]bool
	// PanicOn makes Click panic for this selector.
	PanicOn string
	// BlockOn makes WaitVisible block until its context ends for this selector.
	BlockOn string
}

// New returns a driver where every selector exists.
func New() *Driver {
	return &Driver{failures: make(map[Stage]error)}
}

// FailAt makes the given stage return err.
func (d *Driver) FailAt(stage Stage, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[stage] = err
}

// Events returns a copy of the recorded lifecycle and page events.
func (d *Driver) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

// Count returns how many times event was recorded.
func (d *Driver) Count(event string) int {
	n := 0
	for _, e := range d.Events() {
		if e == event {
			n++
		}
	}
	return n
}

func (d *Driver) record(format string, a ...interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, fmt.Sprintf(format, a...))
}

func (d *Driver) failure(stage Stage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failures[stage]
}

func (d *Driver) exists(selector string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Elements == nil || d.Elements[selector]
}

// Name implements browser.Driver.
func (d *Driver) Name() string { return "fake" }

// Launch implements browser.Driver.
func (d *Driver) Launch(ctx context.Context) (browser.Browser, error) {
	if err := d.failure(StageLaunch); err != nil {
		return nil, err
	}
	d.record("browser.launch")
	return &fakeBrowser{d: d}, nil
}

type fakeBrowser struct{ d *Driver }

func (b *fakeBrowser) NewContext(ctx context.Context) (browser.Context, error) {
	if err := b.d.failure(StageContext); err != nil {
		return nil, err
	}
	b.d.record("context.open")
	return &fakeContext{d: b.d}, nil
}

func (b *fakeBrowser) Close(ctx context.Context) error {
	b.d.record("browser.close")
	return nil
}

type fakeContext struct{ d *Driver }

func (c *fakeContext) NewPage(ctx context.Context) (browser.Page, error) {
	if err := c.d.failure(StagePage); err != nil {
		return nil, err
	}
	c.d.record("page.open")
	return &Page{d: c.d, url: "about:blank"}, nil
}

func (c *fakeContext) Close(ctx context.Context) error {
	c.d.record("context.close")
	return nil
}

// ErrNoSuchElement is returned for selectors that are not on the page.
var ErrNoSuchElement = errors.New("no such element")

// Page is a fake browser.Page.
type Page struct {
	d   *Driver
	mu  sync.Mutex
	url string
}

func (p *Page) element(selector string) error {
	if !p.d.exists(selector) {
		return fmt.Errorf("%w: %s", ErrNoSuchElement, selector)
	}
	return nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	p.d.record("navigate %s", url)
	return nil
}

func (p *Page) Fill(ctx context.Context, selector, value string) error {
	if err := p.element(selector); err != nil {
		return err
	}
	p.d.record("fill %s=%s", selector, value)
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	if p.d.PanicOn != "" && selector == p.d.PanicOn {
		panic("fake page exploded on " + selector)
	}
	if err := p.element(selector); err != nil {
		return err
	}
	p.d.record("click %s", selector)
	return nil
}

func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	if p.d.BlockOn != "" && selector == p.d.BlockOn {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := p.element(selector); err != nil {
		return err
	}
	p.d.record("wait_visible %s", selector)
	return nil
}

func (p *Page) Press(ctx context.Context, selector, key string) error {
	if err := p.element(selector); err != nil {
		return err
	}
	p.d.record("press %s %s", selector, key)
	return nil
}

func (p *Page) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		p.d.record("sleep %s", d)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := p.d.failure(StageScreenshot); err != nil {
		return nil, err
	}
	p.d.record("screenshot")
	return append([]byte(nil), PNG...), nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) Close(ctx context.Context) error {
	p.d.record("page.close")
	return nil
}
