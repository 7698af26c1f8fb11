// internal/browser/interface.go
package browser

import (
	"context"
	"time"
)

// Driver launches browsers for one automation backend (CDP, Playwright, Rod).
type Driver interface {
	// Name identifies the backend in logs.
	Name() string
	// Launch starts a browser process. The returned Browser must outlive ctx;
	// ctx only bounds the launch itself.
	Launch(ctx context.Context) (Browser, error)
}

// Browser is a running browser process.
type Browser interface {
	// NewContext creates an isolated browsing context (cookies, storage).
	NewContext(ctx context.Context) (Context, error)
	Close(ctx context.Context) error
}

// Context is an isolated browsing context inside a Browser.
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}

// Page is the complete capability surface a routine can reach. Every call is
// bounded by ctx.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Fill replaces the value of the input matched by selector.
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	// WaitVisible blocks until selector matches a visible element.
	WaitVisible(ctx context.Context, selector string) error
	// Press sends a single key (e.g. "Enter") to the element matched by selector.
	Press(ctx context.Context, selector, key string) error
	Sleep(ctx context.Context, d time.Duration) error
	// Screenshot captures the viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	URL(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// Installer is implemented by drivers that may need to download a browser
// before the first launch. The Manager calls Install outside the launch
// timeout, since a download can take minutes.
type Installer interface {
	Install(ctx context.Context) error
}
