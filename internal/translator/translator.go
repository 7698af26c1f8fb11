// internal/translator/translator.go
package translator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/llmutil"
)

// Translator turns a natural language task into routine text by asking an LLM.
type Translator struct {
	client schemas.LLMClient
	cfg    config.TranslatorConfig
	logger *zap.Logger
}

// New creates a Translator. The client is expected to do no retrying of its own.
func New(client schemas.LLMClient, cfg config.TranslatorConfig, logger *zap.Logger) *Translator {
	return &Translator{
		client: client,
		cfg:    cfg,
		logger: logger.Named("translator"),
	}
}

// Translate asks for a routine that performs task. When ev is non-nil the
// request becomes a correction request carrying the failure details. The
// returned text is raw and must go through the normalizer.
func (t *Translator) Translate(ctx context.Context, task string, ev *schemas.Evidence) (string, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: systemPrompt(),
		UserPrompt:   userPrompt(task, ev),
		Options: schemas.GenerationOptions{
			Temperature: t.cfg.Temperature,
			MaxTokens:   t.cfg.MaxTokens,
		},
	}
	if ev != nil && t.cfg.AttachScreenshot && len(ev.Screenshot) > 0 {
		req.Attachments = []schemas.Attachment{{MIMEType: "image/png", Data: ev.Screenshot}}
	}

	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	t.logger.Debug("Requesting routine",
		zap.Bool("correction", ev != nil),
		zap.Int("attachments", len(req.Attachments)),
	)

	text, err := t.client.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", schemas.ErrTranslation, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: model returned an empty response", schemas.ErrTranslation)
	}

	t.logger.Debug("Routine received", zap.String("preview", llmutil.Truncate(text, 200)))
	return text, nil
}

// systemPrompt describes the routine language. It is fixed per process.
func systemPrompt() string {
	return `You write browser automation routines in a small, fixed command language.
Return only the statements that make up the body of the routine, one per line.

Each statement has the form page.<command>(<arguments>) where arguments are JSON values:
- page.goto("https://example.com")            navigate to a URL
- page.fill("css selector", "text")           replace the value of an input
- page.click("css selector")                  click an element
- page.wait_for_selector("css selector")      wait until an element is visible
- page.press("css selector", "Enter")         press a key while the element has focus
- page.wait(1500)                             pause for a number of milliseconds
- page.screenshot("name.png")                 save a screenshot of the page

Lines starting with # are comments.

Do NOT include the routine header line.
Do NOT include any explanations or markdown. Just return the raw lines.`
}

// userPrompt embeds the task and, for corrections, the failure evidence.
func userPrompt(task string, ev *schemas.Evidence) string {
	var b strings.Builder
	b.WriteString("User Request:\n")
	b.WriteString(task)

	if ev == nil {
		return b.String()
	}

	b.WriteString("\n\nCORRECTION REQUEST: the previous routine for this request failed. Write a corrected routine for the same request.\n")
	if ev.Statement != "" {
		fmt.Fprintf(&b, "Failing statement (#%d): %s\n", ev.StatementIndex, ev.Statement)
	}
	if ev.Code != "" {
		fmt.Fprintf(&b, "Error code: %s\n", ev.Code)
	}
	fmt.Fprintf(&b, "Error: %s\n", ev.Error)
	if ev.PageURL != "" {
		fmt.Fprintf(&b, "Page URL at failure: %s\n", ev.PageURL)
	}
	if ev.ScreenshotPath != "" {
		fmt.Fprintf(&b, "Screenshot of the page at failure: %s\n", ev.ScreenshotPath)
	}
	return b.String()
}
