package render

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Capturer turns a composed report page into a PDF document. The production
// implementation drives a headless Chromium; tests substitute a fake.
type Capturer interface {
	CapturePDF(ctx context.Context, url string) ([]byte, error)
}

// ChromeCapturer captures pages with a headless Chromium session per call.
// Sessions are torn down unconditionally, success or failure.
type ChromeCapturer struct {
	browserPath string
}

// NewChromeCapturer creates a capturer. browserPath overrides the Chromium
// binary discovered on PATH; leave empty for the default lookup.
func NewChromeCapturer(browserPath string) *ChromeCapturer {
	return &ChromeCapturer{browserPath: browserPath}
}

// CapturePDF navigates to the composed page, waits for the ready marker,
// and prints the document. The caller bounds the session with ctx.
func (c *ChromeCapturer) CapturePDF(ctx context.Context, url string) ([]byte, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if c.browserPath != "" {
		opts = append(opts, chromedp.ExecPath(c.browserPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var pdf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("#report-ready", chromedp.ByID),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("headless capture failed: %w", err)
	}
	return pdf, nil
}
