package capture

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// readySelector is set by the layout once it has finished drawing.
const readySelector = `[data-ready="true"]`

// Chromium rasterizes documents in a headless Chromium driven via chromedp.
// A browser is started per capture, so a crashed or wedged instance never
// outlives one render cycle.
type Chromium struct {
	// ExecPath optionally points at a specific browser binary.
	ExecPath string
}

// Capture loads doc into a blank page with a width x height viewport, waits
// for the layout to signal completion, and returns a PNG screenshot.
//
// Rendering-complete condition:
//   - The layout root exposes data-ready="true".
//
// The caller's context bounds the whole operation, including browser start.
func (c *Chromium) Capture(parentCtx context.Context, doc []byte, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("capture: invalid viewport %dx%d", width, height)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(width, height),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("font-render-hinting", "none"),
	)
	if c.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parentCtx, opts...)
	defer cancelAlloc()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, string(doc)).Do(ctx)
		}),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
		chromedp.CaptureScreenshot(&png),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	return png, nil
}
