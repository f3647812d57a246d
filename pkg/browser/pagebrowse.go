package browser

import (
	"context"
	"time"

	"github.com/ormasoftchile/toolproof/pkg/errs"
)

// pagebrowseWindow is the reserved second backend. Every capability
// surfaces a loud internal error until the driver lands, instead of
// degrading silently.
type pagebrowseWindow struct{}

func notImplemented(op string) error {
	return errs.Internalf("%s is not yet implemented on the pagebrowse backend", op)
}

func (w *pagebrowseWindow) Navigate(ctx context.Context, url string, waitForLoad bool) error {
	return notImplemented("navigate")
}

func (w *pagebrowseWindow) EvaluateScript(ctx context.Context, js string) (any, error) {
	return nil, notImplemented("evaluate_script")
}

func (w *pagebrowseWindow) ScreenshotPage(ctx context.Context, path string) error {
	return notImplemented("screenshot_page")
}

func (w *pagebrowseWindow) ScreenshotElement(ctx context.Context, selector, path string, timeout time.Duration) error {
	return notImplemented("screenshot_element")
}

func (w *pagebrowseWindow) InteractText(ctx context.Context, text string, act Interaction, timeout time.Duration) error {
	return notImplemented("interact_text")
}

func (w *pagebrowseWindow) InteractSelector(ctx context.Context, css string, act Interaction, timeout time.Duration) error {
	return notImplemented("interact_selector")
}

func (w *pagebrowseWindow) PressKey(ctx context.Context, name string, timeout time.Duration) error {
	return notImplemented("press_key")
}

func (w *pagebrowseWindow) TypeText(ctx context.Context, text string, timeout time.Duration) error {
	return notImplemented("type_text")
}

func (w *pagebrowseWindow) Close() error { return nil }
