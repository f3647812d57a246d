// Package browser drives a headless browser for test steps. The run
// shares one browser process; each test gets its own window (an incognito
// page) that is destroyed with the test's civilization.
package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/ormasoftchile/toolproof/pkg/errs"
)

//go:embed harness.js
var harnessJS string

//go:embed init.js
var initJS string

// Impl selects a browser backend.
type Impl string

const (
	ImplChrome     Impl = "chrome"
	ImplPagebrowse Impl = "pagebrowse"
)

// Interaction is a pointer gesture performed on a resolved element.
type Interaction int

const (
	Click Interaction = iota
	Hover
)

// Window is the capability set a civilization holds over one browser
// window. Backends that lack an operation return an internal
// not-implemented error rather than degrading silently.
type Window interface {
	Navigate(ctx context.Context, url string, waitForLoad bool) error
	// EvaluateScript wraps js in the async harness and returns the raw
	// harness object; callers unpack toolproof_errs / inner_response.
	EvaluateScript(ctx context.Context, js string) (any, error)
	ScreenshotPage(ctx context.Context, path string) error
	ScreenshotElement(ctx context.Context, selector, path string, timeout time.Duration) error
	InteractText(ctx context.Context, text string, act Interaction, timeout time.Duration) error
	InteractSelector(ctx context.Context, css string, act Interaction, timeout time.Duration) error
	PressKey(ctx context.Context, name string, timeout time.Duration) error
	TypeText(ctx context.Context, text string, timeout time.Duration) error
	Close() error
}

// Tester owns the browser process shared by the whole run.
type Tester struct {
	impl    Impl
	browser *rod.Browser
	log     *zap.Logger
}

// Launch starts the backend selected by impl. The chrome backend launches
// a headless Chromium over CDP; pagebrowse is reserved and surfaces
// not-implemented windows.
func Launch(ctx context.Context, impl Impl, log *zap.Logger) (*Tester, error) {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Tester{impl: impl, log: log}

	if impl == ImplPagebrowse {
		return t, nil
	}

	controlURL, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	log.Debug("browser launched", zap.String("impl", string(impl)))
	t.browser = browser
	return t, nil
}

// NewWindow opens a fresh incognito window with the console-capture init
// script installed.
func (t *Tester) NewWindow(ctx context.Context) (Window, error) {
	if t.impl == ImplPagebrowse {
		return &pagebrowseWindow{}, nil
	}

	incognito, err := t.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	if _, err := page.EvalOnNewDocument(initJS); err != nil {
		return nil, fmt.Errorf("install init script: %w", err)
	}
	return &chromeWindow{page: page, log: t.log}, nil
}

// Close tears down the shared browser process.
func (t *Tester) Close() error {
	if t.browser == nil {
		return nil
	}
	return t.browser.Close()
}

// harnessed splices user JavaScript into the async harness.
func harnessed(js string) string {
	return strings.Replace(harnessJS, "// insert_toolproof_inner_js", js, 1)
}

type chromeWindow struct {
	page *rod.Page
	log  *zap.Logger
}

func (w *chromeWindow) Navigate(ctx context.Context, url string, waitForLoad bool) error {
	page := w.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return errs.Internal(fmt.Errorf("navigate to %s: %w", url, err))
	}
	if waitForLoad {
		if err := page.WaitLoad(); err != nil {
			return errs.Internal(fmt.Errorf("wait for %s to load: %w", url, err))
		}
	}
	return nil
}

func (w *chromeWindow) EvaluateScript(ctx context.Context, js string) (any, error) {
	res, err := w.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           "async () => {" + harnessed(js) + "}",
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("evaluate script: %w", err))
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("decode script result: %w", err))
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, errs.Internal(fmt.Errorf("decode script result: %w", err))
	}
	return value, nil
}

func (w *chromeWindow) ScreenshotPage(ctx context.Context, path string) error {
	format, err := ImageFormat(path)
	if err != nil {
		return err
	}
	data, err := w.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{Format: format})
	if err != nil {
		return errs.Internal(fmt.Errorf("capture viewport: %w", err))
	}
	return writeImage(path, data)
}

func (w *chromeWindow) ScreenshotElement(ctx context.Context, selector, path string, timeout time.Duration) error {
	format, err := ImageFormat(path)
	if err != nil {
		return err
	}
	el, err := w.waitForSelector(ctx, selector, timeout)
	if err != nil {
		return err
	}
	data, err := el.Screenshot(format, 0)
	if err != nil {
		return errs.Internal(fmt.Errorf("capture element %s: %w", selector, err))
	}
	return writeImage(path, data)
}

func (w *chromeWindow) InteractText(ctx context.Context, text string, act Interaction, timeout time.Duration) error {
	xpath := xpathForText(text)
	descriptor := fmt.Sprintf("with the text %q", text)

	deadline := time.Now().Add(timeout)
	for {
		if time.Now().After(deadline) {
			return errs.Assertionf("element %s could not be found within %ds", descriptor, int(timeout.Seconds()))
		}

		els, err := w.elementsByXPath(ctx, xpath)
		if err != nil {
			return err
		}
		if len(els) == 0 {
			if err := sleepCtx(ctx, 100*time.Millisecond); err != nil {
				return err
			}
			continue
		}
		if len(els) > 1 {
			return errs.Assertionf("found more than one element %s", descriptor)
		}

		done, err := w.interact(els[0], act, descriptor)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		// The element detached mid-interaction; resolve it again.
	}
}

func (w *chromeWindow) InteractSelector(ctx context.Context, css string, act Interaction, timeout time.Duration) error {
	descriptor := fmt.Sprintf("matching the selector %q", css)

	deadline := time.Now().Add(timeout)
	for {
		if time.Now().After(deadline) {
			return errs.Assertionf("element %s could not be found within %ds", descriptor, int(timeout.Seconds()))
		}

		el, err := w.page.Context(ctx).Sleeper(rod.NotFoundSleeper).Element(css)
		if err != nil {
			if err := sleepCtx(ctx, 100*time.Millisecond); err != nil {
				return err
			}
			continue
		}

		done, err := w.interact(el, act, descriptor)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// interact scrolls the element into view and performs the gesture.
// Returns done=false when the element detached and resolution should
// restart.
func (w *chromeWindow) interact(el *rod.Element, act Interaction, descriptor string) (bool, error) {
	if err := el.ScrollIntoView(); err != nil {
		if detached(el) {
			return false, nil
		}
		return false, errs.Internal(fmt.Errorf("scroll element %s into view: %w", descriptor, err))
	}

	if _, err := el.Interactable(); err != nil {
		if detached(el) {
			return false, nil
		}
		return false, errs.Assertionf("element %s is not interactable: %v", descriptor, err)
	}

	var err error
	switch act {
	case Hover:
		err = el.Hover()
	default:
		err = el.Click(proto.InputMouseButtonLeft, 1)
	}
	if err != nil {
		if detached(el) {
			return false, nil
		}
		return false, errs.Internal(fmt.Errorf("interact with element %s: %w", descriptor, err))
	}
	return true, nil
}

// detached checks the live isConnected flag; an element that fails the
// check (or can no longer be evaluated at all) has left the document.
func detached(el *rod.Element) bool {
	res, err := el.Eval("() => this.isConnected")
	if err != nil {
		return true
	}
	return !res.Value.Bool()
}

func (w *chromeWindow) PressKey(ctx context.Context, name string, timeout time.Duration) error {
	key, err := LookupKey(name)
	if err != nil {
		return err
	}
	page := w.page.Context(ctx)
	if body, err := page.Sleeper(rod.NotFoundSleeper).Element("body"); err == nil {
		_ = body.Focus()
	}
	if err := page.Keyboard.Press(key); err != nil {
		return errs.Internal(fmt.Errorf("press key %q: %w", name, err))
	}
	return nil
}

func (w *chromeWindow) TypeText(ctx context.Context, text string, timeout time.Duration) error {
	page := w.page.Context(ctx)
	for _, r := range text {
		key, err := KeyForRune(r)
		if err != nil {
			return err
		}
		if err := page.Keyboard.Type(key); err != nil {
			return errs.Internal(fmt.Errorf("type %q: %w", r, err))
		}
	}
	return nil
}

func (w *chromeWindow) Close() error {
	return w.page.Close()
}

func (w *chromeWindow) waitForSelector(ctx context.Context, selector string, timeout time.Duration) (*rod.Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		el, err := w.page.Context(ctx).Sleeper(rod.NotFoundSleeper).Element(selector)
		if err == nil {
			return el, nil
		}
		if time.Now().After(deadline) {
			return nil, errs.Assertionf("element %s could not be found within %ds", selector, int(timeout.Seconds()))
		}
		if err := sleepCtx(ctx, 100*time.Millisecond); err != nil {
			return nil, err
		}
	}
}

func (w *chromeWindow) elementsByXPath(ctx context.Context, xpath string) (rod.Elements, error) {
	els, err := w.page.Context(ctx).Sleeper(rod.NotFoundSleeper).ElementsX(xpath)
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("resolve xpath: %w", err))
	}
	return els, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ImageFormat infers the screenshot format from the path extension.
func ImageFormat(path string) (proto.PageCaptureScreenshotFormat, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "png":
		return proto.PageCaptureScreenshotFormatPng, nil
	case "webp":
		return proto.PageCaptureScreenshotFormatWebp, nil
	case "jpg", "jpeg":
		return proto.PageCaptureScreenshotFormatJpeg, nil
	case "":
		return "", errs.Input(&errs.StepRequirementsNotMet{
			Reason: "image file path must have an extension",
		})
	default:
		return "", errs.Input(&errs.StepRequirementsNotMet{
			Reason: "image file extension must be png, webp, jpeg, or jpg",
		})
	}
}

func writeImage(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errs.Internal(fmt.Errorf("create screenshot directory: %w", err))
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errs.Internal(fmt.Errorf("write screenshot: %w", err))
	}
	return nil
}

// xpathForText builds the union selector that resolves interactable
// elements whose visible text contains target, case-insensitively.
func xpathForText(target string) string {
	lowered := strings.ToLower(target)
	lit := xpathLiteral(lowered)
	const upper = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	const lower = "abcdefghijklmnopqrstuvwxyz"

	roots := []string{
		"//a", "//button", "//input", "//option",
		"//*[@role='button']", "//*[@role='option']",
	}
	parts := make([]string, len(roots))
	for i, root := range roots {
		parts[i] = fmt.Sprintf(
			"%s[contains(translate(normalize-space(.), '%s', '%s'), %s) or contains(translate(@value, '%s', '%s'), %s)]",
			root, upper, lower, lit, upper, lower, lit,
		)
	}
	return strings.Join(parts, " | ")
}

// xpathLiteral quotes a string for use inside an XPath expression. Strings
// containing single quotes have no direct literal form, so they are built
// with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
