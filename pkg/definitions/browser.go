package definitions

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ormasoftchile/toolproof/pkg/browser"
	"github.com/ormasoftchile/toolproof/pkg/engine"
	"github.com/ormasoftchile/toolproof/pkg/errs"
	"github.com/ormasoftchile/toolproof/pkg/segments"
)

func init() {
	registerInstruction(&loadPage{})
	registerInstruction(&evalJS{})
	registerInstruction(&screenshotViewport{})
	registerInstruction(&screenshotElement{})
	registerInstruction(&clickText{})
	registerInstruction(&hoverText{})
	registerInstruction(&clickSelector{})
	registerInstruction(&hoverSelector{})
	registerInstruction(&pressKey{})
	registerInstruction(&typeText{})
	registerRetriever(&resultOfJS{})
	registerRetriever(&browserConsole{})
}

// requireWindow fetches the test's browser window, failing steps that run
// before any page was loaded.
func requireWindow(civ *engine.Civilization) (browser.Window, error) {
	if civ.Window == nil {
		return nil, errs.Input(&errs.StepRequirementsNotMet{
			Reason: "no page has been loaded into the browser for this test",
		})
	}
	return civ.Window, nil
}

func selectorTimeout(civ *engine.Civilization) time.Duration {
	return time.Duration(civ.Universe.SelectorTimeout()) * time.Second
}

// evalAndReturnJS runs user JavaScript through the harness and unpacks
// the harness envelope: user errors become assertion failures carrying
// the console stream, protocol surprises become internal errors.
func evalAndReturnJS(ctx context.Context, js string, civ *engine.Civilization) (any, error) {
	window, err := requireWindow(civ)
	if err != nil {
		return nil, err
	}

	value, err := window.EvaluateScript(ctx, js)
	if err != nil {
		return nil, err
	}

	envelope, ok := value.(map[string]any)
	if !ok {
		return nil, errs.Internal(&errs.StepError{Reason: "JavaScript failed to parse and run"})
	}

	rawErrs, ok := envelope["toolproof_errs"].([]any)
	if !ok {
		return nil, errs.Internalf("JavaScript returned an unexpected value: %v", value)
	}

	if len(rawErrs) > 0 {
		msgs := ""
		for i, e := range rawErrs {
			if i > 0 {
				msgs += "\n"
			}
			msgs += fmt.Sprintf("%v", e)
		}
		logs, _ := envelope["logs"].(string)
		return nil, errs.Assertion(&errs.BrowserJSError{Msg: msgs, Logs: logs})
	}

	return envelope["inner_response"], nil
}

// loadPage opens the test's window (starting the shared browser on first
// use) and navigates to the civ's local server.
type loadPage struct{}

func (*loadPage) Segments() string {
	return "In my browser, I load {url}"
}

func (*loadPage) Run(ctx context.Context, args *segments.Args, civ *engine.Civilization) error {
	urlPath, err := args.GetString("url")
	if err != nil {
		return err
	}
	port, err := civ.EnsurePort()
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://localhost:%d%s", port, urlPath)

	tester, err := civ.Universe.EnsureBrowser(ctx)
	if err != nil {
		return errs.Internal(err)
	}

	if civ.Window == nil {
		window, err := tester.NewWindow(ctx)
		if err != nil {
			return errs.Internal(err)
		}
		civ.Window = window
	}

	return civ.Window.Navigate(ctx, url, true)
}

// evalJS runs JavaScript for its side effects.
type evalJS struct{}

func (*evalJS) Segments() string {
	return "In my browser, I evaluate {js}"
}

func (*evalJS) Run(ctx context.Context, args *segments.Args, civ *engine.Civilization) error {
	js, err := args.GetString("js")
	if err != nil {
		return err
	}
	_, err = evalAndReturnJS(ctx, js, civ)
	return err
}

// resultOfJS runs JavaScript and retrieves its return value.
type resultOfJS struct{}

func (*resultOfJS) Segments() string {
	return "In my browser, the result of {js}"
}

func (*resultOfJS) Run(ctx context.Context, args *segments.Args, civ *engine.Civilization) (any, error) {
	js, err := args.GetString("js")
	if err != nil {
		return nil, err
	}
	return evalAndReturnJS(ctx, js, civ)
}

// browserConsole retrieves the captured console stream.
type browserConsole struct{}

func (*browserConsole) Segments() string {
	return "In my browser, the console"
}

func (*browserConsole) Run(ctx context.Context, args *segments.Args, civ *engine.Civilization) (any, error) {
	return evalAndReturnJS(ctx, "return toolproof_log_events[`ALL`];", civ)
}

// resolveScreenshotPath expands the filepath argument and anchors
// relative paths in the process working directory.
func resolveScreenshotPath(args *segments.Args, civ *engine.Civilization) (string, error) {
	target, err := args.GetString("filepath")
	if err != nil {
		return "", err
	}
	if target == "" {
		return "", errs.Input(&errs.ArgumentRequiresValue{Arg: "filepath"})
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(civ.Universe.Ctx.WorkingDirectory, target)
	}
	return target, nil
}

// screenshotViewport captures the visible page.
type screenshotViewport struct{}

func (*screenshotViewport) Segments() string {
	return "In my browser, I screenshot the viewport to {filepath}"
}

func (*screenshotViewport) Run(ctx context.Context, args *segments.Args, civ *engine.Civilization) error {
	window, err := requireWindow(civ)
	if err != nil {
		return err
	}
	target, err := resolveScreenshotPath(args, civ)
	if err != nil {
		return err
	}
	return window.ScreenshotPage(ctx, target)
}

// screenshotElement captures one element.
type screenshotElement struct{}

func (*screenshotElement) Segments() string {
	return "In my browser, I screenshot the element {selector} to {filepath}"
}

func (*screenshotElement) Run(ctx context.Context, args *segments.Args, civ *engine.Civilization) error {
	window, err := requireWindow(civ)
	if err != nil {
		return err
	}
	selector, err := args.GetString("selector")
	if err != nil {
		return err
	}
	target, err := resolveScreenshotPath(args, civ)
	if err != nil {
		return err
	}
	return window.ScreenshotElement(ctx, selector, target, selectorTimeout(civ))
}

func interactByText(ctx context.Context, args *segments.Args, civ *engine.Civilization, act browser.Interaction) error {
	window, err := requireWindow(civ)
	if err != nil {
		return err
	}
	text, err := args.GetString("text")
	if err != nil {
		return err
	}
	return window.InteractText(ctx, text, act, selectorTimeout(civ))
}

func interactBySelector(ctx context.Context, args *segments.Args, civ *engine.Civilization, act browser.Interaction) error {
	window, err := requireWindow(civ)
	if err != nil {
		return err
	}
	selector, err := args.GetString("selector")
	if err != nil {
		return err
	}
	return window.InteractSelector(ctx, selector, act, selectorTimeout(civ))
}

// clickText clicks the unique interactable element containing text.
type clickText struct{}

func (*clickText) Segments() string {
	return "In my browser, I click {text}"
}

func (*clickText) Run(ctx context.Context, args *segments.Args, civ *engine.Civilization) error {
	return interactByText(ctx, args, civ, browser.Click)
}

// hoverText hovers the unique interactable element containing text.
type hoverText struct{}

func (*hoverText) Segments() string {
	return "In my browser, I hover {text}"
}

func (*hoverText) Run(ctx context.Context, args *segments.Args, civ *engine.Civilization) error {
	return interactByText(ctx, args, civ, browser.Hover)
}

// clickSelector clicks the first element matching a CSS selector.
type clickSelector struct{}

func (*clickSelector) Segments() string {
	return "In my browser, I click the selector {selector}"
}

func (*clickSelector) Run(ctx context.Context, args *segments.Args, civ *engine.Civilization) error {
	return interactBySelector(ctx, args, civ, browser.Click)
}

// hoverSelector hovers the first element matching a CSS selector.
type hoverSelector struct{}

func (*hoverSelector) Segments() string {
	return "In my browser, I hover the selector {selector}"
}

func (*hoverSelector) Run(ctx context.Context, args *segments.Args, civ *engine.Civilization) error {
	return interactBySelector(ctx, args, civ, browser.Hover)
}

// pressKey dispatches a named key to the page.
type pressKey struct{}

func (*pressKey) Segments() string {
	return "In my browser, I press the {keyname} key"
}

func (*pressKey) Run(ctx context.Context, args *segments.Args, civ *engine.Civilization) error {
	window, err := requireWindow(civ)
	if err != nil {
		return err
	}
	name, err := args.GetString("keyname")
	if err != nil {
		return err
	}
	return window.PressKey(ctx, name, selectorTimeout(civ))
}

// typeText types a string character by character.
type typeText struct{}

func (*typeText) Segments() string {
	return "In my browser, I type {text}"
}

func (*typeText) Run(ctx context.Context, args *segments.Args, civ *engine.Civilization) error {
	window, err := requireWindow(civ)
	if err != nil {
		return err
	}
	text, err := args.GetString("text")
	if err != nil {
		return err
	}
	return window.TypeText(ctx, text, selectorTimeout(civ))
}
