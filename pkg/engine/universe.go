package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ormasoftchile/toolproof/pkg/browser"
	"github.com/ormasoftchile/toolproof/pkg/options"
	"github.com/ormasoftchile/toolproof/pkg/schema"
)

// StepGate is an optional hook invoked before each step runs. Returning
// skip marks the step skipped without executing; returning an error aborts
// the test. The debugger attaches through this.
type StepGate func(step *schema.Step) (skip bool, err error)

// Universe is the process-wide, read-mostly context shared by every test:
// parsed files, the step registries, the configuration, and the lazily
// started browser. It is immutable after startup except for the one-time
// browser initializer.
type Universe struct {
	Tests           map[string]*schema.TestFile
	SortedTestPaths []string

	Macros           map[string]*RegisteredMacro
	MacroComparisons []string

	Instructions           map[string]*RegisteredInstruction
	InstructionComparisons []string

	Retrievers           map[string]*RegisteredRetriever
	RetrieverComparisons []string

	Assertions           map[string]*RegisteredAssertion
	AssertionComparisons []string

	Ctx *options.Context
	Log *zap.Logger

	// Gate, when set, runs before every step of every test.
	Gate StepGate

	browserOnce sync.Once
	browser     *browser.Tester
	browserErr  error
}

// EnsureBrowser starts the shared browser process on first use. Every
// later caller observes the same instance (or the same startup failure).
func (u *Universe) EnsureBrowser(ctx context.Context) (*browser.Tester, error) {
	u.browserOnce.Do(func() {
		u.Log.Debug("starting browser", zap.String("impl", string(u.Ctx.Params.Browser)))
		u.browser, u.browserErr = browser.Launch(ctx, browser.Impl(u.Ctx.Params.Browser), u.Log)
	})
	return u.browser, u.browserErr
}

// CloseBrowser tears down the shared browser if it was ever started.
func (u *Universe) CloseBrowser() {
	if u.browser != nil {
		_ = u.browser.Close()
	}
}

// SelectorTimeout is the per-element wait used inside browser steps. It
// undercuts the step timeout so selector misses fail with "element not
// found" instead of a generic step timeout.
func (u *Universe) SelectorTimeout() int {
	t := u.Ctx.Params.Timeout - 2
	if t < 1 {
		t = 1
	}
	return t
}
