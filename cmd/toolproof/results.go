package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ormasoftchile/toolproof/pkg/engine"
	"github.com/ormasoftchile/toolproof/pkg/errs"
	"github.com/ormasoftchile/toolproof/pkg/schema"
	"github.com/ormasoftchile/toolproof/pkg/segments"
	"github.com/ormasoftchile/toolproof/pkg/suggest"
)

// printResult renders one finished test: its status line and, on
// failure, the step trace and error detail.
func printResult(universe *engine.Universe, res *testResult, elapsed time.Duration) {
	dur := ""
	if !universe.Ctx.Params.Porcelain {
		dur = fmt.Sprintf("[%d.%03ds] ", int(elapsed.Seconds()), elapsed.Milliseconds()%1000)
	}

	switch {
	case res.runErr == nil && res.outcome == engine.OutcomeSkipped:
		fmt.Println(styleDim.Render(styleSkip.Render("⊝ " + dur + res.file.Name)))

	case res.runErr == nil && !res.snapChanged:
		fmt.Println(stylePass.Render("✓ " + dur + res.file.Name))

	case res.runErr == nil && res.snapChanged:
		fmt.Println(styleWarn.Render("⚠ " + dur + res.file.Name))
		if !universe.Ctx.Params.Interactive {
			fmt.Println(styleWarnBanner.Render("--- SNAPSHOT CHANGED ---"))
			fmt.Println(diffSnapshots(res.file.OriginalSource, res.snapshotOut))
			fmt.Println(styleWarnBanner.Render("--- END SNAPSHOT CHANGE ---"))
			fmt.Println(styleFail.Render("\nRun in interactive mode (-i) to accept new snapshots\n"))
		}

	default:
		fmt.Println(styleFail.Render("✘ " + dur + res.file.Name))
		fmt.Println(styleBanner.Render("--- STEPS ---"))
		logStepRuns(res.file.Steps, 0)
		fmt.Println(styleBanner.Render("--- ERROR ---"))
		printTestError(universe, res.runErr)
		if res.file.FailureScreenshot != "" {
			fmt.Printf("Failure screenshot saved to %s\n", res.file.FailureScreenshot)
		}
	}
}

// printTestError renders the raw error, following missing-step errors
// with the closest registered patterns.
func printTestError(universe *engine.Universe, testErr *engine.TestError) {
	fmt.Println(styleFail.Render(testErr.Err.Error()))
	if testErr.ArgStr != "" {
		fmt.Println(styleDim.Render(testErr.ArgStr))
	}

	if !errors.Is(testErr.Err, errs.ErrNonexistentStep) {
		return
	}

	step := testErr.Step
	switch step.Kind {
	case schema.KindInstruction:
		printClosest(universe, "Instruction", step.Orig, step.Pattern,
			universe.InstructionComparisons, lookupInstruction(universe))
	case schema.KindMacro:
		printClosest(universe, "Macro", step.Orig, step.Pattern,
			universe.MacroComparisons, lookupMacro(universe))
	case schema.KindSnapshot, schema.KindExtract:
		printClosest(universe, "Retrieval", step.Orig, step.Retrieval,
			universe.RetrieverComparisons, lookupRetriever(universe))
	case schema.KindAssertion:
		// The retrieval resolves before the assertion, so target whichever
		// is actually missing, retrieval first.
		if _, ok := universe.Retrievers[step.Retrieval.ComparisonString()]; !ok {
			printClosest(universe, "Retrieval", step.Orig, step.Retrieval,
				universe.RetrieverComparisons, lookupRetriever(universe))
		} else {
			printClosest(universe, "Assertion", step.Orig, step.Assertion,
				universe.AssertionComparisons, lookupAssertion(universe))
		}
	}
}

// lookup functions resolve a comparison string back to the registered
// pattern's display form.
func lookupInstruction(u *engine.Universe) func(string) string {
	return func(k string) string {
		if reg, ok := u.Instructions[k]; ok {
			return reg.Ref.String()
		}
		return k
	}
}

func lookupRetriever(u *engine.Universe) func(string) string {
	return func(k string) string {
		if reg, ok := u.Retrievers[k]; ok {
			return reg.Ref.String()
		}
		return k
	}
}

func lookupAssertion(u *engine.Universe) func(string) string {
	return func(k string) string {
		if reg, ok := u.Assertions[k]; ok {
			return reg.Ref.String()
		}
		return k
	}
}

func lookupMacro(u *engine.Universe) func(string) string {
	return func(k string) string {
		if reg, ok := u.Macros[k]; ok {
			return reg.Macro.OrigPattern
		}
		return k
	}
}

// printClosest scores the user's comparison string against every
// registered pattern and surfaces the best matches.
func printClosest(
	universe *engine.Universe,
	stepType string,
	orig string,
	userSegments *segments.Sequence,
	comparisons []string,
	display func(string) string,
) {
	comparator := userSegments.ComparisonString()
	fmt.Fprintf(os.Stderr, "Unable to resolve: %s\n%s %s was not found.\n",
		styleFail.Render(fmt.Sprintf("%q", orig)),
		stepType,
		styleWarn.Render(fmt.Sprintf("%q", comparator)),
	)

	matches := suggest.FilterTop(suggest.Closest(comparator, comparisons))
	if len(matches) == 0 {
		fmt.Fprintln(os.Stderr, styleFail.Render(fmt.Sprintf("No similar %ss found", stepType)))
		return
	}

	fmt.Fprintf(os.Stderr, "Closest %ss:\n", stepType)
	for _, m := range matches {
		fmt.Fprintf(os.Stderr, "• %s\n", styleHint.Render(display(m.Text)))
	}
}

// summarize prints the final totals and decides the exit status.
func summarize(universe *engine.Universe, results []*testResult, resolved int, elapsed time.Duration) error {
	var passing, passedOnRetry, failing, skipped int
	for _, res := range results {
		switch {
		case res.failed:
			failing++
		case res.snapChanged:
			failing++
		case res.runErr == nil && res.outcome == engine.OutcomeSkipped:
			skipped++
		default:
			passing++
			if res.attempts > 0 {
				passedOnRetry++
			}
		}
	}
	failing -= resolved
	passing += resolved

	fmt.Println(styleHint.Render(fmt.Sprintf("Passing tests: %d", passing)))
	if passedOnRetry > 0 {
		fmt.Println(styleHint.Render(fmt.Sprintf("Passed after retry: %d", passedOnRetry)))
	}
	fmt.Println(styleHint.Render(fmt.Sprintf("Failing tests: %d", failing)))
	fmt.Println(styleHint.Render(fmt.Sprintf("Skipped tests: %d", skipped)))

	dur := ""
	if !universe.Ctx.Params.Porcelain {
		dur = fmt.Sprintf(" in %d.%03d seconds", int(elapsed.Seconds()), elapsed.Milliseconds()%1000)
	}

	if failing > 0 {
		fmt.Println(styleFail.Render("\nSome tests failed" + dur))
		return errSomeTestsFailed
	}
	fmt.Println(stylePass.Render("\nAll tests passed" + dur))
	return nil
}

// errSomeTestsFailed maps to exit code 1 without duplicate printing.
var errSomeTestsFailed = errors.New("some tests failed")
