package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/blang/semver"
	"golang.org/x/sync/semaphore"

	"github.com/ormasoftchile/toolproof/pkg/engine"
	"github.com/ormasoftchile/toolproof/pkg/logging"
	"github.com/ormasoftchile/toolproof/pkg/options"
	"github.com/ormasoftchile/toolproof/pkg/schema"
	"github.com/ormasoftchile/toolproof/pkg/snapshot"
)

// runMode selects which tests this invocation executes.
type runMode struct {
	all  bool
	name string
	path string
}

// testResult is the outcome of one test's (possibly retried) runs.
type testResult struct {
	file        *schema.TestFile // the clone the last attempt ran against
	source      *schema.TestFile // the pristine parsed file
	outcome     engine.Outcome
	runErr      *engine.TestError
	snapshotOut string
	snapChanged bool
	attempts    int
	failed      bool
}

func runSuite(ctx context.Context, optCtx *options.Context) error {
	params := &optCtx.Params
	log := logging.New(params.Verbose, params.Porcelain)
	defer func() { _ = log.Sync() }()

	start := time.Now()

	if err := enforceSupportedVersions(optCtx); err != nil {
		return err
	}

	universe, err := buildUniverse(optCtx, log)
	if err != nil {
		return err
	}
	defer universe.CloseBrowser()

	if !params.SkipHooks {
		if err := runBeforeAllHooks(ctx, optCtx); err != nil {
			return err
		}
	}

	mode, err := selectRunMode(universe)
	if err != nil {
		return err
	}

	selected, err := selectTests(universe, mode)
	if err != nil {
		return err
	}

	if params.Debugger && mode.name != "" {
		universe.Gate = newDebugGate()
	}

	fmt.Printf("\n%s\n\n", styleBold.Render("Running tests"))

	results := runPass(ctx, universe, selected, int64(params.Concurrency), 0)

	// Retry failures with halved concurrency per pass.
	concurrency := params.Concurrency
	for retry := 1; retry <= params.RetryCount; retry++ {
		var failedIdx []int
		for i, res := range results {
			if res.failed {
				failedIdx = append(failedIdx, i)
			}
		}
		if len(failedIdx) == 0 {
			break
		}

		concurrency = concurrency / 2
		if concurrency < 1 {
			concurrency = 1
		}
		fmt.Printf("\n%s\n\n", styleBold.Render(fmt.Sprintf("Retrying %d failed tests", len(failedIdx))))

		retryFiles := make([]*schema.TestFile, 0, len(failedIdx))
		for _, i := range failedIdx {
			retryFiles = append(retryFiles, results[i].source)
		}
		retried := runPass(ctx, universe, retryFiles, int64(concurrency), retry)
		for n, i := range failedIdx {
			results[i] = retried[n]
		}
	}

	fmt.Printf("\n%s\n\n", styleBold.Render("Finished running tests"))

	resolved := reviewSnapshots(universe, results)

	return summarize(universe, results, resolved, time.Since(start))
}

// runPass executes one bounded pass over files, returning one result per
// file in order.
func runPass(
	ctx context.Context,
	universe *engine.Universe,
	files []*schema.TestFile,
	concurrency int64,
	attempt int,
) []*testResult {
	sem := semaphore.NewWeighted(concurrency)
	results := make([]*testResult, len(files))
	var wg sync.WaitGroup
	var outputMu sync.Mutex

	for i, source := range files {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = &testResult{file: source, source: source, failed: true}
			continue
		}
		wg.Add(1)
		go func(i int, source *schema.TestFile) {
			defer wg.Done()
			defer sem.Release(1)

			started := time.Now()
			run := source.Clone()
			outcome, runErr := engine.RunTest(ctx, run, universe)

			res := &testResult{
				file:     run,
				source:   source,
				outcome:  outcome,
				runErr:   runErr,
				attempts: attempt,
			}

			if runErr != nil {
				res.failed = true
			} else if outcome == engine.OutcomePassed {
				out, snapErr := snapshot.WriteYAMLSnapshots(run.OriginalSource, run)
				if snapErr != nil {
					res.failed = true
					res.runErr = &engine.TestError{
						Err:  snapErr,
						Step: &schema.Step{Kind: schema.KindInstruction, Orig: "<snapshot writer>"},
					}
				} else {
					res.snapshotOut = out
					res.snapChanged = strings.TrimSpace(out) != strings.TrimSpace(run.OriginalSource)
				}
			}

			outputMu.Lock()
			printResult(universe, res, time.Since(started))
			outputMu.Unlock()

			results[i] = res
		}(i, source)
	}

	wg.Wait()
	return results
}

// selectTests resolves the run mode to the ordered list of runnable
// tests.
func selectTests(universe *engine.Universe, mode runMode) ([]*schema.TestFile, error) {
	var selected []*schema.TestFile

	switch {
	case mode.name != "":
		for _, p := range universe.SortedTestPaths {
			if universe.Tests[p].Name == mode.name {
				selected = append(selected, universe.Tests[p])
			}
		}
		if len(selected) == 0 {
			return nil, fmt.Errorf("no test found with the name %q", mode.name)
		}
	case mode.path != "":
		for _, p := range universe.SortedTestPaths {
			file := universe.Tests[p]
			if file.Type != schema.FileTypeTest {
				continue
			}
			if strings.HasPrefix(p, mode.path) {
				selected = append(selected, file)
			}
		}
		if len(selected) == 0 {
			return nil, fmt.Errorf("no test files found under the path %q", mode.path)
		}
	default:
		for _, p := range universe.SortedTestPaths {
			file := universe.Tests[p]
			if file.Type == schema.FileTypeTest {
				selected = append(selected, file)
			}
		}
	}

	return selected, nil
}

func enforceSupportedVersions(optCtx *options.Context) error {
	requirement := optCtx.Params.SupportedVersions
	if requirement == "" || optCtx.IsLocalBuild() {
		return nil
	}
	expectedRange, err := semver.ParseRange(requirement)
	if err != nil {
		return fmt.Errorf("supported_versions %q is not a valid semver range: %w", requirement, err)
	}
	current, err := semver.Parse(strings.TrimPrefix(optCtx.Version, "v"))
	if err != nil {
		return fmt.Errorf("binary version %q is not valid semver: %w", optCtx.Version, err)
	}
	if !expectedRange(current) {
		return fmt.Errorf(
			"toolproof %s does not satisfy the configured supported_versions %q",
			optCtx.Version, requirement,
		)
	}
	return nil
}
