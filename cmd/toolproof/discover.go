package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/ormasoftchile/toolproof/pkg/definitions"
	"github.com/ormasoftchile/toolproof/pkg/engine"
	"github.com/ormasoftchile/toolproof/pkg/options"
	"github.com/ormasoftchile/toolproof/pkg/schema"
)

const beforeAllTimeout = 5 * time.Minute

const (
	testGlob  = "**/*.toolproof.yml"
	macroGlob = "**/*.toolproof.macro.yml"
)

// buildUniverse discovers and parses every test and macro file under
// root, rejects duplicate names, and snapshots the step registries.
func buildUniverse(optCtx *options.Context, log *zap.Logger) (*engine.Universe, error) {
	root := optCtx.Params.Root

	macroPaths, err := discover(root, macroGlob)
	if err != nil {
		return nil, err
	}
	testPaths, err := discover(root, testGlob)
	if err != nil {
		return nil, err
	}
	// Skip any path that was also discovered as a macro file.
	isMacro := make(map[string]bool, len(macroPaths))
	for _, p := range macroPaths {
		isMacro[p] = true
	}

	var parseErrors []error
	tests := make(map[string]*schema.TestFile)
	namesSeen := make(map[string]string)

	for _, p := range testPaths {
		if isMacro[p] {
			continue
		}
		src, err := os.ReadFile(p)
		if err != nil {
			parseErrors = append(parseErrors, fmt.Errorf("read %s: %w", p, err))
			continue
		}
		file, err := schema.ParseFile(string(src), p)
		if err != nil {
			parseErrors = append(parseErrors, err)
			continue
		}
		if otherPath, dup := namesSeen[file.Name]; dup {
			parseErrors = append(parseErrors, fmt.Errorf(
				"test name %q is used by both %s and %s", file.Name, otherPath, file.FilePath,
			))
			continue
		}
		namesSeen[file.Name] = file.FilePath
		tests[file.FilePath] = file
	}

	var macroFiles []*schema.MacroFile
	for _, p := range macroPaths {
		src, err := os.ReadFile(p)
		if err != nil {
			parseErrors = append(parseErrors, fmt.Errorf("read %s: %w", p, err))
			continue
		}
		macro, err := schema.ParseMacroFile(string(src), p)
		if err != nil {
			parseErrors = append(parseErrors, err)
			continue
		}
		macroFiles = append(macroFiles, macro)
	}

	if len(parseErrors) > 0 {
		fmt.Fprintln(os.Stderr, "Toolproof failed to parse some files:")
		for _, e := range parseErrors {
			fmt.Fprintf(os.Stderr, "  • %v\n", e)
		}
		return nil, fmt.Errorf("%d files failed to parse", len(parseErrors))
	}

	sortedPaths := make([]string, 0, len(tests))
	for p := range tests {
		sortedPaths = append(sortedPaths, p)
	}
	sort.Strings(sortedPaths)

	instructions, instructionComparisons, err := engine.BuildInstructions(definitions.Instructions())
	if err != nil {
		return nil, err
	}
	retrievers, retrieverComparisons, err := engine.BuildRetrievers(definitions.Retrievers())
	if err != nil {
		return nil, err
	}
	assertions, assertionComparisons, err := engine.BuildAssertions(definitions.Assertions())
	if err != nil {
		return nil, err
	}
	macros, macroComparisons, err := engine.BuildMacros(macroFiles)
	if err != nil {
		return nil, err
	}

	log.Debug("universe built",
		zap.Int("tests", len(tests)),
		zap.Int("macros", len(macros)),
		zap.Int("instructions", len(instructions)),
		zap.Int("retrievers", len(retrievers)),
		zap.Int("assertions", len(assertions)),
	)

	return &engine.Universe{
		Tests:                  tests,
		SortedTestPaths:        sortedPaths,
		Macros:                 macros,
		MacroComparisons:       macroComparisons,
		Instructions:           instructions,
		InstructionComparisons: instructionComparisons,
		Retrievers:             retrievers,
		RetrieverComparisons:   retrieverComparisons,
		Assertions:             assertions,
		AssertionComparisons:   assertionComparisons,
		Ctx:                    optCtx,
		Log:                    log,
	}, nil
}

// discover globs pattern under root, returning absolute slash paths in
// stable order.
func discover(root, pattern string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(root), pattern)
	if err != nil {
		return nil, fmt.Errorf("search for %s under %s: %w", pattern, root, err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, filepath.ToSlash(filepath.Join(root, m)))
	}
	sort.Strings(out)
	return out, nil
}

// runBeforeAllHooks executes each before_all command sequentially in the
// working directory with a hard per-command cap. Any failure aborts
// startup.
func runBeforeAllHooks(ctx context.Context, optCtx *options.Context) error {
	for _, hook := range optCtx.Params.BeforeAll {
		hookCtx, cancel := context.WithTimeout(ctx, beforeAllTimeout)
		cmd := exec.CommandContext(hookCtx, "sh", "-c", hook.Command)
		cmd.Dir = optCtx.WorkingDirectory
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		err := cmd.Run()
		cancel()
		if err != nil {
			if hookCtx.Err() != nil {
				return fmt.Errorf("before_all command %q timed out after %s", hook.Command, beforeAllTimeout)
			}
			return fmt.Errorf("before_all command %q failed: %w", hook.Command, err)
		}
	}
	return nil
}

// selectRunMode resolves what to run: an explicit name, a path prefix,
// an interactive pick, or everything.
func selectRunMode(universe *engine.Universe) (runMode, error) {
	params := universe.Ctx.Params

	if params.RunName != "" {
		return runMode{name: params.RunName}, nil
	}
	if params.RunPath != "" {
		p := params.RunPath
		if !filepath.IsAbs(p) {
			p = filepath.Join(universe.Ctx.WorkingDirectory, p)
		}
		return runMode{path: strings.TrimSuffix(filepath.ToSlash(p), "/")}, nil
	}
	if params.Interactive && !params.All {
		return promptRunMode(universe)
	}
	return runMode{all: true}, nil
}
