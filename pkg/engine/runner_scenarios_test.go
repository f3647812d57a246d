package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ormasoftchile/toolproof/pkg/definitions"
	"github.com/ormasoftchile/toolproof/pkg/engine"
	"github.com/ormasoftchile/toolproof/pkg/errs"
	"github.com/ormasoftchile/toolproof/pkg/options"
	"github.com/ormasoftchile/toolproof/pkg/platforms"
	"github.com/ormasoftchile/toolproof/pkg/schema"
)

// scenarioUniverse builds a universe with the real built-in definitions
// and the given parsed files.
func scenarioUniverse(t *testing.T, files []*schema.TestFile, macros []*schema.MacroFile, mutate func(*options.Params)) *engine.Universe {
	t.Helper()

	instructions, instructionComparisons, err := engine.BuildInstructions(definitions.Instructions())
	if err != nil {
		t.Fatalf("register instructions: %v", err)
	}
	retrievers, retrieverComparisons, err := engine.BuildRetrievers(definitions.Retrievers())
	if err != nil {
		t.Fatalf("register retrievers: %v", err)
	}
	assertions, assertionComparisons, err := engine.BuildAssertions(definitions.Assertions())
	if err != nil {
		t.Fatalf("register assertions: %v", err)
	}
	macroRegistry, macroComparisons, err := engine.BuildMacros(macros)
	if err != nil {
		t.Fatalf("register macros: %v", err)
	}

	tests := make(map[string]*schema.TestFile)
	var paths []string
	for _, f := range files {
		tests[f.FilePath] = f
		paths = append(paths, f.FilePath)
	}

	params := options.Params{
		Concurrency:          1,
		Timeout:              10,
		PlaceholderDelimiter: "%",
		Placeholders:         map[string]string{},
		Browser:              options.BrowserChrome,
	}
	if mutate != nil {
		mutate(&params)
	}

	return &engine.Universe{
		Tests:                  tests,
		SortedTestPaths:        paths,
		Macros:                 macroRegistry,
		MacroComparisons:       macroComparisons,
		Instructions:           instructions,
		InstructionComparisons: instructionComparisons,
		Retrievers:             retrievers,
		RetrieverComparisons:   retrieverComparisons,
		Assertions:             assertions,
		AssertionComparisons:   assertionComparisons,
		Ctx: &options.Context{
			Version:          "dev",
			WorkingDirectory: t.TempDir(),
			Params:           params,
		},
		Log: zap.NewNop(),
	}
}

func parseTest(t *testing.T, doc, path string) *schema.TestFile {
	t.Helper()
	file, err := schema.ParseFile(doc, path)
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return file
}

func TestScenarioEcho(t *testing.T) {
	doc := `name: echo
steps:
  - I run "echo hi"
  - stdout should contain "hi"
`
	file := parseTest(t, doc, "echo.toolproof.yml")
	u := scenarioUniverse(t, []*schema.TestFile{file}, nil, nil)

	outcome, runErr := engine.RunTest(context.Background(), file, u)
	if runErr != nil {
		t.Fatalf("run failed: %v", runErr)
	}
	if outcome != engine.OutcomePassed {
		t.Errorf("outcome = %v", outcome)
	}
	for i, step := range file.Steps {
		if step.State != schema.StatePassed {
			t.Errorf("step %d state = %v", i, step.State)
		}
	}
}

func TestScenarioFileRoundTrip(t *testing.T) {
	doc := `name: file round trip
steps:
  - I have a "a/b.txt" file with the content "hello"
  - The file "a/b.txt" should be exactly "hello"
`
	file := parseTest(t, doc, "file.toolproof.yml")
	u := scenarioUniverse(t, []*schema.TestFile{file}, nil, nil)

	if _, runErr := engine.RunTest(context.Background(), file, u); runErr != nil {
		t.Fatalf("run failed: %v", runErr)
	}
}

func TestScenarioMissingStep(t *testing.T) {
	doc := `name: missing
steps:
  - I do a thing that is not registered
  - I run "echo never"
`
	file := parseTest(t, doc, "missing.toolproof.yml")
	u := scenarioUniverse(t, []*schema.TestFile{file}, nil, nil)

	_, runErr := engine.RunTest(context.Background(), file, u)
	if runErr == nil {
		t.Fatal("run should fail on an unregistered step")
	}
	if !errors.Is(runErr.Err, errs.ErrNonexistentStep) {
		t.Errorf("error = %v, want nonexistent step", runErr.Err)
	}
	if file.Steps[0].State != schema.StateFailed {
		t.Errorf("failed step state = %v", file.Steps[0].State)
	}
	// Steps after the first failure stay dormant.
	if file.Steps[1].State != schema.StateDormant {
		t.Errorf("subsequent step state = %v", file.Steps[1].State)
	}
}

func TestScenarioPlaceholder(t *testing.T) {
	doc := `name: placeholder
steps:
  - I have a "g.txt" file with the content "hi %who%"
  - The file "g.txt" should be exactly "hi world"
`
	file := parseTest(t, doc, "placeholder.toolproof.yml")
	u := scenarioUniverse(t, []*schema.TestFile{file}, nil, func(p *options.Params) {
		p.Placeholders["who"] = "world"
	})

	if _, runErr := engine.RunTest(context.Background(), file, u); runErr != nil {
		t.Fatalf("run failed: %v", runErr)
	}
}

func TestScenarioTimeout(t *testing.T) {
	doc := `name: slow
steps:
  - I run "sleep 5"
  - I run "echo never"
`
	file := parseTest(t, doc, "slow.toolproof.yml")
	u := scenarioUniverse(t, []*schema.TestFile{file}, nil, func(p *options.Params) {
		p.Timeout = 1
	})

	_, runErr := engine.RunTest(context.Background(), file, u)
	if runErr == nil {
		t.Fatal("run should fail on timeout")
	}
	if !strings.Contains(runErr.Err.Error(), "Step timed out after 1s") {
		t.Errorf("error = %v, want step timeout", runErr.Err)
	}
	if file.Steps[1].State != schema.StateDormant {
		t.Error("steps after a timeout should stay dormant")
	}
}

func TestScenarioExpectedFailure(t *testing.T) {
	doc := `name: expected failure
steps:
  - I run "exit 1" and expect it to fail
`
	file := parseTest(t, doc, "fail.toolproof.yml")
	u := scenarioUniverse(t, []*schema.TestFile{file}, nil, nil)

	if _, runErr := engine.RunTest(context.Background(), file, u); runErr != nil {
		t.Fatalf("run failed: %v", runErr)
	}
}

func TestPlatformGatedStepIsSkipped(t *testing.T) {
	foreign := "windows"
	if platforms.Matches([]platforms.Platform{platforms.Windows}) {
		foreign = "linux"
	}
	doc := `name: gated
steps:
  - step: I run "exit 1"
    platforms:
      - ` + foreign + `
  - I run "echo hi"
`
	file := parseTest(t, doc, "gated.toolproof.yml")
	u := scenarioUniverse(t, []*schema.TestFile{file}, nil, nil)

	if _, runErr := engine.RunTest(context.Background(), file, u); runErr != nil {
		t.Fatalf("run failed: %v", runErr)
	}
	if file.Steps[0].State != schema.StateSkipped {
		t.Errorf("gated step state = %v, want skipped", file.Steps[0].State)
	}
	if file.Steps[1].State != schema.StatePassed {
		t.Errorf("ungated step state = %v, want passed", file.Steps[1].State)
	}
}

func TestPlatformGatedFileIsSkipped(t *testing.T) {
	foreign := "windows"
	if platforms.Matches([]platforms.Platform{platforms.Windows}) {
		foreign = "linux"
	}
	doc := `name: gated file
platforms:
  - ` + foreign + `
steps:
  - I run "exit 1"
`
	file := parseTest(t, doc, "gatedfile.toolproof.yml")
	u := scenarioUniverse(t, []*schema.TestFile{file}, nil, nil)

	outcome, runErr := engine.RunTest(context.Background(), file, u)
	if runErr != nil {
		t.Fatalf("run failed: %v", runErr)
	}
	if outcome != engine.OutcomeSkipped {
		t.Errorf("outcome = %v, want skipped", outcome)
	}
}

func TestReferenceHydration(t *testing.T) {
	refDoc := `name: shared setup
type: reference
steps:
  - I have a "seed.txt" file with the content "seeded"
`
	mainDoc := `name: uses ref
steps:
  - ref: ./setup/shared.toolproof.yml
  - The file "seed.txt" should be exactly "seeded"
`
	refFile := parseTest(t, refDoc, "setup/shared.toolproof.yml")
	mainFile := parseTest(t, mainDoc, "main.toolproof.yml")
	u := scenarioUniverse(t, []*schema.TestFile{refFile, mainFile}, nil, nil)

	if _, runErr := engine.RunTest(context.Background(), mainFile, u); runErr != nil {
		t.Fatalf("run failed: %v", runErr)
	}
	if len(mainFile.Steps[0].HydratedSteps) != 1 {
		t.Fatal("ref step should hydrate the referenced steps")
	}
	if mainFile.Steps[0].HydratedSteps[0].State != schema.StatePassed {
		t.Error("hydrated step should have run")
	}
	// The pristine reference file is untouched.
	if refFile.Steps[0].State != schema.StateDormant {
		t.Error("reference file state was mutated")
	}
}

func TestReferenceToMissingFile(t *testing.T) {
	doc := `name: bad ref
steps:
  - ref: ./nope.toolproof.yml
`
	file := parseTest(t, doc, "badref.toolproof.yml")
	u := scenarioUniverse(t, []*schema.TestFile{file}, nil, nil)

	_, runErr := engine.RunTest(context.Background(), file, u)
	if runErr == nil {
		t.Fatal("run should fail on a bad ref")
	}
	var invalid *errs.InvalidRef
	if !errors.As(runErr.Err, &invalid) {
		t.Fatalf("error = %v, want InvalidRef", runErr.Err)
	}
}

func TestMacroPlaceholderFrame(t *testing.T) {
	macroDoc := `macro: I write {word} twice
steps:
  - I have a "twice.txt" file with the content "%word% %word%"
`
	mainDoc := `name: uses macro
steps:
  - macro: I write "bonjour" twice
  - The file "twice.txt" should be exactly "bonjour bonjour"
`
	macro, err := schema.ParseMacroFile(macroDoc, "macros/twice.toolproof.macro.yml")
	if err != nil {
		t.Fatalf("parse macro: %v", err)
	}
	mainFile := parseTest(t, mainDoc, "main.toolproof.yml")
	u := scenarioUniverse(t, []*schema.TestFile{mainFile}, []*schema.MacroFile{macro}, nil)

	if _, runErr := engine.RunTest(context.Background(), mainFile, u); runErr != nil {
		t.Fatalf("run failed: %v", runErr)
	}
}

// The macro's placeholder frame is transient: steps after the macro no
// longer see its variables.
func TestMacroFrameIsTransient(t *testing.T) {
	macroDoc := `macro: I write {word} once
steps:
  - I have a "once.txt" file with the content "%word%"
`
	mainDoc := `name: frame scope
steps:
  - macro: I write "inner" once
  - I have a "after.txt" file with the content "%word%"
  - The file "after.txt" should be exactly "%word%"
`
	macro, err := schema.ParseMacroFile(macroDoc, "macros/once.toolproof.macro.yml")
	if err != nil {
		t.Fatalf("parse macro: %v", err)
	}
	mainFile := parseTest(t, mainDoc, "main.toolproof.yml")
	u := scenarioUniverse(t, []*schema.TestFile{mainFile}, []*schema.MacroFile{macro}, nil)

	if _, runErr := engine.RunTest(context.Background(), mainFile, u); runErr != nil {
		t.Fatalf("run failed: %v", runErr)
	}
}

func TestSnapshotCapture(t *testing.T) {
	doc := `name: snap
steps:
  - I run "printf out"
  - snapshot: stdout
`
	file := parseTest(t, doc, "snap.toolproof.yml")
	u := scenarioUniverse(t, []*schema.TestFile{file}, nil, nil)

	if _, runErr := engine.RunTest(context.Background(), file, u); runErr != nil {
		t.Fatalf("run failed: %v", runErr)
	}
	if file.Steps[1].SnapshotContent == nil {
		t.Fatal("snapshot content was not captured")
	}
	if *file.Steps[1].SnapshotContent != "out" {
		t.Errorf("captured %q", *file.Steps[1].SnapshotContent)
	}
}

func TestExtractWritesFile(t *testing.T) {
	doc := `name: extract
steps:
  - I run "printf payload"
  - extract: stdout
    extract_location: saved/out.txt
  - The file "saved/out.txt" should be exactly "payload"
`
	file := parseTest(t, doc, "extract.toolproof.yml")
	u := scenarioUniverse(t, []*schema.TestFile{file}, nil, nil)

	if _, runErr := engine.RunTest(context.Background(), file, u); runErr != nil {
		t.Fatalf("run failed: %v", runErr)
	}
}

func TestBuiltinProcessDirectoryPlaceholder(t *testing.T) {
	doc := `name: process dir
steps:
  - I have a "dir.txt" file with the content "%toolproof_process_directory%"
`
	file := parseTest(t, doc, "dir.toolproof.yml")
	u := scenarioUniverse(t, []*schema.TestFile{file}, nil, nil)

	if _, runErr := engine.RunTest(context.Background(), file, u); runErr != nil {
		t.Fatalf("run failed: %v", runErr)
	}
}

func TestStepGateSkips(t *testing.T) {
	doc := `name: gated by hook
steps:
  - I run "exit 1"
`
	file := parseTest(t, doc, "hook.toolproof.yml")
	u := scenarioUniverse(t, []*schema.TestFile{file}, nil, nil)
	u.Gate = func(step *schema.Step) (bool, error) { return true, nil }

	if _, runErr := engine.RunTest(context.Background(), file, u); runErr != nil {
		t.Fatalf("run failed: %v", runErr)
	}
	if file.Steps[0].State != schema.StateSkipped {
		t.Errorf("gated step state = %v", file.Steps[0].State)
	}
}

// Failure screenshots only engage when a browser window exists; without
// one, the failure propagates untouched and nothing is written.
func TestNoFailureScreenshotWithoutWindow(t *testing.T) {
	doc := `name: plain failure
steps:
  - I run "exit 1"
`
	file := parseTest(t, doc, "plain.toolproof.yml")
	shotDir := filepath.Join(t.TempDir(), "shots")
	u := scenarioUniverse(t, []*schema.TestFile{file}, nil, func(p *options.Params) {
		p.FailureScreenshotLocation = shotDir
	})

	if _, runErr := engine.RunTest(context.Background(), file, u); runErr == nil {
		t.Fatal("run should fail")
	}
	if file.FailureScreenshot != "" {
		t.Error("no screenshot should be recorded without a window")
	}
	if _, err := os.Stat(shotDir); !os.IsNotExist(err) {
		t.Error("screenshot directory should not be created")
	}
}
