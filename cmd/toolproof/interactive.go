package main

import (
	"fmt"
	"os"

	"github.com/aymanbagabas/go-udiff"
	"github.com/charmbracelet/huh"

	"github.com/ormasoftchile/toolproof/pkg/engine"
	"github.com/ormasoftchile/toolproof/pkg/schema"
)

// promptRunMode asks which tests to run when interactive mode starts
// without --all.
func promptRunMode(universe *engine.Universe) (runMode, error) {
	const runEverything = "<run all tests>"

	names := []string{runEverything}
	for _, p := range universe.SortedTestPaths {
		file := universe.Tests[p]
		if file.Type == schema.FileTypeTest {
			names = append(names, file.Name)
		}
	}

	var choice string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Which test should run?").
			Options(huh.NewOptions(names...)...).
			Value(&choice),
	))
	if err := form.Run(); err != nil {
		return runMode{}, fmt.Errorf("select run mode: %w", err)
	}

	if choice == runEverything {
		return runMode{all: true}, nil
	}
	return runMode{name: choice}, nil
}

// diffSnapshots renders a unified diff between the stored document and
// the freshly produced one.
func diffSnapshots(original, produced string) string {
	return udiff.Unified("existing snapshot", "new snapshot", original, produced)
}

// reviewSnapshots walks changed snapshots with the user and writes
// accepted documents back to disk. Returns how many changes were
// accepted. Outside interactive mode it does nothing.
func reviewSnapshots(universe *engine.Universe, results []*testResult) int {
	if !universe.Ctx.Params.Interactive {
		return 0
	}

	var changed []*testResult
	for _, res := range results {
		if !res.failed && res.snapChanged {
			changed = append(changed, res)
		}
	}
	if len(changed) == 0 {
		return 0
	}

	noun := "snapshots have"
	if len(changed) == 1 {
		noun = "snapshot has"
	}
	review := false
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("%d %s changed. Review now?", len(changed), noun)).
			Value(&review),
	))
	if err := form.Run(); err != nil || !review {
		return 0
	}

	resolved := 0
	for _, res := range changed {
		fmt.Printf("\n%s\n", styleBold.Render(res.file.Name))
		fmt.Println(diffSnapshots(res.file.OriginalSource, res.snapshotOut))

		accept := false
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Accept the new snapshot for %q?", res.file.Name)).
				Value(&accept),
		))
		if err := form.Run(); err != nil || !accept {
			continue
		}

		if err := os.WriteFile(res.file.FilePath, []byte(res.snapshotOut), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Unable to write updated snapshot to disk.\n%v\n", err)
			continue
		}
		resolved++
	}
	fmt.Println()
	return resolved
}
