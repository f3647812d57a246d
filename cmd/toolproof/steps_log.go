package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/toolproof/pkg/schema"
)

var (
	styleBold       = lipgloss.NewStyle().Bold(true)
	styleDim        = lipgloss.NewStyle().Faint(true)
	stylePass       = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleFail       = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleWarn       = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	styleSkip       = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleHint       = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	styleBanner     = lipgloss.NewStyle().Background(lipgloss.Color("3")).Foreground(lipgloss.Color("0")).Bold(true)
	styleWarnBanner = lipgloss.NewStyle().Background(lipgloss.Color("11")).Foreground(lipgloss.Color("0")).Bold(true)
)

// logStepRuns prints the step trace of a finished test, recursing into
// hydrated refs and macros.
func logStepRuns(steps []*schema.Step, indent int) {
	for _, step := range steps {
		prefix := ""
		if indent > 0 {
			prefix = strings.Repeat(" ", indent) + "↳ "
		}

		var line string
		switch step.State {
		case schema.StatePassed:
			line = stylePass.Render("✓ " + step.String())
		case schema.StateFailed:
			line = styleFail.Render("✘ " + step.String())
		case schema.StateSkipped:
			line = styleDim.Render("⊝ " + step.String())
		default:
			line = styleDim.Render("⦸ " + step.String())
		}
		fmt.Println(prefix + line)

		if len(step.HydratedSteps) > 0 {
			logStepRuns(step.HydratedSteps, indent+2)
		}
	}
}
