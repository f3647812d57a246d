// Package schema defines the typed model for toolproof test and macro
// files and parses their YAML documents into it.
package schema

import (
	"github.com/ormasoftchile/toolproof/pkg/platforms"
	"github.com/ormasoftchile/toolproof/pkg/segments"
)

// FileType distinguishes runnable tests from reference-only files.
type FileType string

const (
	// FileTypeTest files run as part of the suite.
	FileTypeTest FileType = "test"
	// FileTypeReference files only run when pulled in through a ref step.
	FileTypeReference FileType = "reference"
)

// StepState tracks a step through its lifecycle. Steps start dormant and
// transition exactly once.
type StepState int

const (
	StateDormant StepState = iota
	StateSkipped
	StateFailed
	StatePassed
)

func (s StepState) String() string {
	switch s {
	case StateSkipped:
		return "skipped"
	case StateFailed:
		return "failed"
	case StatePassed:
		return "passed"
	default:
		return "dormant"
	}
}

// StepKind discriminates the step variants.
type StepKind int

const (
	// KindRef pulls in another test file's steps.
	KindRef StepKind = iota
	// KindInstruction runs a registered instruction.
	KindInstruction
	// KindAssertion runs a retrieval and feeds it to an assertion.
	KindAssertion
	// KindSnapshot runs a retrieval and captures its output literally.
	KindSnapshot
	// KindExtract runs a retrieval and writes its output to a file.
	KindExtract
	// KindMacro expands a parameterized macro inline.
	KindMacro
)

// Step is one entry in a test file's steps sequence. The populated fields
// depend on Kind; dispatch is by tag.
type Step struct {
	Kind      StepKind
	State     StepState
	Platforms []platforms.Platform
	Orig      string
	Args      map[string]any

	// KindRef
	OtherFile string

	// KindInstruction and KindMacro
	Pattern *segments.Sequence

	// KindAssertion, KindSnapshot and KindExtract
	Retrieval *segments.Sequence
	// KindAssertion
	Assertion *segments.Sequence

	// KindSnapshot, set while running
	SnapshotContent *string

	// KindExtract
	ExtractLocation string

	// KindRef and KindMacro, set while running
	HydratedSteps []*Step
}

// Clone copies a step with its run state reset (dormant, no captured
// snapshot content, no hydrated steps) and its own top-level args map, so
// one run's state never leaks into another run of the same file. Arg
// values and segment sequences are shared with the original.
func (s *Step) Clone() *Step {
	out := *s
	out.State = StateDormant
	out.SnapshotContent = nil
	out.HydratedSteps = nil
	if s.Args != nil {
		out.Args = make(map[string]any, len(s.Args))
		for k, v := range s.Args {
			out.Args[k] = v
		}
	}
	return &out
}

// CloneSteps clones every step of a list with Clone.
func CloneSteps(steps []*Step) []*Step {
	out := make([]*Step, len(steps))
	for i, s := range steps {
		out[i] = s.Clone()
	}
	return out
}

// String renders the step for traces, close to how the user wrote it.
func (s *Step) String() string {
	switch s.Kind {
	case KindRef:
		return "run steps from: " + s.Orig
	case KindSnapshot:
		return "snapshot: " + s.Orig
	case KindExtract:
		return "extract: " + s.Orig
	case KindMacro:
		return "run macro: " + s.Orig
	default:
		return s.Orig
	}
}

// TestFile is one parsed *.toolproof.yml document.
type TestFile struct {
	Name              string
	Type              FileType
	Platforms         []platforms.Platform
	Steps             []*Step
	OriginalSource    string
	FilePath          string
	FileDirectory     string
	FailureScreenshot string
}

// Clone copies the file with a pristine step tree, ready for a run.
func (f *TestFile) Clone() *TestFile {
	out := *f
	out.Steps = CloneSteps(f.Steps)
	out.FailureScreenshot = ""
	return &out
}

// MacroFile is one parsed *.toolproof.macro.yml document.
type MacroFile struct {
	Pattern       *segments.Sequence
	OrigPattern   string
	Steps         []*Step
	FileDirectory string
}
