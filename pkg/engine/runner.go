package engine

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/toolproof/pkg/errs"
	"github.com/ormasoftchile/toolproof/pkg/platforms"
	"github.com/ormasoftchile/toolproof/pkg/schema"
	"github.com/ormasoftchile/toolproof/pkg/segments"
	"github.com/ormasoftchile/toolproof/pkg/suggest"
)

// Outcome classifies a finished run of one test.
type Outcome int

const (
	OutcomePassed Outcome = iota
	OutcomeSkipped
)

// TestError carries a failed step together with the error that failed it,
// so the orchestrator can print the step trace and targeted diagnostics.
type TestError struct {
	Err    error
	Step   *schema.Step
	ArgStr string
}

func (e *TestError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step.String(), e.Err)
}

func (e *TestError) Unwrap() error { return e.Err }

// RunTest executes one test file inside a fresh civilization. The
// civilization is always shut down before returning, on success and
// failure alike. When the test fails with a live browser window and a
// failure screenshot location is configured, a viewport screenshot is
// captured first.
func RunTest(ctx context.Context, input *schema.TestFile, u *Universe) (Outcome, *TestError) {
	if !platforms.Matches(input.Platforms) {
		return OutcomeSkipped, nil
	}

	civ := NewCivilization(u)
	defer civ.Shutdown()

	runErr := runSteps(ctx, input.FileDirectory, input.Steps, civ, nil)

	if runErr != nil && civ.Window != nil && u.Ctx.Params.FailureScreenshotLocation != "" {
		filename := fmt.Sprintf(
			"%d-%s.webp",
			time.Now().Unix(),
			nonAlphanumericToDash(input.FilePath),
		)
		target := filepath.Join(
			u.Ctx.WorkingDirectory,
			u.Ctx.Params.FailureScreenshotLocation,
			filename,
		)
		if err := civ.Window.ScreenshotPage(ctx, target); err == nil {
			input.FailureScreenshot = target
		} else {
			u.Log.Debug("failure screenshot", zap.Error(err))
		}
	}

	if runErr != nil {
		return OutcomePassed, runErr
	}
	return OutcomePassed, nil
}

func nonAlphanumericToDash(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, s)
}

// runSteps interprets a step list in order. The first failure marks its
// step failed and aborts; later steps stay dormant. transient carries the
// placeholder frame of the enclosing macro call, if any.
func runSteps(
	ctx context.Context,
	fileDirectory string,
	steps []*schema.Step,
	civ *Civilization,
	transient map[string]string,
) *TestError {
	u := civ.Universe
	timeoutSecs := u.Ctx.Params.Timeout
	timeout := time.Duration(timeoutSecs) * time.Second

	for _, step := range steps {
		fail := func(err error) *TestError {
			step.State = schema.StateFailed
			return &TestError{Err: err, Step: step, ArgStr: argsPretty(step)}
		}
		timeoutErr := func() *TestError {
			return fail(errs.Assertionf("Step timed out after %ds", timeoutSecs))
		}

		if u.Gate != nil {
			skip, err := u.Gate(step)
			if err != nil {
				return fail(err)
			}
			if skip {
				step.State = schema.StateSkipped
				continue
			}
		}

		switch step.Kind {
		case schema.KindRef:
			targetPath := path.Clean(path.Join(fileDirectory, step.OtherFile))
			target, ok := u.Tests[targetPath]
			if !ok {
				closest := suggest.Best(targetPath, u.SortedTestPaths)
				if closest == "" {
					closest = "<nothing found>"
				}
				return fail(errs.Input(&errs.InvalidRef{Input: targetPath, Closest: closest}))
			}

			step.HydratedSteps = schema.CloneSteps(target.Steps)

			if !platforms.Matches(step.Platforms) {
				step.State = schema.StateSkipped
				continue
			}
			if err := runSteps(ctx, target.FileDirectory, step.HydratedSteps, civ, nil); err != nil {
				step.State = schema.StateFailed
				return err
			}
			step.State = schema.StatePassed

		case schema.KindMacro:
			registered, ok := u.Macros[step.Pattern.ComparisonString()]
			if !ok {
				return fail(errs.Input(errs.ErrNonexistentStep))
			}

			macroArgs, err := buildArgs(registered.Ref, step.Pattern, step, civ, transient)
			if err != nil {
				return fail(err)
			}

			variableNames := registered.Ref.VariableNames()
			frame := make(map[string]string, len(variableNames))
			for _, name := range variableNames {
				val, err := macroArgs.GetString(name)
				if err != nil {
					return fail(err)
				}
				frame[name] = val
			}

			step.HydratedSteps = schema.CloneSteps(registered.Macro.Steps)

			if !platforms.Matches(step.Platforms) {
				step.State = schema.StateSkipped
				continue
			}
			if err := runSteps(ctx, registered.Macro.FileDirectory, step.HydratedSteps, civ, frame); err != nil {
				step.State = schema.StateFailed
				return err
			}
			step.State = schema.StatePassed

		case schema.KindInstruction:
			registered, ok := u.Instructions[step.Pattern.ComparisonString()]
			if !ok {
				return fail(errs.Input(errs.ErrNonexistentStep))
			}
			args, err := buildArgs(registered.Ref, step.Pattern, step, civ, transient)
			if err != nil {
				return fail(err)
			}

			if !platforms.Matches(step.Platforms) {
				step.State = schema.StateSkipped
				continue
			}

			u.Log.Debug("running instruction", zap.String("step", step.Orig))
			err, timedOut := runBounded(ctx, timeout, func(stepCtx context.Context) error {
				return registered.Def.Run(stepCtx, args, civ)
			})
			if timedOut {
				return timeoutErr()
			}
			if err != nil {
				return fail(err)
			}
			step.State = schema.StatePassed

		case schema.KindAssertion:
			registeredRet, ok := u.Retrievers[step.Retrieval.ComparisonString()]
			if !ok {
				return fail(errs.Input(errs.ErrNonexistentStep))
			}
			retrievalArgs, err := buildArgs(registeredRet.Ref, step.Retrieval, step, civ, transient)
			if err != nil {
				return fail(err)
			}

			var value any
			if platforms.Matches(step.Platforms) {
				var retErr error
				var timedOut bool
				retErr, timedOut = runBounded(ctx, timeout, func(stepCtx context.Context) error {
					var innerErr error
					value, innerErr = registeredRet.Def.Run(stepCtx, retrievalArgs, civ)
					return innerErr
				})
				if timedOut {
					return timeoutErr()
				}
				if retErr != nil {
					return fail(retErr)
				}
			}

			registeredAssert, ok := u.Assertions[step.Assertion.ComparisonString()]
			if !ok {
				return fail(errs.Input(errs.ErrNonexistentStep))
			}
			assertionArgs, err := buildArgs(registeredAssert.Ref, step.Assertion, step, civ, transient)
			if err != nil {
				return fail(err)
			}

			if !platforms.Matches(step.Platforms) {
				step.State = schema.StateSkipped
				continue
			}

			u.Log.Debug("running assertion", zap.String("step", step.Orig))
			err, timedOut := runBounded(ctx, timeout, func(stepCtx context.Context) error {
				return registeredAssert.Def.Run(stepCtx, value, assertionArgs, civ)
			})
			if timedOut {
				return timeoutErr()
			}
			if err != nil {
				return fail(err)
			}
			step.State = schema.StatePassed

		case schema.KindSnapshot:
			value, terr := runRetrieval(ctx, step, civ, transient, timeout)
			if terr != nil {
				return terr
			}
			if step.State == schema.StateSkipped {
				continue
			}
			content := renderRetrieved(value)
			step.SnapshotContent = &content
			step.State = schema.StatePassed

		case schema.KindExtract:
			value, terr := runRetrieval(ctx, step, civ, transient, timeout)
			if terr != nil {
				return terr
			}
			if step.State == schema.StateSkipped {
				continue
			}
			content := renderRetrieved(value)

			registered := u.Retrievers[step.Retrieval.ComparisonString()]
			args, err := buildArgs(registered.Ref, step.Retrieval, step, civ, transient)
			if err != nil {
				return fail(err)
			}
			location := args.ProcessExternalString(step.ExtractLocation)
			if err := civ.WriteFile(location, content); err != nil {
				return fail(err)
			}
			step.State = schema.StatePassed
		}
	}

	return nil
}

// runRetrieval resolves and runs the retrieval behind a snapshot or
// extract step. A platform-gated step comes back with state skipped and a
// nil value.
func runRetrieval(
	ctx context.Context,
	step *schema.Step,
	civ *Civilization,
	transient map[string]string,
	timeout time.Duration,
) (any, *TestError) {
	u := civ.Universe
	fail := func(err error) *TestError {
		step.State = schema.StateFailed
		return &TestError{Err: err, Step: step, ArgStr: argsPretty(step)}
	}

	registered, ok := u.Retrievers[step.Retrieval.ComparisonString()]
	if !ok {
		return nil, fail(errs.Input(errs.ErrNonexistentStep))
	}
	args, err := buildArgs(registered.Ref, step.Retrieval, step, civ, transient)
	if err != nil {
		return nil, fail(err)
	}

	if !platforms.Matches(step.Platforms) {
		step.State = schema.StateSkipped
		return nil, nil
	}

	var value any
	runErr, timedOut := runBounded(ctx, timeout, func(stepCtx context.Context) error {
		var innerErr error
		value, innerErr = registered.Def.Run(stepCtx, args, civ)
		return innerErr
	})
	if timedOut {
		return nil, fail(errs.Assertionf("Step timed out after %ds", int(timeout.Seconds())))
	}
	if runErr != nil {
		return nil, fail(runErr)
	}
	return value, nil
}

// renderRetrieved turns a retrieval result into snapshot text: strings
// verbatim, everything else as YAML.
func renderRetrieved(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	data, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}

// buildArgs assembles the placeholder environment for one step and binds
// its arguments: config placeholders, the two built-in directories, and
// the caller's transient macro frame.
func buildArgs(
	reference *segments.Sequence,
	supplied *segments.Sequence,
	step *schema.Step,
	civ *Civilization,
	transient map[string]string,
) (*segments.Args, error) {
	params := civ.Universe.Ctx.Params

	placeholders := make(map[string]string, len(params.Placeholders)+2)
	for k, v := range params.Placeholders {
		placeholders[k] = v
	}
	placeholders["toolproof_process_directory"] = shellPath(civ.Universe.Ctx.WorkingDirectory)
	if tmp := civ.TmpDirIfCreated(); tmp != "" {
		placeholders["toolproof_test_directory"] = shellPath(tmp)
	}

	return segments.BuildArgs(
		reference,
		supplied,
		step.Args,
		params.PlaceholderDelimiter,
		placeholders,
		transient,
	)
}

// shellPath renders a host path with forward slashes so substituted
// commands stay portable.
func shellPath(p string) string {
	return strings.ReplaceAll(p, string(filepath.Separator), "/")
}

// runBounded executes fn under the per-step timeout. On timeout the
// in-flight work is abandoned; its context is canceled so cooperative
// bodies can stop early.
func runBounded(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) (err error, timedOut bool) {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(stepCtx) }()

	select {
	case err := <-done:
		// A body that bails out because the deadline fired reports as a
		// step timeout, not as its own error.
		if stepCtx.Err() == context.DeadlineExceeded {
			return nil, true
		}
		return err, false
	case <-stepCtx.Done():
		return nil, true
	}
}

// argsPretty renders a step's supplied args for error traces.
func argsPretty(step *schema.Step) string {
	if len(step.Args) == 0 {
		return ""
	}
	data, err := yaml.Marshal(step.Args)
	if err != nil {
		return ""
	}
	res := string(data)
	if strings.TrimSpace(res) == "{}" {
		return ""
	}
	return res
}
