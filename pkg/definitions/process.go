package definitions

import (
	"context"

	"github.com/ormasoftchile/toolproof/pkg/engine"
	"github.com/ormasoftchile/toolproof/pkg/errs"
	"github.com/ormasoftchile/toolproof/pkg/segments"
)

func init() {
	registerInstruction(&envVar{})
	registerInstruction(&runCommand{})
	registerInstruction(&failingRunCommand{})
	registerRetriever(&stdoutRetriever{})
	registerRetriever(&stderrRetriever{})
}

// envVar stores an environment variable for subsequent commands.
type envVar struct{}

func (*envVar) Segments() string {
	return "I have the environment variable {name} set to {value}"
}

func (*envVar) Run(ctx context.Context, args *segments.Args, civ *engine.Civilization) error {
	name, err := args.GetString("name")
	if err != nil {
		return err
	}
	value, err := args.GetString("value")
	if err != nil {
		return err
	}
	civ.SetEnv(name, value)
	return nil
}

func lastOutput(civ *engine.Civilization) (stdout, stderr string) {
	stdout, stderr = "<empty>", "<empty>"
	if civ.LastCommandOutput != nil {
		stdout = civ.LastCommandOutput.Stdout
		stderr = civ.LastCommandOutput.Stderr
	}
	return stdout, stderr
}

// runCommand runs a shell command and expects it to succeed.
type runCommand struct{}

func (*runCommand) Segments() string {
	return "I run {command}"
}

func (*runCommand) Run(ctx context.Context, args *segments.Args, civ *engine.Civilization) error {
	command, err := args.GetString("command")
	if err != nil {
		return err
	}

	exitCode, err := civ.RunCommand(ctx, command)
	if err != nil {
		return err
	}

	if exitCode != 0 {
		stdout, stderr := lastOutput(civ)
		return errs.Assertionf(
			"Failed to run command (exit status %d)\nCommand: %s\nstdout:\n---\n%s\n---\nstderr:\n---\n%s\n---",
			exitCode, command, stdout, stderr,
		)
	}
	return nil
}

// failingRunCommand runs a shell command and expects a non-zero exit.
type failingRunCommand struct{}

func (*failingRunCommand) Segments() string {
	return "I run {command} and expect it to fail"
}

func (*failingRunCommand) Run(ctx context.Context, args *segments.Args, civ *engine.Civilization) error {
	command, err := args.GetString("command")
	if err != nil {
		return err
	}

	exitCode, err := civ.RunCommand(ctx, command)
	if err != nil {
		return err
	}

	if exitCode == 0 {
		stdout, stderr := lastOutput(civ)
		return errs.Assertionf(
			"Command ran successfully, but should not have\nCommand: %s\nstdout:\n---\n%s\n---\nstderr:\n---\n%s\n---",
			command, stdout, stderr,
		)
	}
	return nil
}

// stdoutRetriever returns the last command's stdout.
type stdoutRetriever struct{}

func (*stdoutRetriever) Segments() string {
	return "stdout"
}

func (*stdoutRetriever) Run(ctx context.Context, args *segments.Args, civ *engine.Civilization) (any, error) {
	if civ.LastCommandOutput == nil {
		return nil, errs.Assertionf("no stdout exists")
	}
	return civ.LastCommandOutput.Stdout, nil
}

// stderrRetriever returns the last command's stderr.
type stderrRetriever struct{}

func (*stderrRetriever) Segments() string {
	return "stderr"
}

func (*stderrRetriever) Run(ctx context.Context, args *segments.Args, civ *engine.Civilization) (any, error) {
	if civ.LastCommandOutput == nil {
		return nil, errs.Assertionf("no stderr exists")
	}
	return civ.LastCommandOutput.Stderr, nil
}
