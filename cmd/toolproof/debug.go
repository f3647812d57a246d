package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/toolproof/pkg/engine"
	"github.com/ormasoftchile/toolproof/pkg/schema"
)

// newDebugGate returns a step gate that pauses before every step of a
// single-test run, offering continue, skip, or quit at a readline prompt.
func newDebugGate() engine.StepGate {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "toolproof> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		// No usable terminal; run without pausing.
		return nil
	}

	fmt.Println("toolproof debugger — enter to continue, s to skip the step, q to quit")

	return func(step *schema.Step) (bool, error) {
		fmt.Printf("\n▶ %s\n", step.String())
		for {
			line, err := rl.Readline()
			if err != nil {
				if err == readline.ErrInterrupt || err == io.EOF {
					return false, fmt.Errorf("debugger quit")
				}
				return false, err
			}
			switch strings.TrimSpace(line) {
			case "", "c", "continue", "next":
				return false, nil
			case "s", "skip":
				return true, nil
			case "q", "quit":
				return false, fmt.Errorf("debugger quit")
			default:
				fmt.Println("commands: continue (enter), skip (s), quit (q)")
			}
		}
	}
}
