// Package definitions holds the built-in step definitions. Each file
// registers its definitions from an init function, so the registry is the
// union of whatever is compiled in; the orchestrator snapshots it once at
// startup.
package definitions

import (
	"github.com/ormasoftchile/toolproof/pkg/engine"
)

var (
	instructions []engine.Instruction
	retrievers   []engine.Retriever
	assertions   []engine.Assertion
)

func registerInstruction(def engine.Instruction) {
	instructions = append(instructions, def)
}

func registerRetriever(def engine.Retriever) {
	retrievers = append(retrievers, def)
}

func registerAssertion(def engine.Assertion) {
	assertions = append(assertions, def)
}

// Instructions returns every registered instruction definition.
func Instructions() []engine.Instruction { return instructions }

// Retrievers returns every registered retriever definition.
func Retrievers() []engine.Retriever { return retrievers }

// Assertions returns every registered assertion definition.
func Assertions() []engine.Assertion { return assertions }
