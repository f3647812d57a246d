// Package engine holds the shared run context (the universe), the
// per-test sandbox (the civilization), the step registries, and the
// recursive step interpreter.
package engine

import (
	"context"
	"fmt"

	"github.com/ormasoftchile/toolproof/pkg/schema"
	"github.com/ormasoftchile/toolproof/pkg/segments"
)

// Instruction is a step kind that acts on the civilization and produces
// no value. Instruction patterns generally start with "I ...".
type Instruction interface {
	// Segments returns the registered pattern template.
	Segments() string
	Run(ctx context.Context, args *segments.Args, civ *Civilization) error
}

// Retriever is a step kind that produces a JSON value, used before a
// "should" clause or by snapshot and extract steps.
type Retriever interface {
	Segments() string
	Run(ctx context.Context, args *segments.Args, civ *Civilization) (any, error)
}

// Assertion is a step kind that compares a retrieved base value, used
// after a "should" clause.
type Assertion interface {
	Segments() string
	Run(ctx context.Context, base any, args *segments.Args, civ *Civilization) error
}

// RegisteredInstruction pairs a parsed template with its definition so
// lookups can bind arguments against the template.
type RegisteredInstruction struct {
	Ref *segments.Sequence
	Def Instruction
}

// RegisteredRetriever pairs a parsed retrieval template with its
// definition.
type RegisteredRetriever struct {
	Ref *segments.Sequence
	Def Retriever
}

// RegisteredAssertion pairs a parsed assertion template with its
// definition.
type RegisteredAssertion struct {
	Ref *segments.Sequence
	Def Assertion
}

// RegisteredMacro pairs a macro's pattern with its parsed file.
type RegisteredMacro struct {
	Ref   *segments.Sequence
	Macro *schema.MacroFile
}

// BuildMacros indexes macro files by their pattern.
func BuildMacros(macros []*schema.MacroFile) (map[string]*RegisteredMacro, []string, error) {
	registry := make(map[string]*RegisteredMacro, len(macros))
	comparisons := make([]string, 0, len(macros))
	for _, m := range macros {
		k := key(m.Pattern)
		if existing, exists := registry[k]; exists {
			return nil, nil, fmt.Errorf(
				"macro %q conflicts with macro %q", m.OrigPattern, existing.Macro.OrigPattern,
			)
		}
		registry[k] = &RegisteredMacro{Ref: m.Pattern, Macro: m}
		comparisons = append(comparisons, k)
	}
	return registry, comparisons, nil
}

// Registries are maps keyed by the pattern's comparison string: the
// template rendered with every variable as a wildcard. A user step hashes
// to the same key when, and only when, it aliases the template.
func key(seq *segments.Sequence) string {
	return seq.ComparisonString()
}

// BuildInstructions indexes instruction definitions, returning the
// registry and the parallel comparison-string list for did-you-mean
// scoring.
func BuildInstructions(defs []Instruction) (map[string]*RegisteredInstruction, []string, error) {
	registry := make(map[string]*RegisteredInstruction, len(defs))
	comparisons := make([]string, 0, len(defs))
	for _, def := range defs {
		seq, err := segments.Parse(def.Segments())
		if err != nil {
			return nil, nil, fmt.Errorf("register instruction %q: %w", def.Segments(), err)
		}
		k := key(seq)
		if _, exists := registry[k]; exists {
			return nil, nil, fmt.Errorf("instruction %q conflicts with an existing registration", def.Segments())
		}
		registry[k] = &RegisteredInstruction{Ref: seq, Def: def}
		comparisons = append(comparisons, k)
	}
	return registry, comparisons, nil
}

// BuildRetrievers indexes retriever definitions.
func BuildRetrievers(defs []Retriever) (map[string]*RegisteredRetriever, []string, error) {
	registry := make(map[string]*RegisteredRetriever, len(defs))
	comparisons := make([]string, 0, len(defs))
	for _, def := range defs {
		seq, err := segments.Parse(def.Segments())
		if err != nil {
			return nil, nil, fmt.Errorf("register retriever %q: %w", def.Segments(), err)
		}
		k := key(seq)
		if _, exists := registry[k]; exists {
			return nil, nil, fmt.Errorf("retriever %q conflicts with an existing registration", def.Segments())
		}
		registry[k] = &RegisteredRetriever{Ref: seq, Def: def}
		comparisons = append(comparisons, k)
	}
	return registry, comparisons, nil
}

// BuildAssertions indexes assertion definitions.
func BuildAssertions(defs []Assertion) (map[string]*RegisteredAssertion, []string, error) {
	registry := make(map[string]*RegisteredAssertion, len(defs))
	comparisons := make([]string, 0, len(defs))
	for _, def := range defs {
		seq, err := segments.Parse(def.Segments())
		if err != nil {
			return nil, nil, fmt.Errorf("register assertion %q: %w", def.Segments(), err)
		}
		k := key(seq)
		if _, exists := registry[k]; exists {
			return nil, nil, fmt.Errorf("assertion %q conflicts with an existing registration", def.Segments())
		}
		registry[k] = &RegisteredAssertion{Ref: seq, Def: def}
		comparisons = append(comparisons, k)
	}
	return registry, comparisons, nil
}
