package schema

import (
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/toolproof/pkg/errs"
	"github.com/ormasoftchile/toolproof/pkg/platforms"
	"github.com/ormasoftchile/toolproof/pkg/segments"
)

// rawTestFile mirrors the YAML document shape. Step nodes are kept raw so
// the union of step forms can be resolved per node.
type rawTestFile struct {
	Name      string      `yaml:"name"`
	Type      string      `yaml:"type"`
	Platforms []string    `yaml:"platforms"`
	Steps     []yaml.Node `yaml:"steps"`
}

type rawMacroFile struct {
	Macro string      `yaml:"macro"`
	Steps []yaml.Node `yaml:"steps"`
}

// ParseFile parses a test document into a TestFile. p is the path the
// document was read from; it becomes the file's identity and the base for
// resolving ref steps.
func ParseFile(src string, p string) (*TestFile, error) {
	var raw rawTestFile
	if err := yaml.Unmarshal([]byte(src), &raw); err != nil {
		return nil, errs.Input(fmt.Errorf("parse %s: %w", p, err))
	}
	if raw.Name == "" {
		return nil, errs.Input(fmt.Errorf("parse %s: test file requires a name", p))
	}

	fileType := FileTypeTest
	switch raw.Type {
	case "", string(FileTypeTest):
	case string(FileTypeReference):
		fileType = FileTypeReference
	default:
		return nil, errs.Input(fmt.Errorf("parse %s: unknown type %q", p, raw.Type))
	}

	gate, err := parsePlatforms(raw.Platforms)
	if err != nil {
		return nil, errs.Input(fmt.Errorf("parse %s: %w", p, err))
	}

	steps, err := parseStepNodes(raw.Steps)
	if err != nil {
		return nil, errs.Input(fmt.Errorf("parse %s: %w", p, err))
	}

	slashPath := filepath.ToSlash(p)
	return &TestFile{
		Name:           raw.Name,
		Type:           fileType,
		Platforms:      gate,
		Steps:          steps,
		OriginalSource: platforms.NormalizeLineEndings(src),
		FilePath:       slashPath,
		FileDirectory:  slashDir(slashPath),
	}, nil
}

// ParseMacroFile parses a macro document. The macro pattern may only
// contain literals and variables.
func ParseMacroFile(src string, p string) (*MacroFile, error) {
	var raw rawMacroFile
	if err := yaml.Unmarshal([]byte(src), &raw); err != nil {
		return nil, errs.Input(fmt.Errorf("parse %s: %w", p, err))
	}
	if raw.Macro == "" {
		return nil, errs.Input(fmt.Errorf("parse %s: macro file requires a macro pattern", p))
	}

	pattern, err := segments.Parse(raw.Macro)
	if err != nil {
		return nil, errs.Input(fmt.Errorf("parse %s: %w", p, err))
	}
	for _, seg := range pattern.Segments {
		if seg.Kind == segments.KindValue {
			return nil, errs.Input(fmt.Errorf("parse %s: macro pattern may only contain literals and {variables}", p))
		}
	}

	steps, err := parseStepNodes(raw.Steps)
	if err != nil {
		return nil, errs.Input(fmt.Errorf("parse %s: %w", p, err))
	}

	slashPath := filepath.ToSlash(p)
	return &MacroFile{
		Pattern:       pattern,
		OrigPattern:   raw.Macro,
		Steps:         steps,
		FileDirectory: slashDir(slashPath),
	}, nil
}

func slashDir(slashPath string) string {
	dir := path.Dir(slashPath)
	if dir == "" {
		return "."
	}
	return dir
}

func parsePlatforms(names []string) ([]platforms.Platform, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]platforms.Platform, 0, len(names))
	for _, n := range names {
		switch platforms.Platform(n) {
		case platforms.Linux, platforms.Mac, platforms.Windows:
			out = append(out, platforms.Platform(n))
		default:
			return nil, fmt.Errorf("unknown platform %q", n)
		}
	}
	return out, nil
}

func parseStepNodes(nodes []yaml.Node) ([]*Step, error) {
	steps := make([]*Step, 0, len(nodes))
	for i := range nodes {
		step, err := parseStepNode(&nodes[i])
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// parseStepNode resolves the step union: a bare string, or a mapping with
// one of the ref / macro / snapshot / extract / step keys plus free-form
// arguments.
func parseStepNode(node *yaml.Node) (*Step, error) {
	if node.Kind == yaml.ScalarNode {
		var bare string
		if err := node.Decode(&bare); err != nil {
			return nil, err
		}
		return parseStepString(bare, nil, nil)
	}

	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: a step must be a string or a mapping", node.Line)
	}

	var fields map[string]any
	if err := node.Decode(&fields); err != nil {
		return nil, err
	}

	gate, err := parsePlatformsValue(fields["platforms"])
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", node.Line, err)
	}
	delete(fields, "platforms")

	takeString := func(key string) (string, bool, error) {
		v, ok := fields[key]
		if !ok {
			return "", false, nil
		}
		s, ok := v.(string)
		if !ok {
			return "", false, fmt.Errorf("line %d: %s must be a string", node.Line, key)
		}
		delete(fields, key)
		return s, true, nil
	}

	if ref, ok, err := takeString("ref"); err != nil {
		return nil, err
	} else if ok {
		return &Step{
			Kind:      KindRef,
			OtherFile: path.Clean(filepath.ToSlash(ref)),
			Orig:      ref,
			Platforms: gate,
		}, nil
	}

	if pattern, ok, err := takeString("macro"); err != nil {
		return nil, err
	} else if ok {
		seq, err := segments.Parse(pattern)
		if err != nil {
			return nil, err
		}
		return &Step{
			Kind:      KindMacro,
			Pattern:   seq,
			Args:      normalizeArgs(fields),
			Orig:      pattern,
			Platforms: gate,
		}, nil
	}

	if snapshot, ok, err := takeString("snapshot"); err != nil {
		return nil, err
	} else if ok {
		seq, err := segments.Parse(snapshot)
		if err != nil {
			return nil, err
		}
		return &Step{
			Kind:      KindSnapshot,
			Retrieval: seq,
			Args:      normalizeArgs(fields),
			Orig:      snapshot,
			Platforms: gate,
		}, nil
	}

	if extract, ok, err := takeString("extract"); err != nil {
		return nil, err
	} else if ok {
		location, hasLocation, err := takeString("extract_location")
		if err != nil {
			return nil, err
		}
		if !hasLocation {
			return nil, fmt.Errorf("line %d: extract steps require an extract_location", node.Line)
		}
		seq, err := segments.Parse(extract)
		if err != nil {
			return nil, err
		}
		return &Step{
			Kind:            KindExtract,
			Retrieval:       seq,
			ExtractLocation: location,
			Args:            normalizeArgs(fields),
			Orig:            extract,
			Platforms:       gate,
		}, nil
	}

	if step, ok, err := takeString("step"); err != nil {
		return nil, err
	} else if ok {
		return parseStepString(step, normalizeArgs(fields), gate)
	}

	return nil, fmt.Errorf("line %d: a step mapping requires one of ref, macro, snapshot, extract, or step", node.Line)
}

// parseStepString bisects on the first " should " to split a retrieval
// from an assertion; anything else is an instruction.
func parseStepString(step string, args map[string]any, gate []platforms.Platform) (*Step, error) {
	if retrieval, assertion, found := strings.Cut(step, " should "); found {
		retSeq, err := segments.Parse(retrieval)
		if err != nil {
			return nil, err
		}
		assertSeq, err := segments.Parse(assertion)
		if err != nil {
			return nil, err
		}
		return &Step{
			Kind:      KindAssertion,
			Retrieval: retSeq,
			Assertion: assertSeq,
			Args:      args,
			Orig:      step,
			Platforms: gate,
		}, nil
	}

	seq, err := segments.Parse(step)
	if err != nil {
		return nil, err
	}
	return &Step{
		Kind:      KindInstruction,
		Pattern:   seq,
		Args:      args,
		Orig:      step,
		Platforms: gate,
	}, nil
}

func parsePlatformsValue(v any) ([]platforms.Platform, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("platforms must be a list")
	}
	names := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("platforms must be a list of strings")
		}
		names = append(names, s)
	}
	return parsePlatforms(names)
}

// normalizeArgs round-trips YAML-decoded values through encoding/json so
// every nested value uses the canonical JSON representation (float64
// numbers, map[string]any objects). Deep comparisons then behave the same
// no matter which document a value came from.
func normalizeArgs(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = NormalizeJSON(v)
	}
	return out
}

// NormalizeJSON converts any YAML-decoded value into canonical JSON types.
func NormalizeJSON(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
