package definitions

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/ormasoftchile/toolproof/pkg/engine"
	"github.com/ormasoftchile/toolproof/pkg/errs"
	"github.com/ormasoftchile/toolproof/pkg/segments"
)

func init() {
	registerAssertion(&beExactly{})
	registerAssertion(&notBeExactly{})
	registerAssertion(&contain{})
	registerAssertion(&notContain{})
	registerAssertion(&beEmpty{})
	registerAssertion(&notBeEmpty{})
}

func renderJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func valuesEqual(a, b any) bool {
	return cmp.Equal(a, b)
}

// valueContainsValue implements the contain semantics: equal values
// always contain each other; strings contain strings, booleans and
// numbers by substring on the string form; a null, boolean or number base
// contains no other value; every other mixed pair (an array or object
// base, or a string base against null, an array or an object) is a loud
// not-implemented error so underspecified comparisons surface early.
func valueContainsValue(base, expected any) (bool, error) {
	if valuesEqual(base, expected) {
		return true, nil
	}

	if s, ok := base.(string); ok {
		switch e := expected.(type) {
		case string:
			return strings.Contains(s, e), nil
		case bool:
			return strings.Contains(s, strconv.FormatBool(e)), nil
		case float64:
			return strings.Contains(s, renderJSON(e)), nil
		}
	}

	switch base.(type) {
	case nil, bool, float64:
		return false, nil
	}

	return false, errs.Internalf(
		"A comparison for these values has not been implemented.\n---\n%s\n---\ncannot compare with\n---\n%s\n---",
		renderJSON(base), renderJSON(expected),
	)
}

func valueIsEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}

// beExactly asserts deep equality between the retrieved and expected
// values.
type beExactly struct{}

func (*beExactly) Segments() string {
	return "be exactly {expected}"
}

func (*beExactly) Run(ctx context.Context, base any, args *segments.Args, civ *engine.Civilization) error {
	expected, err := args.GetValue("expected")
	if err != nil {
		return err
	}
	if !valuesEqual(base, expected) {
		return errs.Assertionf(
			"The value\n---\n%s\n---\nshould be exactly the following value, but is not\n---\n%s\n---",
			renderJSON(base), renderJSON(expected),
		)
	}
	return nil
}

// notBeExactly asserts deep inequality.
type notBeExactly struct{}

func (*notBeExactly) Segments() string {
	return "not be exactly {expected}"
}

func (*notBeExactly) Run(ctx context.Context, base any, args *segments.Args, civ *engine.Civilization) error {
	expected, err := args.GetValue("expected")
	if err != nil {
		return err
	}
	if valuesEqual(base, expected) {
		return errs.Assertionf(
			"The value\n---\n%s\n---\nshould not be exactly the following value, but is\n---\n%s\n---",
			renderJSON(base), renderJSON(expected),
		)
	}
	return nil
}

// contain asserts the retrieved value contains the expected one.
type contain struct{}

func (*contain) Segments() string {
	return "contain {expected}"
}

func (*contain) Run(ctx context.Context, base any, args *segments.Args, civ *engine.Civilization) error {
	expected, err := args.GetValue("expected")
	if err != nil {
		return err
	}
	contains, err := valueContainsValue(base, expected)
	if err != nil {
		return err
	}
	if !contains {
		return errs.Assertionf(
			"The value\n---\n%s\n---\ndoes not contain\n---\n%s\n---",
			renderJSON(base), renderJSON(expected),
		)
	}
	return nil
}

// notContain asserts the retrieved value does not contain the expected
// one.
type notContain struct{}

func (*notContain) Segments() string {
	return "not contain {expected}"
}

func (*notContain) Run(ctx context.Context, base any, args *segments.Args, civ *engine.Civilization) error {
	expected, err := args.GetValue("expected")
	if err != nil {
		return err
	}
	contains, err := valueContainsValue(base, expected)
	if err != nil {
		return err
	}
	if contains {
		return errs.Assertionf(
			"The value\n---\n%s\n---\nshould not contain the following value, but does\n---\n%s\n---",
			renderJSON(base), renderJSON(expected),
		)
	}
	return nil
}

// beEmpty asserts the retrieved value is empty for its type.
type beEmpty struct{}

func (*beEmpty) Segments() string {
	return "be empty"
}

func (*beEmpty) Run(ctx context.Context, base any, args *segments.Args, civ *engine.Civilization) error {
	if !valueIsEmpty(base) {
		return errs.Assertionf(
			"The value should be empty, but was:\n---\n%s\n---",
			renderJSON(base),
		)
	}
	return nil
}

// notBeEmpty asserts the retrieved value is not empty.
type notBeEmpty struct{}

func (*notBeEmpty) Segments() string {
	return "not be empty"
}

func (*notBeEmpty) Run(ctx context.Context, base any, args *segments.Args, civ *engine.Civilization) error {
	if valueIsEmpty(base) {
		return errs.Assertionf(
			"The value should not be empty, but was an empty %s value",
			segments.JSONTypeName(base),
		)
	}
	return nil
}
