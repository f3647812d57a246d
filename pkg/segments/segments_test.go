package segments

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ormasoftchile/toolproof/pkg/errs"
)

func mustParse(t *testing.T, s string) *Sequence {
	t.Helper()
	seq, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", s, err)
	}
	return seq
}

func TestParsingSegments(t *testing.T) {
	seq := mustParse(t, "I run my program")
	want := []Segment{{Kind: KindLiteral, Literal: "i run my program"}}
	if diff := cmp.Diff(want, seq.Segments); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}

	seq = mustParse(t, `I have a "public/cat/'index'.html" file with the body '<h1>Happy post about "cats</h1>'`)
	want = []Segment{
		{Kind: KindLiteral, Literal: "i have a "},
		{Kind: KindValue, Value: "public/cat/'index'.html"},
		{Kind: KindLiteral, Literal: " file with the body "},
		{Kind: KindValue, Value: `<h1>Happy post about "cats</h1>`},
	}
	if diff := cmp.Diff(want, seq.Segments); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}

	// Quotes of the other kind nest literally; empty quotes produce empty
	// values.
	seq = mustParse(t, `In my browser, ''I eval {j"s} and 'x'`)
	want = []Segment{
		{Kind: KindLiteral, Literal: "in my browser, "},
		{Kind: KindValue, Value: ""},
		{Kind: KindLiteral, Literal: "i eval "},
		{Kind: KindVariable, Name: `j"s`},
		{Kind: KindLiteral, Literal: " and "},
		{Kind: KindValue, Value: "x"},
	}
	if diff := cmp.Diff(want, seq.Segments); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}
}

func TestParsingUnclosedDelimiters(t *testing.T) {
	cases := []struct {
		input    string
		expected rune
	}{
		{`I have a "file`, '"'},
		{`I have a 'file`, '\''},
		{`I have a {file`, '}'},
	}
	for _, tc := range cases {
		_, err := Parse(tc.input)
		if err == nil {
			t.Fatalf("Parse(%q) should have failed", tc.input)
		}
		var unclosed *errs.UnclosedValue
		if !errors.As(err, &unclosed) {
			t.Fatalf("Parse(%q) returned %v, want UnclosedValue", tc.input, err)
		}
		if unclosed.Expected != tc.expected {
			t.Errorf("Parse(%q) expected delimiter %c, got %c", tc.input, tc.expected, unclosed.Expected)
		}
		if !errs.IsInput(err) {
			t.Errorf("Parse(%q) error should be input stratum", tc.input)
		}
	}
}

// Sequences alias each other regardless of the contents of their values
// and variables.
func TestSegmentsEquality(t *testing.T) {
	a := mustParse(t, "I have a 'index.html' file with the contents {var}")
	b := mustParse(t, "I have a {filename} file with the contents {var}")
	c := mustParse(t, "I have one {filename} file with the contents {var}")

	if !a.Matches(b) {
		t.Error("a should match b")
	}
	if a.ComparisonString() != b.ComparisonString() {
		t.Errorf("comparison strings should agree: %q vs %q", a.ComparisonString(), b.ComparisonString())
	}

	registry := map[string]string{b.ComparisonString(): "b"}
	if got := registry[a.ComparisonString()]; got != "b" {
		t.Errorf("lookup through comparison string failed, got %q", got)
	}

	if b.Matches(c) {
		t.Error("b should not match c")
	}
	if _, found := registry[c.ComparisonString()]; found {
		t.Error("c should not be found in the registry")
	}
}

// Two user sequences that differ only in their values hash identically
// against the same template.
func TestWildcardInvariance(t *testing.T) {
	a := mustParse(t, `I have a "one.txt" file with the contents "x"`)
	b := mustParse(t, `I have a "two.html" file with the contents "yyy"`)
	template := mustParse(t, "I have a {name} file with the contents {var}")

	if a.ComparisonString() != b.ComparisonString() {
		t.Error("value contents leaked into the comparison string")
	}
	if !a.Matches(template) || !b.Matches(template) {
		t.Error("both user sequences should match the template")
	}
}

func TestComparisonString(t *testing.T) {
	seq := mustParse(t, "I have a {name} file")
	if got := seq.ComparisonString(); got != "i have a {___} file" {
		t.Errorf("ComparisonString() = %q", got)
	}
}

func TestVariableNames(t *testing.T) {
	seq := mustParse(t, "I have a {name} file with the contents {var}")
	want := []string{"name", "var"}
	if diff := cmp.Diff(want, seq.VariableNames()); diff != "" {
		t.Errorf("VariableNames() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildingArgs(t *testing.T) {
	template := mustParse(t, "I have a {name} file with the contents {var}")
	user := mustParse(t, `I have a "index.html" file with the contents ':)'`)

	args, err := BuildArgs(template, user, nil, "%", nil, nil)
	if err != nil {
		t.Fatalf("BuildArgs failed: %v", err)
	}

	name, err := args.GetString("name")
	if err != nil {
		t.Fatalf("GetString(name) failed: %v", err)
	}
	if name != "index.html" {
		t.Errorf("GetString(name) = %q", name)
	}
}

// Variables in the user position resolve against the supplied args, as
// inside macro bodies.
func TestBuildingArgsThroughVariables(t *testing.T) {
	template := mustParse(t, "I have a {name} file")
	user := mustParse(t, "I have a {filename} file")

	args, err := BuildArgs(template, user, map[string]any{"filename": "from-macro.txt"}, "%", nil, nil)
	if err != nil {
		t.Fatalf("BuildArgs failed: %v", err)
	}
	name, err := args.GetString("name")
	if err != nil {
		t.Fatalf("GetString(name) failed: %v", err)
	}
	if name != "from-macro.txt" {
		t.Errorf("GetString(name) = %q", name)
	}

	_, err = BuildArgs(template, user, map[string]any{"other": "x"}, "%", nil, nil)
	if err == nil {
		t.Fatal("BuildArgs should fail for a missing supplied arg")
	}
	var missing *errs.NonexistentArgument
	if !errors.As(err, &missing) {
		t.Fatalf("expected NonexistentArgument, got %v", err)
	}
	if missing.Arg != "filename" {
		t.Errorf("missing arg = %q", missing.Arg)
	}
	if missing.Has != "other" {
		t.Errorf("bound names = %q", missing.Has)
	}
}

func TestGetStringTypeErrors(t *testing.T) {
	template := mustParse(t, "check {value}")
	user := mustParse(t, "check {supplied}")

	cases := []struct {
		supplied any
		wantType string
	}{
		{nil, "null"},
		{true, "boolean"},
		{float64(3), "number"},
		{[]any{"a"}, "array"},
		{map[string]any{"a": "b"}, "object"},
	}
	for _, tc := range cases {
		args, err := BuildArgs(template, user, map[string]any{"supplied": tc.supplied}, "%", nil, nil)
		if err != nil {
			t.Fatalf("BuildArgs failed: %v", err)
		}
		_, err = args.GetString("value")
		var typeErr *errs.IncorrectArgumentType
		if !errors.As(err, &typeErr) {
			t.Fatalf("GetString should fail with IncorrectArgumentType, got %v", err)
		}
		if typeErr.Was != tc.wantType {
			t.Errorf("was = %q, want %q", typeErr.Was, tc.wantType)
		}
		if typeErr.Expected != "string" {
			t.Errorf("expected = %q", typeErr.Expected)
		}
	}
}

func TestArgPlaceholders(t *testing.T) {
	template := mustParse(t, "I have a {name} file with the contents {var}")
	user := mustParse(t, `I have a "%prefix%index.%ext%" file with the contents ':)'`)

	placeholders := map[string]string{"ext": "pdf"}
	transient := map[string]string{"prefix": "__"}

	args, err := BuildArgs(template, user, nil, "%", placeholders, transient)
	if err != nil {
		t.Fatalf("BuildArgs failed: %v", err)
	}
	name, err := args.GetString("name")
	if err != nil {
		t.Fatalf("GetString(name) failed: %v", err)
	}
	if name != "__index.pdf" {
		t.Errorf("GetString(name) = %q", name)
	}
}

func TestComplexPlaceholders(t *testing.T) {
	placeholders := map[string]string{
		"cloud":  "cannon",
		"thekey": "the value",
	}

	start := map[string]any{
		"title": "Hello cloud%cloud%",
		"tags":  []any{"cannon", "%cloud%"},
		"nested": map[string]any{
			"null":     nil,
			"count":    float64(3),
			"replaced": "thekey is %thekey%",
		},
	}

	got := ReplaceInsideValue(start, "%", placeholders)

	want := map[string]any{
		"title": "Hello cloudcannon",
		"tags":  []any{"cannon", "cannon"},
		"nested": map[string]any{
			"null":     nil,
			"count":    float64(3),
			"replaced": "thekey is the value",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReplaceInsideValue mismatch (-want +got):\n%s", diff)
	}

	// Expansion is idempotent once no delimiter pair remains.
	again := ReplaceInsideValue(got, "%", placeholders)
	if diff := cmp.Diff(got, again); diff != "" {
		t.Errorf("expansion was not idempotent (-first +second):\n%s", diff)
	}
}

func TestProcessExternalString(t *testing.T) {
	template := mustParse(t, "noop")
	user := mustParse(t, "noop")
	args, err := BuildArgs(template, user, nil, "%", map[string]string{"dir": "out"}, nil)
	if err != nil {
		t.Fatalf("BuildArgs failed: %v", err)
	}
	if got := args.ProcessExternalString("%dir%/result.txt"); got != "out/result.txt" {
		t.Errorf("ProcessExternalString = %q", got)
	}
}
