package main

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ormasoftchile/toolproof/pkg/engine"
	"github.com/ormasoftchile/toolproof/pkg/options"
	"github.com/ormasoftchile/toolproof/pkg/schema"
)

func fixtureUniverse(t *testing.T) *engine.Universe {
	t.Helper()
	tests := map[string]*schema.TestFile{
		"/suite/a/one.toolproof.yml": {
			Name: "one", Type: schema.FileTypeTest, FilePath: "/suite/a/one.toolproof.yml",
		},
		"/suite/a/two.toolproof.yml": {
			Name: "two", Type: schema.FileTypeTest, FilePath: "/suite/a/two.toolproof.yml",
		},
		"/suite/b/shared.toolproof.yml": {
			Name: "shared", Type: schema.FileTypeReference, FilePath: "/suite/b/shared.toolproof.yml",
		},
		"/suite/b/three.toolproof.yml": {
			Name: "three", Type: schema.FileTypeTest, FilePath: "/suite/b/three.toolproof.yml",
		},
	}
	return &engine.Universe{
		Tests: tests,
		SortedTestPaths: []string{
			"/suite/a/one.toolproof.yml",
			"/suite/a/two.toolproof.yml",
			"/suite/b/shared.toolproof.yml",
			"/suite/b/three.toolproof.yml",
		},
		Ctx: &options.Context{Version: "dev", WorkingDirectory: "/suite"},
		Log: zap.NewNop(),
	}
}

func TestSelectTestsAll(t *testing.T) {
	u := fixtureUniverse(t)
	selected, err := selectTests(u, runMode{all: true})
	if err != nil {
		t.Fatalf("selectTests failed: %v", err)
	}
	// Reference files never run directly.
	if len(selected) != 3 {
		t.Fatalf("selected %d tests, want 3", len(selected))
	}
	if selected[0].Name != "one" || selected[2].Name != "three" {
		t.Errorf("selection out of order: %v", []string{selected[0].Name, selected[1].Name, selected[2].Name})
	}
}

func TestSelectTestsByName(t *testing.T) {
	u := fixtureUniverse(t)
	selected, err := selectTests(u, runMode{name: "two"})
	if err != nil {
		t.Fatalf("selectTests failed: %v", err)
	}
	if len(selected) != 1 || selected[0].Name != "two" {
		t.Errorf("selected %v", selected)
	}

	if _, err := selectTests(u, runMode{name: "nope"}); err == nil {
		t.Error("an unknown name should be fatal")
	}
}

func TestSelectTestsByPath(t *testing.T) {
	u := fixtureUniverse(t)
	selected, err := selectTests(u, runMode{path: "/suite/b"})
	if err != nil {
		t.Fatalf("selectTests failed: %v", err)
	}
	if len(selected) != 1 || selected[0].Name != "three" {
		t.Errorf("selected %v", selected)
	}

	_, err = selectTests(u, runMode{path: "/elsewhere"})
	if err == nil || !strings.Contains(err.Error(), "no test files found") {
		t.Errorf("zero path matches should be fatal, got %v", err)
	}
}

func TestEnforceSupportedVersions(t *testing.T) {
	cases := []struct {
		version     string
		requirement string
		wantErr     bool
	}{
		{"dev", ">=1.0.0", false},  // local builds always pass
		{"0.0.0", ">=1.0.0", false},
		{"1.2.3", ">=1.0.0", false},
		{"0.9.0", ">=1.0.0", true},
		{"1.2.3", "", false},
		{"1.2.3", "not-a-range", true},
	}
	for _, tc := range cases {
		ctx := &options.Context{
			Version: tc.version,
			Params:  options.Params{SupportedVersions: tc.requirement},
		}
		err := enforceSupportedVersions(ctx)
		if tc.wantErr && err == nil {
			t.Errorf("version %q against %q should fail", tc.version, tc.requirement)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("version %q against %q failed: %v", tc.version, tc.requirement, err)
		}
	}
}
