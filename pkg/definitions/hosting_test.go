package definitions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"

	"go.uber.org/zap"

	"github.com/ormasoftchile/toolproof/pkg/engine"
	"github.com/ormasoftchile/toolproof/pkg/options"
	"github.com/ormasoftchile/toolproof/pkg/segments"
)

func testCivilization(t *testing.T) *engine.Civilization {
	t.Helper()
	u := &engine.Universe{
		Ctx: &options.Context{
			Version:          "dev",
			WorkingDirectory: t.TempDir(),
			Params: options.Params{
				Concurrency:          1,
				Timeout:              10,
				PlaceholderDelimiter: "%",
				Placeholders:         map[string]string{},
				Browser:              options.BrowserChrome,
			},
		},
		Log: zap.NewNop(),
	}
	civ := engine.NewCivilization(u)
	t.Cleanup(civ.Shutdown)
	return civ
}

// instructionArgs binds a definition's own variables from the supplied
// map, the same shape macro bodies produce.
func instructionArgs(t *testing.T, pattern string, supplied map[string]any) *segments.Args {
	t.Helper()
	template := segments.MustParse(pattern)
	args, err := segments.BuildArgs(template, template, supplied, "%", nil, nil)
	if err != nil {
		t.Fatalf("build args: %v", err)
	}
	return args
}

func TestServeDirectory(t *testing.T) {
	civ := testCivilization(t)

	if err := civ.WriteFile("public/index.html", "<h1>served</h1>"); err != nil {
		t.Fatal(err)
	}

	def := &serveDir{}
	args := instructionArgs(t, def.Segments(), map[string]any{"dir": "public"})
	if err := def.Run(context.Background(), args, civ); err != nil {
		t.Fatalf("serve failed: %v", err)
	}

	port, err := civ.EnsurePort()
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/", port))
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "<h1>served</h1>" {
		t.Errorf("served body = %q", body)
	}

	// Shutdown stops the listener.
	civ.Shutdown()
	if _, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/", port)); err == nil {
		t.Error("server should be stopped after shutdown")
	}
}
