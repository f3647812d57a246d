package browser

import (
	"context"
	"strings"
	"testing"

	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/ormasoftchile/toolproof/pkg/errs"
)

func TestImageFormat(t *testing.T) {
	cases := []struct {
		path   string
		format proto.PageCaptureScreenshotFormat
	}{
		{"shot.png", proto.PageCaptureScreenshotFormatPng},
		{"shot.PNG", proto.PageCaptureScreenshotFormatPng},
		{"shot.webp", proto.PageCaptureScreenshotFormatWebp},
		{"dir/shot.jpg", proto.PageCaptureScreenshotFormatJpeg},
		{"shot.jpeg", proto.PageCaptureScreenshotFormatJpeg},
	}
	for _, tc := range cases {
		got, err := ImageFormat(tc.path)
		if err != nil {
			t.Errorf("ImageFormat(%q) failed: %v", tc.path, err)
			continue
		}
		if got != tc.format {
			t.Errorf("ImageFormat(%q) = %q", tc.path, got)
		}
	}

	for _, bad := range []string{"shot.gif", "shot.tiff", "shot"} {
		_, err := ImageFormat(bad)
		if err == nil {
			t.Errorf("ImageFormat(%q) should fail", bad)
			continue
		}
		if !errs.IsInput(err) {
			t.Errorf("ImageFormat(%q) error should be input stratum, got %v", bad, err)
		}
	}
}

func TestHarnessed(t *testing.T) {
	out := harnessed("return 42;")
	if !strings.Contains(out, "return 42;") {
		t.Error("user script was not spliced into the harness")
	}
	if strings.Contains(out, "insert_toolproof_inner_js") {
		t.Error("splice marker should be consumed")
	}
	if !strings.Contains(out, "toolproof_errs") {
		t.Error("harness envelope missing")
	}
}

func TestXpathLiteral(t *testing.T) {
	if got := xpathLiteral("plain"); got != "'plain'" {
		t.Errorf("xpathLiteral = %q", got)
	}
	got := xpathLiteral("it's here")
	if !strings.HasPrefix(got, "concat(") {
		t.Errorf("single quotes need concat form, got %q", got)
	}
	if !strings.Contains(got, `"'"`) {
		t.Errorf("concat form should quote the apostrophe, got %q", got)
	}
}

func TestXpathForText(t *testing.T) {
	xpath := xpathForText("Sign In")
	for _, tag := range []string{"//a", "//button", "//input", "//option", "@role='button'", "@role='option'"} {
		if !strings.Contains(xpath, tag) {
			t.Errorf("xpath union missing %s:\n%s", tag, xpath)
		}
	}
	if !strings.Contains(xpath, "'sign in'") {
		t.Errorf("target should be lowercased:\n%s", xpath)
	}
}

func TestLookupKey(t *testing.T) {
	key, err := LookupKey("Enter")
	if err != nil {
		t.Fatalf("LookupKey(Enter) failed: %v", err)
	}
	if key != input.Enter {
		t.Error("Enter should resolve to the named key")
	}

	key, err = LookupKey("a")
	if err != nil {
		t.Fatalf("LookupKey(a) failed: %v", err)
	}
	if key != input.Key('a') {
		t.Error("single characters resolve to themselves")
	}

	if _, err := LookupKey("NotAKey"); err == nil {
		t.Error("unknown key names should fail")
	}
}

func TestKeyForRune(t *testing.T) {
	if key, _ := KeyForRune('\n'); key != input.Enter {
		t.Error("newline should type Enter")
	}
	if key, _ := KeyForRune('\t'); key != input.Tab {
		t.Error("tab should type Tab")
	}
	if key, _ := KeyForRune('x'); key != input.Key('x') {
		t.Error("plain runes type themselves")
	}
}

func TestPagebrowseSurfacesNotImplemented(t *testing.T) {
	w := &pagebrowseWindow{}
	err := w.Navigate(context.Background(), "http://localhost/", true)
	if err == nil {
		t.Fatal("pagebrowse navigate should fail")
	}
	if !errs.IsInternal(err) {
		t.Errorf("not-implemented capabilities are internal-stratum, got %v", err)
	}
	if !strings.Contains(err.Error(), "not yet implemented") {
		t.Errorf("error = %v", err)
	}
}
