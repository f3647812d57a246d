package platforms

import (
	"runtime"
	"testing"
)

func hostPlatform() Platform {
	switch runtime.GOOS {
	case "darwin":
		return Mac
	case "windows":
		return Windows
	default:
		return Linux
	}
}

func otherPlatform() Platform {
	if hostPlatform() == Linux {
		return Windows
	}
	return Linux
}

func TestMatches(t *testing.T) {
	if !Matches(nil) {
		t.Error("a nil gate matches every host")
	}
	if !Matches([]Platform{}) {
		t.Error("an empty gate matches every host")
	}
	if !Matches([]Platform{hostPlatform()}) {
		t.Error("the host platform should match")
	}
	if Matches([]Platform{otherPlatform()}) {
		t.Error("a foreign platform should not match")
	}
	if !Matches([]Platform{otherPlatform(), hostPlatform()}) {
		t.Error("a gate including the host should match")
	}
}

func TestNormalizeLineEndings(t *testing.T) {
	if got := NormalizeLineEndings("a\r\nb\r\n"); got != "a\nb\n" {
		t.Errorf("NormalizeLineEndings = %q", got)
	}
	if got := NormalizeLineEndings("a\nb"); got != "a\nb" {
		t.Errorf("NormalizeLineEndings should leave LF untouched, got %q", got)
	}
}
