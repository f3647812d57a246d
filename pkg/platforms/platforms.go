// Package platforms gates steps and tests to specific host operating
// systems.
package platforms

import (
	"runtime"
	"strings"
)

// Platform is a host OS a test or step may be gated to.
type Platform string

const (
	Linux   Platform = "linux"
	Mac     Platform = "mac"
	Windows Platform = "windows"
)

// Matches reports whether the host OS is included in platforms. A nil or
// empty gate matches every host.
func Matches(gate []Platform) bool {
	if len(gate) == 0 {
		return true
	}
	var host Platform
	switch runtime.GOOS {
	case "linux":
		host = Linux
	case "darwin":
		host = Mac
	case "windows":
		host = Windows
	default:
		return false
	}
	for _, p := range gate {
		if p == host {
			return true
		}
	}
	return false
}

// NormalizeLineEndings rewrites CRLF to LF so snapshot round-trips are
// stable across checkouts.
func NormalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
