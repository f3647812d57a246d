package browser

import (
	"strings"
	"unicode/utf8"

	"github.com/go-rod/rod/lib/input"

	"github.com/ormasoftchile/toolproof/pkg/errs"
)

// namedKeys maps the key names accepted by press steps to CDP keys.
var namedKeys = map[string]input.Key{
	"enter":      input.Enter,
	"tab":        input.Tab,
	"escape":     input.Escape,
	"backspace":  input.Backspace,
	"delete":     input.Delete,
	"space":      input.Key(' '),
	"arrowup":    input.ArrowUp,
	"arrowdown":  input.ArrowDown,
	"arrowleft":  input.ArrowLeft,
	"arrowright": input.ArrowRight,
	"home":       input.Home,
	"end":        input.End,
	"pageup":     input.PageUp,
	"pagedown":   input.PageDown,
}

// LookupKey resolves a key name to a CDP key. Single characters resolve
// directly; longer names must be one of the named keys.
func LookupKey(name string) (input.Key, error) {
	if utf8.RuneCountInString(name) == 1 {
		r, _ := utf8.DecodeRuneInString(name)
		return input.Key(r), nil
	}
	if key, ok := namedKeys[strings.ToLower(name)]; ok {
		return key, nil
	}
	return 0, errs.Input(&errs.StepRequirementsNotMet{
		Reason: "unknown key name " + name,
	})
}

// KeyForRune maps one typed character to the key dispatched for it:
// newline becomes Enter, tab becomes Tab, everything else is pressed
// verbatim.
func KeyForRune(r rune) (input.Key, error) {
	switch r {
	case '\n':
		return input.Enter, nil
	case '\t':
		return input.Tab, nil
	default:
		return input.Key(r), nil
	}
}
