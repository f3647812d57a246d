package segments

import (
	"strings"

	"github.com/ormasoftchile/toolproof/pkg/errs"
)

type parseMode int

const (
	modeBare parseMode = iota
	modeQuote
	modeBrace
)

// Parse tokenizes a template or user step into a segment sequence.
//
// Single or double quotes open a value segment; a brace opens a variable.
// The opening delimiter determines the closing one, so quotes of the other
// kind nest literally. Literal runs are lowercased. An unterminated quote
// or brace is an input error naming the expected delimiter.
func Parse(s string) (*Sequence, error) {
	var segs []Segment

	mode := modeBare
	start := 0
	var quote byte

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch mode {
		case modeBare:
			switch c {
			case '"', '\'':
				segs = append(segs, Segment{Kind: KindLiteral, Literal: strings.ToLower(s[start:i])})
				mode = modeQuote
				quote = c
				start = i
			case '{':
				segs = append(segs, Segment{Kind: KindLiteral, Literal: strings.ToLower(s[start:i])})
				mode = modeBrace
				start = i
			}
		case modeQuote:
			if c == quote {
				segs = append(segs, Segment{Kind: KindValue, Value: s[start+1 : i]})
				mode = modeBare
				start = i + 1
			}
		case modeBrace:
			if c == '}' {
				segs = append(segs, Segment{Kind: KindVariable, Name: s[start+1 : i]})
				mode = modeBare
				start = i + 1
			}
		}
	}

	switch mode {
	case modeBare:
		if start < len(s) {
			segs = append(segs, Segment{Kind: KindLiteral, Literal: strings.ToLower(s[start:])})
		}
	case modeQuote:
		return nil, errs.Input(&errs.UnclosedValue{Expected: rune(quote)})
	case modeBrace:
		return nil, errs.Input(&errs.UnclosedValue{Expected: '}'})
	}

	return &Sequence{Segments: segs}, nil
}

// MustParse parses a built-in pattern, panicking on failure. Only used for
// patterns compiled into the binary.
func MustParse(s string) *Sequence {
	seq, err := Parse(s)
	if err != nil {
		panic("builtin pattern failed to parse: " + s + ": " + err.Error())
	}
	return seq
}
