package segments

import (
	"strings"

	"github.com/ormasoftchile/toolproof/pkg/errs"
)

// Args holds the name→value bindings for one step invocation, plus the
// placeholder environment active while that step runs.
type Args struct {
	args         map[string]any
	delim        string
	placeholders map[string]string
}

// BuildArgs walks a reference template and a matched user step in
// lockstep. At every variable position in the template it binds the
// parallel user segment: a value binds directly, a variable (inside a
// macro body) is resolved against suppliedArgs.
//
// placeholders is the base environment (config placeholders plus the
// built-ins computed by the caller); transient is the frame-local map
// supplied by a calling macro and shadows the base.
func BuildArgs(
	reference *Sequence,
	supplied *Sequence,
	suppliedArgs map[string]any,
	delim string,
	placeholders map[string]string,
	transient map[string]string,
) (*Args, error) {
	args := make(map[string]any)

	for i, ref := range reference.Segments {
		if ref.Kind != KindVariable {
			continue
		}
		if i >= len(supplied.Segments) {
			break
		}
		user := supplied.Segments[i]
		switch user.Kind {
		case KindValue:
			args[ref.Name] = user.Value
		case KindVariable:
			val, ok := suppliedArgs[user.Name]
			if !ok {
				return nil, errs.Input(&errs.NonexistentArgument{
					Arg: user.Name,
					Has: errs.ArgsString(suppliedArgs),
				})
			}
			args[ref.Name] = val
		case KindLiteral:
			// Unreachable for sequences that satisfy Matches.
		}
	}

	merged := make(map[string]string, len(placeholders)+len(transient))
	for k, v := range placeholders {
		merged[k] = v
	}
	for k, v := range transient {
		merged[k] = v
	}

	return &Args{args: args, delim: delim, placeholders: merged}, nil
}

// GetValue returns the raw JSON value bound to k after placeholder
// expansion.
func (a *Args) GetValue(k string) (any, error) {
	val, ok := a.args[k]
	if !ok {
		return nil, errs.Input(&errs.NonexistentArgument{Arg: k, Has: errs.ArgsString(a.args)})
	}
	return ReplaceInsideValue(val, a.delim, a.placeholders), nil
}

// GetString returns the value bound to k as a string, after placeholder
// expansion. A non-string value is an input error naming both the found
// and the expected type.
func (a *Args) GetString(k string) (string, error) {
	val, ok := a.args[k]
	if !ok {
		return "", errs.Input(&errs.NonexistentArgument{Arg: k, Has: errs.ArgsString(a.args)})
	}
	expanded := ReplaceInsideValue(val, a.delim, a.placeholders)

	if str, ok := expanded.(string); ok {
		return str, nil
	}
	return "", errs.Input(&errs.IncorrectArgumentType{
		Arg:      k,
		Was:      JSONTypeName(expanded),
		Expected: "string",
	})
}

// ProcessExternalString expands placeholders in an arbitrary string as if
// it were one of the contained arguments.
func (a *Args) ProcessExternalString(raw string) string {
	out := ReplaceInsideValue(raw, a.delim, a.placeholders)
	return out.(string)
}

// ReplaceInsideValue expands delimiter-wrapped placeholders in every
// string leaf of a JSON value. Arrays and objects recurse; null, bool and
// number values pass through untouched.
func ReplaceInsideValue(value any, delim string, placeholders map[string]string) any {
	switch v := value.(type) {
	case string:
		if delim == "" || !strings.Contains(v, delim) {
			return v
		}
		out := v
		for name, replacement := range placeholders {
			matcher := delim + name + delim
			if strings.Contains(out, matcher) {
				out = strings.ReplaceAll(out, matcher, replacement)
			}
		}
		return out
	case []any:
		res := make([]any, len(v))
		for i, item := range v {
			res[i] = ReplaceInsideValue(item, delim, placeholders)
		}
		return res
	case map[string]any:
		res := make(map[string]any, len(v))
		for k, item := range v {
			res[k] = ReplaceInsideValue(item, delim, placeholders)
		}
		return res
	default:
		return value
	}
}

// JSONTypeName names a JSON value's type for error messages.
func JSONTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64, int, int64, uint64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "unknown"
	}
}
