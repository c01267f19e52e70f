// Package transform holds the named value transformations available to
// attribute pipelines, plus the registry they are looked up in.
//
// A transformation takes the values produced by the previous pipeline
// stage (or by the data query itself) and returns the values for the
// next one. The final stage must leave exactly one value; enforcing
// that is the caller's job since only it knows the pipeline text to
// report.
package transform

import (
	"errors"
	"fmt"
	"strings"
)

// Error reports a transformation that could not be applied, either
// because it is unknown or because the values handed to it do not fit.
type Error struct {
	Transformation string
	Reason         string
}

func (e *Error) Error() string {
	return fmt.Sprintf("transformation %q: %s", e.Transformation, e.Reason)
}

// IsTransformError reports whether err is a transformation Error.
func IsTransformError(err error) bool {
	var te *Error
	return errors.As(err, &te)
}

func errorf(name, format string, args ...any) *Error {
	return &Error{Transformation: name, Reason: fmt.Sprintf(format, args...)}
}

// Func is a single transformation stage.
type Func func(values ...any) ([]any, error)

// Registry maps transformation names to implementations. The zero
// value is unusable; NewRegistry seeds the defaults.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry returns a registry holding the default transformations.
func NewRegistry() *Registry {
	r := &Registry{funcs: map[string]Func{}}
	for name, fn := range defaults() {
		r.funcs[name] = fn
	}
	return r
}

// Register adds a named transformation. Names are single claim; a
// second registration under the same name is an error rather than a
// silent override.
func (r *Registry) Register(name string, fn Func) error {
	if _, ok := r.funcs[name]; ok {
		return fmt.Errorf("transformation %q is already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

// Lookup resolves a name to its transformation.
func (r *Registry) Lookup(name string) (Func, error) {
	fn, ok := r.funcs[name]
	if !ok {
		return nil, errorf(name, "not registered")
	}
	return fn, nil
}

// Names returns the registered names, unordered.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	return names
}

func defaults() map[string]Func {
	return map[string]Func{
		"nop":        nop,
		"sum":        sumValues,
		"fraction":   fraction,
		"pct":        pct,
		"round":      roundValue,
		"lower":      lower,
		"upper":      upper,
		"div_by_mib": divByMiB,

		"to_red_blue":     rampFunc("to_red_blue", redBlueRamp),
		"to_orange_red":   rampFunc("to_orange_red", orangeRedRamp),
		"to_green_blue":   rampFunc("to_green_blue", greenBlueRamp),
		"pct_color_range": rampFunc("pct_color_range", redBlueRamp),
	}
}

func nop(values ...any) ([]any, error) {
	return values, nil
}

func sumValues(values ...any) ([]any, error) {
	total := 0.0
	integral := true
	for _, v := range values {
		f, err := asFloat("sum", v)
		if err != nil {
			return nil, err
		}
		if f != float64(int64(f)) {
			integral = false
		}
		total += f
	}
	if integral && total == float64(int64(total)) {
		return []any{int64(total)}, nil
	}
	return []any{total}, nil
}

func fraction(values ...any) ([]any, error) {
	num, den, err := twoFloats("fraction", values)
	if err != nil {
		return nil, err
	}
	if den == 0 {
		return []any{0.0}, nil
	}
	return []any{num / den}, nil
}

func pct(values ...any) ([]any, error) {
	out, err := fraction(values...)
	if err != nil {
		return nil, errorf("pct", "%v", err)
	}
	return []any{out[0].(float64) * 100}, nil
}

func roundValue(values ...any) ([]any, error) {
	f, err := oneFloat("round", values)
	if err != nil {
		return nil, err
	}
	rounded := float64(int64(f + copysignHalf(f)))
	return []any{int64(rounded)}, nil
}

func copysignHalf(f float64) float64 {
	if f < 0 {
		return -0.5
	}
	return 0.5
}

func divByMiB(values ...any) ([]any, error) {
	f, err := oneFloat("div_by_mib", values)
	if err != nil {
		return nil, err
	}
	return []any{f / (1024 * 1024)}, nil
}

func lower(values ...any) ([]any, error) {
	s, err := oneString("lower", values)
	if err != nil {
		return nil, err
	}
	return []any{strings.ToLower(s)}, nil
}

func upper(values ...any) ([]any, error) {
	s, err := oneString("upper", values)
	if err != nil {
		return nil, err
	}
	return []any{strings.ToUpper(s)}, nil
}

func rampFunc(name string, ramp Ramp) Func {
	return func(values ...any) ([]any, error) {
		f, err := oneFloat(name, values)
		if err != nil {
			return nil, err
		}
		return []any{ramp.At(f).String()}, nil
	}
}

func asFloat(name string, v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, errorf(name, "expected a number, got %T (%v)", v, v)
	}
}

func oneFloat(name string, values []any) (float64, error) {
	if len(values) != 1 {
		return 0, errorf(name, "expected a single value, got %d", len(values))
	}
	return asFloat(name, values[0])
}

func twoFloats(name string, values []any) (float64, float64, error) {
	if len(values) != 2 {
		return 0, 0, errorf(name, "expected two values, got %d", len(values))
	}
	first, err := asFloat(name, values[0])
	if err != nil {
		return 0, 0, err
	}
	second, err := asFloat(name, values[1])
	if err != nil {
		return 0, 0, err
	}
	return first, second, nil
}

func oneString(name string, values []any) (string, error) {
	if len(values) != 1 {
		return "", errorf(name, "expected a single value, got %d", len(values))
	}
	if s, ok := values[0].(string); ok {
		return s, nil
	}
	return fmt.Sprintf("%v", values[0]), nil
}
