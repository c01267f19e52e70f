package prom

import (
	"fmt"
	"regexp"
	"strings"
)

// Derivation computes a new label's values from a target label's
// values: an ordered pipeline of steps (a regex capture, string
// functions), with an optional default when a step fails.
type Derivation struct {
	Target  string
	Name    string
	Parent  string
	Default string

	hasDefault bool
	steps      []derivationStep
}

type derivationStep func(string) (string, error)

// Apply runs the pipeline over value. A failing step yields the
// default when one is configured, and reports false otherwise.
func (d *Derivation) Apply(value string) (string, bool) {
	for _, step := range d.steps {
		next, err := step(value)
		if err != nil {
			if d.hasDefault {
				return d.Default, true
			}
			return "", false
		}
		value = next
	}
	return value, true
}

func regexStep(pattern string) (derivationStep, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile derivation regex %q: %w", pattern, err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("derivation regex %q needs a capture group", pattern)
	}
	return func(value string) (string, error) {
		match := re.FindStringSubmatch(value)
		if match == nil {
			return "", fmt.Errorf("no match for %q against %q", value, pattern)
		}
		return match[1], nil
	}, nil
}

func funcStep(name string) (derivationStep, error) {
	var fn func(string) string
	switch name {
	case "lower", "tolower":
		fn = strings.ToLower
	case "upper", "toupper":
		fn = strings.ToUpper
	case "trim", "strip":
		fn = strings.TrimSpace
	default:
		return nil, fmt.Errorf("unknown derivation func %q", name)
	}
	return func(value string) (string, error) { return fn(value), nil }, nil
}
