package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"scriptoria/internal/domain"
)

// cmdArgs holds the parsed flags and positional arguments of a subcommand.
type cmdArgs struct {
	values     map[string][]string
	positional []string
}

// parseArgs splits args into --name value, --name=value and positional
// arguments. Names in boolFlags take no value, or an explicit --name=bool. --config is accepted
// everywhere and handled by configPath.
func parseArgs(args []string, boolFlags ...string) (*cmdArgs, error) {
	out := &cmdArgs{values: map[string][]string{}}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") || arg == "--" {
			out.positional = append(out.positional, arg)
			continue
		}

		name := strings.TrimPrefix(arg, "--")
		if k, v, ok := strings.Cut(name, "="); ok {
			if slices.Contains(boolFlags, k) {
				b, err := strconv.ParseBool(v)
				if err != nil {
					return nil, fmt.Errorf("%w: flag --%s takes true or false, got %q", domain.ErrInvalidInput, k, v)
				}
				v = strconv.FormatBool(b)
			}
			out.values[k] = append(out.values[k], v)
			continue
		}
		if slices.Contains(boolFlags, name) {
			out.values[name] = append(out.values[name], "true")
			continue
		}
		if i+1 >= len(args) {
			return nil, fmt.Errorf("%w: flag --%s needs a value", domain.ErrInvalidInput, name)
		}
		out.values[name] = append(out.values[name], args[i+1])
		i++
	}
	return out, nil
}

// get returns the last value of a flag, or "".
func (a *cmdArgs) get(name string) string {
	v := a.values[name]
	if len(v) == 0 {
		return ""
	}
	return v[len(v)-1]
}

func (a *cmdArgs) all(name string) []string { return a.values[name] }

// enabled reports whether a boolean flag was given and not set to false.
func (a *cmdArgs) enabled(name string) bool {
	return a.get(name) == "true"
}

// intValue parses an integer flag, returning def when absent.
func (a *cmdArgs) intValue(name string, def int) (int, error) {
	s := a.get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: --%s must be a number", domain.ErrInvalidInput, name)
	}
	return n, nil
}

// arg returns positional argument i, or "".
func (a *cmdArgs) arg(i int) string {
	if i < len(a.positional) {
		return a.positional[i]
	}
	return ""
}
