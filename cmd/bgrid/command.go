package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/janelia-flyem/bgrid/bgrid"
)

// setKeys are the keys recognized in "<key>=<value>" settings.  Other
// arguments containing "=" are positional, e.g. a query.
var setKeys = map[string]struct{}{
	"attribute":   {},
	"attributes":  {},
	"compression": {},
	"corner":      {},
	"description": {},
	"encode":      {},
	"index":       {},
	"kind":        {},
	"overwrite":   {},
	"query":       {},
	"schema":      {},
	"shape":       {},
	"size":        {},
	"tensor":      {},
}

// Command is a command line: a command name followed by arguments and
// optional settings of the form "<key>=<value>".
type Command []string

// String returns a space-separated command line.
func (cmd Command) String() string {
	return strings.Join([]string(cmd), " ")
}

// Name returns the first argument which is assumed to be the name of the command.
func (cmd Command) Name() string {
	if len(cmd) == 0 {
		return ""
	}
	return cmd[0]
}

func setting(arg string) (key, value string, ok bool) {
	elems := strings.SplitN(arg, "=", 2)
	if len(elems) != 2 {
		return "", "", false
	}
	if _, ok := setKeys[elems[0]]; !ok {
		return "", "", false
	}
	return elems[0], elems[1], true
}

// Parameter returns the value of a "key=value" setting.
func (cmd Command) Parameter(key string) (value string, found bool) {
	if len(cmd) > 1 {
		for _, arg := range cmd[1:] {
			if k, v, ok := setting(arg); ok && k == key {
				return v, true
			}
		}
	}
	return "", false
}

// BoolParameter returns a boolean setting, false if absent.
func (cmd Command) BoolParameter(key string) (bool, error) {
	v, found := cmd.Parameter(key)
	if !found {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("setting %s=%q is not a boolean: %w", key, v, bgrid.ErrValue)
	}
	return b, nil
}

// CommandArgs sets the targets to the positional arguments after the command
// name, ignoring settings.  Missing targets are set to "".  It returns the
// arguments beyond those needed for targets.
func (cmd Command) CommandArgs(targets ...*string) (overflow []string) {
	for _, target := range targets {
		*target = ""
	}
	if len(cmd) < 2 {
		return nil
	}
	curTarget := 0
	for _, arg := range cmd[1:] {
		if _, _, ok := setting(arg); ok {
			continue
		}
		if curTarget >= len(targets) {
			overflow = append(overflow, arg)
		} else {
			*(targets[curTarget]) = arg
		}
		curTarget++
	}
	return
}

// parseTriple parses "a,b,c" into three floats.
func parseTriple(s string) ([3]float64, error) {
	var out [3]float64
	fields := strings.Split(s, ",")
	if len(fields) != 3 {
		return out, fmt.Errorf("expected three comma-separated numbers, got %q: %w", s, bgrid.ErrValue)
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return out, fmt.Errorf("bad number %q in %q: %w", f, s, bgrid.ErrValue)
		}
		out[i] = v
	}
	return out, nil
}
