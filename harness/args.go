// Package harness drives the scenario catalogue: it parses the colon-style
// command line, locates the samples directory, runs the selected scenarios in
// order and asks the operator whether to go on between them.
package harness

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnrecognizedArgument is returned by ParseArgs for any argument it does
// not understand.
var ErrUnrecognizedArgument = errors.New("unrecognized argument")

// AllScenarios selects every scenario in the catalogue.
const AllScenarios = "all"

// Usage describes the accepted arguments.
const Usage = `Options:
  -test:<name|all>      run the named scenario, or all of them (default all)
  -dir:<path|file URI>  samples directory (default $XMLHARNESS_HOME/samples)
  -ask:yes|no           ask for confirmation between scenarios (default yes)
  -?                    print this message
`

// Options is the parsed command line.
type Options struct {
	Test string
	Dir  string
	Ask  bool
	Help bool
}

// DefaultOptions runs every scenario and asks between them.
func DefaultOptions() Options {
	return Options{Test: AllScenarios, Ask: true}
}

// ParseArgs applies args on top of defaults. Later arguments override earlier
// ones.
func ParseArgs(args []string, defaults Options) (Options, error) {
	opts := defaults
	for _, arg := range args {
		switch {
		case arg == "-?":
			opts.Help = true
		case strings.HasPrefix(arg, "-test:"):
			opts.Test = strings.TrimPrefix(arg, "-test:")
		case strings.HasPrefix(arg, "-dir:"):
			opts.Dir = strings.TrimPrefix(arg, "-dir:")
		case arg == "-ask:yes":
			opts.Ask = true
		case arg == "-ask:no":
			opts.Ask = false
		default:
			return opts, fmt.Errorf("%w: %s", ErrUnrecognizedArgument, arg)
		}
	}
	if opts.Test == "" {
		opts.Test = AllScenarios
	}
	return opts, nil
}

// UnrecognizedMessage is the diagnostic line printed for a bad argument.
func UnrecognizedMessage(err error) string {
	arg := strings.TrimPrefix(err.Error(), ErrUnrecognizedArgument.Error()+": ")
	return "Unrecognized argument: " + arg
}
