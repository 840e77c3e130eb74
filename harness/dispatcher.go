package harness

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/joncooperworks/xmlharness/executor"
	"github.com/joncooperworks/xmlharness/resolve"
	"github.com/joncooperworks/xmlharness/scenario"
)

// Failure is a scenario that ended in an error.
type Failure struct {
	Name    string
	Kind    string
	Message string
}

// Report is the outcome of one dispatcher run.
type Report struct {
	// Attempted lists the scenarios that ran, in order.
	Attempted []string
	Failures  []Failure
	// Halted is set when the operator stopped the run early.
	Halted bool
	// Found is false when a named scenario was requested and none matched.
	Found   bool
	Results []*executor.ExecuteScenarioResult
}

// Dispatcher runs scenarios from a catalogue one after another.
type Dispatcher struct {
	catalogue []scenario.Scenario
	out       io.Writer
	confirmer Confirmer
	logger    *log.Logger
	styles    Styles
	standard  resolve.Resolver
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithOutput sets where banners and scenario output go. Default os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(d *Dispatcher) { d.out = w }
}

// WithConfirmer sets who is asked between scenarios. Default reads os.Stdin.
func WithConfirmer(c Confirmer) Option {
	return func(d *Dispatcher) { d.confirmer = c }
}

// WithLogger sets the logger handed to scenarios and used for run events.
func WithLogger(l *log.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithCatalogue replaces the scenario catalogue.
func WithCatalogue(c []scenario.Scenario) Option {
	return func(d *Dispatcher) { d.catalogue = c }
}

// WithStyles sets the banner styles. Default is plain text.
func WithStyles(s Styles) Option {
	return func(d *Dispatcher) { d.styles = s }
}

// WithStandardResolver replaces the default file and http resolution of every
// processor the scenarios create.
func WithStandardResolver(r resolve.Resolver) Option {
	return func(d *Dispatcher) { d.standard = r }
}

// NewDispatcher returns a dispatcher over scenario.Catalogue().
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		catalogue: scenario.Catalogue(),
		out:       os.Stdout,
		logger:    log.New(io.Discard),
		styles:    PlainStyles(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.confirmer == nil {
		d.confirmer = NewLineConfirmer(os.Stdin, d.out)
	}
	return d
}

// Select returns the scenarios matching name, which is AllScenarios or an
// exact, case-sensitive scenario name.
func (d *Dispatcher) Select(name string) []scenario.Scenario {
	if name == AllScenarios {
		return append([]scenario.Scenario(nil), d.catalogue...)
	}
	for _, s := range d.catalogue {
		if s.Name == name {
			return []scenario.Scenario{s}
		}
	}
	return nil
}

// Run executes the scenarios selected by opts against samplesDir, a directory
// file URI as returned by ResolveSamplesDir. Scenario failures are reported
// and do not stop the run. The returned error is for context cancellation or
// a failing Confirmer.
func (d *Dispatcher) Run(ctx context.Context, opts Options, samplesDir string) (*Report, error) {
	selected := d.Select(opts.Test)
	report := &Report{Found: len(selected) > 0}
	ask := opts.Ask

	for _, s := range selected {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		fmt.Fprintln(d.out, d.styles.RenderBanner(fmt.Sprintf("===== %s =====", s.Name)))

		env := &scenario.Env{SamplesDir: samplesDir, Out: d.out, Logger: d.logger, Standard: d.standard}
		result, err := executor.ExecuteScenario(ctx, &executor.ExecuteScenarioRequest{Scenario: s, Env: env})
		if err != nil {
			return report, fmt.Errorf("failed to run %s: %w", s.Name, err)
		}
		report.Attempted = append(report.Attempted, s.Name)
		report.Results = append(report.Results, result)
		if result.Failed() {
			report.Failures = append(report.Failures, Failure{Name: s.Name, Kind: result.Kind, Message: result.Message})
			fmt.Fprintln(d.out, d.styles.RenderFailure(result.Summary()))
			d.logger.Debug("scenario failed", "name", s.Name, "kind", result.Kind, "duration", result.Duration)
			if result.Stack != nil {
				d.logger.Debug("panic stack", "name", s.Name, "stack", string(result.Stack))
			}
		} else {
			d.logger.Debug("scenario passed", "name", s.Name, "duration", result.Duration, "output_sha256", result.OutputHash)
		}

		if !ask {
			continue
		}
		decision, err := d.confirmer.Confirm(ctx, result)
		if err != nil {
			return report, err
		}
		switch decision {
		case Halt:
			report.Halted = true
		case RunAll:
			ask = false
		}
		if report.Halted {
			break
		}
	}

	if !report.Found {
		fmt.Fprintf(d.out, "Please supply a valid test name, or 'all' ('%s' is invalid)\n", opts.Test)
	}
	fmt.Fprintln(d.out, d.styles.RenderDone("==== done! ===="))
	return report, nil
}
