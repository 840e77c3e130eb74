package harness

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/joncooperworks/xmlharness/executor"
	"github.com/joncooperworks/xmlharness/scenario"
)

func fakeCatalogue() []scenario.Scenario {
	ok := func(ctx context.Context, env *scenario.Env) error { return nil }
	return []scenario.Scenario{
		{Name: "First", Description: "passes", Run: ok},
		{Name: "Second", Description: "fails", Run: func(ctx context.Context, env *scenario.Env) error {
			return &fs.PathError{Op: "open", Path: "missing.xml", Err: fs.ErrNotExist}
		}},
		{Name: "Third", Description: "panics", Run: func(ctx context.Context, env *scenario.Env) error {
			var m map[string]int
			m["x"]++
			return nil
		}},
		{Name: "Fourth", Description: "passes", Run: ok},
	}
}

func TestDispatcherRunAllStopsPrompting(t *testing.T) {
	var out bytes.Buffer
	confirmer := &ScriptedConfirmer{Answers: []string{"Y", "A"}}
	d := NewDispatcher(WithCatalogue(fakeCatalogue()), WithOutput(&out), WithConfirmer(confirmer))

	report, err := d.Run(context.Background(), Options{Test: AllScenarios, Ask: true}, "file:///samples/")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if confirmer.Asked() != 2 {
		t.Errorf("Asked() = %d, want 2", confirmer.Asked())
	}
	if want := []string{"First", "Second", "Third", "Fourth"}; !slices.Equal(report.Attempted, want) {
		t.Errorf("Attempted = %v, want %v", report.Attempted, want)
	}
	if len(report.Failures) != 2 || report.Failures[0].Kind != "*fs.PathError" || report.Failures[1].Kind != executor.KindPanic {
		t.Errorf("Failures = %+v", report.Failures)
	}
	for _, want := range []string{"===== First =====", "===== Fourth =====", "Test failed with error *fs.PathError", "Test failed with error panic", "==== done! ===="} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output does not contain %q:\n%s", want, out.String())
		}
	}
}

func TestDispatcherHalt(t *testing.T) {
	var out bytes.Buffer
	confirmer := &ScriptedConfirmer{Answers: []string{"no"}}
	d := NewDispatcher(WithCatalogue(fakeCatalogue()), WithOutput(&out), WithConfirmer(confirmer))

	report, err := d.Run(context.Background(), Options{Test: AllScenarios, Ask: true}, "file:///samples/")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !report.Halted || !slices.Equal(report.Attempted, []string{"First"}) {
		t.Errorf("report = %+v, want halt after First", report)
	}
	if !strings.HasSuffix(out.String(), "==== done! ====\n") {
		t.Errorf("output does not end with the done line:\n%s", out.String())
	}
}

func TestDispatcherPromptsAfterEveryScenario(t *testing.T) {
	confirmer := &ScriptedConfirmer{}
	d := NewDispatcher(WithCatalogue(fakeCatalogue()), WithOutput(&bytes.Buffer{}), WithConfirmer(confirmer))

	report, err := d.Run(context.Background(), Options{Test: "Second", Ask: true}, "file:///samples/")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !report.Found || len(report.Attempted) != 1 || confirmer.Asked() != 1 {
		t.Errorf("report = %+v, asked %d", report, confirmer.Asked())
	}
}

func TestDispatcherPromptCount(t *testing.T) {
	tests := []struct {
		name    string
		answers []string
		ask     bool
		want    int
	}{
		{"continue throughout", nil, true, 4},
		{"run all after first", []string{"a"}, true, 1},
		{"confirmation off", nil, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			confirmer := &ScriptedConfirmer{Answers: tt.answers}
			d := NewDispatcher(WithCatalogue(fakeCatalogue()), WithOutput(&bytes.Buffer{}), WithConfirmer(confirmer))
			report, err := d.Run(context.Background(), Options{Test: AllScenarios, Ask: tt.ask}, "file:///samples/")
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if len(report.Attempted) != 4 {
				t.Errorf("Attempted = %v, want all four", report.Attempted)
			}
			if confirmer.Asked() != tt.want {
				t.Errorf("Asked() = %d, want %d", confirmer.Asked(), tt.want)
			}
		})
	}
}

func TestDispatcherUnknownScenario(t *testing.T) {
	var out bytes.Buffer
	d := NewDispatcher(WithCatalogue(fakeCatalogue()), WithOutput(&out), WithConfirmer(&ScriptedConfirmer{}))

	report, err := d.Run(context.Background(), Options{Test: "doesnotexist", Ask: true}, "file:///samples/")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Found || len(report.Attempted) != 0 {
		t.Errorf("report = %+v, want nothing attempted", report)
	}
	want := "Please supply a valid test name, or 'all' ('doesnotexist' is invalid)\n==== done! ====\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestDispatcherConfirmerError(t *testing.T) {
	boom := errors.New("stdin closed")
	confirmer := ConfirmerFunc(func(context.Context, *executor.ExecuteScenarioResult) (Decision, error) {
		return Halt, boom
	})
	d := NewDispatcher(WithCatalogue(fakeCatalogue()), WithOutput(&bytes.Buffer{}), WithConfirmer(confirmer))
	if _, err := d.Run(context.Background(), Options{Test: AllScenarios, Ask: true}, "file:///samples/"); !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want %v", err, boom)
	}
}

func TestDispatcherIsRepeatable(t *testing.T) {
	samples, err := ResolveSamplesDir(filepath.Join("..", "samples"), "")
	if err != nil {
		t.Fatalf("ResolveSamplesDir() error = %v", err)
	}
	run := func() *Report {
		d := NewDispatcher(WithOutput(&bytes.Buffer{}), WithConfirmer(&ScriptedConfirmer{}))
		report, err := d.Run(context.Background(), Options{Test: AllScenarios, Ask: false}, samples)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		return report
	}
	first, second := run(), run()
	if !slices.Equal(first.Attempted, second.Attempted) {
		t.Errorf("attempted %v then %v", first.Attempted, second.Attempted)
	}
	if !slices.Equal(first.Failures, second.Failures) {
		t.Errorf("failures %+v then %+v", first.Failures, second.Failures)
	}
	if len(first.Attempted) != len(scenario.Catalogue()) {
		t.Errorf("attempted %d scenarios, want %d", len(first.Attempted), len(scenario.Catalogue()))
	}
}
