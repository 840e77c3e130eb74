package harness

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/joncooperworks/xmlharness/executor"
)

// Prompt is printed before reading a confirmation.
const Prompt = "Continue? - type (Y(es)/N(o)/A(ll))"

// Decision is the operator's answer at a scenario boundary.
type Decision int

const (
	// Continue runs the next scenario.
	Continue Decision = iota
	// Halt stops the run.
	Halt
	// RunAll runs the rest without asking again.
	RunAll
)

func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case Halt:
		return "halt"
	case RunAll:
		return "run all"
	}
	return fmt.Sprintf("Decision(%d)", int(d))
}

// ParseDecision reads an answer case-insensitively. Anything that is not a
// no or an all means continue.
func ParseDecision(answer string) Decision {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "n", "no":
		return Halt
	case "a", "all":
		return RunAll
	}
	return Continue
}

// Confirmer decides what happens after a scenario has run.
type Confirmer interface {
	Confirm(ctx context.Context, last *executor.ExecuteScenarioResult) (Decision, error)
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(ctx context.Context, last *executor.ExecuteScenarioResult) (Decision, error)

// Confirm calls f.
func (f ConfirmerFunc) Confirm(ctx context.Context, last *executor.ExecuteScenarioResult) (Decision, error) {
	return f(ctx, last)
}

// LineConfirmer prints Prompt and reads one line per question. End of input
// means continue.
type LineConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

// NewLineConfirmer reads answers from in and prints prompts to out.
func NewLineConfirmer(in io.Reader, out io.Writer) *LineConfirmer {
	return &LineConfirmer{in: bufio.NewReader(in), out: out}
}

// Confirm implements Confirmer.
func (c *LineConfirmer) Confirm(ctx context.Context, _ *executor.ExecuteScenarioResult) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Halt, err
	}
	fmt.Fprintln(c.out, Prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return Halt, fmt.Errorf("failed to read confirmation: %w", err)
	}
	return ParseDecision(line), nil
}

// ScriptedConfirmer answers from a fixed list, then continues.
type ScriptedConfirmer struct {
	Answers []string

	mu    sync.Mutex
	asked int
}

// Confirm implements Confirmer.
func (c *ScriptedConfirmer) Confirm(context.Context, *executor.ExecuteScenarioResult) (Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.asked
	c.asked++
	if i >= len(c.Answers) {
		return Continue, nil
	}
	return ParseDecision(c.Answers[i]), nil
}

// Asked returns how many times Confirm was called.
func (c *ScriptedConfirmer) Asked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.asked
}
