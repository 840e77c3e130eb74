package harness

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		in   string
		want Decision
	}{
		{"y", Continue},
		{"YES", Continue},
		{"", Continue},
		{"n", Halt},
		{"No", Halt},
		{"a", RunAll},
		{" ALL \n", RunAll},
		{"maybe", Continue},
	}
	for _, tt := range tests {
		if got := ParseDecision(tt.in); got != tt.want {
			t.Errorf("ParseDecision(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLineConfirmer(t *testing.T) {
	var out bytes.Buffer
	c := NewLineConfirmer(strings.NewReader("n\nall\n"), &out)
	ctx := context.Background()

	for _, want := range []Decision{Halt, RunAll, Continue} {
		got, err := c.Confirm(ctx, nil)
		if err != nil {
			t.Fatalf("Confirm() error = %v", err)
		}
		if got != want {
			t.Errorf("Confirm() = %v, want %v", got, want)
		}
	}
	if n := strings.Count(out.String(), Prompt); n != 3 {
		t.Errorf("prompt printed %d times, want 3", n)
	}
}
