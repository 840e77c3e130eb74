package sink

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Severity grades a diagnostic.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Location pinpoints where something was reported. Zero fields are unknown.
type Location struct {
	SystemID string
	// Path is a node path (for example /BOOKLIST/BOOKS/ITEM[2]) when known.
	Path   string
	Line   int
	Column int
}

// String renders the location for humans, omitting unknown parts.
func (l Location) String() string {
	var parts []string
	if l.Line > 0 {
		if l.Column > 0 {
			parts = append(parts, fmt.Sprintf("line %d column %d", l.Line, l.Column))
		} else {
			parts = append(parts, fmt.Sprintf("line %d", l.Line))
		}
	}
	if l.Path != "" {
		parts = append(parts, "at "+l.Path)
	}
	if l.SystemID != "" {
		parts = append(parts, "of "+l.SystemID)
	}
	return strings.Join(parts, " ")
}

// Diagnostic is one compile-time or validation problem.
type Diagnostic struct {
	Location
	Code     string
	Message  string
	Severity Severity
}

func (d Diagnostic) String() string {
	msg := d.Message
	if d.Code != "" {
		msg = d.Code + ": " + msg
	}
	if loc := d.Location.String(); loc != "" {
		return msg + " (" + loc + ")"
	}
	return msg
}

// ErrorReporter receives diagnostics as they are found. It cannot fail; reporting
// never aborts the operation being reported on.
type ErrorReporter interface {
	Report(d Diagnostic)
}

// ErrorReporterFunc adapts a function to the ErrorReporter interface.
type ErrorReporterFunc func(d Diagnostic)

// Report calls f.
func (f ErrorReporterFunc) Report(d Diagnostic) { f(d) }

// DiagnosticList keeps diagnostics in the order they were reported. It remains
// readable after the operation that filled it has failed.
type DiagnosticList struct {
	mu      sync.Mutex
	records []Diagnostic
}

// Report appends d.
func (l *DiagnosticList) Report(d Diagnostic) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, d)
}

// Records returns a copy of the collected diagnostics.
func (l *DiagnosticList) Records() []Diagnostic {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Diagnostic(nil), l.records...)
}

// Len returns the number of diagnostics collected.
func (l *DiagnosticList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Errors counts diagnostics of error severity or worse.
func (l *DiagnosticList) Errors() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, d := range l.records {
		if d.Severity >= SeverityError {
			n++
		}
	}
	return n
}

// WriterReporter prints each diagnostic as it arrives.
type WriterReporter struct {
	Out io.Writer
}

// Report prints d.
func (w *WriterReporter) Report(d Diagnostic) {
	if d.Line > 0 {
		fmt.Fprintf(w.Out, "At line %d: %s\n", d.Line, d.messageWithCode())
	} else {
		fmt.Fprintf(w.Out, "%s\n", d.messageWithCode())
	}
	if d.SystemID != "" || d.Path != "" {
		fmt.Fprintf(w.Out, "  in %s\n", strings.TrimSpace(d.SystemID+" "+d.Path))
	}
}

func (d Diagnostic) messageWithCode() string {
	if d.Code == "" {
		return d.Message
	}
	return d.Code + ": " + d.Message
}

// Tee returns a reporter that forwards every diagnostic to each of reporters.
func Tee(reporters ...ErrorReporter) ErrorReporter {
	return ErrorReporterFunc(func(d Diagnostic) {
		for _, r := range reporters {
			if r != nil {
				r.Report(d)
			}
		}
	})
}
