package sink

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/joncooperworks/xmlharness/resolve"
)

func TestResultRegistry(t *testing.T) {
	r := NewResultRegistry()

	d1, err := r.ResultRequested("act1.xml", "file:///out/play.xml")
	if err != nil {
		t.Fatalf("ResultRequested() error = %v", err)
	}
	d2, err := r.ResultRequested("act2.xml", "file:///out/play.xml")
	if err != nil {
		t.Fatalf("ResultRequested() error = %v", err)
	}
	if d1 == d2 {
		t.Fatal("ResultRequested() returned the same destination twice")
	}
	if _, err := d1.Write([]byte("<ACT>1</ACT>")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := d1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := d1.Write([]byte("more")); !errors.Is(err, ErrDestinationClosed) {
		t.Errorf("Write() after Close error = %v, want ErrDestinationClosed", err)
	}

	want := []string{"file:///out/act1.xml", "file:///out/act2.xml"}
	if got := r.URIs(); !reflect.DeepEqual(got, want) {
		t.Errorf("URIs() = %v, want %v", got, want)
	}
	got, ok := r.Get("file:///out/act1.xml")
	if !ok || got.String() != "<ACT>1</ACT>" || !got.Closed() {
		t.Errorf("Get(act1) = %v, %v", got, ok)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestResultRegistryAbsoluteHref(t *testing.T) {
	r := NewResultRegistry()
	if _, err := r.ResultRequested("http://example.com/a.xml", "file:///out/"); err != nil {
		t.Fatalf("ResultRequested() error = %v", err)
	}
	if _, ok := r.Get("http://example.com/a.xml"); !ok {
		t.Errorf("URIs() = %v, want the absolute href kept as is", r.URIs())
	}
}

func TestResultRegistryNoBase(t *testing.T) {
	r := NewResultRegistry()
	d, err := r.ResultRequested("out.xml", "")
	if err != nil {
		t.Fatalf("ResultRequested() error = %v", err)
	}
	want, err := resolve.FileURI("out.xml")
	if err != nil {
		t.Fatalf("FileURI() error = %v", err)
	}
	if d.URI != want {
		t.Errorf("URI = %q, want %q", d.URI, want)
	}
}

func TestDiagnosticList(t *testing.T) {
	var l DiagnosticList
	l.Report(Diagnostic{Message: "first", Severity: SeverityWarning})
	l.Report(Diagnostic{Message: "second", Severity: SeverityError, Location: Location{Line: 3}})
	l.Report(Diagnostic{Message: "third", Severity: SeverityFatal})

	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}
	if l.Errors() != 2 {
		t.Errorf("Errors() = %d, want 2", l.Errors())
	}
	recs := l.Records()
	for i, want := range []string{"first", "second", "third"} {
		if recs[i].Message != want {
			t.Errorf("Records()[%d] = %q, want %q", i, recs[i].Message, want)
		}
	}
	recs[0].Message = "changed"
	if l.Records()[0].Message != "first" {
		t.Error("Records() returned the internal slice")
	}
}

func TestWriterReporter(t *testing.T) {
	var out bytes.Buffer
	r := &WriterReporter{Out: &out}
	r.Report(Diagnostic{Code: "XPST0008", Message: "variable $var has not been declared",
		Location: Location{Line: 4, SystemID: "file:///styles/bad.tpl"}})

	got := out.String()
	for _, want := range []string{"At line 4: XPST0008: variable $var", "in file:///styles/bad.tpl"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q does not contain %q", got, want)
		}
	}
}

func TestTee(t *testing.T) {
	var a, b DiagnosticList
	Tee(&a, nil, &b).Report(Diagnostic{Message: "x"})
	if a.Len() != 1 || b.Len() != 1 {
		t.Errorf("Tee() delivered %d and %d diagnostics, want 1 and 1", a.Len(), b.Len())
	}
}

func TestLocationString(t *testing.T) {
	tests := []struct {
		loc  Location
		want string
	}{
		{Location{}, ""},
		{Location{Line: 2}, "line 2"},
		{Location{Line: 2, Column: 7, SystemID: "s.tpl"}, "line 2 column 7 of s.tpl"},
		{Location{Path: "/BOOKLIST/BOOKS/ITEM[2]"}, "at /BOOKLIST/BOOKS/ITEM[2]"},
	}
	for _, tt := range tests {
		if got := tt.loc.String(); got != tt.want {
			t.Errorf("Location%+v.String() = %q, want %q", tt.loc, got, tt.want)
		}
	}
}

func TestMessages(t *testing.T) {
	var log MessageLog
	var out bytes.Buffer
	listeners := []MessageListener{&log, &WriterListener{Out: &out}}
	for _, l := range listeners {
		l.Message(Message{Content: "Processing BOOKS", Location: Location{Line: 5}})
		l.Message(Message{Content: "stop", Terminate: true})
	}

	msgs := log.Messages()
	if len(msgs) != 2 || msgs[0].Content != "Processing BOOKS" || !msgs[1].Terminate {
		t.Errorf("Messages() = %+v", msgs)
	}
	got := out.String()
	for _, want := range []string{"MESSAGE terminate=no", "From instruction at line 5", ">>Processing BOOKS", "MESSAGE terminate=yes"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q does not contain %q", got, want)
		}
	}
}
