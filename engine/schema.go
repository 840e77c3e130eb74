package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/jacoelho/xsd"
	xsderrors "github.com/jacoelho/xsd/errors"

	"github.com/joncooperworks/xmlharness/resolve"
	"github.com/joncooperworks/xmlharness/sink"
)

// SchemaManager compiles XSD schemas. Schema documents, including those reached
// through xs:include and xs:import, are fetched with nature "schema document".
type SchemaManager struct {
	proc     *Processor
	resolver resolve.Resolver
	reporter sink.ErrorReporter
}

// SetResolver replaces the resolver used for schema documents.
func (m *SchemaManager) SetResolver(r resolve.Resolver) { m.resolver = r }

// SetErrorReporter receives schema compilation errors.
func (m *SchemaManager) SetErrorReporter(r sink.ErrorReporter) { m.reporter = r }

// Compile loads the schema at uri.
func (m *SchemaManager) Compile(ctx context.Context, uri string) (*Schema, error) {
	abs, err := resolve.Absolute("", uri)
	if err != nil {
		return nil, m.fail(&Error{Code: CodeSchema, Message: err.Error(), Location: sink.Location{SystemID: uri}, Err: err})
	}
	dir, name := path.Split(abs)
	fsys := &resolverFS{ctx: ctx, proc: m.proc, resolver: m.resolver, base: dir}

	s, err := xsd.LoadWithOptions(fsys, name, xsd.LoadOptions{})
	if err != nil {
		if vs, ok := xsderrors.AsValidations(err); ok && len(vs) > 0 {
			for _, v := range vs {
				m.report(validationDiagnostic(v, abs))
			}
			return nil, &Error{Code: CodeSchema, Message: fmt.Sprintf("schema %s is invalid: %s", abs, vs[0].Message), Location: sink.Location{SystemID: abs}, Err: err}
		}
		return nil, m.fail(&Error{Code: CodeSchema, Message: err.Error(), Location: sink.Location{SystemID: abs}, Err: err})
	}
	m.proc.logger.Debug("compiled schema", "uri", abs)
	return &Schema{proc: m.proc, schema: s, uri: abs}, nil
}

func (m *SchemaManager) report(d sink.Diagnostic) {
	if m.reporter != nil {
		m.reporter.Report(d)
	}
}

func (m *SchemaManager) fail(e *Error) error {
	m.report(e.diagnostic())
	return e
}

func validationDiagnostic(v xsderrors.Validation, systemID string) sink.Diagnostic {
	msg := v.Message
	if v.Actual != "" && len(v.Expected) > 0 {
		msg = fmt.Sprintf("%s (found %s, expected %s)", msg, v.Actual, strings.Join(v.Expected, " | "))
	}
	return sink.Diagnostic{
		Location: sink.Location{SystemID: systemID, Path: v.Path, Line: v.Line, Column: v.Column},
		Code:     v.Code,
		Message:  msg,
		Severity: sink.SeverityError,
	}
}

// Schema is a compiled schema.
type Schema struct {
	proc   *Processor
	schema *xsd.Schema
	uri    string
}

// URI returns the schema's location.
func (s *Schema) URI() string { return s.uri }

// NewValidator returns a validator for this schema.
func (s *Schema) NewValidator() *Validator {
	return &Validator{schema: s}
}

// Validator validates instance documents. Each invalidity is reported to its
// listener; the returned error only says that validation failed.
type Validator struct {
	schema   *Schema
	listener sink.ErrorReporter
}

// SetInvalidityListener receives one diagnostic per invalidity.
func (v *Validator) SetInvalidityListener(r sink.ErrorReporter) { v.listener = r }

// Validate validates the instance read from r.
func (v *Validator) Validate(r io.Reader, systemID string) error {
	err := v.schema.schema.Validate(r)
	if err == nil {
		v.schema.proc.logger.Debug("instance is valid", "uri", systemID, "schema", v.schema.uri)
		return nil
	}
	vs, ok := xsderrors.AsValidations(err)
	if !ok {
		return &Error{Code: CodeNotWellFormed, Message: err.Error(), Location: sink.Location{SystemID: systemID}, Err: err}
	}
	for _, val := range vs {
		if v.listener != nil {
			v.listener.Report(validationDiagnostic(val, systemID))
		}
	}
	return &Error{
		Code:     CodeValidation,
		Message:  fmt.Sprintf("%s is not valid against %s: %d invalidities found", systemID, v.schema.uri, len(vs)),
		Location: sink.Location{SystemID: systemID},
		Err:      err,
	}
}

// ValidateDocument validates a document already built.
func (v *Validator) ValidateDocument(doc *Document) error {
	var buf bytes.Buffer
	if _, err := doc.tree.WriteTo(&buf); err != nil {
		return err
	}
	return v.Validate(&buf, doc.uri)
}

// ValidateURI fetches uri with standard resolution and validates it.
func (v *Validator) ValidateURI(ctx context.Context, uri string) error {
	res, err := v.schema.proc.fetch(ctx, nil, resolve.Request{URI: uri, Nature: resolve.NatureDocument})
	if err != nil {
		return &Error{Code: CodeDocument, Message: err.Error(), Location: sink.Location{SystemID: uri}, Err: err}
	}
	return v.Validate(bytes.NewReader(res.Content), res.URI)
}

// resolverFS presents schema documents to the schema loader as a file system
// rooted at the principal schema's directory.
type resolverFS struct {
	ctx      context.Context
	proc     *Processor
	resolver resolve.Resolver
	base     string
}

func (f *resolverFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	res, err := f.proc.fetch(f.ctx, f.resolver, resolve.Request{URI: name, BaseURI: f.base, Nature: resolve.NatureSchemaDocument})
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: errors.Join(fs.ErrNotExist, err)}
	}
	return &memFile{Reader: bytes.NewReader(res.Content), name: path.Base(name)}, nil
}

type memFile struct {
	*bytes.Reader
	name string
}

func (f *memFile) Stat() (fs.FileInfo, error) { return f, nil }

func (f *memFile) Close() error { return nil }

func (f *memFile) Name() string { return f.name }

func (f *memFile) Mode() fs.FileMode { return 0o444 }

func (f *memFile) ModTime() time.Time { return time.Time{} }

func (f *memFile) IsDir() bool { return false }

func (f *memFile) Sys() any { return nil }
