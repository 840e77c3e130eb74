package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr/file"

	"github.com/joncooperworks/xmlharness/ext"
	"github.com/joncooperworks/xmlharness/sink"
)

// Error codes raised by the engine. They follow the W3C error code families so that
// failures read the same whichever component raised them.
const (
	CodeSyntax             = "XPST0003"
	CodeUndeclaredVariable = "XPST0008"
	CodeUnknownFunction    = "XPST0017"
	CodeUnknownPrefix      = "XPST0081"
	CodeType               = "XPTY0004"
	CodeDocument           = "FODC0002"
	CodeCollection         = "FODC0004"
	CodeText               = "FOUT1170"
	CodeDynamic            = "FOER0000"
	CodeNotWellFormed      = "SXXP0003"
	CodeTemplateStatic     = "XTSE0010"
	CodeTemplateDynamic    = "XTDE0050"
	CodeTerminated         = "XTMM9000"
	CodeSchema             = "SXXS0001"
	CodeValidation         = "XQDY0027"
)

// Error is an engine failure with a W3C-style code and, when known, a location.
type Error struct {
	Code     string
	Message  string
	Location sink.Location
	Err      error
}

func (e *Error) Error() string {
	msg := e.Code + ": " + e.Message
	if loc := e.Location.String(); loc != "" {
		msg += " (" + loc + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) at(loc sink.Location) *Error {
	if e.Location.SystemID == "" {
		e.Location.SystemID = loc.SystemID
	}
	if e.Location.Path == "" {
		e.Location.Path = loc.Path
	}
	if e.Location.Line == 0 {
		e.Location.Line = loc.Line
		e.Location.Column = loc.Column
	}
	return e
}

func (e *Error) diagnostic() sink.Diagnostic {
	return sink.Diagnostic{
		Location: e.Location,
		Code:     e.Code,
		Message:  e.Message,
		Severity: sink.SeverityError,
	}
}

// asEngineError converts anything coming back from the expression runtime into an
// *Error, keeping the innermost engine error when there is one.
func asEngineError(err error, code string) *Error {
	var ee *Error
	if errors.As(err, &ee) {
		return ee
	}
	var fe *file.Error
	if errors.As(err, &fe) {
		if strings.Contains(fe.Message, "mismatched types") {
			code = CodeType
		}
		e := &Error{Code: code, Message: fe.Message, Err: err}
		e.Location.Line = fe.Line
		e.Location.Column = fe.Column + 1
		return e
	}
	switch {
	case errors.Is(err, ext.ErrArgumentType), errors.Is(err, ext.ErrResultType):
		return &Error{Code: CodeType, Message: err.Error(), Err: err}
	case errors.Is(err, ext.ErrUnresolvedFunction):
		return &Error{Code: CodeUnknownFunction, Message: err.Error(), Err: err}
	}
	return &Error{Code: code, Message: err.Error(), Err: err}
}
