package wasm

import (
	"context"
	"errors"
	"fmt"
	"time"

	extism "github.com/extism/go-sdk"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/joncooperworks/xmlharness/ext"
)

// encodeArgs builds the call envelope. Nodes travel as their string value.
func encodeArgs(dc ext.DynamicContext, args []any) ([]byte, error) {
	buf := []byte(`{"args":[]}`)
	var err error
	for i, a := range args {
		buf, err = sjson.SetBytes(buf, "args.-1", plain(a))
		if err != nil {
			return nil, fmt.Errorf("failed to encode argument %d: %w", i+1, err)
		}
	}
	if dc == nil {
		return buf, nil
	}
	if item := dc.ContextItem(); item != nil {
		if buf, err = sjson.SetBytes(buf, "context.item", plain(item)); err != nil {
			return nil, fmt.Errorf("failed to encode context item: %w", err)
		}
	}
	if buf, err = sjson.SetBytes(buf, "context.now", dc.CurrentTime().Format(time.RFC3339)); err != nil {
		return nil, fmt.Errorf("failed to encode current time: %w", err)
	}
	return buf, nil
}

func plain(v any) any {
	switch x := v.(type) {
	case ext.Node:
		return x.Text()
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = plain(item)
		}
		return out
	}
	if ext.IsEmpty(v) {
		return nil
	}
	return v
}

// decodeResult reads {"result": ...} or {"error": "..."}.
func decodeResult(out []byte) (any, error) {
	if len(out) == 0 {
		return ext.Empty, nil
	}
	if !gjson.ValidBytes(out) {
		return nil, errors.New("function returned invalid JSON")
	}
	if msg := gjson.GetBytes(out, "error"); msg.Exists() {
		return nil, errors.New(msg.String())
	}
	return fromJSON(gjson.GetBytes(out, "result")), nil
}

func fromJSON(r gjson.Result) any {
	switch {
	case !r.Exists(), r.Type == gjson.Null:
		return ext.Empty
	case r.IsArray():
		items := make([]any, 0)
		for _, item := range r.Array() {
			items = append(items, fromJSON(item))
		}
		return items
	case r.Type == gjson.Number:
		return r.Float()
	case r.Type == gjson.True, r.Type == gjson.False:
		return r.Bool()
	}
	return r.String()
}

type dynamicContextKey struct{}

func withDynamicContext(ctx context.Context, dc ext.DynamicContext) context.Context {
	return context.WithValue(ctx, dynamicContextKey{}, dc)
}

// newUnparsedTextFunction creates the host function xh_unparsed_text.
// WASM signature: (param i64) (result i64) - takes a URI offset, returns a text offset (0 on error)
func newUnparsedTextFunction() extism.HostFunction {
	fn := extism.NewHostFunctionWithStack(
		"xh_unparsed_text",
		func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
			uri, err := p.ReadString(stack[0])
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("xh_unparsed_text: failed to read uri: %v", err))
				return
			}
			dc, ok := ctx.Value(dynamicContextKey{}).(ext.DynamicContext)
			if !ok {
				stack[0] = 0
				p.Log(extism.LogLevelError, "xh_unparsed_text: no evaluation in progress")
				return
			}
			text, err := dc.UnparsedText(uri)
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("xh_unparsed_text: %s: %v", uri, err))
				return
			}
			offset, err := p.WriteString(text)
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("xh_unparsed_text: failed to write result: %v", err))
				return
			}
			stack[0] = offset
		},
		[]extism.ValueType{extism.ValueTypeI64}, // uri_offset: i64
		[]extism.ValueType{extism.ValueTypeI64}, // text_offset: i64
	)
	fn.SetNamespace("env")
	return fn
}
