package esm

import (
	"reflect"

	"github.com/tdewolff/parse/v2/js"
)

var scopeType = reflect.TypeOf(js.Scope{})

// rewriter replaces import.meta with the meta parameter, renames the callee
// of import() and makes every variable reference print its resolved name.
type rewriter struct {
	dynamic []string
}

// rewrite runs over the module body in place and returns the string literal
// specifiers of its import() calls.
func rewrite(body []js.IStmt) []string {
	r := &rewriter{}
	r.walk(reflect.ValueOf(&body).Elem())
	return r.dynamic
}

func (r *rewriter) walk(v reflect.Value) {
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return
		}
		if _, ok := v.Interface().(*js.ImportMetaExpr); ok {
			meta := reflect.ValueOf(&js.LiteralExpr{TokenType: js.IdentifierToken, Data: []byte(ParamMeta)})
			if v.CanSet() && meta.Type().AssignableTo(v.Type()) {
				v.Set(meta)
			}
			return
		}
		r.walk(v.Elem())

	case reflect.Pointer:
		if v.IsNil() {
			return
		}
		switch n := v.Interface().(type) {
		case *js.Var:
			// references hoisted out of nested scopes link to the root var
			n.Data = n.Name()
			return
		case *js.Scope:
			return
		case *js.LiteralExpr:
			if n.TokenType == js.ImportToken {
				n.Data = []byte(ParamImport)
			}
			return
		case *js.CallExpr:
			r.call(n)
		}
		r.walk(v.Elem())

	case reflect.Struct:
		if v.Type() == scopeType {
			return
		}
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).IsExported() {
				r.walk(v.Field(i))
			}
		}

	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return
		}
		for i := 0; i < v.Len(); i++ {
			r.walk(v.Index(i))
		}
	}
}

func (r *rewriter) call(n *js.CallExpr) {
	callee, ok := n.X.(*js.LiteralExpr)
	if !ok || callee.TokenType != js.ImportToken || len(n.Args.List) == 0 {
		return
	}
	arg, ok := n.Args.List[0].Value.(*js.LiteralExpr)
	if !ok || arg.TokenType != js.StringToken {
		return
	}
	if specifier, err := unquote(arg.Data); err == nil {
		r.dynamic = append(r.dynamic, specifier)
	}
}
