package esm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"
)

// Parameter names of the lowered module function.
const (
	ParamNamespace = "__ns"
	ParamDeps      = "__deps"
	ParamPartial   = "__partial"
	ParamRuntime   = "__rt"
	ParamImport    = "__import"
	ParamMeta      = "__meta"

	defaultLocal = "__default"
)

// Binding pairs a name exported by a module with a local name.
type Binding struct {
	Name  string
	Local string
}

// Import is one static import statement.
type Import struct {
	Specifier string
	Dep       int // index into Module.Imports
	Default   string
	Namespace string
	Named     []Binding
}

// Export is one exported name.
type Export struct {
	Name  string
	Local string // local binding; empty for re-exports
	Dep   int    // dependency index for re-exports, -1 otherwise
	From  string // name in the dependency, "*" for its whole namespace
}

// Module is a lowered ES module.
type Module struct {
	// Imports lists the unique static dependency specifiers in source order.
	Imports  []string
	Bindings []Import
	Exports  []Export
	// Stars lists dependencies re-exported with `export * from`.
	Stars []int
	// Dynamic lists the string literal specifiers passed to import().
	Dynamic []string
	// Body is a function expression taking the parameters named by the
	// Param constants.
	Body string
}

// ExportNames returns the exported names in sorted order.
func (m *Module) ExportNames() []string {
	names := make([]string, 0, len(m.Exports))
	for _, e := range m.Exports {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}

type lowerer struct {
	mod   Module
	deps  map[string]int
	names map[string]bool
	// live accessor expression per imported local name
	access map[string]string
	body   []js.IStmt
}

// Lower parses ES module source and rewrites it into a plain function
// expression that a script engine without module support can run. Import and
// export statements are lifted into a prologue, every reference to an
// imported name reads the dependency namespace so bindings stay live, and
// import() and import.meta become the function's parameters.
func Lower(src string) (*Module, error) {
	ast, err := js.Parse(parse.NewInputString(src), js.Options{})
	if err != nil {
		return nil, err
	}

	l := &lowerer{
		deps:   make(map[string]int),
		names:  make(map[string]bool),
		access: make(map[string]string),
	}
	for _, stmt := range ast.List {
		switch s := stmt.(type) {
		case *js.ImportStmt:
			err = l.importStmt(s)
		case *js.ExportStmt:
			err = l.exportStmt(s)
		default:
			l.body = append(l.body, stmt)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := l.link(&ast.BlockStmt.Scope); err != nil {
		return nil, err
	}
	l.mod.Dynamic = rewrite(l.body)
	l.mod.Body = l.render()
	return &l.mod, nil
}

func (l *lowerer) importStmt(s *js.ImportStmt) error {
	specifier, err := unquote(s.Module)
	if err != nil {
		return err
	}
	imp := Import{Specifier: specifier, Dep: l.dep(specifier)}

	if s.Default != nil {
		imp.Default = string(s.Default)
		if err := l.bindLocal(imp.Default, member(imp.Dep, "default")); err != nil {
			return err
		}
	}
	for _, alias := range s.List {
		switch {
		case alias.Binding == nil:
			// trailing comma
		case isStar(alias.Name):
			imp.Namespace = string(alias.Binding)
			if err := l.bindLocal(imp.Namespace, fmt.Sprintf("%s[%d]", ParamDeps, imp.Dep)); err != nil {
				return err
			}
		default:
			name := alias.Binding
			if alias.Name != nil {
				name = alias.Name
			}
			exported, err := exportName(name)
			if err != nil {
				return err
			}
			b := Binding{Name: exported, Local: string(alias.Binding)}
			if err := l.bindLocal(b.Local, member(imp.Dep, b.Name)); err != nil {
				return err
			}
			imp.Named = append(imp.Named, b)
		}
	}

	l.mod.Bindings = append(l.mod.Bindings, imp)
	return nil
}

func (l *lowerer) exportStmt(s *js.ExportStmt) error {
	switch {
	case s.Decl != nil && s.Default:
		return l.exportDefault(s.Decl)

	case s.Decl != nil:
		names, err := declNames(s.Decl)
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := l.addExport(Export{Name: name, Local: name, Dep: -1}); err != nil {
				return err
			}
		}
		stmt, ok := s.Decl.(js.IStmt)
		if !ok {
			return fmt.Errorf("unsupported export declaration %s", s.Decl)
		}
		l.body = append(l.body, stmt)
		return nil

	case s.Module != nil:
		return l.reexport(s)
	}

	for _, alias := range s.List {
		if alias.Binding == nil {
			continue
		}
		local := alias.Binding
		if alias.Name != nil {
			local = alias.Name
		}
		if !js.AsIdentifierName(local) {
			return fmt.Errorf("export of %s needs a from clause", local)
		}
		name, err := exportName(alias.Binding)
		if err != nil {
			return err
		}
		if err := l.addExport(Export{Name: name, Local: string(local), Dep: -1}); err != nil {
			return err
		}
	}
	return nil
}

func (l *lowerer) exportDefault(decl js.IExpr) error {
	switch d := decl.(type) {
	case *js.FuncDecl:
		if d.Name != nil {
			l.body = append(l.body, d)
			return l.addExport(Export{Name: "default", Local: string(d.Name.Data), Dep: -1})
		}
	case *js.ClassDecl:
		if d.Name != nil {
			l.body = append(l.body, d)
			return l.addExport(Export{Name: "default", Local: string(d.Name.Data), Dep: -1})
		}
	}

	l.body = append(l.body, &js.VarDecl{
		TokenType: js.ConstToken,
		List: []js.BindingElement{{
			Binding: &js.Var{Data: []byte(defaultLocal)},
			Default: decl,
		}},
	})
	return l.addExport(Export{Name: "default", Local: defaultLocal, Dep: -1})
}

func (l *lowerer) reexport(s *js.ExportStmt) error {
	specifier, err := unquote(s.Module)
	if err != nil {
		return err
	}
	dep := l.dep(specifier)

	for _, alias := range s.List {
		if alias.Binding == nil {
			continue
		}
		if alias.Name == nil && isStar(alias.Binding) {
			l.mod.Stars = append(l.mod.Stars, dep)
			continue
		}

		name, err := exportName(alias.Binding)
		if err != nil {
			return err
		}
		e := Export{Name: name, Dep: dep, From: name}
		switch {
		case isStar(alias.Name):
			e.From = "*"
		case alias.Name != nil:
			if e.From, err = exportName(alias.Name); err != nil {
				return err
			}
		}
		if err := l.addExport(e); err != nil {
			return err
		}
	}
	return nil
}

// link points every reference to an imported name at its live accessor and
// checks that local exports name something declared.
func (l *lowerer) link(scope *js.Scope) error {
	declared := make(map[string]bool, len(scope.Declared))
	for _, v := range scope.Declared {
		name := string(v.Data)
		if _, ok := l.access[name]; ok {
			return fmt.Errorf("identifier %q has already been declared by an import", name)
		}
		declared[name] = true
	}

	for _, e := range l.mod.Exports {
		if e.Dep >= 0 || e.Local == defaultLocal {
			continue
		}
		if _, ok := l.access[e.Local]; !ok && !declared[e.Local] {
			return fmt.Errorf("export %q refers to undeclared %q", e.Name, e.Local)
		}
	}

	for _, v := range scope.Undeclared {
		if v.Decl != js.NoDecl {
			continue
		}
		if expr, ok := l.access[string(v.Data)]; ok {
			v.Data = []byte(expr)
		}
	}
	return nil
}

func (l *lowerer) bindLocal(local, expr string) error {
	if _, ok := l.access[local]; ok {
		return fmt.Errorf("duplicate import of %q", local)
	}
	l.access[local] = expr
	return nil
}

func (l *lowerer) addExport(e Export) error {
	if l.names[e.Name] {
		return fmt.Errorf("duplicate export of %q", e.Name)
	}
	l.names[e.Name] = true
	l.mod.Exports = append(l.mod.Exports, e)
	return nil
}

func (l *lowerer) dep(specifier string) int {
	if i, ok := l.deps[specifier]; ok {
		return i
	}
	i := len(l.mod.Imports)
	l.deps[specifier] = i
	l.mod.Imports = append(l.mod.Imports, specifier)
	return i
}

func (l *lowerer) local(name string) string {
	if expr, ok := l.access[name]; ok {
		return expr
	}
	return name
}

func (l *lowerer) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "(function (%s, %s, %s, %s, %s, %s) {",
		ParamNamespace, ParamDeps, ParamPartial, ParamRuntime, ParamImport, ParamMeta)
	b.WriteString(l.prologue())
	for _, stmt := range l.body {
		b.WriteString("\n")
		stmt.JS(&b)
		if _, ok := stmt.(*js.VarDecl); ok {
			b.WriteString(";")
		}
	}
	b.WriteString("\n})")
	return b.String()
}

// prologue binds the namespace getters, then checks that every imported name
// exists in dependencies that have finished evaluating.
func (l *lowerer) prologue() string {
	var b strings.Builder
	b.WriteString(`"use strict";`)

	for _, e := range l.mod.Exports {
		get := l.local(e.Local)
		switch {
		case e.Dep < 0:
		case e.From == "*":
			get = fmt.Sprintf("%s[%d]", ParamDeps, e.Dep)
		default:
			get = member(e.Dep, e.From)
		}
		fmt.Fprintf(&b, "%s.bind(%s, %q, function () { return %s; });",
			ParamRuntime, ParamNamespace, e.Name, get)
	}
	for _, dep := range l.mod.Stars {
		fmt.Fprintf(&b, "%s.star(%s, %s[%d]);", ParamRuntime, ParamNamespace, ParamDeps, dep)
	}

	for _, imp := range l.mod.Bindings {
		if imp.Default != "" {
			l.check(&b, imp.Dep, "default")
		}
		for _, n := range imp.Named {
			l.check(&b, imp.Dep, n.Name)
		}
	}
	for _, e := range l.mod.Exports {
		if e.Dep >= 0 && e.From != "*" {
			l.check(&b, e.Dep, e.From)
		}
	}
	return b.String()
}

func (l *lowerer) check(b *strings.Builder, dep int, name string) {
	fmt.Fprintf(b, "%s.check(%s[%d], %q, %s[%d], %q);",
		ParamRuntime, ParamDeps, dep, name, ParamPartial, dep, l.mod.Imports[dep])
}

// member is the accessor expression for export name of dependency dep.
func member(dep int, name string) string {
	if js.AsIdentifierName([]byte(name)) {
		return fmt.Sprintf("%s[%d].%s", ParamDeps, dep, name)
	}
	return fmt.Sprintf("%s[%d][%s]", ParamDeps, dep, strconv.Quote(name))
}

func declNames(decl js.IExpr) ([]string, error) {
	switch d := decl.(type) {
	case *js.VarDecl:
		var names []string
		for _, el := range d.List {
			names = bindingNames(el.Binding, names)
		}
		return names, nil
	case *js.FuncDecl:
		if d.Name != nil {
			return []string{string(d.Name.Data)}, nil
		}
	case *js.ClassDecl:
		if d.Name != nil {
			return []string{string(d.Name.Data)}, nil
		}
	}
	return nil, fmt.Errorf("exported declaration %s has no name", decl)
}

func bindingNames(b js.IBinding, names []string) []string {
	switch b := b.(type) {
	case *js.Var:
		names = append(names, string(b.Data))
	case *js.BindingArray:
		for _, el := range b.List {
			names = bindingNames(el.Binding, names)
		}
		if b.Rest != nil {
			names = bindingNames(b.Rest, names)
		}
	case *js.BindingObject:
		for _, item := range b.List {
			names = bindingNames(item.Value.Binding, names)
		}
		if b.Rest != nil {
			names = append(names, string(b.Rest.Data))
		}
	}
	return names
}

func isStar(b []byte) bool {
	return len(b) == 1 && b[0] == '*'
}

// exportName returns an import or export name, which is either an
// identifier name or a string literal.
func exportName(b []byte) (string, error) {
	if len(b) > 0 && (b[0] == '"' || b[0] == '\'') {
		return unquote(b)
	}
	return string(b), nil
}

// unquote decodes a JavaScript string literal.
func unquote(raw []byte) (string, error) {
	s := string(raw)
	if len(s) < 2 || s[0] != s[len(s)-1] || (s[0] != '"' && s[0] != '\'') {
		return "", fmt.Errorf("invalid string literal %s", s)
	}
	inner := s[1 : len(s)-1]
	if !strings.Contains(inner, `\`) {
		return inner, nil
	}
	if s[0] == '\'' {
		inner = strings.ReplaceAll(inner, `\'`, `'`)
		inner = strings.ReplaceAll(inner, `"`, `\"`)
	}
	out, err := strconv.Unquote(`"` + inner + `"`)
	if err != nil {
		return "", fmt.Errorf("invalid string literal %s: %w", s, err)
	}
	return out, nil
}
