// Package audit checks a module tree ahead of time. It runs every static
// import, and every dynamic import with a literal specifier, through the
// same resolution pipeline the loader uses, without evaluating any module.
package audit
