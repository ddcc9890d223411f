/*
Package esm lowers ES module source so it can run on a script engine without
native module support.

Lower lifts every static import and export statement out of the body and
returns the module as a function expression:

	(function (__ns, __deps, __partial, __rt, __import, __meta) { ... })

Exports become getters on __ns, so they stay live and reading one before its
declaration has run throws like any uninitialised binding. Every reference to
an imported name is rewritten to read the dependency namespace in __deps, so
imports are live too: a module sees updates its dependencies make after the
import ran. Lowering works on the parsed syntax tree, so statements may share
a line and text inside strings, templates, regular expressions and comments is
never touched. Comments are dropped and the body is re-printed, so line
numbers in stack traces refer to the lowered source.

Supported forms:

	import def from "./a.js"
	import * as ns from "./a.js"
	import { a, b as c } from "./a.js"
	import "./a.js"
	export const|let|var name = ..., { a, b: [c] } = ...
	export [async] function [*] name() {}
	export class Name {}
	export { a, b as c }
	export { a, b as c } from "./a.js"
	export * from "./a.js"
	export * as ns from "./a.js"
	export default ...
	import("./a.js")
	import.meta

Top-level await is not supported.
*/
package esm
