// Package compile turns a resolved statement into an executable descriptor:
// a rewritten SQL template, a bound-parameter builder, and, for read
// statements, a row mapper shared per result shape.
//
// Compilation is single-pass and synchronous. The only state that outlives
// one call is the mapper registry on Context, which the caller owns and
// passes explicitly; nothing in this package is process-global.
package compile
