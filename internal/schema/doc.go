// Package schema holds the declarative table and result-shape descriptors
// consumed by the statement compiler.
//
// Descriptors are built with an explicit builder API at definition time.
// There is no code-generation step: a Table or Shape value is complete as
// soon as Build returns it.
package schema
