// Package sqlast defines the resolved input handed to the statement
// compiler: a SQL source text plus its placeholder catalog.
//
// Catalogs are produced upstream, by whatever resolves raw query documents
// (the manifest scanner in this repo, or an external SQL frontend). The
// compiler consumes them without re-parsing the SQL text.
package sqlast
