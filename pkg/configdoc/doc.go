// Package configdoc implements the line-oriented configuration document
// model used by the plugin runtime: ordered lines that are either section
// headers, comments, blanks, or key=value pairs. Documents preserve unknown
// content byte-for-byte across parse/serialize cycles, and setting updates
// are idempotent upserts. The package also parses plugin manifests, which
// share the same line model.
package configdoc
