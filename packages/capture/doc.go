// Package capture extracts named values from HTTP responses so later steps of
// the same execution can reference them as {{name}}.
//
// Values can come from a response header, the body (whole or by dotted path
// such as data.items[0].id) or the first match of a JSONPath expression.
package capture
