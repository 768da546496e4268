// Package jsonpath evaluates JSONPath expressions against JSON documents.
//
// Supported syntax:
//   - $                  the root document
//   - .name, ['name']    child members (a bracket may list several names)
//   - [0], [-1], [0,2]   array indexes, negative from the end
//   - [1:3], [:2]        array slices
//   - .*, [*]            every member or element
//   - ..name, ..[0]      recursive descent
//   - [?(@.price < 10)]  filters with == != < <= > >= and bare existence [?(@.id)]
//
// Documents are traversed as gjson results, so the input is never decoded
// into Go values beyond the matches that are returned.
package jsonpath
