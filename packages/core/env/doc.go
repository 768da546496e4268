// Package env substitutes {{name}} placeholders in request definitions.
//
// Substitution walks strings, header maps, objects and arrays, replacing each
// placeholder with the stringified variable value. A placeholder whose name is
// not a variable is tried as a builtin call such as {{uuid()}} and otherwise left
// as literal text. Replacement output is never rescanned.
//
// The package also reads dotenv files used to seed execution variables.
package env
