// Package builtin provides the functions that can be called from a
// placeholder, for example {{uuid()}} or {{randomString(8)}}.
//
// Available functions:
//   - uuid(): random UUID v4
//   - now(): current time in RFC 3339, UTC
//   - timestamp(): current Unix timestamp in seconds
//   - timestampMs(): current Unix timestamp in milliseconds
//   - randomString(length): random alphanumeric string, 16 characters by default
//   - base64(value): standard base64 encoding of value
package builtin
