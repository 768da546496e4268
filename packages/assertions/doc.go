// Package assertions evaluates declarative assertions against an HTTP response.
//
// An assertion reads one attribute of the response (status, a header, the body
// or a sub-value of it, a JSONPath match, or the response time) and applies an
// operator to it. Evaluation never fails the caller: problems such as a missing
// header name or an invalid regular expression become a failed result with an
// "Error:" message.
package assertions
