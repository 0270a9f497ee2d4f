package oauth

import "regexp"

// Character-class validation for request parameters, following the grammar
// in RFC 6749 appendix A.
var (
	ncharPattern   = regexp.MustCompile(`^[\-._a-zA-Z0-9]+$`)
	nqscharPattern = regexp.MustCompile(`^[\x20-\x21\x23-\x5B\x5D-\x7E]+$`)
	vscharPattern  = regexp.MustCompile(`^[\x20-\x7E]+$`)
	ucharPattern   = regexp.MustCompile(`^[\x09\x20-\x7E\x{0080}-\x{D7FF}\x{E000}-\x{FFFD}\x{10000}-\x{10FFFF}]+$`)
	uriPattern     = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]+:`)
)

// isNchar reports whether the value contains only name characters
// (alphanumerics, hyphen, dot, underscore). Used for grant type names.
func isNchar(value string) bool {
	return ncharPattern.MatchString(value)
}

// isNqschar reports whether the value contains only printable ASCII
// excluding quote and backslash. Used for scope values.
func isNqschar(value string) bool {
	return nqscharPattern.MatchString(value)
}

// isVschar reports whether the value contains only visible ASCII.
// Used for client credentials, codes and state.
func isVschar(value string) bool {
	return vscharPattern.MatchString(value)
}

// isUchar reports whether the value contains only unicode characters
// excluding carriage return and line feed. Used for user credentials.
func isUchar(value string) bool {
	return ucharPattern.MatchString(value)
}

// isURI reports whether the value starts with a URI scheme.
func isURI(value string) bool {
	return uriPattern.MatchString(value)
}
