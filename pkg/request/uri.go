package request

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

// URIError is returned by ParseURI if the input is not a valid URI reference.
type URIError struct {
	Input  string
	Index  int // byte offset of the invalid character, -1 if the error is not related to a single character
	Reason string
	Err    error
}

func (e *URIError) Error() string {
	var out strings.Builder
	out.WriteString(fmt.Sprintf(`uri "%s" is not valid: %s`, e.Input, e.Reason))
	if e.Index >= 0 {
		out.WriteString(fmt.Sprintf(" at index %d", e.Index))
	}
	if e.Err != nil {
		out.WriteString(": ")
		out.WriteString(e.Err.Error())
	}
	return out.String()
}

func (e *URIError) Unwrap() error {
	return e.Err
}

// ParseURI parses a RFC 3986 URI reference.
//
// The parsing is stricter than url.Parse, the input is rejected if it contains
// spaces, control characters, characters outside the URI character set, for example "<>\"{}|\\^`",
// a malformed percent-encoding, brackets outside an IP literal host or a second "#".
// Non-ASCII letters are accepted.
func ParseURI(s string) (*url.URL, error) {
	if index, reason := invalidURIChar(s); index >= 0 {
		return nil, &URIError{Input: s, Index: index, Reason: reason}
	}
	u, err := url.Parse(s)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, &URIError{Input: s, Index: -1, Reason: "cannot parse", Err: err}
	}
	return u, nil
}

// MustParseURI is like ParseURI but panics on error.
// It is intended for URI constants.
func MustParseURI(s string) *url.URL {
	u, err := ParseURI(s)
	if err != nil {
		panic(err)
	}
	return u
}

// invalidURIChar returns index of the first invalid character and the reason, or -1.
func invalidURIChar(s string) (int, string) {
	authorityStart, authorityEnd := authorityBounds(s)
	fragment := false
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			return i, "invalid UTF-8"
		case r == '%':
			if i+2 >= len(s) || !isHex(s[i+1]) || !isHex(s[i+2]) {
				return i, "malformed escape"
			}
		case r == '#':
			if fragment {
				return i, "illegal character in fragment"
			}
			fragment = true
		case r == '[' || r == ']':
			if i < authorityStart || i >= authorityEnd {
				return i, "illegal character"
			}
		case r >= utf8.RuneSelf:
			if unicode.IsSpace(r) || unicode.IsControl(r) {
				return i, "illegal character"
			}
		case !isURIChar(byte(r)):
			return i, "illegal character"
		}
		i += size
	}
	return -1, ""
}

// authorityBounds returns byte range of the authority component, if any.
func authorityBounds(s string) (int, int) {
	start := 0
	if i := strings.IndexByte(s, ':'); i > 0 && isScheme(s[:i]) {
		start = i + 1
	}
	if !strings.HasPrefix(s[start:], "//") {
		return -1, -1
	}
	start += 2
	end := len(s)
	if i := strings.IndexAny(s[start:], "/?#"); i >= 0 {
		end = start + i
	}
	return start, end
}

func isScheme(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case i > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return s != ""
}

func isURIChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	default:
		// unreserved, gen-delims and sub-delims
		return strings.IndexByte("-._~:/?@!$&'()*+,;=", c) >= 0
	}
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}
