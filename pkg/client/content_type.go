package client

import (
	"mime"
	"regexp"
)

// jsonMediaType matches "application/json" and structured syntax suffixes, such as "application/problem+json".
var jsonMediaType = regexp.MustCompile(`^application/([a-z0-9.\-]+\+)?json$`)

// isJSONContentType ignores parameters, such as charset, and the case.
func isJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && jsonMediaType.MatchString(mediaType)
}
