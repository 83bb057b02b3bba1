package lamapi

import (
	"fmt"
	"net/url"
	"path"
)

// Endpoint paths on the lookup service. All of them are parameterized by the
// base URL and require the token parameter.
const (
	pathLookup            = "lookup/entity-retrieval"
	pathLabels            = "entity/labels"
	pathTypes             = "entity/types"
	pathObjects           = "entity/objects"
	pathPredicates        = "entity/predicates"
	pathLiterals          = "entity/literals"
	pathColumnAnalysis    = "classify/column-analysis"
	pathLiteralRecognizer = "classify/literal-recognizer"
)

// buildURL constructs an endpoint URL by parsing the base and joining path
// segments.
func buildURL(baseURL string, pathSegments ...string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	segments := append([]string{u.Path}, pathSegments...)
	u.Path = path.Join(segments...)

	return u.String(), nil
}
