package logging

import (
	"regexp"
)

const (
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Pattern to match token query parameters on lookup-service URLs
	tokenPattern = regexp.MustCompile(`(?i)(token|api[_-]?key)=[^;&\s]+`)

	// Pattern to match connection string credentials (user:pass@host format)
	connStringPattern = regexp.MustCompile(`://[^:/]+:[^@]+@[^/\s]+`)

	// Pattern to match password values in key=value form
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)
)

// SanitizeURL removes the API token from a lookup-service URL before it is
// logged or persisted to the log collection.
func SanitizeURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	sanitized := tokenPattern.ReplaceAllString(rawURL, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeParams redacts token values in a request parameter map, returning a
// copy safe for logging.
func SanitizeParams(params map[string]string) map[string]string {
	if params == nil {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		switch k {
		case "token", "api_key", "apikey":
			out[k] = RedactedText
		default:
			out[k] = v
		}
	}
	return out
}

// SanitizeError sanitizes error messages that might contain sensitive data.
// Use this before logging any error from store or lookup-service operations.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := tokenPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = passwordPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}
