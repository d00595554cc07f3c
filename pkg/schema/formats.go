package schema

import (
	"regexp"
	"strings"
)

// FormatValidator is a function that validates a string format
type FormatValidator func(value string) bool

var (
	emailRe    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	uuidRe     = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	dateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	datetimeRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(Z|[+-]\d{2}:\d{2})$`)
)

// validateEmail validates email format (RFC 5322 basic validation)
func validateEmail(email string) bool {
	return email != "" && emailRe.MatchString(email)
}

// validateURI validates URI format (basic scheme check)
func validateURI(uri string) bool {
	if uri == "" {
		return false
	}
	return strings.HasPrefix(uri, "http://") ||
		strings.HasPrefix(uri, "https://") ||
		strings.HasPrefix(uri, "ftp://") ||
		strings.HasPrefix(uri, "ws://") ||
		strings.HasPrefix(uri, "wss://")
}

// validateUUID validates UUID format (accepts v1-v5)
func validateUUID(uuid string) bool {
	return uuid != "" && uuidRe.MatchString(strings.ToLower(uuid))
}

// validateDate validates ISO 8601 date format (YYYY-MM-DD)
func validateDate(date string) bool {
	return date != "" && dateRe.MatchString(date)
}

// validateDateTime validates ISO 8601 datetime format, e.g.
// 2025-01-09T10:30:00Z or 2025-01-09T10:30:00+00:00
func validateDateTime(datetime string) bool {
	return datetime != "" && datetimeRe.MatchString(datetime)
}

// GetFormatValidator returns a built-in format validator by name
func GetFormatValidator(format string) (FormatValidator, bool) {
	validators := map[string]FormatValidator{
		"email":    validateEmail,
		"uri":      validateURI,
		"uuid":     validateUUID,
		"date":     validateDate,
		"datetime": validateDateTime,
	}

	validator, exists := validators[format]
	return validator, exists
}
