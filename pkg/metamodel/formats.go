package metamodel

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// FormatValidator is a function that validates a string format
type FormatValidator func(value string) bool

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// validateEmail validates email format (RFC 5322 basic validation)
func validateEmail(email string) bool {
	return email != "" && emailPattern.MatchString(email)
}

// validateURI validates URI format (basic HTTP/HTTPS/FTP check)
func validateURI(uri string) bool {
	if uri == "" {
		return false
	}
	return strings.HasPrefix(uri, "http://") ||
		strings.HasPrefix(uri, "https://") ||
		strings.HasPrefix(uri, "ftp://")
}

func validateUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
