package classify

import "strings"

// Category is the failure taxonomy. Every failure maps to exactly one.
type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategoryNotFound       Category = "not_found"
	CategoryRateLimit      Category = "rate_limit"
	CategoryServerError    Category = "server_error"
	CategoryNetworkError   Category = "network_error"
	CategoryValidation     Category = "validation_error"
	CategoryUnknown        Category = "unknown"
)

// Categories lists every category in declaration order.
var Categories = []Category{
	CategoryAuthentication,
	CategoryAuthorization,
	CategoryNotFound,
	CategoryRateLimit,
	CategoryServerError,
	CategoryNetworkError,
	CategoryValidation,
	CategoryUnknown,
}

// Upper returns the category in the form used by log lines, e.g. RATE_LIMIT.
func (c Category) Upper() string {
	return strings.ToUpper(string(c))
}

// Retryable reports whether automated retry is ever appropriate for c.
func (c Category) Retryable() bool {
	switch c {
	case CategoryRateLimit, CategoryServerError, CategoryNetworkError:
		return true
	default:
		return false
	}
}

// Severity derives the severity from the category alone.
func (c Category) Severity() Severity {
	switch c {
	case CategoryAuthentication:
		return SeverityCritical
	case CategoryAuthorization, CategoryServerError, CategoryNetworkError:
		return SeverityHigh
	case CategoryValidation:
		return SeverityLow
	default:
		// not_found, rate_limit, unknown
		return SeverityMedium
	}
}

// Severity is ordered: Low < Medium < High < Critical.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns a human-readable severity name.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText renders the severity by name in JSON and YAML output.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
