package classify

import (
	"fmt"
	"log/slog"
	"net/http"
)

// Failure is the classification of a single failed call.
// It is produced by Classify and never modified afterwards.
type Failure struct {
	Category Category
	Severity Severity

	// Message is for logs, never for end users.
	Message string

	// UserMessage is safe to show to end users.
	UserMessage string

	// StatusCode is the transport status, 0 when no response was received.
	StatusCode int

	Retryable bool

	// RetryAfter is the server-suggested wait in seconds. Only set for
	// rate_limit failures that carried a hint; nil otherwise.
	RetryAfter *int

	// Err is the raw failure, kept for logging. Never re-interpreted.
	Err error
}

// HasStatus reports whether the failure carries a transport status code.
func (f Failure) HasStatus() bool {
	return f.StatusCode != 0
}

// RetryAfterSeconds returns the retry hint and whether one was supplied.
func (f Failure) RetryAfterSeconds() (int, bool) {
	if f.RetryAfter == nil {
		return 0, false
	}
	return *f.RetryAfter, true
}

// LogValue implements slog.LogValuer.
func (f Failure) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("category", string(f.Category)),
		slog.String("severity", f.Severity.String()),
		slog.Bool("retryable", f.Retryable),
		slog.String("message", f.Message),
	}
	if f.HasStatus() {
		attrs = append(attrs, slog.Int("status", f.StatusCode))
	}
	if secs, ok := f.RetryAfterSeconds(); ok {
		attrs = append(attrs, slog.Int("retry_after", secs))
	}
	return slog.GroupValue(attrs...)
}

// String implements fmt.Stringer for debugging.
func (f Failure) String() string {
	if f.HasStatus() {
		return fmt.Sprintf("%s (%s) HTTP %d: %s", f.Category, f.Severity, f.StatusCode, f.Message)
	}
	return fmt.Sprintf("%s (%s): %s", f.Category, f.Severity, f.Message)
}

var defaultUserMessages = map[Category]string{
	CategoryAuthentication: "Your session has expired. Please log in again.",
	CategoryAuthorization:  "You don't have permission to perform this action.",
	CategoryNotFound:       "The requested resource was not found.",
	CategoryRateLimit:      "Too many requests. Please wait a moment and try again.",
	CategoryServerError:    "The server encountered an error. Please try again later.",
	CategoryNetworkError:   "Unable to reach the server. Please check your connection and try again.",
	CategoryValidation:     "Invalid input. Please check your data and try again.",
	CategoryUnknown:        "Something went wrong. We're sorry for the inconvenience.",
}

// DefaultUserMessage returns the generic end-user message for c.
func DefaultUserMessage(c Category) string {
	if msg, ok := defaultUserMessages[c]; ok {
		return msg
	}
	return defaultUserMessages[CategoryUnknown]
}

func newFailure(c Category, status int, message string, err error) Failure {
	if message == "" {
		message = http.StatusText(status)
	}
	if message == "" {
		message = "unknown error"
	}
	return Failure{
		Category:    c,
		Severity:    c.Severity(),
		Message:     message,
		UserMessage: DefaultUserMessage(c),
		StatusCode:  status,
		Retryable:   c.Retryable(),
		Err:         err,
	}
}
