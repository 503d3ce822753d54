// Package message renders classified failures into presentation-ready bundles
// and diagnostic strings. It carries no presentation technology.
package message

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vietddude/callguard/internal/resilience/breaker"
	"github.com/vietddude/callguard/internal/resilience/classify"
)

// Icon is a severity marker the UI maps to its own artwork.
type Icon string

const (
	IconInfo     Icon = "info"
	IconWarning  Icon = "warning"
	IconError    Icon = "error"
	IconCritical Icon = "critical"
)

// Bundle is the only contract UI code should depend on.
type Bundle struct {
	Title      string `json:"title"`
	Message    string `json:"message"`
	Action     string `json:"action"`
	Icon       Icon   `json:"icon"`
	Retryable  bool   `json:"retryable"`
	RetryAfter *int   `json:"retry_after,omitempty"`
}

var titles = map[classify.Category]string{
	classify.CategoryAuthentication: "Session Expired",
	classify.CategoryAuthorization:  "Access Denied",
	classify.CategoryNotFound:       "Not Found",
	classify.CategoryRateLimit:      "Too Many Requests",
	classify.CategoryServerError:    "Server Error",
	classify.CategoryNetworkError:   "Connection Problem",
	classify.CategoryValidation:     "Invalid Input",
	classify.CategoryUnknown:        "Something Went Wrong",
}

var messages = map[classify.Category]string{
	classify.CategoryAuthentication: "Please sign in again to continue.",
	classify.CategoryAuthorization:  "You don't have access to this resource.",
	classify.CategoryNotFound:       "We couldn't find what you were looking for.",
	classify.CategoryRateLimit:      "You're doing that too often. Please slow down.",
	classify.CategoryServerError:    "The service is having trouble right now.",
	classify.CategoryNetworkError:   "We couldn't reach the service.",
	classify.CategoryValidation:     "Some of the information you entered isn't valid.",
	classify.CategoryUnknown:        "An unexpected error occurred.",
}

var actions = map[classify.Category]string{
	classify.CategoryAuthentication: "Sign In",
	classify.CategoryAuthorization:  "Go Back",
	classify.CategoryNotFound:       "Go Back",
	classify.CategoryRateLimit:      "Wait and Retry",
	classify.CategoryServerError:    "Try Again",
	classify.CategoryNetworkError:   "Retry",
	classify.CategoryValidation:     "Review Input",
	classify.CategoryUnknown:        "Try Again",
}

var icons = map[classify.Severity]Icon{
	classify.SeverityLow:      IconInfo,
	classify.SeverityMedium:   IconWarning,
	classify.SeverityHigh:     IconError,
	classify.SeverityCritical: IconCritical,
}

// Format maps a classification to its presentation bundle. The classifier's
// own UserMessage wins over the generic table message.
func Format(f classify.Failure) Bundle {
	category := f.Category
	if _, ok := titles[category]; !ok {
		category = classify.CategoryUnknown
	}

	msg := f.UserMessage
	if msg == "" {
		msg = messages[category]
	}

	icon, ok := icons[f.Severity]
	if !ok {
		icon = IconWarning
	}

	b := Bundle{
		Title:     titles[category],
		Message:   msg,
		Action:    actions[category],
		Icon:      icon,
		Retryable: f.Retryable,
	}
	if secs, ok := f.RetryAfterSeconds(); ok {
		b.RetryAfter = &secs
	}
	return b
}

// CircuitOpen renders a short-circuit rejection. It is deliberately outside
// the failure taxonomy: the dependency was never asked.
func CircuitOpen(err *breaker.OpenError) Bundle {
	secs := int(math.Ceil(err.RetryIn.Seconds()))
	if secs < 0 {
		secs = 0
	}
	msg := "This service is recovering from repeated errors. You can try again now."
	if secs > 0 {
		msg = "This service is recovering from repeated errors. Please try again in " + Countdown(secs) + "."
	}
	return Bundle{
		Title:      "Service Temporarily Unavailable",
		Message:    msg,
		Action:     "Wait and Retry",
		Icon:       IconWarning,
		Retryable:  true,
		RetryAfter: &secs,
	}
}

// Describe formats any error returned from a guarded call.
func Describe(err error) Bundle {
	var openErr *breaker.OpenError
	if errors.As(err, &openErr) {
		return CircuitOpen(openErr)
	}
	return Format(classify.Classify(err))
}

// Countdown renders remaining seconds as a short phrase.
func Countdown(seconds int) string {
	switch {
	case seconds <= 0:
		return "Ready to retry"
	case seconds == 1:
		return "1 second"
	default:
		return fmt.Sprintf("%d seconds", seconds)
	}
}

// CountdownDuration is Countdown for a duration, rounding up to whole seconds.
func CountdownDuration(d time.Duration) string {
	return Countdown(int(math.Ceil(d.Seconds())))
}

// ForLogging renders "[CATEGORY] HTTP <code> - <message>", dropping the
// status segment when no status was received.
func ForLogging(f classify.Failure) string {
	if f.HasStatus() {
		return fmt.Sprintf("[%s] HTTP %d - %s", f.Category.Upper(), f.StatusCode, f.Message)
	}
	return fmt.Sprintf("[%s] %s", f.Category.Upper(), f.Message)
}
