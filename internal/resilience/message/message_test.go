package message

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/callguard/internal/resilience/breaker"
	"github.com/vietddude/callguard/internal/resilience/classify"
)

func rateLimited(secs string) classify.Failure {
	h := http.Header{}
	if secs != "" {
		h.Set("Retry-After", secs)
	}
	return classify.Classify(&classify.HTTPError{
		Method:   http.MethodGet,
		URL:      "https://api.example.com/feeds",
		Response: &classify.Response{StatusCode: 429, Header: h},
	})
}

func TestFormat_EveryCategoryIsPresentable(t *testing.T) {
	for _, c := range classify.Categories {
		b := Format(classify.Failure{Category: c, Severity: c.Severity(), Retryable: c.Retryable()})
		assert.NotEmpty(t, b.Title, c)
		assert.NotEmpty(t, b.Message, c)
		assert.NotEmpty(t, b.Action, c)
		assert.NotEmpty(t, b.Icon, c)
		assert.Equal(t, c.Retryable(), b.Retryable, c)
	}
}

func TestFormat_PrefersClassifierMessage(t *testing.T) {
	f := classify.Classify(&classify.HTTPError{
		Response: &classify.Response{StatusCode: 422, Body: []byte(`{"detail":"email is invalid"}`)},
	})

	b := Format(f)

	assert.Equal(t, "Invalid Input", b.Title)
	assert.Equal(t, "email is invalid", b.Message)
	assert.Equal(t, IconInfo, b.Icon)
	assert.False(t, b.Retryable)
}

func TestFormat_FallsBackToTableMessage(t *testing.T) {
	b := Format(classify.Failure{Category: classify.CategoryServerError, Severity: classify.SeverityHigh})
	assert.Equal(t, "The service is having trouble right now.", b.Message)
	assert.Equal(t, IconError, b.Icon)
}

func TestFormat_UnknownCategoryFallsBack(t *testing.T) {
	b := Format(classify.Failure{Category: "teapot"})
	assert.Equal(t, "Something Went Wrong", b.Title)
	assert.Equal(t, "Try Again", b.Action)
}

func TestFormat_RetryAfter(t *testing.T) {
	b := Format(rateLimited("60"))
	require.NotNil(t, b.RetryAfter)
	assert.Equal(t, 60, *b.RetryAfter)
	assert.True(t, b.Retryable)

	assert.Nil(t, Format(rateLimited("")).RetryAfter)
}

func TestFormat_Idempotent(t *testing.T) {
	f := rateLimited("30")
	assert.Equal(t, Format(f), Format(f))

	// The bundle does not alias the failure's hint.
	b := Format(f)
	*b.RetryAfter = 1
	assert.Equal(t, 30, *f.RetryAfter)
}

func TestCountdown(t *testing.T) {
	assert.Equal(t, "Ready to retry", Countdown(0))
	assert.Equal(t, "Ready to retry", Countdown(-4))
	assert.Equal(t, "1 second", Countdown(1))
	assert.Equal(t, "2 seconds", Countdown(2))
	assert.Equal(t, "45 seconds", Countdown(45))
	assert.Equal(t, "2 seconds", CountdownDuration(1100*time.Millisecond))
}

func TestForLogging(t *testing.T) {
	f := classify.Failure{Category: classify.CategoryRateLimit, StatusCode: 429, Message: "slow down"}
	assert.Equal(t, "[RATE_LIMIT] HTTP 429 - slow down", ForLogging(f))

	f = classify.Failure{Category: classify.CategoryNetworkError, Message: "dial tcp: refused"}
	assert.Equal(t, "[NETWORK_ERROR] dial tcp: refused", ForLogging(f))
}

func TestDescribe(t *testing.T) {
	t.Run("circuit open", func(t *testing.T) {
		err := &breaker.OpenError{Endpoint: "billing", RetryIn: 1500 * time.Millisecond}
		b := Describe(err)
		assert.Equal(t, "Service Temporarily Unavailable", b.Title)
		require.NotNil(t, b.RetryAfter)
		assert.Equal(t, 2, *b.RetryAfter)
		assert.Contains(t, b.Message, "2 seconds")
	})

	t.Run("classified failure", func(t *testing.T) {
		b := Describe(errors.New("boom"))
		assert.Equal(t, "Something Went Wrong", b.Title)
		assert.NotContains(t, b.Message, "boom")
	})
}
