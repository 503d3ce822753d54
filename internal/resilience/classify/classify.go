// Package classify turns raw call failures into a structured classification:
// category, severity, retryability and user-facing message.
//
// Classify is a pure function of the failure's observable shape. It never
// panics and never returns a category outside the closed set.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"syscall"
)

// Classify inspects err and returns its classification.
func Classify(err error) Failure {
	if err == nil {
		return newFailure(CategoryUnknown, 0, "unknown error", nil)
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr != nil {
		if httpErr.Response == nil {
			return newFailure(CategoryNetworkError, 0, err.Error(), err)
		}
		return fromResponse(httpErr.Response, err)
	}

	if f, ok := fromGRPC(err); ok {
		return f
	}

	if isNetworkError(err) {
		return newFailure(CategoryNetworkError, 0, err.Error(), err)
	}

	return newFailure(CategoryUnknown, 0, err.Error(), err)
}

// ClassifyStatus classifies a bare status code with no headers or body.
func ClassifyStatus(status int) Failure {
	return fromResponse(&Response{StatusCode: status}, nil)
}

func fromResponse(resp *Response, err error) Failure {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	status := resp.StatusCode

	switch {
	case status == 401:
		return newFailure(CategoryAuthentication, status, msg, err)
	case status == 403:
		return newFailure(CategoryAuthorization, status, msg, err)
	case status == 404:
		return newFailure(CategoryNotFound, status, msg, err)
	case status == 429:
		f := newFailure(CategoryRateLimit, status, msg, err)
		f.RetryAfter = parseRetryAfter(resp.headerValue("Retry-After"))
		return f
	case status == 400 || status == 422:
		f := newFailure(CategoryValidation, status, msg, err)
		if detail := validationDetail(resp.Body); detail != "" {
			f.UserMessage = detail
		}
		return f
	case status >= 500:
		return newFailure(CategoryServerError, status, msg, err)
	default:
		return newFailure(CategoryUnknown, status, msg, err)
	}
}

// parseRetryAfter accepts a non-negative integer second count only.
func parseRetryAfter(v string) *int {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return nil
	}
	return &secs
}

// validationDetail extracts the "detail" field of a JSON error body. It may be
// a single string or an array of {msg|message} objects.
func validationDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var single string
	if err := json.Unmarshal(envelope.Detail, &single); err == nil {
		return strings.TrimSpace(single)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(envelope.Detail, &items); err != nil {
		return ""
	}

	msgs := make([]string, 0, len(items))
	for _, item := range items {
		var fieldErr struct {
			Msg     string `json:"msg"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(item, &fieldErr); err != nil {
			continue
		}
		switch {
		case fieldErr.Msg != "":
			msgs = append(msgs, fieldErr.Msg)
		case fieldErr.Message != "":
			msgs = append(msgs, fieldErr.Message)
		}
	}
	return strings.Join(msgs, ", ")
}

func isNetworkError(err error) bool {
	// The caller gave up; that is not a connectivity problem.
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
