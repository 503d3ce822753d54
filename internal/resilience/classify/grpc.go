package classify

import (
	"fmt"
	"math"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fromGRPC maps a gRPC status error onto the same taxonomy as HTTP failures.
// StatusCode stays 0 since there is no HTTP status.
func fromGRPC(err error) (Failure, bool) {
	st, ok := status.FromError(err)
	if !ok || st == nil {
		return Failure{}, false
	}

	msg := fmt.Sprintf("grpc %s: %s", st.Code(), st.Message())

	switch st.Code() {
	case codes.Unauthenticated:
		return newFailure(CategoryAuthentication, 0, msg, err), true
	case codes.PermissionDenied:
		return newFailure(CategoryAuthorization, 0, msg, err), true
	case codes.NotFound:
		return newFailure(CategoryNotFound, 0, msg, err), true
	case codes.ResourceExhausted:
		f := newFailure(CategoryRateLimit, 0, msg, err)
		f.RetryAfter = grpcRetryDelay(st)
		return f, true
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		f := newFailure(CategoryValidation, 0, msg, err)
		if detail := grpcFieldViolations(st); detail != "" {
			f.UserMessage = detail
		}
		return f, true
	case codes.Unavailable, codes.Internal, codes.DataLoss, codes.Aborted:
		return newFailure(CategoryServerError, 0, msg, err), true
	case codes.DeadlineExceeded:
		return newFailure(CategoryNetworkError, 0, msg, err), true
	default:
		return newFailure(CategoryUnknown, 0, msg, err), true
	}
}

func grpcRetryDelay(st *status.Status) *int {
	for _, d := range st.Details() {
		info, ok := d.(*errdetails.RetryInfo)
		if !ok || info.GetRetryDelay() == nil {
			continue
		}
		delay := info.GetRetryDelay().AsDuration()
		if delay < 0 {
			return nil
		}
		secs := int(math.Ceil(delay.Seconds()))
		return &secs
	}
	return nil
}

func grpcFieldViolations(st *status.Status) string {
	var msgs []string
	for _, d := range st.Details() {
		br, ok := d.(*errdetails.BadRequest)
		if !ok {
			continue
		}
		for _, v := range br.GetFieldViolations() {
			if v.GetDescription() != "" {
				msgs = append(msgs, v.GetDescription())
			}
		}
	}
	return strings.Join(msgs, ", ")
}
