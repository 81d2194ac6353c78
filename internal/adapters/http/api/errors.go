package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/matchloop/internal/domain/fault"
	"github.com/okian/matchloop/pkg/metrics"
)

// ErrBadRequest marks input the handler itself could not parse.
var ErrBadRequest = errors.New("bad request")

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// WrapKind tags err with op and a sentinel kind.
func WrapKind(op string, kind, err error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// classify maps an error onto a status code and a stable error code.
func classify(err error) (int, string) {
	if errors.Is(err, ErrBadRequest) {
		return http.StatusBadRequest, "bad_request"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "timeout"
	}
	switch kind := fault.KindOf(err); kind {
	case fault.KindValidation:
		return http.StatusBadRequest, string(kind)
	case fault.KindNotFound:
		return http.StatusNotFound, string(kind)
	case fault.KindStore:
		return http.StatusServiceUnavailable, string(kind)
	case fault.KindInsufficientData:
		return http.StatusUnprocessableEntity, string(kind)
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := http.StatusText(status)
	if status < http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		msg = err.Error()
	}
	if status >= http.StatusInternalServerError {
		metrics.RecordErrorByComponent("http", code)
	}
	writeJSON(w, status, errorResponse{
		Code:      code,
		Message:   msg,
		Retryable: fault.IsRetryable(err),
	})
}
