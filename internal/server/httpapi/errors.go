package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   []string  `json:"details,omitempty"`
}

func statusOf(kind string) int {
	switch kind {
	case common.KindUnauthorized:
		return http.StatusUnauthorized
	case common.KindForbidden:
		return http.StatusForbidden
	case common.KindConflict:
		return http.StatusConflict
	case common.KindInvalidInput:
		return http.StatusBadRequest
	case common.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err without its cause. Internal failures are logged
// with the cause.
func writeError(ctx context.Context, w http.ResponseWriter, logger logging.Logger, err error) {
	kind := common.KindOf(err)
	status := statusOf(kind)

	resp := ErrorResponse{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Code:      kind,
		Message:   common.MessageOf(err),
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		resp.Code = common.KindInvalidInput
		resp.Status = http.StatusBadRequest
		resp.Message = "validation failed"
		resp.Details = validationDetails(verrs)
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		logger.Error(ctx, "request failed", "error", err)
	}
	writeJSON(w, status, resp)
}

func validationDetails(verrs validation.Errors) []string {
	details := make([]string, 0, len(verrs))
	for field, err := range verrs {
		details = append(details, field+": "+err.Error())
	}
	sort.Strings(details)
	return details
}
