package httpx

import (
	"errors"
	"net/http"

	"github.com/target/opsdesk/internal/domain/model"
	apperrors "github.com/target/opsdesk/internal/errors"
)

// WriteServiceError maps a service error onto a status code and error code.
func WriteServiceError(w http.ResponseWriter, err error) {
	code, errCode := classifyError(err)
	WriteError(w, ErrorParams{Code: code, ErrCode: errCode, Err: err, Field: apperrors.GetField(err)})
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrJobNotFound),
		errors.Is(err, model.ErrRunNotFound),
		errors.Is(err, model.ErrSnapshotNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrJobInactive):
		return http.StatusConflict, "job_inactive"
	case errors.Is(err, model.ErrJobBusy):
		return http.StatusConflict, "job_busy"
	case errors.Is(err, model.ErrRunNotOpen):
		return http.StatusConflict, "run_not_open"
	}

	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		return status, "internal"
	}
	return status, string(apperrors.GetCode(err))
}
