package http

import (
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/octree/models"
	"github.com/segmentio/encoding/json"
)

const (
	ErrTypeBadRequest = "bad_request"
)

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logs.Warn(errors.New("writing response failed").Wrap(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := http.StatusInternalServerError
	errType := errors.Type(err)

	switch errType {
	case models.ErrTypeSceneNotFound, models.ErrTypeObjectNotFound:
		statusCode = http.StatusNotFound

	case models.ErrTypeInvalidArgument, ErrTypeBadRequest:
		statusCode = http.StatusBadRequest
	}

	if statusCode == http.StatusInternalServerError {
		logs.WithTag("method", r.Method).
			WithTag("path", r.URL.Path).
			Error(err)
	} else {
		logs.WithTag("method", r.Method).
			WithTag("path", r.URL.Path).
			Debug(err)
	}

	writeJSON(w, statusCode, ErrorResponse{
		Type:    errType,
		Message: err.Error(),
	})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("decoding request body failed").
			WithType(ErrTypeBadRequest).
			Wrap(err)
	}
	return nil
}
