package server

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/fableloom/fableloom/pkg/errors"
)

// errorEnvelope is the JSON error shape shared by all endpoints.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	writeJSON(w, statusForCode(code), errorEnvelope{
		Error: errorBody{
			Code:    string(code),
			Message: apperrors.UserMessage(err),
		},
	})
}

// statusForCode maps error codes to HTTP status. Undeveloped content is a
// 422: the request was well-formed, the story just isn't finished there.
func statusForCode(code apperrors.Code) int {
	switch code {
	case apperrors.ErrCodeInvalidInput,
		apperrors.ErrCodeInvalidChoiceText,
		apperrors.ErrCodeInvalidStatus,
		apperrors.ErrCodeInvalidFormat:
		return http.StatusBadRequest
	case apperrors.ErrCodeNotFound,
		apperrors.ErrCodeStoryNotFound,
		apperrors.ErrCodePageNotFound,
		apperrors.ErrCodeChoiceNotFound,
		apperrors.ErrCodePartyNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeContentIncomplete:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeSessionEnded,
		apperrors.ErrCodeNothingToUndo:
		return http.StatusConflict
	case apperrors.ErrCodeSessionExpired:
		return http.StatusGone
	case apperrors.ErrCodePersistence,
		apperrors.ErrCodeTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON request body into v.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInvalidInput, err, "invalid request body")
	}
	return nil
}
