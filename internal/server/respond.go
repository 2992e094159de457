package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/Tyrowin/hangout/internal/platform/errors"
)

const maxRequestBytes = 64 << 10

// errorBody is the JSON shape of every API error.
type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}

// writeError maps err onto a status code and error body. Errors without a
// code are reported as 500 with a generic message.
func writeError(w http.ResponseWriter, span trace.Span, err error) {
	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		log.Printf("Internal error serving request: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: "internal error", Code: string(apperrors.CodeUnknown)})
		return
	}
	if appErr.Code == apperrors.CodeUnavailable || appErr.Code == apperrors.CodeUnknown {
		log.Printf("Request failed: %v", err)
	}
	writeJSON(w, appErr.Code.HTTPStatus(), errorBody{
		Message: appErr.Message,
		Code:    string(appErr.Code),
		Field:   appErr.Field,
	})
}

// decodeJSON reads a bounded JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.New(apperrors.CodeInvalidArgument, "request body is required")
		}
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "request body is not valid JSON", err)
	}
	return nil
}
