package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/yourorg/saasforge/internal/apperr"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into v. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.InvalidOperation("Request body is required")
		}
		return apperr.InvalidOperation("Invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	apperr.WriteJSON(w, status, v)
}
