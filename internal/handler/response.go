package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/carecrypt/carecrypt-server/internal/errors"
	"github.com/carecrypt/carecrypt-server/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	httputil.WriteMessage(w, status, message)
}

// decodeJSON reads the request body into dst. An empty body leaves dst
// untouched so missing fields surface as validation errors.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.ValidationError("Invalid request body")
	}
	return nil
}
