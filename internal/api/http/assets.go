package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-exams/internal/storage"
)

// MountAttachments serves GET /* -> {"url": "..."} for an attachment id.
func MountAttachments(r chi.Router, res storage.Resolver) {
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		u, err := res.SignedURL(key)
		if errors.Is(err, storage.ErrBadKey) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"key": key, "url": u})
	})
}
