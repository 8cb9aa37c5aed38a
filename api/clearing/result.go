package clearing

import (
	"net/http"

	"github.com/kilianp07/gridmarket/core/model"
)

// ResultSource exposes the last cleared interval.
type ResultSource interface {
	Result() model.ClearingResult
}

// NewResultHandler serves the last clearing result via GET /api/clearing/result.
// It answers 204 until a first interval has been cleared.
func NewResultHandler(src ResultSource, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r, token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		res := src.Result()
		if res.IntervalID == "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, res)
	})
}
