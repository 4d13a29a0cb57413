package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-shop-checkout/internal/auth"
	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOK writes {ok:true, ...body}.
func writeOK(w http.ResponseWriter, code int, body map[string]any) {
	if body == nil {
		body = map[string]any{}
	}
	body["ok"] = true
	writeJSON(w, code, body)
}

// writeError writes {ok:false, error:code, ...extra}.
func writeError(w http.ResponseWriter, status int, code string, extra map[string]any) {
	body := map[string]any{"ok": false, "error": code}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}

// decodeJSON reads an optional JSON body: an empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// requireUser answers 401 and returns ok=false for anonymous requests.
func requireUser(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", nil)
	}
	return id, ok
}

func int64Param(r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return v, err == nil && v > 0
}
