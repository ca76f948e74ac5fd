package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/openautogroup/lotview/internal/adapters"
	"github.com/openautogroup/lotview/internal/store"
)

const maxBodyBytes = 1 << 20 // 1 MiB

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// writeStoreErr maps store and adapter errors onto the response conventions:
// not-found (including cross-tenant reads) is 404, duplicates are 409,
// invalid input is 400, upstream failures are 502, everything else is 500.
func writeStoreErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeErr(w, http.StatusNotFound, "Not found")
	case errors.Is(err, store.ErrAlreadyExists):
		writeErr(w, http.StatusConflict, "Already exists")
	case errors.Is(err, store.ErrInvalid):
		writeErr(w, http.StatusBadRequest, "Invalid input")
	default:
		var apiErr *adapters.APIError
		if errors.As(err, &apiErr) {
			writeErr(w, http.StatusBadGateway, "Upstream service unavailable")
			return
		}
		writeErr(w, http.StatusInternalServerError, "Internal error")
	}
}

// decodeJSON reads a capped JSON body into dst.
func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

func queryInt(r *http.Request, name, fallback string) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		v = fallback
	}
	n, _ := strconv.Atoi(v)
	return n
}
