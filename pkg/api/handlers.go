package api

import (
	"net/http"
	"strconv"
)

// handlers carries the shared dependencies for every route.
type handlers struct {
	deps Deps
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	OK(w, map[string]string{"service": "photarc"})
}

// queryInt parses an integer query parameter, returning def when absent or
// malformed.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func queryUint(r *http.Request, key string) uint {
	v, err := strconv.ParseUint(r.URL.Query().Get(key), 10, 32)
	if err != nil {
		return 0
	}
	return uint(v)
}

func queryInt64(r *http.Request, key string) int64 {
	v, err := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func queryBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && v
}

// pathUint parses a numeric chi URL parameter.
func pathUint(raw string) (uint, bool) {
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(v), true
}
