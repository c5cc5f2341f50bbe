package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

var corsCandidateMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

var corsAllowedHeaders = strings.Join([]string{"Authorization", "Content-Type", "X-Request-ID", VoiceTokenHeader}, ", ")

// CORS echoes allowed origins back to browsers embedding the chat widget.
// "*" in allowedOrigins allows any origin. Allowed methods are resolved per
// path against routes, so /api/slots advertises GET and /api/chat POST.
// Preflights for paths routes does not serve fall through to the router.
// A nil routes advertises GET and POST everywhere.
func CORS(allowedOrigins []string, routes chi.Routes) func(http.Handler) http.Handler {
	allowAny := false
	allow := map[string]struct{}{}
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			allowAny = true
			continue
		}
		allow[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			_, listed := allow[origin]
			if origin == "" || !(allowAny || listed) {
				next.ServeHTTP(w, r)
				return
			}

			methods := routeMethods(routes, r.URL.Path)
			if len(methods) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
			h.Set("Access-Control-Allow-Methods", strings.Join(append(methods, http.MethodOptions), ", "))
			h.Set("Access-Control-Max-Age", "600")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func routeMethods(routes chi.Routes, path string) []string {
	if routes == nil {
		return []string{http.MethodGet, http.MethodPost}
	}
	var methods []string
	for _, m := range corsCandidateMethods {
		if routes.Match(chi.NewRouteContext(), m, path) {
			methods = append(methods, m)
		}
	}
	return methods
}
