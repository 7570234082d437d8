package web

import "net/http"

// authMiddleware rejects dashboard requests without a valid auth cookie.
// It is a no-op when authentication is disabled.
func (handler *HttpRouteHandler) authMiddleware(next http.Handler) http.Handler {
	if !handler.UseAuth {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isAuthenticated(r, handler.SecretKey) {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
