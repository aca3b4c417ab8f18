package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/strefethen/sonos-broker-go/internal/api"
	"github.com/strefethen/sonos-broker-go/internal/apperrors"
)

var publicRoutes = map[string]struct{}{
	"/metrics": {},
}

var publicPrefixes = []string{
	"/v1/health",
	// Speakers cannot authenticate their event callbacks.
	"/upnp/notify",
}

// Middleware validates bearer tokens on protected routes. An empty secret
// leaves the API open.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicRoute(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Missing or malformed Authorization header"))
				return
			}

			payload, err := VerifyToken(secret, token)
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					api.WriteError(w, r, apperrors.NewUnauthorizedError("Token has expired", apperrors.ErrorCodeAuthTokenExpired))
					return
				}
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid token", apperrors.ErrorCodeAuthTokenInvalid))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), payload)))
		})
	}
}

// bearerToken reads the token from the Authorization header, or from the
// access_token query parameter for websocket clients that cannot set headers.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		token := r.URL.Query().Get("access_token")
		return token, token != ""
	}
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

func isPublicRoute(path string) bool {
	if _, ok := publicRoutes[path]; ok {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
