package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/clinicflow/clinicflow/libs/httpx"
)

// Actor identifies the caller for authorization decisions downstream.
type Actor struct {
	UID      string
	Role     string
	ClinicID string
}

type ctxKey int

const ctxKeyActor ctxKey = iota

func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKeyActor).(Actor)
	return a, ok
}

func ContextWithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKeyActor, a)
}

// Middleware resolves the acting user. With a JWT secret configured it
// requires a valid bearer token; without one it trusts the X-Actor-Uid,
// X-Actor-Role and X-Clinic-Id headers set by the gateway (internal
// deployments where authentication terminates upstream).
func Middleware(jwtSecret string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := resolveActor(r, jwtSecret)
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid credentials")
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
		})
	}
}

func resolveActor(r *http.Request, jwtSecret string) (Actor, bool) {
	if jwtSecret != "" {
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		token, found := strings.CutPrefix(raw, "Bearer ")
		if !found {
			return Actor{}, false
		}
		claims, err := ParseAndVerifyHS256(strings.TrimSpace(token), jwtSecret)
		if err != nil {
			return Actor{}, false
		}
		return Actor{UID: claims.Sub, Role: claims.Role, ClinicID: claims.ClinicID}, true
	}

	actor := Actor{
		UID:      strings.TrimSpace(r.Header.Get("X-Actor-Uid")),
		Role:     strings.TrimSpace(r.Header.Get("X-Actor-Role")),
		ClinicID: strings.TrimSpace(r.Header.Get("X-Clinic-Id")),
	}
	if actor.UID == "" || actor.Role == "" {
		return Actor{}, false
	}
	return actor, true
}
