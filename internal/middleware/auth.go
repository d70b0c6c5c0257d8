package middleware

import (
	"net/http"
	"strings"

	"github.com/ferndale/taskmill/internal/auth"
	"github.com/ferndale/taskmill/internal/store"
)

// RequireAuth validates the bearer session token and populates AuthContext.
// Sessions are issued by the surrounding application; this engine only
// consumes them.
func RequireAuth(sessionStore *store.SessionStore, groupStore *store.GroupStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				unauthorized(w)
				return
			}

			sess, err := sessionStore.GetByToken(r.Context(), token)
			if err != nil || sess == nil {
				unauthorized(w)
				return
			}

			role, err := groupStore.GetMemberRole(r.Context(), sess.GroupID, sess.UserID)
			if err != nil || role == "" {
				unauthorized(w)
				return
			}

			ac := auth.AuthContext{
				UserID:    sess.UserID,
				GroupID:   sess.GroupID,
				Role:      role,
				SessionID: sess.ID,
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"authentication required"}`))
}
