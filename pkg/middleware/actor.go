package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/changeorders/pkg/composables"
	"github.com/iota-uz/changeorders/pkg/httpapi"
)

// WithActor reads the acting user id from header. Authentication happens
// upstream; a missing header leaves the context without an actor and a
// malformed one is rejected.
func WithActor(header string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(header))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			actorID, err := uuid.Parse(raw)
			if err != nil || actorID == uuid.Nil {
				_ = httpapi.WriteError(w, http.StatusBadRequest, httpapi.ErrorEnvelope{
					Code:    "INVALID_ACTOR",
					Message: header + " must be a uuid",
					Meta:    httpapi.RequestMeta(composables.UseRequestID(r.Context())),
				})
				return
			}

			ctx := composables.WithActor(r.Context(), actorID)
			logger := composables.UseLogger(ctx).WithField("actor-id", actorID.String())
			ctx = composables.WithLogger(ctx, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
