package shared

import (
	"context"
	"net/http"
	"strconv"
)

// ActorHeader carries the acting user id set by the upstream auth gateway.
const ActorHeader = "X-User-ID"

type actorContextKey struct{}

// ContextWithActor stores the acting user id in context.
func ContextWithActor(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, userID)
}

// ActorFromContext extracts the acting user id. The boolean is false when the
// request carried no user.
func ActorFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(actorContextKey{}).(int64)
	return id, ok && id > 0
}

// ActorPtr returns the acting user id as a nullable reference.
func ActorPtr(ctx context.Context) *int64 {
	id, ok := ActorFromContext(ctx)
	if !ok {
		return nil
	}
	return &id
}

// ActorMiddleware reads ActorHeader and stores it in the request context.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get(ActorHeader); raw != "" {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
				r = r.WithContext(ContextWithActor(r.Context(), id))
			}
		}
		next.ServeHTTP(w, r)
	})
}
