package middleware

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/reviewpulse/pkg/models"
)

type contextKey string

const identityKey contextKey = "identity"

// SetIdentity attaches the authenticated requester to ctx.
func SetIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity returns the requester set by Auth.Authenticate.
func GetIdentity(r *http.Request) (models.Identity, bool) {
	id, ok := r.Context().Value(identityKey).(models.Identity)
	return id, ok
}
