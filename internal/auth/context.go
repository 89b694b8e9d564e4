package auth

import (
	"context"

	"example.com/fitledger/internal/domain"
)

type claimsKey struct{}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// FromContext returns the claims stored by WithClaims, if any.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok && claims != nil
}

// PrincipalFromContext returns the authenticated caller of the request.
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	claims, ok := FromContext(ctx)
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Principal(), true
}
