package api

import (
	"context"

	"github.com/codeai-platform/task-engine/internal/models"
)

type contextKey string

const principalContextKey contextKey = "principal"

// PrincipalFromContext extracts the authenticated Principal from context
func PrincipalFromContext(ctx context.Context) *models.Principal {
	principal, ok := ctx.Value(principalContextKey).(*models.Principal)
	if !ok {
		return nil
	}
	return principal
}

// ContextWithPrincipal adds a Principal to context
func ContextWithPrincipal(ctx context.Context, principal *models.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}
