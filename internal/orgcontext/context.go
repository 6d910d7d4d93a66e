package orgcontext

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// ErrMissingOrganization is returned when an operation requires a tenant
// scope and none is bound to the context.
var ErrMissingOrganization = errors.New("unauthenticated: missing tenant context")

// OrgContextKey is the context key for the active organization ID.
type OrgContextKey struct{}

// CredentialContextKey is the context key for the caller's auth credential.
type CredentialContextKey struct{}

// WithOrgID stores the org ID in the context.
func WithOrgID(ctx context.Context, orgID int64) context.Context {
	return context.WithValue(ctx, OrgContextKey{}, orgID)
}

// WithCredential stores the caller's bearer credential in the context. The
// credential is forwarded on every outbound upstream call.
func WithCredential(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, CredentialContextKey{}, token)
}

// OrgIDFromContext returns the org ID from context, if set.
func OrgIDFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}

	value := ctx.Value(OrgContextKey{})
	switch typed := value.(type) {
	case int64:
		return typed, true
	case int:
		return int64(typed), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err == nil {
			return parsed, true
		}
	}
	return 0, false
}

// RequireOrgID returns the org ID or ErrMissingOrganization. A missing org
// on a tenant-scoped path is a programming error, not a user error.
func RequireOrgID(ctx context.Context) (int64, error) {
	orgID, ok := OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return 0, ErrMissingOrganization
	}
	return orgID, nil
}

// CredentialFromContext returns the bearer credential bound to the context.
func CredentialFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if token, ok := ctx.Value(CredentialContextKey{}).(string); ok {
		return token
	}
	return ""
}
