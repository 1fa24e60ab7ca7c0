package http

import (
	"context"

	"github.com/quillboard/quillboard/pkg/tokenx"
)

type principalKey struct{}

func withPrincipal(ctx context.Context, p tokenx.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the authenticated identity the gate
// attached to the request, if any.
func PrincipalFromContext(ctx context.Context) (tokenx.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(tokenx.Principal)
	return p, ok
}
