package admission

import (
	"context"
	"fmt"
)

// Grant is the result of a successful authority check.
type Grant struct {
	Authority  string
	GatewayRef string
}

// Authority decides whether a requester may create tracking state.
//
// It is injected into the Initializer so the admission core never owns the
// gateway record it checks against.
type Authority interface {
	Authorize(ctx context.Context, requester string) (Grant, error)
}

// StaticAuthority checks requesters against a fixed gateway identity and
// enablement flag, typically loaded from configuration.
type StaticAuthority struct {
	Identity   string
	Enabled    bool
	GatewayRef string
}

// Authorize returns ErrUnauthorized unless requester equals the gateway
// identity, then ErrSystemDisabled unless the gateway is enabled.
func (a StaticAuthority) Authorize(_ context.Context, requester string) (Grant, error) {
	if a.Identity == "" || requester != a.Identity {
		return Grant{}, fmt.Errorf("requester %q: %w", requester, ErrUnauthorized)
	}
	if !a.Enabled {
		return Grant{}, fmt.Errorf("gateway %q: %w", a.GatewayRef, ErrSystemDisabled)
	}
	return Grant{Authority: a.Identity, GatewayRef: a.GatewayRef}, nil
}
