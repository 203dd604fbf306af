package network

import "context"

// Authorizer evaluates a just-authenticated peer's requested roles against
// the "network" role policy (spec.md §4.8: "key checked against the
// `network` role policy in C14"). The permission package's evaluator
// satisfies this interface once wired; until then DefaultAuthorizer grants
// whatever was requested, matching a single-node development deployment
// with no identity namespace populated yet.
type Authorizer interface {
	Authorize(ctx context.Context, publicKeyHex string, requestedRoles []string) (grantedRoles []string, err error)
}

// DefaultAuthorizer grants every requested role. Used when no permission
// policy has been configured (spec.md §4.9 rule 3: "fall back to the
// `default` role; if that is unset, permit").
type DefaultAuthorizer struct{}

func (DefaultAuthorizer) Authorize(_ context.Context, _ string, requestedRoles []string) ([]string, error) {
	granted := make([]string, len(requestedRoles))
	copy(granted, requestedRoles)
	return granted, nil
}
