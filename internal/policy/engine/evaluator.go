package engine

import "context"

// Authorizer decides whether a caller's roles satisfy a route's role requirement.
type Authorizer interface {
	// Allow reports whether roles satisfy required. An empty requirement admits any authenticated caller.
	Allow(ctx context.Context, roles, required []string) (bool, error)
}
