package health

import (
	"context"

	"github.com/felixgeelhaar/finhub/internal/roles"
)

// RoleStoreChecker pings the configured role store.
type RoleStoreChecker struct {
	store roles.Store
}

func NewRoleStoreChecker(store roles.Store) *RoleStoreChecker {
	return &RoleStoreChecker{store: store}
}

func (c *RoleStoreChecker) Name() string {
	return "role-store"
}

// Check is degraded rather than unhealthy on failure: lookups fall back to
// the default role, so the service still answers.
func (c *RoleStoreChecker) Check(ctx context.Context) *Result {
	if c.store == nil {
		return Degraded("no role store configured")
	}
	p, ok := c.store.(roles.Pinger)
	if !ok {
		return Healthy("store has no connectivity check").WithDetail("store", c.store.Name())
	}
	if err := p.Ping(ctx); err != nil {
		return Degraded("role store unreachable, users get the default role").
			WithDetail("store", c.store.Name()).
			WithDetail("error", err.Error())
	}
	return Healthy("role store reachable").WithDetail("store", c.store.Name())
}
