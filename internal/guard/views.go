package guard

import (
	"fmt"

	"github.com/felixgeelhaar/finhub/internal/errors"
	"github.com/felixgeelhaar/finhub/internal/roles"
)

// ViewID names a dashboard view.
type ViewID string

const (
	ViewLogin  ViewID = "login"
	ViewCrypto ViewID = "crypto"
	ViewCoin   ViewID = "coin"
	ViewStocks ViewID = "stocks"
	ViewStock  ViewID = "stock"
	ViewForex  ViewID = "forex"
	ViewAdmin  ViewID = "admin"
)

// View describes a navigable view.
type View struct {
	ID    ViewID
	Title string

	// RequiredRole restricts the view to one role. Empty means any signed-in
	// user.
	RequiredRole roles.Role

	// Nav lists the view in the header. Detail views are reached from their
	// parent table instead.
	Nav bool
}

// Registry holds the known views and the two navigation targets the guard
// uses.
type Registry struct {
	views map[ViewID]View
	order []ViewID
	login ViewID
	home  ViewID
}

// NewRegistry validates and indexes views. login and home must be registered
// and must not require a role; otherwise a navigation to them could be
// redirected again.
func NewRegistry(login, home ViewID, views ...View) (*Registry, error) {
	r := &Registry{
		views: make(map[ViewID]View, len(views)),
		login: login,
		home:  home,
	}
	for _, v := range views {
		if v.ID == "" {
			return nil, errors.NewConfigInvalidError("view ID is required")
		}
		if _, dup := r.views[v.ID]; dup {
			return nil, errors.NewConfigInvalidError(fmt.Sprintf("view %q registered twice", v.ID))
		}
		if v.RequiredRole != "" && !v.RequiredRole.Valid() {
			return nil, errors.NewConfigInvalidError(fmt.Sprintf("view %q requires unknown role %q", v.ID, v.RequiredRole))
		}
		r.views[v.ID] = v
		r.order = append(r.order, v.ID)
	}

	for _, id := range []ViewID{login, home} {
		v, ok := r.views[id]
		if !ok {
			return nil, errors.NewConfigInvalidError(fmt.Sprintf("view %q is not registered", id))
		}
		if v.RequiredRole != "" {
			return nil, errors.NewConfigInvalidError(fmt.Sprintf("view %q is a redirect target and cannot require a role", id))
		}
	}
	if login == home {
		return nil, errors.NewConfigInvalidError("login and home must be different views")
	}
	return r, nil
}

// DefaultRegistry returns the dashboard's views.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(ViewLogin, ViewCrypto,
		View{ID: ViewLogin, Title: "Sign In"},
		View{ID: ViewCrypto, Title: "Crypto", Nav: true},
		View{ID: ViewCoin, Title: "Coin"},
		View{ID: ViewStocks, Title: "Stocks", Nav: true},
		View{ID: ViewStock, Title: "Stock"},
		View{ID: ViewForex, Title: "Forex", Nav: true},
		View{ID: ViewAdmin, Title: "Admin", RequiredRole: roles.RoleAdmin, Nav: true},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Login returns the sign-in view.
func (r *Registry) Login() ViewID { return r.login }

// Home returns the landing view for signed-in users.
func (r *Registry) Home() ViewID { return r.home }

// Get looks up a view.
func (r *Registry) Get(id ViewID) (View, bool) {
	v, ok := r.views[id]
	return v, ok
}

// Views returns all views in registration order.
func (r *Registry) Views() []View {
	out := make([]View, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.views[id])
	}
	return out
}

// Nav returns the header entries for a viewer. Signed-out viewers get none;
// role-restricted views only appear for their role.
func (r *Registry) Nav(authenticated bool, role roles.Role) []View {
	if !authenticated {
		return nil
	}
	var out []View
	for _, id := range r.order {
		v := r.views[id]
		if !v.Nav {
			continue
		}
		if v.RequiredRole != "" && v.RequiredRole != role {
			continue
		}
		out = append(out, v)
	}
	return out
}
