package gritting

import (
	"sort"

	"github.com/lox/gritting/internal/models"
)

// RouteStore resolves route metadata by id.
type RouteStore interface {
	Route(routeID string) (models.RouteInfo, bool)
}

// RouteTable is an immutable in-memory route lookup, built once at startup
// and shared by all requests.
type RouteTable struct {
	byID map[string]models.RouteInfo
}

// NewRouteTable indexes routes by id. Later duplicates replace earlier ones.
func NewRouteTable(routes []models.RouteInfo) *RouteTable {
	byID := make(map[string]models.RouteInfo, len(routes))
	for _, r := range routes {
		byID[r.RouteID] = r
	}
	return &RouteTable{byID: byID}
}

// Route looks up routeID.
func (t *RouteTable) Route(routeID string) (models.RouteInfo, bool) {
	if t == nil {
		return models.RouteInfo{}, false
	}
	r, ok := t.byID[routeID]
	return r, ok
}

// Routes returns all routes ordered by id.
func (t *RouteTable) Routes() []models.RouteInfo {
	if t == nil {
		return nil
	}
	routes := make([]models.RouteInfo, 0, len(t.byID))
	for _, r := range t.byID {
		routes = append(routes, r)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].RouteID < routes[j].RouteID })
	return routes
}

// Len returns the number of routes.
func (t *RouteTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byID)
}
