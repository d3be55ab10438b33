package runner

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the action-routing table. Every operation_type appearing
// in a manifest must be registered here before the pipeline runs.
type Registry struct {
	mu     sync.RWMutex
	routes map[string]Route
}

func NewRegistry() *Registry {
	return &Registry{routes: make(map[string]Route)}
}

// Register binds an operation type to a route. Re-registering an
// operation type replaces the previous route.
func (r *Registry) Register(operationType string, route Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[operationType] = route
}

// Route returns the route for an operation type.
func (r *Registry) Route(operationType string) (Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.routes[operationType]
	if !ok {
		return Route{}, fmt.Errorf("operation type %q is not routed (known: %v)", operationType, r.operationTypes())
	}
	return route, nil
}

// operationTypes must be called with the lock held.
func (r *Registry) operationTypes() []string {
	types := make([]string, 0, len(r.routes))
	for t := range r.routes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
