// Package module wires suggest-query into the API using modkit
package module

import (
	"net/http"

	modkit "suggestfed/internal/modkit"
	"suggestfed/internal/modkit/httpkit"
	qhttp "suggestfed/internal/services/suggestquery/http"
	qsvc "suggestfed/internal/services/suggestquery/service"
	"suggestfed/internal/suggest/sessionmgr"
)

// Module implements the suggest-query module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws   []func(http.Handler) http.Handler
	ports any

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	svc qsvc.Service
}

// New constructs the suggest-query module. sessions is the process-wide
// session manager; this module calls straight into it, it owns no repo
func New(deps modkit.Deps, sessions *sessionmgr.Manager, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("suggestquery"), modkit.WithPrefix("/suggest")}, opts...)...)

	svc := qsvc.New(sessions, deps.Log)

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		subrouter: b.Subrouter,
		svc:       svc,
	}
	m.ports = adaptSuggestPort{svc: svc}

	external := b.Register
	m.register = func(r httpkit.Router) {
		qhttp.Register(r, m.svc)
		if external != nil {
			external(r)
		}
	}
	return m
}

// MountRoutes mounts the module routes on the given router
func (m *Module) MountRoutes(r httpkit.Router) {
	r.Route(m.prefix, func(rr httpkit.Router) {
		for _, mw := range m.mws {
			rr.Use(mw)
		}
		if m.subrouter != nil {
			rr = m.subrouter(rr)
		}
		if m.register != nil {
			m.register(rr)
		}
	})
}

// Ports returns the cross module port set
func (m *Module) Ports() any { return m.ports }

// Name returns the module name
func (m *Module) Name() string { return m.name }
