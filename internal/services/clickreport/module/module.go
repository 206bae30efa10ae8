// Package module wires click-report into the API using modkit
package module

import (
	"net/http"

	modkit "suggestfed/internal/modkit"
	"suggestfed/internal/modkit/httpkit"
	chttp "suggestfed/internal/services/clickreport/http"
	csvc "suggestfed/internal/services/clickreport/service"
	"suggestfed/internal/suggest/shortcuts"
)

// Module implements the click-report module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws   []func(http.Handler) http.Handler
	ports any

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	svc csvc.Service
}

// New constructs the click-report module. It has no repo layer of its own:
// it calls straight into repo
func New(deps modkit.Deps, repo shortcuts.Repository, cfg csvc.Config, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("clickreport"), modkit.WithPrefix("/clicks")}, opts...)...)

	svc := csvc.New(repo, cfg, deps.Log)

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		subrouter: b.Subrouter,
		svc:       svc,
	}
	m.ports = adaptClickPort{svc: svc}

	external := b.Register
	m.register = func(r httpkit.Router) {
		chttp.Register(r, m.svc)
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
