// Package pass holds the per-function IR transformations and the
// manager that drives them.
package pass

import "coolc/internal/myir"

// Pass is one per-function transformation.
type Pass interface {
	Name() string
	Run(f *myir.Function)
}

// Manager applies each registered pass to every function of the module.
// Before each pass the function's id spaces are renumbered so passes can
// size bitsets to the current maxima.
type Manager struct {
	module *myir.Module
	passes []Pass
	Trace  func(pass string, f *myir.Function)
}

func NewManager(m *myir.Module) *Manager {
	return &Manager{module: m}
}

func (pm *Manager) Add(p Pass) {
	pm.passes = append(pm.passes, p)
}

func (pm *Manager) Run() {
	for _, f := range pm.module.Functions() {
		if f.Entry() == nil {
			continue // declared but not defined
		}
		for _, p := range pm.passes {
			pm.module.RenumberFunction(f)
			p.Run(f)
			if pm.Trace != nil {
				pm.Trace(p.Name(), f)
			}
		}
	}
}
