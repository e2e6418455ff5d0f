package container

// Module is one container record.
type Module struct {
	// Data is the opaque bytecode payload.
	Data []byte
	// PreloadOnly marks modules replayed into every context before any
	// entry module runs.
	PreloadOnly bool
}

// Registry is the ordered module list produced by a decode. It has no
// mutating methods; once handed out it can be read from any goroutine.
type Registry struct {
	modules []Module
}

// NewRegistry builds a Registry from modules in the given order.
func NewRegistry(modules ...Module) *Registry {
	cp := make([]Module, len(modules))
	copy(cp, modules)
	return &Registry{modules: cp}
}

// Len returns the number of modules.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.modules)
}

// At returns the module at index i.
func (r *Registry) At(i int) Module {
	return r.modules[i]
}

// Modules returns all modules in container order. The slice is shared and
// must not be modified.
func (r *Registry) Modules() []Module {
	if r == nil {
		return nil
	}
	return r.modules
}

// Preloads returns the preload modules in container order.
func (r *Registry) Preloads() []Module {
	return r.filter(true)
}

// Entries returns the entry modules in container order.
func (r *Registry) Entries() []Module {
	return r.filter(false)
}

func (r *Registry) filter(preload bool) []Module {
	var out []Module
	for _, m := range r.Modules() {
		if m.PreloadOnly == preload {
			out = append(out, m)
		}
	}
	return out
}

func (r *Registry) append(m Module) {
	r.modules = append(r.modules, m)
}
