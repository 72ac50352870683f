package config

import (
	"context"
	"fmt"

	liberr "github.com/nabbar/genesis-mesh/errors"
)

// Manager registers Components and sequences their lifecycle in
// dependency order, mirroring nabbar-golib's config.Config component
// registry.
type Manager struct {
	store      *Store
	components map[string]Component
	order      []string // topological order, computed lazily
}

// NewManager constructs a Manager bound to store.
func NewManager(store *Store) *Manager {
	return &Manager{store: store, components: make(map[string]Component)}
}

// Register adds a component. It is an error to register the same name
// twice.
func (m *Manager) Register(c Component) liberr.Error {
	if _, exists := m.components[c.Name()]; exists {
		return liberr.New(liberr.KindValidation, fmt.Sprintf("component %q already registered", c.Name()))
	}
	m.components[c.Name()] = c
	m.order = nil
	return nil
}

// resolveOrder topologically sorts components by Dependencies(), caching
// the result until the next Register call invalidates it.
func (m *Manager) resolveOrder() ([]string, liberr.Error) {
	if m.order != nil {
		return m.order, nil
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	state := make(map[string]int, len(m.components))
	var out []string

	var visit func(name string) liberr.Error
	visit = func(name string) liberr.Error {
		switch state[name] {
		case black:
			return nil
		case gray:
			return liberr.New(liberr.KindValidation, fmt.Sprintf("dependency cycle detected at component %q", name))
		}
		c, ok := m.components[name]
		if !ok {
			return liberr.New(liberr.KindValidation, fmt.Sprintf("unknown dependency %q", name))
		}
		state[name] = gray
		for _, dep := range c.Dependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = black
		out = append(out, name)
		return nil
	}

	for name := range m.components {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	m.order = out
	return out, nil
}

// Init calls Init on every component, in dependency order.
func (m *Manager) Init() liberr.Error {
	order, err := m.resolveOrder()
	if err != nil {
		return err
	}
	for _, name := range order {
		if err := m.components[name].Init(m.store); err != nil {
			return liberr.Wrap(liberr.KindFatal, fmt.Sprintf("init component %q", name), err)
		}
	}
	return nil
}

// Start calls Start on every component, in dependency order, aborting and
// returning on the first failure.
func (m *Manager) Start(ctx context.Context) liberr.Error {
	order, err := m.resolveOrder()
	if err != nil {
		return err
	}
	for _, name := range order {
		if err := m.components[name].Start(ctx); err != nil {
			return liberr.Wrap(liberr.KindFatal, fmt.Sprintf("start component %q", name), err)
		}
	}
	return nil
}

// Reload calls Reload on every component, in dependency order.
func (m *Manager) Reload(ctx context.Context) liberr.Error {
	order, err := m.resolveOrder()
	if err != nil {
		return err
	}
	for _, name := range order {
		if err := m.components[name].Reload(ctx); err != nil {
			return liberr.Wrap(liberr.KindFatal, fmt.Sprintf("reload component %q", name), err)
		}
	}
	return nil
}

// Stop calls Stop on every component in reverse dependency order, best
// effort: it does not abort early, so every component gets a chance to
// shut down even if an earlier one already has.
func (m *Manager) Stop() {
	order, err := m.resolveOrder()
	if err != nil {
		return
	}
	for i := len(order) - 1; i >= 0; i-- {
		m.components[order[i]].Stop()
	}
}

// Get returns a registered component by name.
func (m *Manager) Get(name string) (Component, bool) {
	c, ok := m.components[name]
	return c, ok
}
