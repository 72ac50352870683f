package config_test

import (
	"context"
	"testing"

	"github.com/nabbar/genesis-mesh/config"
	liberr "github.com/nabbar/genesis-mesh/errors"
)

type fakeComponent struct {
	name    string
	deps    []string
	started bool
	order   *[]string
}

func (f *fakeComponent) Name() string            { return f.name }
func (f *fakeComponent) Dependencies() []string  { return f.deps }
func (f *fakeComponent) Init(*config.Store) liberr.Error { return nil }
func (f *fakeComponent) Start(context.Context) liberr.Error {
	f.started = true
	*f.order = append(*f.order, f.name)
	return nil
}
func (f *fakeComponent) Reload(context.Context) liberr.Error { return nil }
func (f *fakeComponent) Stop()                                { *f.order = append(*f.order, "stop:"+f.name) }

func TestManagerStartsInDependencyOrder(t *testing.T) {
	var order []string
	store := config.NewStore(nil)
	m := config.NewManager(store)

	routing := &fakeComponent{name: "routing", deps: []string{"peer"}, order: &order}
	peer := &fakeComponent{name: "peer", order: &order}
	router := &fakeComponent{name: "router", deps: []string{"routing", "peer"}, order: &order}

	_ = m.Register(router)
	_ = m.Register(routing)
	_ = m.Register(peer)

	if err := m.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	if pos["peer"] > pos["routing"] || pos["routing"] > pos["router"] {
		t.Fatalf("expected start order peer < routing < router, got %v", order)
	}
}

func TestManagerRejectsDuplicateRegistration(t *testing.T) {
	store := config.NewStore(nil)
	m := config.NewManager(store)
	c := &fakeComponent{name: "peer", order: &[]string{}}

	if err := m.Register(c); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := m.Register(c); err == nil {
		t.Fatal("expected duplicate registration to be rejected")
	}
}

func TestManagerStopsInReverseOrder(t *testing.T) {
	var order []string
	store := config.NewStore(nil)
	m := config.NewManager(store)

	a := &fakeComponent{name: "a", order: &order}
	b := &fakeComponent{name: "b", deps: []string{"a"}, order: &order}

	_ = m.Register(a)
	_ = m.Register(b)
	_ = m.Init()
	_ = m.Start(context.Background())
	order = nil // reset after Start, which also appends

	m.Stop()
	if len(order) != 2 || order[0] != "stop:b" || order[1] != "stop:a" {
		t.Fatalf("expected stop order [stop:b stop:a], got %v", order)
	}
}
