package workflow

import (
	"errors"
	"maps"
	"slices"
	"sync"
)

// ErrAlreadyRegistered is returned when a name is taken by a different workflow.
var ErrAlreadyRegistered = errors.New("workflow already registered")

// Catalog holds named workflows for agentctl graph and the diagram endpoint.
type Catalog struct {
	mu     sync.RWMutex
	byName map[string]*Workflow
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{byName: map[string]*Workflow{}}
}

// Add stores wf under name, or under wf.Name() when name is empty. Adding the
// same workflow twice is a no-op, so services can register on every start.
func (c *Catalog) Add(name string, wf *Workflow) error {
	if wf == nil {
		return errors.New("nil workflow")
	}
	if name == "" {
		name = wf.Name()
	}
	if name == "" {
		return errors.New("workflow has no name")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.byName[name]; ok && existing != wf {
		return ErrAlreadyRegistered
	}
	c.byName[name] = wf
	return nil
}

func (c *Catalog) Lookup(name string) (*Workflow, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	wf, ok := c.byName[name]
	return wf, ok
}

// Names returns the workflow names in order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.byName))
}

// Builtin is the process-wide catalog behind Register, Get and List.
var Builtin = NewCatalog()

// Register adds wf to Builtin.
func Register(name string, wf *Workflow) error { return Builtin.Add(name, wf) }

// Get looks a workflow up in Builtin.
func Get(name string) (*Workflow, bool) { return Builtin.Lookup(name) }

// List returns the names in Builtin.
func List() []string { return Builtin.Names() }
