package service

import (
	"fmt"

	"tokenomy/internal/model"
)

// Catalog is the static action catalog indexed by id. It never changes after
// construction; communities toggle and re-price entries but cannot add any.
type Catalog struct {
	order   []model.Action
	actions map[string]model.Action
}

func NewCatalog(actions []model.Action) (*Catalog, error) {
	c := &Catalog{
		order:   actions,
		actions: make(map[string]model.Action, len(actions)),
	}
	for _, a := range actions {
		if a.ID == "" {
			return nil, fmt.Errorf("catalog action with empty id")
		}
		if _, dup := c.actions[a.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog action %q", a.ID)
		}
		if a.BaseCost <= 0 {
			return nil, fmt.Errorf("catalog action %q: base cost must be positive", a.ID)
		}
		c.actions[a.ID] = a
	}
	return c, nil
}

// DefaultCatalog builds the catalog from the built-in action set.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(model.DefaultActions())
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Get(id string) (model.Action, bool) {
	a, ok := c.actions[id]
	return a, ok
}

// All returns the catalog in declaration order.
func (c *Catalog) All() []model.Action {
	out := make([]model.Action, len(c.order))
	copy(out, c.order)
	return out
}
