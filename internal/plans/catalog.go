package plans

import (
	"fmt"

	"github.com/and161185/imagify/internal/model"
	"github.com/shopspring/decimal"
)

// Catalog is the read-only set of purchasable credit plans.
type Catalog struct {
	order []string
	byID  map[string]model.Plan
}

func Defaults() []model.Plan {
	return []model.Plan{
		{ID: "Basic", Price: decimal.NewFromInt(10), Credits: 100, Description: "Best for personal use."},
		{ID: "Advanced", Price: decimal.NewFromInt(50), Credits: 500, Description: "Best for business use."},
		{ID: "Business", Price: decimal.NewFromInt(250), Credits: 5000, Description: "Best for enterprise use."},
	}
}

func New(list []model.Plan) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]model.Plan, len(list))}
	for _, p := range list {
		if p.ID == "" {
			return nil, fmt.Errorf("plan without id")
		}
		if _, ok := c.byID[p.ID]; ok {
			return nil, fmt.Errorf("duplicate plan %q", p.ID)
		}
		if !p.Price.IsPositive() {
			return nil, fmt.Errorf("plan %q: price must be positive", p.ID)
		}
		if p.Credits <= 0 {
			return nil, fmt.Errorf("plan %q: credits must be positive", p.ID)
		}
		c.byID[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	return c, nil
}

// MustDefault panics only if the built-in plans are broken.
func MustDefault() *Catalog {
	c, err := New(Defaults())
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Lookup(id string) (model.Plan, bool) {
	p, ok := c.byID[id]
	return p, ok
}

func (c *Catalog) List() []model.Plan {
	out := make([]model.Plan, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}
