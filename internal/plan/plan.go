// Package plan gates quiz features by subscription plan. Payment itself is
// handled elsewhere; a request only names the plan it runs under.
package plan

import (
	"errors"
	"fmt"
	"strings"
)

// ID identifies a subscription plan.
type ID string

const (
	Free       ID = "free"
	ProMonthly ID = "pro_monthly"
	ProYearly  ID = "pro_yearly"
)

// DefaultFreeQuestionLimit caps a single quiz on the free plan.
const DefaultFreeQuestionLimit = 10

var (
	// ErrUnknownPlan is returned by Lookup for an unrecognized plan ID.
	ErrUnknownPlan = errors.New("unknown plan")

	// ErrLimitExceeded means the quiz asks for more questions than the plan
	// allows.
	ErrLimitExceeded = errors.New("question limit exceeded for plan")

	// ErrFeatureLocked means the feature needs a paid plan.
	ErrFeatureLocked = errors.New("feature requires a pro plan")
)

// Plan describes what a subscriber may do.
type Plan struct {
	ID           ID     `json:"id"`
	Name         string `json:"name"`
	PriceINR     int    `json:"priceInr"`
	Period       string `json:"period"`
	MaxQuestions int    `json:"maxQuestions,omitempty"` // 0 means unlimited
	Export       bool   `json:"export"`
}

// CheckQuestions reports whether a quiz of n questions is allowed.
func (p Plan) CheckQuestions(n int) error {
	if p.MaxQuestions > 0 && n > p.MaxQuestions {
		return fmt.Errorf("%w: %s allows %d, requested %d", ErrLimitExceeded, p.Name, p.MaxQuestions, n)
	}
	return nil
}

// CheckExport reports whether document export is allowed.
func (p Plan) CheckExport() error {
	if !p.Export {
		return fmt.Errorf("%w: export on %s", ErrFeatureLocked, p.Name)
	}
	return nil
}

// Catalog is the fixed set of plans.
type Catalog struct {
	plans []Plan
}

// NewCatalog builds the plan catalog. freeLimit <= 0 uses
// DefaultFreeQuestionLimit.
func NewCatalog(freeLimit int) *Catalog {
	if freeLimit <= 0 {
		freeLimit = DefaultFreeQuestionLimit
	}
	return &Catalog{plans: []Plan{
		{ID: Free, Name: "Basic", PriceINR: 0, Period: "forever", MaxQuestions: freeLimit},
		{ID: ProMonthly, Name: "Pro Monthly", PriceINR: 99, Period: "month", Export: true},
		{ID: ProYearly, Name: "Success Pack", PriceINR: 499, Period: "year", Export: true},
	}}
}

// Plans lists every plan, free first.
func (c *Catalog) Plans() []Plan {
	return append([]Plan(nil), c.plans...)
}

// Lookup resolves a plan ID. An empty ID is the free plan.
func (c *Catalog) Lookup(id string) (Plan, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		id = string(Free)
	}
	for _, p := range c.plans {
		if string(p.ID) == id {
			return p, nil
		}
	}
	return Plan{}, fmt.Errorf("%w: %q", ErrUnknownPlan, id)
}
