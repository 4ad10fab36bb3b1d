package pricerule

import (
	"context"
	"sort"
	"time"
)

// Source loads the store's rule catalog.
type Source interface {
	FetchPriceRules(ctx context.Context, storeID string) ([]Rule, error)
}

// Evaluator answers read-only questions about a rule catalog. It is safe for
// concurrent use once constructed.
type Evaluator struct {
	rules []Rule
	now   func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the clock used for date windows.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// NewEvaluator sorts rules by priority, lowest first, keeping catalog order
// among equal priorities. Rules without priority go last.
func NewEvaluator(rules []Rule, opts ...Option) *Evaluator {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := sorted[i].Priority, sorted[j].Priority
		switch {
		case pi == nil:
			return false
		case pj == nil:
			return true
		default:
			return *pi < *pj
		}
	})

	e := &Evaluator{rules: sorted, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Rules returns the live rules in precedence order.
func (e *Evaluator) Rules() []Rule {
	now := e.now()
	out := make([]Rule, 0, len(e.rules))
	for _, r := range e.rules {
		if r.Live(now) {
			out = append(out, r)
		}
	}
	return out
}

// ForProduct returns the live rules whose scope covers the product.
func (e *Evaluator) ForProduct(productID string, collectionIDs []string) []Rule {
	var out []Rule
	for _, r := range e.Rules() {
		if r.Covers(productID, collectionIDs) {
			out = append(out, r)
		}
	}
	return out
}

// ByType returns the live rules of the given type, regardless of scope.
func (e *Evaluator) ByType(t Type) []Rule {
	var out []Rule
	for _, r := range e.Rules() {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

// Volume returns the governing volume rule for the product.
func (e *Evaluator) Volume(productID string, collectionIDs []string) (Rule, bool) {
	return first(e.ForProduct(productID, collectionIDs), TypeVolume)
}

// Bogo returns the governing buy-X-get-Y rule for the product.
func (e *Evaluator) Bogo(productID string, collectionIDs []string) (Rule, bool) {
	return first(e.ForProduct(productID, collectionIDs), TypeBogo)
}

// FreeShipping returns the governing free shipping rule. Free shipping is
// store-wide and not filtered by scope.
func (e *Evaluator) FreeShipping() (Rule, bool) {
	return first(e.Rules(), TypeFreeShipping)
}

func first(rules []Rule, t Type) (Rule, bool) {
	for _, r := range rules {
		if r.Type == t {
			return r, true
		}
	}
	return Rule{}, false
}
