package core

import (
	"context"
	"fmt"

	"menuboard/pkg/domain"
)

// NewAdjacencyConsistencyRule returns the rule keeping the child lists in
// lockstep with the entity maps.
func NewAdjacencyConsistencyRule() domain.Rule {
	return adjacencyConsistencyRule{}
}

type adjacencyConsistencyRule struct{}

func (adjacencyConsistencyRule) Name() string { return "adjacency_consistency" }

type entityRef struct {
	entity EntityType
	id     int
}

func (r adjacencyConsistencyRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	violate := func(entity EntityType, id int, format string, args ...any) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf(format, args...),
			Entity:   entity,
			EntityID: id,
		})
	}

	listed := make(map[entityRef]ParentKey)
	for _, key := range view.ParentKeys() {
		for _, child := range view.ChildrenOf(key) {
			ref := entityRef{entity: child.Type, id: child.ID}
			if previous, dup := listed[ref]; dup {
				violate(child.Type, child.ID, "%s %d listed under both %s and %s", child.Type, child.ID, previous, key)
				continue
			}
			listed[ref] = key

			var (
				parent ParentKey
				order  int
				found  bool
			)
			switch child.Type {
			case EntityCategory:
				var c Category
				c, found = view.FindCategory(child.ID)
				parent, order = c.Parent(), c.Order
			case EntityProduct:
				var p Product
				p, found = view.FindProduct(child.ID)
				parent, order = p.Parent(), p.Order
			default:
				violate(child.Type, child.ID, "unknown child type %q under %s", child.Type, key)
				continue
			}
			switch {
			case !found:
				violate(child.Type, child.ID, "stale %s %d listed under %s", child.Type, child.ID, key)
			case parent != key:
				violate(child.Type, child.ID, "%s %d listed under %s but its parent is %s", child.Type, child.ID, key, parent)
			case order != child.Order:
				violate(child.Type, child.ID, "%s %d listed with order %d but stores %d", child.Type, child.ID, child.Order, order)
			}
		}
	}

	for _, c := range view.ListCategories() {
		if _, ok := listed[entityRef{entity: EntityCategory, id: c.CategoryID}]; !ok {
			violate(EntityCategory, c.CategoryID, "category %d missing from %s", c.CategoryID, c.Parent())
		}
	}
	for _, p := range view.ListProducts() {
		if _, ok := listed[entityRef{entity: EntityProduct, id: p.ProductID}]; !ok {
			violate(EntityProduct, p.ProductID, "product %d missing from %s", p.ProductID, p.Parent())
		}
	}
	return res, nil
}
