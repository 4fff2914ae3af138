package core

import (
	"context"
	"fmt"

	"menuboard/pkg/domain"
)

// NewHierarchyAcyclicRule returns the rule rejecting category parent cycles.
func NewHierarchyAcyclicRule() domain.Rule {
	return hierarchyAcyclicRule{}
}

type hierarchyAcyclicRule struct{}

func (hierarchyAcyclicRule) Name() string { return "hierarchy_acyclic" }

func (r hierarchyAcyclicRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	const (
		unvisited = iota
		walking
		done
	)
	categories := view.ListCategories()
	byID := make(map[int]Category, len(categories))
	for _, c := range categories {
		byID[c.CategoryID] = c
	}

	res := domain.Result{}
	marks := make(map[int]int, len(categories))
	for _, start := range categories {
		var path []int
		cur := start.CategoryID
		for {
			if marks[cur] == done {
				break
			}
			if marks[cur] == walking {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     r.Name(),
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("category %d is its own ancestor", cur),
					Entity:   EntityCategory,
					EntityID: cur,
				})
				break
			}
			marks[cur] = walking
			path = append(path, cur)
			c := byID[cur]
			if c.ParentID == nil {
				break
			}
			if _, ok := byID[*c.ParentID]; !ok {
				break
			}
			cur = *c.ParentID
		}
		for _, id := range path {
			marks[id] = done
		}
	}
	return res, nil
}
