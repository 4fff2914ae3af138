package core

import (
	"context"
	"fmt"

	"menuboard/pkg/domain"
)

// NewOrphanedEntitiesRule returns the rule warning about records whose parent
// category no longer exists.
func NewOrphanedEntitiesRule() domain.Rule {
	return orphanedEntitiesRule{}
}

type orphanedEntitiesRule struct{}

func (orphanedEntitiesRule) Name() string { return "orphaned_entities" }

func (r orphanedEntitiesRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, c := range view.ListCategories() {
		if c.ParentID == nil {
			continue
		}
		if _, ok := view.FindCategory(*c.ParentID); !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("category %d references missing parent %d", c.CategoryID, *c.ParentID),
				Entity:   EntityCategory,
				EntityID: c.CategoryID,
			})
		}
	}
	for _, p := range view.ListProducts() {
		if _, ok := view.FindCategory(p.CategoryID); !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("product %d references missing category %d", p.ProductID, p.CategoryID),
				Entity:   EntityProduct,
				EntityID: p.ProductID,
			})
		}
	}
	return res, nil
}
