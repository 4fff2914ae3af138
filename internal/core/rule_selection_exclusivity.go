package core

import (
	"context"
	"fmt"
	"slices"

	"menuboard/pkg/domain"
)

// NewSelectionExclusivityRule returns the rule enforcing that a selection
// spans one entity type and one parent.
func NewSelectionExclusivityRule() domain.Rule {
	return selectionExclusivityRule{}
}

type selectionExclusivityRule struct{}

func (selectionExclusivityRule) Name() string { return "selection_exclusivity" }

func (r selectionExclusivityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	sel := view.Selection()
	res := domain.Result{}
	violate := func(id int, format string, args ...any) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf(format, args...),
			Entity:   EntitySelection,
			EntityID: id,
		})
	}

	if sel.Empty() {
		if sel.Type != "" || len(sel.LastSelected) > 0 {
			violate(0, "empty selection carries type %q and %d recent ids", sel.Type, len(sel.LastSelected))
		}
		return res, nil
	}
	if sel.Type != EntityCategory && sel.Type != EntityProduct {
		violate(0, "selection has unsupported type %q", sel.Type)
		return res, nil
	}

	seen := make(map[int]struct{}, len(sel.IDs))
	for _, id := range sel.IDs {
		if _, dup := seen[id]; dup {
			violate(id, "%s %d selected twice", sel.Type, id)
			continue
		}
		seen[id] = struct{}{}

		var (
			parent ParentKey
			found  bool
		)
		if sel.Type == EntityCategory {
			var c Category
			c, found = view.FindCategory(id)
			parent = c.Parent()
		} else {
			var p Product
			p, found = view.FindProduct(id)
			parent = p.Parent()
		}
		switch {
		case !found:
			violate(id, "selected %s %d does not exist", sel.Type, id)
		case parent != sel.Parent:
			violate(id, "selected %s %d sits under %s, selection is scoped to %s", sel.Type, id, parent, sel.Parent)
		}
	}
	for _, id := range sel.LastSelected {
		if !slices.Contains(sel.IDs, id) {
			violate(id, "recently selected %s %d is no longer selected", sel.Type, id)
		}
	}
	return res, nil
}
