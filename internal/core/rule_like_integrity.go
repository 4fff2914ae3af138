package core

import (
	"context"
	"fmt"
	"sort"

	"menuboard/pkg/domain"
)

// NewLikeIntegrityRule returns the rule checking each category's like
// counter against the liked products beneath it.
func NewLikeIntegrityRule() domain.Rule {
	return likeIntegrityRule{}
}

type likeIntegrityRule struct{}

func (likeIntegrityRule) Name() string { return "like_integrity" }

func (r likeIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
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

	expected := make(map[int]int)
	for _, id := range view.LikedProducts() {
		p, ok := view.FindProduct(id)
		if !ok {
			violate(EntityProduct, id, "liked product %d does not exist", id)
			continue
		}
		ancestors, _ := ancestorChain(view, p.Parent())
		for _, c := range ancestors {
			expected[c.CategoryID]++
		}
	}

	actual := view.LikeCounts()
	ids := make([]int, 0, len(actual)+len(expected))
	for id := range actual {
		ids = append(ids, id)
	}
	for id := range expected {
		if _, ok := actual[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	for _, id := range ids {
		got, want := actual[id], expected[id]
		switch {
		case got < 0:
			violate(EntityCategory, id, "category %d like count is negative (%d)", id, got)
		case got != want:
			violate(EntityCategory, id, "category %d like count is %d, expected %d", id, got, want)
		}
	}
	return res, nil
}
