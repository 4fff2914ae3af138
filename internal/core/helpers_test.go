package core

import (
	"context"
	"sort"
	"testing"

	"menuboard/pkg/domain"
)

func intPtr(v int) *int { return &v }

// drinksMenu is the two-level fixture used across the core tests:
//
//	1 Drinks        -> products 10 Cola, 11 Lemonade
//	  2 Beer        -> product 12 Lager
//	3 Desserts
func drinksMenu() Menu {
	return Menu{
		Categories: []Category{
			{CategoryID: 1, Description: "Drinks", Order: 0, Enabled: true},
			{CategoryID: 2, ParentID: intPtr(1), Description: "Beer", Order: 2, Enabled: true},
			{CategoryID: 3, Description: "Desserts", Order: 1, Enabled: true},
		},
		Products: []Product{
			{ProductID: 10, CategoryID: 1, Label: "Cola", Order: 0, Enabled: true},
			{ProductID: 11, CategoryID: 1, Label: "Lemonade", Order: 1, Enabled: true},
			{ProductID: 12, CategoryID: 2, Label: "Lager", Order: 0, Enabled: true},
		},
	}
}

func loadedService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	svc := NewInMemoryService(nil, opts...)
	t.Cleanup(svc.Close)
	if _, err := svc.Load(context.Background(), drinksMenu()); err != nil {
		t.Fatalf("load menu: %v", err)
	}
	return svc
}

func childIDs(children []Child) []int {
	out := make([]int, len(children))
	for i, c := range children {
		out[i] = c.ID
	}
	return out
}

// fakeView is a hand-built view used to feed states the store itself would
// never commit.
type fakeView struct {
	categories map[int]Category
	products   map[int]Product
	siblings   map[ParentKey][]Child
	selection  Selection
	liked      []int
	counts     map[int]int
}

func newFakeView() *fakeView {
	return &fakeView{
		categories: map[int]Category{},
		products:   map[int]Product{},
		siblings:   map[ParentKey][]Child{},
		counts:     map[int]int{},
	}
}

func (v *fakeView) addCategory(c Category, listed bool) *fakeView {
	v.categories[c.CategoryID] = c
	if listed {
		v.siblings[c.Parent()] = append(v.siblings[c.Parent()], Child{ID: c.CategoryID, Type: EntityCategory, Order: c.Order})
	}
	return v
}

func (v *fakeView) addProduct(p Product, listed bool) *fakeView {
	v.products[p.ProductID] = p
	if listed {
		v.siblings[p.Parent()] = append(v.siblings[p.Parent()], Child{ID: p.ProductID, Type: EntityProduct, Order: p.Order})
	}
	return v
}

func (v *fakeView) ListCategories() []Category {
	out := make([]Category, 0, len(v.categories))
	for _, c := range v.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })
	return out
}

func (v *fakeView) ListProducts() []Product {
	out := make([]Product, 0, len(v.products))
	for _, p := range v.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func (v *fakeView) FindCategory(id int) (Category, bool) {
	c, ok := v.categories[id]
	return c, ok
}

func (v *fakeView) FindProduct(id int) (Product, bool) {
	p, ok := v.products[id]
	return p, ok
}

func (v *fakeView) ChildrenOf(parent ParentKey) []Child {
	return append([]Child{}, v.siblings[parent]...)
}

func (v *fakeView) ParentKeys() []ParentKey {
	keys := make([]ParentKey, 0, len(v.siblings))
	for k := range v.siblings {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return compareParents(keys[i], keys[j]) < 0 })
	return keys
}

func (v *fakeView) Selection() Selection { return v.selection }

func (v *fakeView) IsLiked(id int) bool {
	for _, l := range v.liked {
		if l == id {
			return true
		}
	}
	return false
}

func (v *fakeView) LikedProducts() []int { return append([]int{}, v.liked...) }

func (v *fakeView) LikeCount(id int) int { return v.counts[id] }

func (v *fakeView) LikeCounts() map[int]int {
	out := make(map[int]int, len(v.counts))
	for k, c := range v.counts {
		out[k] = c
	}
	return out
}

var _ domain.TransactionView = (*fakeView)(nil)

func evaluate(t *testing.T, rule Rule, view domain.RuleView) Result {
	t.Helper()
	res, err := rule.Evaluate(context.Background(), view, nil)
	if err != nil {
		t.Fatalf("%s: %v", rule.Name(), err)
	}
	return res
}

func hasViolation(res Result, rule string, entity EntityType, id int) bool {
	for _, v := range res.Violations {
		if v.Rule == rule && v.Entity == entity && v.EntityID == id {
			return true
		}
	}
	return false
}
