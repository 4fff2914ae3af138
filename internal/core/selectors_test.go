package core

import (
	"context"
	"errors"
	"slices"
	"testing"

	"menuboard/pkg/domain"
)

func categoryIDs(categories []Category) []int {
	out := make([]int, len(categories))
	for i, c := range categories {
		out[i] = c.CategoryID
	}
	return out
}

func TestAncestorsAreNearestFirst(t *testing.T) {
	svc := loadedService(t)
	ctx := context.Background()
	sel := svc.Selectors()

	chain, err := sel.AncestorsOf(ctx, EntityProduct, 12)
	if err != nil {
		t.Fatalf("ancestors: %v", err)
	}
	if got := categoryIDs(chain); !slices.Equal(got, []int{2, 1}) {
		t.Fatalf("expected [2 1], got %v", got)
	}
	depth, err := sel.DepthOf(ctx, EntityCategory, 2)
	if err != nil || depth != 1 {
		t.Fatalf("expected depth 1, got %d (%v)", depth, err)
	}
	depth, err = sel.DepthOf(ctx, EntityCategory, 3)
	if err != nil || depth != 0 {
		t.Fatalf("expected root depth 0, got %d (%v)", depth, err)
	}
	if _, err := sel.AncestorsOf(ctx, EntityProduct, 404); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := sel.AncestorsOf(ctx, EntityMenu, 1); !errors.Is(err, domain.ErrInvalidOperation) {
		t.Fatalf("expected invalid entity type, got %v", err)
	}
}

func TestAncestorChainTerminates(t *testing.T) {
	view := newFakeView().
		addCategory(Category{CategoryID: 1, ParentID: intPtr(99)}, true).
		addCategory(Category{CategoryID: 2, ParentID: intPtr(1)}, true)
	chain, err := ancestorChain(view, domain.ParentOf(2))
	if err != nil {
		t.Fatalf("missing parent must end the walk: %v", err)
	}
	if got := categoryIDs(chain); !slices.Equal(got, []int{2, 1}) {
		t.Fatalf("expected [2 1], got %v", got)
	}

	cyclic := newFakeView().
		addCategory(Category{CategoryID: 4, ParentID: intPtr(5)}, true).
		addCategory(Category{CategoryID: 5, ParentID: intPtr(4)}, true)
	if _, err := ancestorChain(cyclic, domain.ParentOf(4)); !errors.Is(err, domain.ErrCyclicHierarchy) {
		t.Fatalf("expected cyclic hierarchy error, got %v", err)
	}
	if chain, err := ancestorChain(cyclic, domain.RootKey); err != nil || len(chain) != 0 {
		t.Fatalf("expected empty chain for root, got %v (%v)", chain, err)
	}
}

func TestAncestorMemoPurgedOnRevision(t *testing.T) {
	svc := loadedService(t)
	ctx := context.Background()
	sel := svc.Selectors()

	first, err := sel.AncestorsOf(ctx, EntityProduct, 12)
	if err != nil {
		t.Fatalf("ancestors: %v", err)
	}
	first[0].Description = "mutated"
	if sel.ancestors.Len() != 1 {
		t.Fatalf("expected memoized chain, cache has %d entries", sel.ancestors.Len())
	}

	if _, _, err := svc.UpdateCategory(ctx, Category{CategoryID: 2, ParentID: intPtr(1), Description: "Craft beer", Order: 2, Enabled: true}); err != nil {
		t.Fatalf("update: %v", err)
	}
	second, err := sel.AncestorsOf(ctx, EntityProduct, 12)
	if err != nil {
		t.Fatalf("ancestors: %v", err)
	}
	if second[0].Description != "Craft beer" {
		t.Fatalf("expected fresh chain after commit, got %q", second[0].Description)
	}
}

// commitAfterViewStore runs after once, right after the first View returns.
type commitAfterViewStore struct {
	domain.PersistentStore
	after func()
}

func (s *commitAfterViewStore) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	err := s.PersistentStore.View(ctx, fn)
	if after := s.after; after != nil {
		s.after = nil
		after()
	}
	return err
}

func TestAncestorMemoSkipsChainsFromStaleRevision(t *testing.T) {
	svc := loadedService(t)
	ctx := context.Background()
	store := &commitAfterViewStore{PersistentStore: svc.Store()}
	store.after = func() {
		if _, _, err := svc.UpdateCategory(ctx, Category{CategoryID: 2, ParentID: intPtr(1), Description: "Craft beer", Order: 2, Enabled: true}); err != nil {
			t.Errorf("update: %v", err)
		}
	}
	sel := NewSelectors(store, 0)

	stale, err := sel.AncestorsOf(ctx, EntityProduct, 12)
	if err != nil {
		t.Fatalf("ancestors: %v", err)
	}
	if stale[0].Description != "Beer" {
		t.Fatalf("expected chain read before the commit, got %q", stale[0].Description)
	}
	if sel.ancestors.Len() != 0 {
		t.Fatalf("chain computed before a commit must not be memoized")
	}
	fresh, err := sel.AncestorsOf(ctx, EntityProduct, 12)
	if err != nil {
		t.Fatalf("ancestors: %v", err)
	}
	if fresh[0].Description != "Craft beer" {
		t.Fatalf("expected fresh chain, got %q", fresh[0].Description)
	}
	if sel.ancestors.Len() != 1 {
		t.Fatalf("expected fresh chain memoized")
	}
}

func TestRootCategoriesAndSiblings(t *testing.T) {
	svc := loadedService(t)
	ctx := context.Background()
	sel := svc.Selectors()

	roots, err := sel.RootCategories(ctx)
	if err != nil {
		t.Fatalf("roots: %v", err)
	}
	if got := categoryIDs(roots); !slices.Equal(got, []int{1, 3}) {
		t.Fatalf("expected roots ordered [1 3], got %v", got)
	}
	siblings := sel.Siblings(domain.ParentOf(1))
	if got := childIDs(siblings); !slices.Equal(got, []int{10, 11, 2}) {
		t.Fatalf("unexpected siblings %v", got)
	}
	if IsEmpty(siblings) || !IsEmpty(sel.Siblings(domain.ParentOf(3))) || !IsEmpty(sel.Siblings(domain.ParentOf(777))) {
		t.Fatalf("unexpected emptiness")
	}
	entities, err := sel.SiblingEntities(ctx, domain.ParentOf(1))
	if err != nil {
		t.Fatalf("sibling entities: %v", err)
	}
	if len(entities) != 3 || entities[2].Category == nil || entities[0].Product == nil {
		t.Fatalf("expected resolved records, got %+v", entities)
	}
}

func TestTreeReadModel(t *testing.T) {
	svc := loadedService(t)
	ctx := context.Background()
	if _, _, err := svc.ToggleLikeProduct(ctx, 12); err != nil {
		t.Fatalf("like: %v", err)
	}
	if _, _, err := svc.ToggleSelectCategory(ctx, 3); err != nil {
		t.Fatalf("select: %v", err)
	}

	tree, err := svc.Selectors().Tree(ctx, domain.RootKey)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	if len(tree) != 2 {
		t.Fatalf("expected two root nodes, got %d", len(tree))
	}
	drinks := tree[0]
	if drinks.Entity.ID != 1 || drinks.LikeCount != 1 || drinks.Depth != 0 || len(drinks.Children) != 3 {
		t.Fatalf("unexpected drinks node %+v", drinks)
	}
	beer := drinks.Children[2]
	if beer.Entity.ID != 2 || beer.Depth != 1 || beer.LikeCount != 1 {
		t.Fatalf("unexpected beer node %+v", beer)
	}
	if lager := beer.Children[0]; !lager.Liked || lager.Depth != 2 {
		t.Fatalf("expected liked lager at depth 2, got %+v", lager)
	}
	if !tree[1].Selected {
		t.Fatalf("expected desserts selected")
	}

	sub, err := svc.Selectors().Tree(ctx, domain.ParentOf(2))
	if err != nil {
		t.Fatalf("subtree: %v", err)
	}
	if len(sub) != 1 || sub[0].Depth != 2 {
		t.Fatalf("expected subtree rooted at depth 2, got %+v", sub)
	}
}
