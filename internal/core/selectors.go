package core

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"menuboard/pkg/domain"
)

// DefaultSelectorCacheSize bounds the memoized ancestor chains.
const DefaultSelectorCacheSize = 1024

// ancestorChain walks parent links nearest-first. A missing parent ends the
// walk; a revisited category ends it with ErrCyclicHierarchy.
func ancestorChain(view domain.TransactionView, parent ParentKey) ([]Category, error) {
	var out []Category
	seen := make(map[int]struct{})
	for {
		id, ok := parent.CategoryID()
		if !ok {
			return out, nil
		}
		c, ok := view.FindCategory(id)
		if !ok {
			return out, nil
		}
		if _, dup := seen[id]; dup {
			return out, fmt.Errorf("category %d: %w", id, domain.ErrCyclicHierarchy)
		}
		seen[id] = struct{}{}
		out = append(out, c)
		parent = c.Parent()
	}
}

func parentOfEntity(view domain.TransactionView, entity EntityType, id int) (ParentKey, error) {
	switch entity {
	case EntityCategory:
		c, ok := view.FindCategory(id)
		if !ok {
			return ParentKey{}, ErrNotFound{Entity: EntityCategory, ID: id}
		}
		return c.Parent(), nil
	case EntityProduct:
		p, ok := view.FindProduct(id)
		if !ok {
			return ParentKey{}, ErrNotFound{Entity: EntityProduct, ID: id}
		}
		return p.Parent(), nil
	default:
		return ParentKey{}, fmt.Errorf("entity type %q: %w", entity, domain.ErrInvalidOperation)
	}
}

// TreeNode is a recursive read model of the menu rooted at one parent.
type TreeNode struct {
	Entity    Entity     `json:"entity"`
	Depth     int        `json:"depth"`
	Liked     bool       `json:"liked,omitempty"`
	LikeCount int        `json:"likeCount,omitempty"`
	Selected  bool       `json:"selected,omitempty"`
	Children  []TreeNode `json:"children,omitempty"`
}

// Selectors derives read models from committed store state. Ancestor chains
// are memoized until the store revision changes.
type Selectors struct {
	store     domain.PersistentStore
	mu        sync.Mutex
	revision  uint64
	ancestors *lru.Cache[entityRef, []Category]
}

// NewSelectors constructs selectors over store with an LRU of the given size.
// A non-positive size selects DefaultSelectorCacheSize.
func NewSelectors(store domain.PersistentStore, size int) *Selectors {
	if size <= 0 {
		size = DefaultSelectorCacheSize
	}
	// lru.New only fails for non-positive sizes.
	cache, _ := lru.New[entityRef, []Category](size)
	return &Selectors{store: store, ancestors: cache, revision: store.Revision()}
}

func (s *Selectors) sync() uint64 {
	rev := s.store.Revision()
	s.mu.Lock()
	defer s.mu.Unlock()
	if rev != s.revision {
		s.ancestors.Purge()
		s.revision = rev
	}
	return rev
}

// remember caches a chain computed at revision rev. Chains from a revision
// that is no longer current are dropped.
func (s *Selectors) remember(ref entityRef, chain []Category, rev uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revision != rev || s.store.Revision() != rev {
		return
	}
	s.ancestors.Add(ref, chain)
}

// AncestorsOf returns the parent chain of an entity, nearest first.
func (s *Selectors) AncestorsOf(ctx context.Context, entity EntityType, id int) ([]Category, error) {
	rev := s.sync()
	ref := entityRef{entity: entity, id: id}
	if cached, ok := s.ancestors.Get(ref); ok {
		return cloneCategories(cached), nil
	}
	var chain []Category
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		parent, err := parentOfEntity(view, entity, id)
		if err != nil {
			return err
		}
		chain, err = ancestorChain(view, parent)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.remember(ref, chain, rev)
	return cloneCategories(chain), nil
}

// DepthOf is the number of ancestors of an entity. Root categories have depth 0.
func (s *Selectors) DepthOf(ctx context.Context, entity EntityType, id int) (int, error) {
	chain, err := s.AncestorsOf(ctx, entity, id)
	if err != nil {
		return 0, err
	}
	return len(chain), nil
}

// RootCategories lists the categories without a parent in display order.
func (s *Selectors) RootCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		for _, child := range view.ChildrenOf(RootKey) {
			if child.Type != EntityCategory {
				continue
			}
			if c, ok := view.FindCategory(child.ID); ok {
				out = append(out, c)
			}
		}
		return nil
	})
	return out, err
}

// Siblings returns the ordered child list of a parent.
func (s *Selectors) Siblings(parent ParentKey) []Child {
	return s.store.ChildrenOf(parent)
}

// SiblingEntities resolves the child list of a parent into records.
func (s *Selectors) SiblingEntities(ctx context.Context, parent ParentKey) ([]Entity, error) {
	var out []Entity
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		for _, child := range view.ChildrenOf(parent) {
			if e, ok := resolveChild(view, child); ok {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

// IsEmpty reports whether a child list has no entries.
func IsEmpty(children []Child) bool {
	return len(children) == 0
}

// Tree builds the nested read model below parent.
func (s *Selectors) Tree(ctx context.Context, parent ParentKey) ([]TreeNode, error) {
	var out []TreeNode
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		sel := view.Selection()
		depth := 0
		if !parent.IsRoot() {
			chain, err := ancestorChain(view, parent)
			if err != nil {
				return err
			}
			depth = len(chain) + 1
		}
		var err error
		out, err = buildTree(view, sel, parent, depth, make(map[int]struct{}))
		return err
	})
	return out, err
}

func buildTree(view domain.TransactionView, sel Selection, parent ParentKey, depth int, visiting map[int]struct{}) ([]TreeNode, error) {
	children := view.ChildrenOf(parent)
	nodes := make([]TreeNode, 0, len(children))
	for _, child := range children {
		entity, ok := resolveChild(view, child)
		if !ok {
			continue
		}
		node := TreeNode{
			Entity:   entity,
			Depth:    depth,
			Selected: sel.Contains(child.Type, child.ID),
		}
		switch child.Type {
		case EntityProduct:
			node.Liked = view.IsLiked(child.ID)
		case EntityCategory:
			if _, cycle := visiting[child.ID]; cycle {
				return nil, fmt.Errorf("category %d: %w", child.ID, domain.ErrCyclicHierarchy)
			}
			visiting[child.ID] = struct{}{}
			node.LikeCount = view.LikeCount(child.ID)
			sub, err := buildTree(view, sel, domain.ParentOf(child.ID), depth+1, visiting)
			if err != nil {
				return nil, err
			}
			delete(visiting, child.ID)
			node.Children = sub
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func resolveChild(view domain.TransactionView, child Child) (Entity, bool) {
	switch child.Type {
	case EntityCategory:
		c, ok := view.FindCategory(child.ID)
		if !ok {
			return Entity{}, false
		}
		return domain.CategoryEntity(c), true
	case EntityProduct:
		p, ok := view.FindProduct(child.ID)
		if !ok {
			return Entity{}, false
		}
		return domain.ProductEntity(p), true
	default:
		return Entity{}, false
	}
}

func cloneCategories(in []Category) []Category {
	if in == nil {
		return nil
	}
	out := make([]Category, len(in))
	for i, c := range in {
		if c.ParentID != nil {
			parent := *c.ParentID
			c.ParentID = &parent
		}
		out[i] = c
	}
	return out
}
