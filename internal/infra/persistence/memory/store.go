// Package memory provides an in-memory implementation of the menu tree store
// used by the service, tests, and as the working set of the durable backends.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"menuboard/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Category aliases domain.Category for in-memory persistence operations.
	Category = domain.Category
	// Product aliases domain.Product.
	Product = domain.Product
	// Child aliases domain.Child.
	Child = domain.Child
	// ParentKey aliases domain.ParentKey.
	ParentKey = domain.ParentKey
	// Selection aliases domain.Selection.
	Selection = domain.Selection
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// DeletePolicy controls what happens to the descendants of a deleted category.
type DeletePolicy int

const (
	// DeleteOrphan removes only the category. Its children stay listed under
	// the removed key until they are deleted themselves.
	DeleteOrphan DeletePolicy = iota
	// DeleteCascade removes the whole subtree.
	DeleteCascade
)

func (p DeletePolicy) String() string {
	if p == DeleteCascade {
		return "cascade"
	}
	return "orphan"
}

// ParseDeletePolicy maps a configuration value onto a policy.
func ParseDeletePolicy(value string) (DeletePolicy, error) {
	switch value {
	case "", "orphan":
		return DeleteOrphan, nil
	case "cascade":
		return DeleteCascade, nil
	default:
		return DeleteOrphan, fmt.Errorf("unknown delete policy %q", value)
	}
}

// Option configures a Store.
type Option func(*Store)

// WithDeletePolicy selects how category deletes treat descendants.
func WithDeletePolicy(policy DeletePolicy) Option {
	return func(s *Store) { s.policy = policy }
}

// WithClock overrides the time source stamped on transactions.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// childEntry keeps the insertion sequence used to break order ties.
type childEntry struct {
	Child
	seq uint64
}

type memoryState struct {
	categories map[int]Category
	products   map[int]Product
	siblings   map[ParentKey][]childEntry
	selection  Selection
	liked      map[int]struct{}
	likeCounts map[int]int
	seq        uint64
	// Highest ids ever handed out. Auto ids never go back below them, so a
	// deleted category id whose orphans are still listed is not reused.
	lastCategoryID int
	lastProductID  int
}

func newMemoryState() memoryState {
	return memoryState{
		categories: make(map[int]Category),
		products:   make(map[int]Product),
		siblings:   make(map[ParentKey][]childEntry),
		liked:      make(map[int]struct{}),
		likeCounts: make(map[int]int),
	}
}

func (s memoryState) clone() memoryState {
	cloned := memoryState{
		categories: make(map[int]Category, len(s.categories)),
		products:   make(map[int]Product, len(s.products)),
		siblings:   make(map[ParentKey][]childEntry, len(s.siblings)),
		selection:  s.selection.Clone(),
		liked:      maps.Clone(s.liked),
		likeCounts: maps.Clone(s.likeCounts),
		seq:        s.seq,

		lastCategoryID: s.lastCategoryID,
		lastProductID:  s.lastProductID,
	}
	for id, c := range s.categories {
		cloned.categories[id] = cloneCategory(c)
	}
	for id, p := range s.products {
		cloned.products[id] = cloneProduct(p)
	}
	for key, entries := range s.siblings {
		cloned.siblings[key] = slices.Clone(entries)
	}
	if cloned.liked == nil {
		cloned.liked = make(map[int]struct{})
	}
	if cloned.likeCounts == nil {
		cloned.likeCounts = make(map[int]int)
	}
	return cloned
}

func cloneCategory(c Category) Category {
	if c.ParentID != nil {
		parent := *c.ParentID
		c.ParentID = &parent
	}
	return c
}

func cloneProduct(p Product) Product {
	p.Description = cloneString(p.Description)
	p.Price1 = cloneFloat(p.Price1)
	p.Price2 = cloneFloat(p.Price2)
	p.Price3 = cloneFloat(p.Price3)
	p.Price4 = cloneFloat(p.Price4)
	p.Price5 = cloneFloat(p.Price5)
	p.Price1Label = cloneString(p.Price1Label)
	p.Price2Label = cloneString(p.Price2Label)
	p.Price3Label = cloneString(p.Price3Label)
	p.Price4Label = cloneString(p.Price4Label)
	p.Price5Label = cloneString(p.Price5Label)
	p.PictogramURL = cloneString(p.PictogramURL)
	return p
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func (s *memoryState) insertChild(key ParentKey, child Child) {
	s.seq++
	s.siblings[key] = append(s.siblings[key], childEntry{Child: child, seq: s.seq})
	s.sortSiblings(key)
}

func (s *memoryState) removeChild(key ParentKey, entity domain.EntityType, id int) {
	entries := s.siblings[key]
	kept := entries[:0]
	for _, entry := range entries {
		if entry.Type == entity && entry.ID == id {
			continue
		}
		kept = append(kept, entry)
	}
	if len(kept) == 0 {
		delete(s.siblings, key)
		return
	}
	s.siblings[key] = kept
}

func (s *memoryState) setChildOrder(key ParentKey, entity domain.EntityType, id, order int) {
	entries := s.siblings[key]
	for i := range entries {
		if entries[i].Type == entity && entries[i].ID == id {
			entries[i].Order = order
		}
	}
	s.sortSiblings(key)
}

func (s *memoryState) sortSiblings(key ParentKey) {
	entries := s.siblings[key]
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Order != entries[j].Order {
			return entries[i].Order < entries[j].Order
		}
		return entries[i].seq < entries[j].seq
	})
}

func (s *memoryState) children(key ParentKey) []Child {
	entries := s.siblings[key]
	out := make([]Child, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Child)
	}
	return out
}

// ancestorIDs walks parent links nearest-first. The walk stops at a missing
// parent or at the first revisited id.
func (s *memoryState) ancestorIDs(parent ParentKey) []int {
	var out []int
	seen := make(map[int]struct{})
	for {
		id, ok := parent.CategoryID()
		if !ok {
			return out
		}
		category, exists := s.categories[id]
		if !exists {
			return out
		}
		if _, dup := seen[id]; dup {
			return out
		}
		seen[id] = struct{}{}
		out = append(out, id)
		parent = category.Parent()
	}
}

func (s *memoryState) adjustLikes(parent ParentKey, delta int) {
	if delta == 0 {
		return
	}
	for _, id := range s.ancestorIDs(parent) {
		next := s.likeCounts[id] + delta
		if next <= 0 {
			delete(s.likeCounts, id)
			continue
		}
		s.likeCounts[id] = next
	}
}

func (s *memoryState) dropFromSelection(entity domain.EntityType, id int) bool {
	if !s.selection.Contains(entity, id) {
		return false
	}
	s.selection.IDs = slices.DeleteFunc(s.selection.IDs, func(v int) bool { return v == id })
	s.selection.LastSelected = slices.DeleteFunc(s.selection.LastSelected, func(v int) bool { return v == id })
	if len(s.selection.IDs) == 0 {
		s.selection = Selection{}
	}
	return true
}

func (s *memoryState) nextCategoryID() int {
	next := s.lastCategoryID
	for id := range s.categories {
		next = max(next, id)
	}
	for key := range s.siblings {
		if id, ok := key.CategoryID(); ok {
			next = max(next, id)
		}
	}
	return next + 1
}

func (s *memoryState) nextProductID() int {
	next := s.lastProductID
	for id := range s.products {
		next = max(next, id)
	}
	return next + 1
}

func (s *memoryState) reserveCategoryID(id int) {
	s.lastCategoryID = max(s.lastCategoryID, id)
}

func (s *memoryState) reserveProductID(id int) {
	s.lastProductID = max(s.lastProductID, id)
}

// Store provides an in-memory transactional store for the menu tree.
type Store struct {
	mu       sync.RWMutex
	state    memoryState
	engine   *RulesEngine
	nowFn    func() time.Time
	policy   DeletePolicy
	revision uint64
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(normalizeSnapshot(snapshot))
	s.revision++
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// DeletePolicy reports the configured category delete policy.
func (s *Store) DeletePolicy() DeletePolicy {
	return s.policy
}

// Revision increments on every committed transaction and import.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListCategories returns all categories sorted by id.
func (v transactionView) ListCategories() []Category {
	out := make([]Category, 0, len(v.state.categories))
	for _, c := range v.state.categories {
		out = append(out, cloneCategory(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })
	return out
}

// ListProducts returns all products sorted by id.
func (v transactionView) ListProducts() []Product {
	out := make([]Product, 0, len(v.state.products))
	for _, p := range v.state.products {
		out = append(out, cloneProduct(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func (v transactionView) FindCategory(id int) (Category, bool) {
	c, ok := v.state.categories[id]
	if !ok {
		return Category{}, false
	}
	return cloneCategory(c), true
}

func (v transactionView) FindProduct(id int) (Product, bool) {
	p, ok := v.state.products[id]
	if !ok {
		return Product{}, false
	}
	return cloneProduct(p), true
}

func (v transactionView) ChildrenOf(parent ParentKey) []Child {
	return v.state.children(parent)
}

// ParentKeys lists every key with a non-empty child list, root first.
func (v transactionView) ParentKeys() []ParentKey {
	keys := make([]ParentKey, 0, len(v.state.siblings))
	for key := range v.state.siblings {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, aok := keys[i].CategoryID()
		b, bok := keys[j].CategoryID()
		if aok != bok {
			return !aok
		}
		return a < b
	})
	return keys
}

func (v transactionView) Selection() Selection {
	return v.state.selection.Clone()
}

func (v transactionView) IsLiked(productID int) bool {
	_, ok := v.state.liked[productID]
	return ok
}

func (v transactionView) LikedProducts() []int {
	out := make([]int, 0, len(v.state.liked))
	for id := range v.state.liked {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func (v transactionView) LikeCount(categoryID int) int {
	return v.state.likeCounts[categoryID]
}

func (v transactionView) LikeCounts() map[int]int {
	return maps.Clone(v.state.likeCounts)
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	s.revision++
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Changes returns the changes recorded so far in the transaction.
func (tx *transaction) Changes() []Change {
	return slices.Clone(tx.changes)
}

// Now returns the timestamp captured when the transaction opened.
func (tx *transaction) Now() time.Time {
	return tx.now
}

func (tx *transaction) FindCategory(id int) (Category, bool) {
	return tx.Snapshot().FindCategory(id)
}

func (tx *transaction) FindProduct(id int) (Product, bool) {
	return tx.Snapshot().FindProduct(id)
}

// Load rebuilds the whole tree from a menu payload. Selection and likes are
// reset. Categories enter their lists before products, each in id order.
func (tx *transaction) Load(menu domain.Menu) error {
	state := newMemoryState()
	state.lastCategoryID = tx.state.lastCategoryID
	state.lastProductID = tx.state.lastProductID

	categories := slices.Clone(menu.Categories)
	sort.SliceStable(categories, func(i, j int) bool { return categories[i].CategoryID < categories[j].CategoryID })
	for _, c := range categories {
		if _, dup := state.categories[c.CategoryID]; dup {
			return fmt.Errorf("load menu: category %d listed twice: %w", c.CategoryID, domain.ErrInvalidOperation)
		}
		state.categories[c.CategoryID] = cloneCategory(c)
		state.reserveCategoryID(c.CategoryID)
		state.insertChild(c.Parent(), Child{ID: c.CategoryID, Type: domain.EntityCategory, Order: c.Order})
	}

	products := slices.Clone(menu.Products)
	sort.SliceStable(products, func(i, j int) bool { return products[i].ProductID < products[j].ProductID })
	for _, p := range products {
		if _, dup := state.products[p.ProductID]; dup {
			return fmt.Errorf("load menu: product %d listed twice: %w", p.ProductID, domain.ErrInvalidOperation)
		}
		state.products[p.ProductID] = cloneProduct(p)
		state.reserveProductID(p.ProductID)
		state.insertChild(p.Parent(), Child{ID: p.ProductID, Type: domain.EntityProduct, Order: p.Order})
	}

	tx.state = state
	tx.recordChange(Change{
		Entity: domain.EntityMenu,
		Action: domain.ActionLoad,
		After:  domain.Menu{Categories: categories, Products: products},
	})
	return nil
}

// CreateCategory inserts a category and appends it to its parent's list. A
// zero id is replaced by the next local id. Local ids only grow: the id of a
// deleted category is never handed out again.
func (tx *transaction) CreateCategory(c Category) (Category, error) {
	if c.CategoryID == 0 {
		c.CategoryID = tx.state.nextCategoryID()
	}
	if _, exists := tx.state.categories[c.CategoryID]; exists {
		return Category{}, fmt.Errorf("category %d already exists: %w", c.CategoryID, domain.ErrInvalidOperation)
	}
	if c.ParentID != nil {
		if *c.ParentID == c.CategoryID {
			return Category{}, fmt.Errorf("category %d cannot be its own parent: %w", c.CategoryID, domain.ErrInvalidOperation)
		}
		if _, ok := tx.state.categories[*c.ParentID]; !ok {
			return Category{}, domain.ErrNotFound{Entity: domain.EntityCategory, ID: *c.ParentID}
		}
	}
	tx.state.categories[c.CategoryID] = cloneCategory(c)
	tx.state.reserveCategoryID(c.CategoryID)
	tx.state.insertChild(c.Parent(), Child{ID: c.CategoryID, Type: domain.EntityCategory, Order: c.Order})
	tx.recordChange(Change{Entity: domain.EntityCategory, Action: domain.ActionCreate, After: cloneCategory(c)})
	return cloneCategory(c), nil
}

// UpdateCategory overwrites a category. The stored parent link is kept; an
// update never moves a category between lists.
func (tx *transaction) UpdateCategory(c Category) (Category, error) {
	current, ok := tx.state.categories[c.CategoryID]
	if !ok {
		return Category{}, domain.ErrNotFound{Entity: domain.EntityCategory, ID: c.CategoryID}
	}
	before := cloneCategory(current)
	c.ParentID = cloneCategory(current).ParentID
	tx.state.categories[c.CategoryID] = cloneCategory(c)
	if c.Order != before.Order {
		tx.state.setChildOrder(c.Parent(), domain.EntityCategory, c.CategoryID, c.Order)
	}
	tx.recordChange(Change{Entity: domain.EntityCategory, Action: domain.ActionUpdate, Before: before, After: cloneCategory(c)})
	return cloneCategory(c), nil
}

// DeleteCategory removes a category according to the store's delete policy.
func (tx *transaction) DeleteCategory(id int) error {
	if _, ok := tx.state.categories[id]; !ok {
		return domain.ErrNotFound{Entity: domain.EntityCategory, ID: id}
	}
	if tx.store.policy == DeleteCascade {
		return tx.deleteSubtree(id, make(map[int]struct{}))
	}
	tx.deleteCategory(id)
	return nil
}

func (tx *transaction) deleteSubtree(id int, visiting map[int]struct{}) error {
	if _, cycle := visiting[id]; cycle {
		return fmt.Errorf("delete category %d: %w", id, domain.ErrCyclicHierarchy)
	}
	visiting[id] = struct{}{}
	for _, child := range tx.state.children(domain.ParentOf(id)) {
		switch child.Type {
		case domain.EntityProduct:
			tx.deleteProduct(child.ID)
		case domain.EntityCategory:
			if err := tx.deleteSubtree(child.ID, visiting); err != nil {
				return err
			}
		}
	}
	tx.deleteCategory(id)
	return nil
}

func (tx *transaction) deleteCategory(id int) {
	current := tx.state.categories[id]
	parent := current.Parent()
	if count := tx.state.likeCounts[id]; count > 0 {
		tx.state.adjustLikes(parent, -count)
	}
	delete(tx.state.likeCounts, id)
	delete(tx.state.categories, id)
	tx.state.removeChild(parent, domain.EntityCategory, id)
	tx.state.dropFromSelection(domain.EntityCategory, id)
	tx.recordChange(Change{Entity: domain.EntityCategory, Action: domain.ActionDelete, Before: cloneCategory(current)})
}

// MoveCategory swaps the stored orders of two sibling categories.
func (tx *transaction) MoveCategory(dragID, hoverID int) (Category, Category, error) {
	if dragID == hoverID {
		return Category{}, Category{}, fmt.Errorf("move category %d onto itself: %w", dragID, domain.ErrInvalidOperation)
	}
	drag, ok := tx.state.categories[dragID]
	if !ok {
		return Category{}, Category{}, domain.ErrNotFound{Entity: domain.EntityCategory, ID: dragID}
	}
	hover, ok := tx.state.categories[hoverID]
	if !ok {
		return Category{}, Category{}, domain.ErrNotFound{Entity: domain.EntityCategory, ID: hoverID}
	}
	if drag.Parent() != hover.Parent() {
		return Category{}, Category{}, fmt.Errorf("move category %d across parents %s and %s: %w", dragID, drag.Parent(), hover.Parent(), domain.ErrInvalidOperation)
	}
	dragBefore, hoverBefore := cloneCategory(drag), cloneCategory(hover)
	drag.Order, hover.Order = hover.Order, drag.Order
	tx.state.categories[dragID] = drag
	tx.state.categories[hoverID] = hover
	tx.state.setChildOrder(drag.Parent(), domain.EntityCategory, dragID, drag.Order)
	tx.state.setChildOrder(hover.Parent(), domain.EntityCategory, hoverID, hover.Order)
	tx.recordChange(Change{Entity: domain.EntityCategory, Action: domain.ActionMove, Before: dragBefore, After: cloneCategory(drag)})
	tx.recordChange(Change{Entity: domain.EntityCategory, Action: domain.ActionMove, Before: hoverBefore, After: cloneCategory(hover)})
	return cloneCategory(drag), cloneCategory(hover), nil
}

// CreateProduct inserts a product under an existing category.
func (tx *transaction) CreateProduct(p Product) (Product, error) {
	if p.ProductID == 0 {
		p.ProductID = tx.state.nextProductID()
	}
	if _, exists := tx.state.products[p.ProductID]; exists {
		return Product{}, fmt.Errorf("product %d already exists: %w", p.ProductID, domain.ErrInvalidOperation)
	}
	if _, ok := tx.state.categories[p.CategoryID]; !ok {
		return Product{}, domain.ErrNotFound{Entity: domain.EntityCategory, ID: p.CategoryID}
	}
	tx.state.products[p.ProductID] = cloneProduct(p)
	tx.state.reserveProductID(p.ProductID)
	tx.state.insertChild(p.Parent(), Child{ID: p.ProductID, Type: domain.EntityProduct, Order: p.Order})
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionCreate, After: cloneProduct(p)})
	return cloneProduct(p), nil
}

// UpdateProduct overwrites a product, keeping its stored category.
func (tx *transaction) UpdateProduct(p Product) (Product, error) {
	current, ok := tx.state.products[p.ProductID]
	if !ok {
		return Product{}, domain.ErrNotFound{Entity: domain.EntityProduct, ID: p.ProductID}
	}
	before := cloneProduct(current)
	p.CategoryID = current.CategoryID
	tx.state.products[p.ProductID] = cloneProduct(p)
	if p.Order != before.Order {
		tx.state.setChildOrder(p.Parent(), domain.EntityProduct, p.ProductID, p.Order)
	}
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionUpdate, Before: before, After: cloneProduct(p)})
	return cloneProduct(p), nil
}

// DeleteProduct removes a product and every reference to it.
func (tx *transaction) DeleteProduct(id int) error {
	if _, ok := tx.state.products[id]; !ok {
		return domain.ErrNotFound{Entity: domain.EntityProduct, ID: id}
	}
	tx.deleteProduct(id)
	return nil
}

func (tx *transaction) deleteProduct(id int) {
	current := tx.state.products[id]
	parent := current.Parent()
	if _, liked := tx.state.liked[id]; liked {
		delete(tx.state.liked, id)
		tx.state.adjustLikes(parent, -1)
	}
	delete(tx.state.products, id)
	tx.state.removeChild(parent, domain.EntityProduct, id)
	tx.state.dropFromSelection(domain.EntityProduct, id)
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionDelete, Before: cloneProduct(current)})
}

// MoveProduct swaps the stored orders of two sibling products.
func (tx *transaction) MoveProduct(dragID, hoverID int) (Product, Product, error) {
	if dragID == hoverID {
		return Product{}, Product{}, fmt.Errorf("move product %d onto itself: %w", dragID, domain.ErrInvalidOperation)
	}
	drag, ok := tx.state.products[dragID]
	if !ok {
		return Product{}, Product{}, domain.ErrNotFound{Entity: domain.EntityProduct, ID: dragID}
	}
	hover, ok := tx.state.products[hoverID]
	if !ok {
		return Product{}, Product{}, domain.ErrNotFound{Entity: domain.EntityProduct, ID: hoverID}
	}
	if drag.CategoryID != hover.CategoryID {
		return Product{}, Product{}, fmt.Errorf("move product %d across categories %d and %d: %w", dragID, drag.CategoryID, hover.CategoryID, domain.ErrInvalidOperation)
	}
	dragBefore, hoverBefore := cloneProduct(drag), cloneProduct(hover)
	drag.Order, hover.Order = hover.Order, drag.Order
	tx.state.products[dragID] = drag
	tx.state.products[hoverID] = hover
	tx.state.setChildOrder(drag.Parent(), domain.EntityProduct, dragID, drag.Order)
	tx.state.setChildOrder(hover.Parent(), domain.EntityProduct, hoverID, hover.Order)
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionMove, Before: dragBefore, After: cloneProduct(drag)})
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionMove, Before: hoverBefore, After: cloneProduct(hover)})
	return cloneProduct(drag), cloneProduct(hover), nil
}

// ToggleSelectCategory flips the selection state of a category.
func (tx *transaction) ToggleSelectCategory(id int) (Selection, error) {
	c, ok := tx.state.categories[id]
	if !ok {
		return Selection{}, domain.ErrNotFound{Entity: domain.EntityCategory, ID: id}
	}
	return tx.toggleSelect(domain.EntityCategory, id, c.Parent()), nil
}

// ToggleSelectProduct flips the selection state of a product.
func (tx *transaction) ToggleSelectProduct(id int) (Selection, error) {
	p, ok := tx.state.products[id]
	if !ok {
		return Selection{}, domain.ErrNotFound{Entity: domain.EntityProduct, ID: id}
	}
	return tx.toggleSelect(domain.EntityProduct, id, p.Parent()), nil
}

func (tx *transaction) toggleSelect(entity domain.EntityType, id int, parent ParentKey) Selection {
	before := tx.state.selection.Clone()
	sel := tx.state.selection.Clone()
	if !sel.Empty() && (sel.Type != entity || sel.Parent != parent) {
		sel = Selection{}
	}
	if slices.Contains(sel.IDs, id) {
		sel.IDs = slices.DeleteFunc(sel.IDs, func(v int) bool { return v == id })
		sel.LastSelected = slices.DeleteFunc(sel.LastSelected, func(v int) bool { return v == id })
		if len(sel.IDs) == 0 {
			sel = Selection{}
		}
	} else {
		sel.Type = entity
		sel.Parent = parent
		sel.IDs = append(sel.IDs, id)
		sel.LastSelected = append(sel.LastSelected, id)
	}
	tx.state.selection = sel
	tx.recordChange(Change{Entity: domain.EntitySelection, Action: domain.ActionUpdate, Before: before, After: sel.Clone()})
	return sel.Clone()
}

// ClearSelection drops every selected node.
func (tx *transaction) ClearSelection() {
	if tx.state.selection.Empty() {
		return
	}
	before := tx.state.selection.Clone()
	tx.state.selection = Selection{}
	tx.recordChange(Change{Entity: domain.EntitySelection, Action: domain.ActionUpdate, Before: before, After: Selection{}})
}

// ToggleLikeProduct flips the liked flag of a product and propagates the
// delta to every ancestor category. It returns the new flag.
func (tx *transaction) ToggleLikeProduct(id int) (bool, error) {
	p, ok := tx.state.products[id]
	if !ok {
		return false, domain.ErrNotFound{Entity: domain.EntityProduct, ID: id}
	}
	_, liked := tx.state.liked[id]
	if liked {
		delete(tx.state.liked, id)
		tx.state.adjustLikes(p.Parent(), -1)
	} else {
		tx.state.liked[id] = struct{}{}
		tx.state.adjustLikes(p.Parent(), 1)
	}
	action := domain.ActionCreate
	if liked {
		action = domain.ActionDelete
	}
	tx.recordChange(Change{Entity: domain.EntityLike, Action: action, After: domain.ProductEntity(cloneProduct(p))})
	return !liked, nil
}

// GetCategory retrieves a category by id.
func (s *Store) GetCategory(id int) (Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.categories[id]
	if !ok {
		return Category{}, false
	}
	return cloneCategory(c), true
}

// GetProduct retrieves a product by id.
func (s *Store) GetProduct(id int) (Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.products[id]
	if !ok {
		return Product{}, false
	}
	return cloneProduct(p), true
}

// ListCategories returns all categories sorted by id.
func (s *Store) ListCategories() []Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.ListCategories()
}

// ListProducts returns all products sorted by id.
func (s *Store) ListProducts() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.ListProducts()
}

// ChildrenOf returns the ordered child list of a parent. Unknown and childless
// parents yield an empty slice.
func (s *Store) ChildrenOf(parent ParentKey) []Child {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.children(parent)
}
