package core

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"menuboard/pkg/domain"
)

// MenuAPI is the remote menu collaborator.
type MenuAPI interface {
	GetMenu(ctx context.Context) (Menu, error)
	PostCategory(ctx context.Context, category Category) (Category, error)
	PostProduct(ctx context.Context, product Product) (Product, error)
	PatchOrderCategories(ctx context.Context, categories []Category) ([]Category, error)
	PatchOrderProducts(ctx context.Context, products []Product) ([]Product, error)
	DeleteCategories(ctx context.Context, categories []Category) ([]Category, error)
	DeleteProducts(ctx context.Context, products []Product) ([]Product, error)
}

// Toaster receives keyed notifications.
type Toaster interface {
	Post(toast Toast)
}

// FailurePolicy decides what happens to an optimistic reorder the remote
// rejected.
type FailurePolicy int

const (
	// FailureKeep leaves the optimistic orders in place.
	FailureKeep FailurePolicy = iota
	// FailureRollback restores the orders captured before the optimistic write.
	FailureRollback
)

// OperationFailedError reports a remote failure for an operation on a parent.
type OperationFailedError struct {
	Op     string
	Parent ParentKey
	Cause  error
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("%s under %s failed: %v", e.Op, e.Parent, e.Cause)
}

func (e *OperationFailedError) Unwrap() error { return e.Cause }

// LocalApplyError reports that the remote accepted an operation but the local
// store rejected its result. The remote state already reflects the operation.
type LocalApplyError struct {
	Op     string
	Parent ParentKey
	Cause  error
}

func (e *LocalApplyError) Error() string {
	return fmt.Sprintf("%s under %s: remote succeeded, local apply failed: %v", e.Op, e.Parent, e.Cause)
}

func (e *LocalApplyError) Unwrap() error { return e.Cause }

// SyncOption configures a Coordinator.
type SyncOption func(*Coordinator)

// WithFailurePolicy selects the behavior after a rejected reorder.
func WithFailurePolicy(policy FailurePolicy) SyncOption {
	return func(c *Coordinator) { c.policy = policy }
}

// WithSyncLogger routes coordinator logs to logger.
func WithSyncLogger(logger Logger) SyncOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithOperationKeys overrides the toast key generator.
func WithOperationKeys(next func() string) SyncOption {
	return func(c *Coordinator) {
		if next != nil {
			c.newKey = next
		}
	}
}

type parentQueue struct {
	sem     *semaphore.Weighted
	refs    int
	pending bool
}

// Coordinator applies remote-confirmed edits to the service: optimistic
// reorders, remote creates, bulk deletes and menu refreshes. Operations on the
// same parent run one at a time; different parents proceed concurrently.
type Coordinator struct {
	svc     *Service
	api     MenuAPI
	toaster Toaster
	policy  FailurePolicy
	logger  Logger
	newKey  func() string

	mu      sync.Mutex
	queues  map[ParentKey]*parentQueue
	refresh singleflight.Group
}

// NewCoordinator wires a coordinator around svc.
func NewCoordinator(svc *Service, api MenuAPI, toaster Toaster, opts ...SyncOption) *Coordinator {
	c := &Coordinator{
		svc:     svc,
		api:     api,
		toaster: toaster,
		policy:  FailureKeep,
		logger:  svc.logger,
		newKey:  uuid.NewString,
		queues:  make(map[ParentKey]*parentQueue),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// IsLoading reports whether an operation on parent awaits the remote.
func (c *Coordinator) IsLoading(parent ParentKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queues[parent]
	return ok && q.pending
}

func (c *Coordinator) acquire(ctx context.Context, parent ParentKey) (func(), error) {
	c.mu.Lock()
	q, ok := c.queues[parent]
	if !ok {
		q = &parentQueue{sem: semaphore.NewWeighted(1)}
		c.queues[parent] = q
	}
	q.refs++
	c.mu.Unlock()

	if err := q.sem.Acquire(ctx, 1); err != nil {
		c.mu.Lock()
		c.dropRef(parent, q)
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Lock()
	q.pending = true
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		q.pending = false
		c.dropRef(parent, q)
		c.mu.Unlock()
		q.sem.Release(1)
	}, nil
}

func (c *Coordinator) dropRef(parent ParentKey, q *parentQueue) {
	q.refs--
	if q.refs == 0 {
		delete(c.queues, parent)
	}
}

// acquireAll takes several parent queues in a fixed order.
func (c *Coordinator) acquireAll(ctx context.Context, parents []ParentKey) (func(), error) {
	slices.SortFunc(parents, compareParents)
	parents = slices.Compact(parents)
	releases := make([]func(), 0, len(parents))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, parent := range parents {
		release, err := c.acquire(ctx, parent)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

func compareParents(a, b ParentKey) int {
	ai, aok := a.CategoryID()
	bi, bok := b.CategoryID()
	switch {
	case aok == bok:
		return ai - bi
	case !aok:
		return -1
	default:
		return 1
	}
}

func (c *Coordinator) begin(message string) string {
	key := c.newKey()
	c.toaster.Post(Toast{Key: key, Message: message, Type: domain.ToastLoading})
	return key
}

func (c *Coordinator) succeed(key, message string) {
	c.toaster.Post(Toast{Key: key, Message: message, Type: domain.ToastSuccess})
}

func (c *Coordinator) fail(key, op string, parent ParentKey, cause error) error {
	c.logger.Warn("remote operation failed", "operation", op, "parent", parent.String(), "error", cause)
	c.toaster.Post(Toast{Key: key, Message: domain.MessageFailure, Type: domain.ToastError})
	return &OperationFailedError{Op: op, Parent: parent, Cause: cause}
}

func (c *Coordinator) failLocal(key, op string, parent ParentKey, cause error) error {
	c.logger.Error("local apply failed", "operation", op, "parent", parent.String(), "error", cause)
	c.toaster.Post(Toast{Key: key, Message: domain.MessageFailure, Type: domain.ToastError})
	return &LocalApplyError{Op: op, Parent: parent, Cause: cause}
}

// MoveCategory swaps two sibling categories locally, persists the new orders
// remotely and reconciles the returned records.
func (c *Coordinator) MoveCategory(ctx context.Context, dragID, hoverID int) ([]Category, error) {
	const op = "move_category"
	drag, ok := c.svc.FindCategory(dragID)
	if !ok {
		return nil, ErrNotFound{Entity: EntityCategory, ID: dragID}
	}
	parent := drag.Parent()
	release, err := c.acquire(ctx, parent)
	if err != nil {
		return nil, err
	}
	defer release()

	generation := c.svc.LoadGeneration()
	before := make(map[int]int, 2)
	for _, id := range []int{dragID, hoverID} {
		if current, ok := c.svc.FindCategory(id); ok {
			before[id] = current.Order
		}
	}
	movedDrag, movedHover, _, err := c.svc.MoveCategory(ctx, dragID, hoverID)
	if err != nil {
		return nil, err
	}

	key := c.begin(domain.MessageSaving)
	saved, err := c.api.PatchOrderCategories(ctx, []Category{movedDrag, movedHover})
	if err != nil {
		if c.policy == FailureRollback && c.svc.LoadGeneration() == generation {
			if _, rbErr := c.svc.restoreCategoryOrders(ctx, before); rbErr != nil {
				c.logger.Error("order rollback failed", "operation", op, "error", rbErr)
			}
		}
		return nil, c.fail(key, op, parent, err)
	}
	if c.svc.LoadGeneration() != generation {
		c.logger.Info("skipping stale reconciliation", "operation", op, "parent", parent.String())
		c.succeed(key, domain.MessageOrderSaved)
		return saved, nil
	}
	if _, err := c.svc.reconcileCategories(ctx, saved); err != nil {
		return saved, c.failLocal(key, op, parent, fmt.Errorf("reconcile categories: %w", err))
	}
	c.succeed(key, domain.MessageOrderSaved)
	return saved, nil
}

// MoveProduct swaps two sibling products locally, persists the new orders
// remotely and reconciles the returned records.
func (c *Coordinator) MoveProduct(ctx context.Context, dragID, hoverID int) ([]Product, error) {
	const op = "move_product"
	drag, ok := c.svc.FindProduct(dragID)
	if !ok {
		return nil, ErrNotFound{Entity: EntityProduct, ID: dragID}
	}
	parent := drag.Parent()
	release, err := c.acquire(ctx, parent)
	if err != nil {
		return nil, err
	}
	defer release()

	generation := c.svc.LoadGeneration()
	before := make(map[int]int, 2)
	for _, id := range []int{dragID, hoverID} {
		if current, ok := c.svc.FindProduct(id); ok {
			before[id] = current.Order
		}
	}
	movedDrag, movedHover, _, err := c.svc.MoveProduct(ctx, dragID, hoverID)
	if err != nil {
		return nil, err
	}

	key := c.begin(domain.MessageSaving)
	saved, err := c.api.PatchOrderProducts(ctx, []Product{movedDrag, movedHover})
	if err != nil {
		if c.policy == FailureRollback && c.svc.LoadGeneration() == generation {
			if _, rbErr := c.svc.restoreProductOrders(ctx, before); rbErr != nil {
				c.logger.Error("order rollback failed", "operation", op, "error", rbErr)
			}
		}
		return nil, c.fail(key, op, parent, err)
	}
	if c.svc.LoadGeneration() != generation {
		c.logger.Info("skipping stale reconciliation", "operation", op, "parent", parent.String())
		c.succeed(key, domain.MessageOrderSaved)
		return saved, nil
	}
	if _, err := c.svc.reconcileProducts(ctx, saved); err != nil {
		return saved, c.failLocal(key, op, parent, fmt.Errorf("reconcile products: %w", err))
	}
	c.succeed(key, domain.MessageOrderSaved)
	return saved, nil
}

// CreateCategory posts a category and inserts the confirmed record locally.
func (c *Coordinator) CreateCategory(ctx context.Context, category Category) (Category, error) {
	const op = "create_category"
	parent := category.Parent()
	release, err := c.acquire(ctx, parent)
	if err != nil {
		return Category{}, err
	}
	defer release()

	generation := c.svc.LoadGeneration()
	key := c.begin(domain.MessageCreating)
	created, err := c.api.PostCategory(ctx, category)
	if err != nil {
		return Category{}, c.fail(key, op, parent, err)
	}
	if c.svc.LoadGeneration() == generation {
		local, _, err := c.svc.CreateCategory(ctx, created)
		if err != nil {
			return created, c.failLocal(key, op, parent, err)
		}
		created = local
	}
	c.succeed(key, domain.MessageCategoryCreated)
	return created, nil
}

// CreateProduct posts a product and inserts the confirmed record locally.
func (c *Coordinator) CreateProduct(ctx context.Context, product Product) (Product, error) {
	const op = "create_product"
	parent := product.Parent()
	release, err := c.acquire(ctx, parent)
	if err != nil {
		return Product{}, err
	}
	defer release()

	generation := c.svc.LoadGeneration()
	key := c.begin(domain.MessageCreating)
	created, err := c.api.PostProduct(ctx, product)
	if err != nil {
		return Product{}, c.fail(key, op, parent, err)
	}
	if c.svc.LoadGeneration() == generation {
		local, _, err := c.svc.CreateProduct(ctx, created)
		if err != nil {
			return created, c.failLocal(key, op, parent, err)
		}
		created = local
	}
	c.succeed(key, domain.MessageProductCreated)
	return created, nil
}

// DeleteCategories deletes categories remotely, then removes the records the
// remote confirmed.
func (c *Coordinator) DeleteCategories(ctx context.Context, ids []int) ([]Category, error) {
	const op = "delete_categories"
	records := make([]Category, 0, len(ids))
	parents := make([]ParentKey, 0, len(ids))
	for _, id := range ids {
		category, ok := c.svc.FindCategory(id)
		if !ok {
			return nil, ErrNotFound{Entity: EntityCategory, ID: id}
		}
		records = append(records, category)
		parents = append(parents, category.Parent())
	}
	if len(records) == 0 {
		return nil, nil
	}
	release, err := c.acquireAll(ctx, parents)
	if err != nil {
		return nil, err
	}
	defer release()

	generation := c.svc.LoadGeneration()
	key := c.begin(domain.MessageDeleting)
	deleted, err := c.api.DeleteCategories(ctx, records)
	if err != nil {
		return nil, c.fail(key, op, records[0].Parent(), err)
	}
	if c.svc.LoadGeneration() == generation {
		confirmed := make([]int, 0, len(deleted))
		for _, category := range deleted {
			confirmed = append(confirmed, category.CategoryID)
		}
		if _, err := c.svc.DeleteCategories(ctx, confirmed); err != nil {
			return deleted, c.failLocal(key, op, records[0].Parent(), err)
		}
	}
	c.succeed(key, domain.MessageCategoriesDeleted)
	return deleted, nil
}

// DeleteProducts deletes products remotely, then removes the records the
// remote confirmed.
func (c *Coordinator) DeleteProducts(ctx context.Context, ids []int) ([]Product, error) {
	const op = "delete_products"
	records := make([]Product, 0, len(ids))
	parents := make([]ParentKey, 0, len(ids))
	for _, id := range ids {
		product, ok := c.svc.FindProduct(id)
		if !ok {
			return nil, ErrNotFound{Entity: EntityProduct, ID: id}
		}
		records = append(records, product)
		parents = append(parents, product.Parent())
	}
	if len(records) == 0 {
		return nil, nil
	}
	release, err := c.acquireAll(ctx, parents)
	if err != nil {
		return nil, err
	}
	defer release()

	generation := c.svc.LoadGeneration()
	key := c.begin(domain.MessageDeleting)
	deleted, err := c.api.DeleteProducts(ctx, records)
	if err != nil {
		return nil, c.fail(key, op, records[0].Parent(), err)
	}
	if c.svc.LoadGeneration() == generation {
		confirmed := make([]int, 0, len(deleted))
		for _, product := range deleted {
			confirmed = append(confirmed, product.ProductID)
		}
		if _, err := c.svc.DeleteProducts(ctx, confirmed); err != nil {
			return deleted, c.failLocal(key, op, records[0].Parent(), err)
		}
	}
	c.succeed(key, domain.MessageProductsDeleted)
	return deleted, nil
}

// Refresh fetches the remote menu and loads it. Concurrent calls share one
// remote fetch.
func (c *Coordinator) Refresh(ctx context.Context) (Menu, error) {
	v, err, _ := c.refresh.Do("menu", func() (any, error) {
		return c.doRefresh(ctx)
	})
	if err != nil {
		return Menu{}, err
	}
	return v.(Menu), nil
}

func (c *Coordinator) doRefresh(ctx context.Context) (Menu, error) {
	const op = "refresh_menu"
	release, err := c.acquire(ctx, RootKey)
	if err != nil {
		return Menu{}, err
	}
	defer release()

	key := c.begin(domain.MessageLoading)
	menu, err := c.api.GetMenu(ctx)
	if err != nil {
		return Menu{}, c.fail(key, op, RootKey, err)
	}
	if _, err := c.svc.Load(ctx, menu); err != nil {
		return Menu{}, c.failLocal(key, op, RootKey, err)
	}
	c.succeed(key, domain.MessageMenuLoaded)
	return menu, nil
}
