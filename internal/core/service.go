package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"menuboard/internal/blob"
	"menuboard/internal/eventstream"
	"menuboard/pkg/domain"
)

// ChangeFeed streams committed changes keyed by entity type.
type ChangeFeed = eventstream.InMemory[EntityType, domain.ChangeEvent]

// ErrBlobStoreUnavailable is returned by UploadPictogram when the service has
// no blob store.
var ErrBlobStoreUnavailable = errors.New("core: blob store not configured")

// PictogramURLExpiry is the validity of presigned pictogram URLs.
const PictogramURLExpiry = 7 * 24 * time.Hour

type operationMeta struct {
	entity EntityType
	action Action
}

var operationCatalog = map[string]operationMeta{
	"load_menu":              {EntityMenu, ActionLoad},
	"create_category":        {EntityCategory, ActionCreate},
	"update_category":        {EntityCategory, ActionUpdate},
	"delete_category":        {EntityCategory, ActionDelete},
	"delete_categories":      {EntityCategory, ActionDelete},
	"move_category":          {EntityCategory, ActionMove},
	"set_category_enabled":   {EntityCategory, ActionUpdate},
	"create_product":         {EntityProduct, ActionCreate},
	"update_product":         {EntityProduct, ActionUpdate},
	"delete_product":         {EntityProduct, ActionDelete},
	"delete_products":        {EntityProduct, ActionDelete},
	"move_product":           {EntityProduct, ActionMove},
	"set_product_enabled":    {EntityProduct, ActionUpdate},
	"upload_pictogram":       {EntityProduct, ActionUpdate},
	"toggle_select_category": {EntitySelection, ActionUpdate},
	"toggle_select_product":  {EntitySelection, ActionUpdate},
	"clear_selection":        {EntitySelection, ActionUpdate},
	"toggle_like_product":    {EntityLike, ActionUpdate},
	"reconcile_categories":   {EntityCategory, ActionUpdate},
	"reconcile_products":     {EntityProduct, ActionUpdate},
	"restore_category_order": {EntityCategory, ActionMove},
	"restore_product_order":  {EntityProduct, ActionMove},
}

// Service exposes the tree commands and read models over a persistent store.
type Service struct {
	store     PersistentStore
	engine    *RulesEngine
	selectors *Selectors
	feed      *ChangeFeed
	blobs     blob.Store
	clock     Clock
	now       func() time.Time
	logger    Logger
	audit     AuditRecorder
	metrics   MetricsRecorder
	tracer    Tracer
	loads     atomic.Uint64
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return &Service{
		store:     store,
		engine:    extractRulesEngine(store),
		selectors: NewSelectors(store, DefaultSelectorCacheSize),
		feed:      eventstream.NewInMemory[EntityType, domain.ChangeEvent](options.feedBuffer),
		blobs:     options.blobs,
		clock:     options.clock,
		now:       selectNowFunc(store, options.clock),
		logger:    options.logger,
		audit:     options.audit,
		metrics:   options.metrics,
		tracer:    options.tracer,
	}
}

// NewInMemoryService creates a service and in-memory store. A nil engine
// selects NewDefaultRulesEngine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(NewMemoryStore(engine), opts...)
}

func extractRulesEngine(store PersistentStore) *RulesEngine {
	if provider, ok := store.(interface{ RulesEngine() *RulesEngine }); ok {
		return provider.RulesEngine()
	}
	return nil
}

func selectNowFunc(store PersistentStore, clock Clock) func() time.Time {
	if provider, ok := store.(interface{ NowFunc() func() time.Time }); ok {
		if fn := provider.NowFunc(); fn != nil {
			return func() time.Time { return fn().UTC() }
		}
	}
	if clock != nil {
		return clock.Now
	}
	return func() time.Time { return time.Now().UTC() }
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// RulesEngine returns the engine evaluated by the store, when it exposes one.
func (s *Service) RulesEngine() *RulesEngine { return s.engine }

// Selectors returns the memoized read models.
func (s *Service) Selectors() *Selectors { return s.selectors }

// Changes subscribes to committed changes. A nil filter receives every entity
// type. The channel closes when ctx ends or the service closes.
func (s *Service) Changes(ctx context.Context, filter eventstream.TopicFilter[EntityType]) (<-chan eventstream.Event[EntityType, domain.ChangeEvent], error) {
	return s.feed.Subscribe(ctx, filter)
}

// Close stops the change feed.
func (s *Service) Close() {
	s.feed.Shutdown()
}

func (s *Service) run(ctx context.Context, op string, fn func(tx Transaction) (int, error)) (Result, error) {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)

	var (
		entityID int
		changes  []Change
	)
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		id, err := fn(tx)
		entityID = id
		if err != nil {
			return err
		}
		changes = tx.Changes()
		return nil
	})
	duration := s.clock.Now().Sub(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	if err != nil {
		s.logger.Error("core operation failed", "operation", op, "error", err)
		s.recordAuditError(ctx, op, entityID, duration, err)
		return res, err
	}
	for _, v := range res.Violations {
		s.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "severity", v.Severity, "message", v.Message)
	}
	s.logger.Debug("core operation committed", "operation", op, "changes", len(changes), "duration", duration)
	s.recordAuditSuccess(ctx, op, entityID, duration)
	s.publish(changes)
	return res, nil
}

func (s *Service) publish(changes []Change) {
	if len(changes) == 0 {
		return
	}
	revision := s.store.Revision()
	committed := s.now()
	for _, change := range changes {
		event, err := domain.NewChangeEvent(revision, change, committed)
		if err != nil {
			s.logger.Warn("change event encoding failed", "entity", change.Entity, "action", change.Action, "error", err)
			continue
		}
		s.feed.Publish(change.Entity, event)
	}
}

func (s *Service) recordAuditSuccess(ctx context.Context, op string, entityID int, duration time.Duration) {
	s.recordAudit(ctx, op, entityID, duration, nil)
}

func (s *Service) recordAuditError(ctx context.Context, op string, entityID int, duration time.Duration, err error) {
	s.recordAudit(ctx, op, entityID, duration, err)
}

func (s *Service) recordAudit(ctx context.Context, op string, entityID int, duration time.Duration, err error) {
	meta, ok := operationCatalog[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// Load replaces the whole tree with menu.
func (s *Service) Load(ctx context.Context, menu Menu) (Result, error) {
	res, err := s.run(ctx, "load_menu", func(tx Transaction) (int, error) {
		return 0, tx.Load(menu)
	})
	if err == nil {
		s.loads.Add(1)
	}
	return res, err
}

// LoadGeneration counts the successful loads. Work started under an older
// generation must not write back into the tree.
func (s *Service) LoadGeneration() uint64 {
	return s.loads.Load()
}

// CreateCategory persists a new category.
func (s *Service) CreateCategory(ctx context.Context, category Category) (Category, Result, error) {
	var created Category
	res, err := s.run(ctx, "create_category", func(tx Transaction) (int, error) {
		var err error
		created, err = tx.CreateCategory(category)
		return created.CategoryID, err
	})
	return created, res, err
}

// UpdateCategory overwrites a category. Its parent link is never changed.
func (s *Service) UpdateCategory(ctx context.Context, category Category) (Category, Result, error) {
	var updated Category
	res, err := s.run(ctx, "update_category", func(tx Transaction) (int, error) {
		var err error
		updated, err = tx.UpdateCategory(category)
		return category.CategoryID, err
	})
	return updated, res, err
}

// SetCategoryEnabled flips the enabled flag of a category.
func (s *Service) SetCategoryEnabled(ctx context.Context, id int, enabled bool) (Category, Result, error) {
	var updated Category
	res, err := s.run(ctx, "set_category_enabled", func(tx Transaction) (int, error) {
		current, ok := tx.FindCategory(id)
		if !ok {
			return id, ErrNotFound{Entity: EntityCategory, ID: id}
		}
		current.Enabled = enabled
		var err error
		updated, err = tx.UpdateCategory(current)
		return id, err
	})
	return updated, res, err
}

// DeleteCategory removes a category following the store's delete policy.
func (s *Service) DeleteCategory(ctx context.Context, id int) (Result, error) {
	return s.run(ctx, "delete_category", func(tx Transaction) (int, error) {
		return id, tx.DeleteCategory(id)
	})
}

// DeleteCategories removes several categories in one transaction. Ids that
// are already gone, for instance removed by a cascade, are skipped.
func (s *Service) DeleteCategories(ctx context.Context, ids []int) (Result, error) {
	return s.run(ctx, "delete_categories", func(tx Transaction) (int, error) {
		for _, id := range ids {
			if _, ok := tx.FindCategory(id); !ok {
				continue
			}
			if err := tx.DeleteCategory(id); err != nil {
				return id, err
			}
		}
		return 0, nil
	})
}

// MoveCategory swaps the display orders of two sibling categories.
func (s *Service) MoveCategory(ctx context.Context, dragID, hoverID int) (Category, Category, Result, error) {
	var drag, hover Category
	res, err := s.run(ctx, "move_category", func(tx Transaction) (int, error) {
		var err error
		drag, hover, err = tx.MoveCategory(dragID, hoverID)
		return dragID, err
	})
	return drag, hover, res, err
}

// CreateProduct persists a new product.
func (s *Service) CreateProduct(ctx context.Context, product Product) (Product, Result, error) {
	var created Product
	res, err := s.run(ctx, "create_product", func(tx Transaction) (int, error) {
		var err error
		created, err = tx.CreateProduct(product)
		return created.ProductID, err
	})
	return created, res, err
}

// UpdateProduct overwrites a product. Its category is never changed.
func (s *Service) UpdateProduct(ctx context.Context, product Product) (Product, Result, error) {
	var updated Product
	res, err := s.run(ctx, "update_product", func(tx Transaction) (int, error) {
		var err error
		updated, err = tx.UpdateProduct(product)
		return product.ProductID, err
	})
	return updated, res, err
}

// SetProductEnabled flips the enabled flag of every listed product.
func (s *Service) SetProductEnabled(ctx context.Context, ids []int, enabled bool) ([]Product, Result, error) {
	var updated []Product
	res, err := s.run(ctx, "set_product_enabled", func(tx Transaction) (int, error) {
		updated = updated[:0]
		for _, id := range ids {
			current, ok := tx.FindProduct(id)
			if !ok {
				return id, ErrNotFound{Entity: EntityProduct, ID: id}
			}
			current.Enabled = enabled
			p, err := tx.UpdateProduct(current)
			if err != nil {
				return id, err
			}
			updated = append(updated, p)
		}
		return 0, nil
	})
	return updated, res, err
}

// DeleteProduct removes a product.
func (s *Service) DeleteProduct(ctx context.Context, id int) (Result, error) {
	return s.run(ctx, "delete_product", func(tx Transaction) (int, error) {
		return id, tx.DeleteProduct(id)
	})
}

// DeleteProducts removes several products in one transaction, skipping ids
// that no longer exist.
func (s *Service) DeleteProducts(ctx context.Context, ids []int) (Result, error) {
	return s.run(ctx, "delete_products", func(tx Transaction) (int, error) {
		for _, id := range ids {
			if _, ok := tx.FindProduct(id); !ok {
				continue
			}
			if err := tx.DeleteProduct(id); err != nil {
				return id, err
			}
		}
		return 0, nil
	})
}

// MoveProduct swaps the display orders of two sibling products.
func (s *Service) MoveProduct(ctx context.Context, dragID, hoverID int) (Product, Product, Result, error) {
	var drag, hover Product
	res, err := s.run(ctx, "move_product", func(tx Transaction) (int, error) {
		var err error
		drag, hover, err = tx.MoveProduct(dragID, hoverID)
		return dragID, err
	})
	return drag, hover, res, err
}

// ToggleSelectCategory toggles a category in the selection.
func (s *Service) ToggleSelectCategory(ctx context.Context, id int) (Selection, Result, error) {
	var sel Selection
	res, err := s.run(ctx, "toggle_select_category", func(tx Transaction) (int, error) {
		var err error
		sel, err = tx.ToggleSelectCategory(id)
		return id, err
	})
	return sel, res, err
}

// ToggleSelectProduct toggles a product in the selection.
func (s *Service) ToggleSelectProduct(ctx context.Context, id int) (Selection, Result, error) {
	var sel Selection
	res, err := s.run(ctx, "toggle_select_product", func(tx Transaction) (int, error) {
		var err error
		sel, err = tx.ToggleSelectProduct(id)
		return id, err
	})
	return sel, res, err
}

// ClearSelection empties the selection.
func (s *Service) ClearSelection(ctx context.Context) (Result, error) {
	return s.run(ctx, "clear_selection", func(tx Transaction) (int, error) {
		tx.ClearSelection()
		return 0, nil
	})
}

// ToggleLikeProduct flips the liked flag of a product and reports the new
// state.
func (s *Service) ToggleLikeProduct(ctx context.Context, id int) (bool, Result, error) {
	var liked bool
	res, err := s.run(ctx, "toggle_like_product", func(tx Transaction) (int, error) {
		var err error
		liked, err = tx.ToggleLikeProduct(id)
		return id, err
	})
	return liked, res, err
}

// UploadPictogram stores an image for a product and records its URL.
func (s *Service) UploadPictogram(ctx context.Context, productID int, r io.Reader, contentType string) (Product, Result, error) {
	if s.blobs == nil {
		return Product{}, Result{}, ErrBlobStoreUnavailable
	}
	if _, ok := s.store.GetProduct(productID); !ok {
		return Product{}, Result{}, ErrNotFound{Entity: EntityProduct, ID: productID}
	}
	key := path.Join("pictograms", strconv.Itoa(productID), uuid.NewString())
	info, err := s.blobs.Put(ctx, key, r, blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"product": strconv.Itoa(productID)},
	})
	if err != nil {
		return Product{}, Result{}, fmt.Errorf("store pictogram: %w", err)
	}
	url, err := s.blobs.PresignURL(ctx, key, blob.SignedURLOptions{Method: "GET", Expiry: PictogramURLExpiry})
	switch {
	case errors.Is(err, blob.ErrUnsupported):
		url = info.URL
		if url == "" {
			url = key
		}
	case err != nil:
		s.discardBlob(ctx, key)
		return Product{}, Result{}, fmt.Errorf("presign pictogram: %w", err)
	}

	var updated Product
	res, err := s.run(ctx, "upload_pictogram", func(tx Transaction) (int, error) {
		current, ok := tx.FindProduct(productID)
		if !ok {
			return productID, ErrNotFound{Entity: EntityProduct, ID: productID}
		}
		current.PictogramURL = &url
		var err error
		updated, err = tx.UpdateProduct(current)
		return productID, err
	})
	if err != nil {
		s.discardBlob(ctx, key)
	}
	return updated, res, err
}

func (s *Service) discardBlob(ctx context.Context, key string) {
	if _, err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn("pictogram cleanup failed", "key", key, "error", err)
	}
}

// FindCategory returns a committed category.
func (s *Service) FindCategory(id int) (Category, bool) { return s.store.GetCategory(id) }

// FindProduct returns a committed product.
func (s *Service) FindProduct(id int) (Product, bool) { return s.store.GetProduct(id) }

// FindEntity returns a committed category or product wrapped as an Entity.
func (s *Service) FindEntity(entity EntityType, id int) (Entity, bool) {
	switch entity {
	case EntityCategory:
		if c, ok := s.store.GetCategory(id); ok {
			return domain.CategoryEntity(c), true
		}
	case EntityProduct:
		if p, ok := s.store.GetProduct(id); ok {
			return domain.ProductEntity(p), true
		}
	}
	return Entity{}, false
}

// ChildrenOf returns the ordered children of parent.
func (s *Service) ChildrenOf(parent ParentKey) []Child { return s.store.ChildrenOf(parent) }

// Selection returns the committed selection.
func (s *Service) Selection(ctx context.Context) (Selection, error) {
	var sel Selection
	err := s.store.View(ctx, func(view TransactionView) error {
		sel = view.Selection()
		return nil
	})
	return sel, err
}

// IsLiked reports whether a product is liked.
func (s *Service) IsLiked(ctx context.Context, productID int) (bool, error) {
	var liked bool
	err := s.store.View(ctx, func(view TransactionView) error {
		liked = view.IsLiked(productID)
		return nil
	})
	return liked, err
}

// LikeCount returns the number of liked products beneath a category.
func (s *Service) LikeCount(ctx context.Context, categoryID int) (int, error) {
	var count int
	err := s.store.View(ctx, func(view TransactionView) error {
		count = view.LikeCount(categoryID)
		return nil
	})
	return count, err
}

func (s *Service) reconcileCategories(ctx context.Context, records []Category) (Result, error) {
	return s.run(ctx, "reconcile_categories", func(tx Transaction) (int, error) {
		for _, c := range records {
			if _, ok := tx.FindCategory(c.CategoryID); !ok {
				continue
			}
			if _, err := tx.UpdateCategory(c); err != nil {
				return c.CategoryID, err
			}
		}
		return 0, nil
	})
}

func (s *Service) reconcileProducts(ctx context.Context, records []Product) (Result, error) {
	return s.run(ctx, "reconcile_products", func(tx Transaction) (int, error) {
		for _, p := range records {
			if _, ok := tx.FindProduct(p.ProductID); !ok {
				continue
			}
			if _, err := tx.UpdateProduct(p); err != nil {
				return p.ProductID, err
			}
		}
		return 0, nil
	})
}

// restoreCategoryOrders writes previous display orders back, leaving every
// other field as currently stored.
func (s *Service) restoreCategoryOrders(ctx context.Context, orders map[int]int) (Result, error) {
	return s.run(ctx, "restore_category_order", func(tx Transaction) (int, error) {
		for _, id := range sortedIDs(orders) {
			current, ok := tx.FindCategory(id)
			if !ok {
				continue
			}
			current.Order = orders[id]
			if _, err := tx.UpdateCategory(current); err != nil {
				return id, err
			}
		}
		return 0, nil
	})
}

func (s *Service) restoreProductOrders(ctx context.Context, orders map[int]int) (Result, error) {
	return s.run(ctx, "restore_product_order", func(tx Transaction) (int, error) {
		for _, id := range sortedIDs(orders) {
			current, ok := tx.FindProduct(id)
			if !ok {
				continue
			}
			current.Order = orders[id]
			if _, err := tx.UpdateProduct(current); err != nil {
				return id, err
			}
		}
		return 0, nil
	})
}

func sortedIDs(m map[int]int) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
