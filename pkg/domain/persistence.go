package domain

import "context"

// Transaction exposes the tree commands that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	Changes() []Change
	Load(Menu) error
	CreateCategory(Category) (Category, error)
	UpdateCategory(Category) (Category, error)
	DeleteCategory(id int) error
	MoveCategory(dragID, hoverID int) (Category, Category, error)
	CreateProduct(Product) (Product, error)
	UpdateProduct(Product) (Product, error)
	DeleteProduct(id int) error
	MoveProduct(dragID, hoverID int) (Product, Product, error)
	ToggleSelectCategory(id int) (Selection, error)
	ToggleSelectProduct(id int) (Selection, error)
	ClearSelection()
	ToggleLikeProduct(id int) (bool, error)
	FindCategory(id int) (Category, bool)
	FindProduct(id int) (Product, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// selectors.
type TransactionView interface {
	ListCategories() []Category
	ListProducts() []Product
	FindCategory(id int) (Category, bool)
	FindProduct(id int) (Product, bool)
	ChildrenOf(parent ParentKey) []Child
	ParentKeys() []ParentKey
	Selection() Selection
	IsLiked(productID int) bool
	LikedProducts() []int
	LikeCount(categoryID int) int
	LikeCounts() map[int]int
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetCategory(id int) (Category, bool)
	GetProduct(id int) (Product, bool)
	ListCategories() []Category
	ListProducts() []Product
	ChildrenOf(parent ParentKey) []Child
	Revision() uint64
}
