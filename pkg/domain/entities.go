// Package domain defines the menu tree records, value types, and rule
// evaluation primitives used by menuboard.
package domain

import "fmt"

// EntityType identifies the type of record stored in the menu tree.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityCategory identifies a category node.
	EntityCategory EntityType = "category"
	// EntityProduct identifies a product leaf.
	EntityProduct EntityType = "product"
	// EntitySelection identifies the selection record captured in changes.
	EntitySelection EntityType = "selection"
	EntityLike      EntityType = "like"
	// EntityMenu identifies a wholesale menu load.
	EntityMenu EntityType = "menu"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Category is an inner node of the menu tree. A nil ParentID marks a root
// category.
type Category struct {
	CategoryID  int    `json:"categoryId"`
	ParentID    *int   `json:"parentId"`
	Description string `json:"description"`
	Order       int    `json:"order"`
	Enabled     bool   `json:"enabled"`
}

// Product is a leaf of the menu tree. Its parent is always a category.
type Product struct {
	ProductID    int      `json:"productId"`
	CategoryID   int      `json:"categoryId"`
	Label        string   `json:"label"`
	Description  *string  `json:"description"`
	Enabled      bool     `json:"enabled"`
	Order        int      `json:"order"`
	Price1       *float64 `json:"price1"`
	Price2       *float64 `json:"price2"`
	Price3       *float64 `json:"price3"`
	Price4       *float64 `json:"price4"`
	Price5       *float64 `json:"price5"`
	Price1Label  *string  `json:"price1Label"`
	Price2Label  *string  `json:"price2Label"`
	Price3Label  *string  `json:"price3Label"`
	Price4Label  *string  `json:"price4Label"`
	Price5Label  *string  `json:"price5Label"`
	PictogramURL *string  `json:"pictogramUrl"`
}

// PriceSlot is one of the five optional price/label pairs of a product.
type PriceSlot struct {
	Price *float64
	Label *string
}

// Prices returns the five price slots in display order.
func (p Product) Prices() [5]PriceSlot {
	return [5]PriceSlot{
		{Price: p.Price1, Label: p.Price1Label},
		{Price: p.Price2, Label: p.Price2Label},
		{Price: p.Price3, Label: p.Price3Label},
		{Price: p.Price4, Label: p.Price4Label},
		{Price: p.Price5, Label: p.Price5Label},
	}
}

// Parent returns the adjacency key the category is listed under.
func (c Category) Parent() ParentKey {
	return ParentKeyFor(c.ParentID)
}

// Parent returns the adjacency key the product is listed under.
func (p Product) Parent() ParentKey {
	return ParentOf(p.CategoryID)
}

// Entity is the tagged union used where categories and products are handled
// uniformly. Exactly one of Category or Product is set, matching Type.
type Entity struct {
	Type     EntityType `json:"type"`
	ID       int        `json:"id"`
	ParentID *int       `json:"parentId"`
	Category *Category  `json:"category,omitempty"`
	Product  *Product   `json:"product,omitempty"`
}

// CategoryEntity wraps a category.
func CategoryEntity(c Category) Entity {
	return Entity{Type: EntityCategory, ID: c.CategoryID, ParentID: c.ParentID, Category: &c}
}

// ProductEntity wraps a product.
func ProductEntity(p Product) Entity {
	parent := p.CategoryID
	return Entity{Type: EntityProduct, ID: p.ProductID, ParentID: &parent, Product: &p}
}

// Parent returns the adjacency key of the wrapped record.
func (e Entity) Parent() ParentKey {
	return ParentKeyFor(e.ParentID)
}

// Child is an adjacency list entry.
type Child struct {
	ID    int        `json:"id"`
	Type  EntityType `json:"type"`
	Order int        `json:"order"`
}

// Menu is the bulk payload used to rebuild the tree.
type Menu struct {
	Categories []Category `json:"categories"`
	Products   []Product  `json:"products"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported operations captured in the change feed.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	// ActionMove indicates two siblings swapped their order.
	ActionMove Action = "move"
	ActionLoad Action = "load"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID int
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return fmt.Sprintf("transaction blocked by rules: %s: %s", v.Rule, v.Message)
		}
	}
	return "transaction blocked by rules"
}
