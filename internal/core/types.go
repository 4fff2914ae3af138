package core

import "menuboard/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Category           = domain.Category
	Product            = domain.Product
	Entity             = domain.Entity
	Child              = domain.Child
	ParentKey          = domain.ParentKey
	Selection          = domain.Selection
	Menu               = domain.Menu
	Toast              = domain.Toast
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	ErrNotFound        = domain.ErrNotFound
)

const (
	EntityCategory  = domain.EntityCategory
	EntityProduct   = domain.EntityProduct
	EntitySelection = domain.EntitySelection
	EntityLike      = domain.EntityLike
	EntityMenu      = domain.EntityMenu
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
	ActionMove   = domain.ActionMove
	ActionLoad   = domain.ActionLoad
)

// RootKey is the virtual root parent.
var RootKey = domain.RootKey
