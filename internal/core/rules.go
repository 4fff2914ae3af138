package core

import "menuboard/pkg/domain"

type (
	// Rule aliases domain.Rule.
	Rule = domain.Rule
	// RulesEngine aliases domain.RulesEngine.
	RulesEngine = domain.RulesEngine
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in tree
// invariants.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewAdjacencyConsistencyRule())
	engine.Register(NewHierarchyAcyclicRule())
	engine.Register(NewSelectionExclusivityRule())
	engine.Register(NewLikeIntegrityRule())
	engine.Register(NewOrphanedEntitiesRule())
	return engine
}
