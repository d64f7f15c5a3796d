package core

import "kittycore/pkg/domain"

// NewRulesEngine constructs an empty engine instance.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in invariant guards.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(OwnershipConsistencyRule())
	engine.Register(AllocatorBoundsRule())
	engine.Register(LineageIntegrityRule())
	return engine
}
