package core

import "escala/pkg/domain"

// NewRulesEngine constructs an engine with no rules.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in invariant set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(AssignmentReferencesRule())
	engine.Register(SlotExclusivityRule())
	engine.Register(VolunteerUniquenessRule())
	engine.Register(PhoneUniquenessRule())
	engine.Register(SlotMembershipRule())
	return engine
}
