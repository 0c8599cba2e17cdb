package core

import "escala/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	Volunteer          = domain.Volunteer
	Assignment         = domain.Assignment
	Role               = domain.Role
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	PropagationReport  = domain.PropagationReport
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
	RulesEngine        = domain.RulesEngine
)

const (
	EntityVolunteer  = domain.EntityVolunteer
	EntityService    = domain.EntityService
	EntityAssignment = domain.EntityAssignment
	EntitySlot       = domain.EntitySlot
	EntityCatalog    = domain.EntityCatalog
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
)

const (
	RoleAdmin = domain.RoleAdmin
	RoleServo = domain.RoleServo
)
