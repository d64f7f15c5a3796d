package core

import "kittycore/pkg/domain"

type (
	// Kitty aliases domain.Kitty.
	Kitty = domain.Kitty
	// Parents aliases domain.Parents.
	Parents = domain.Parents
	// DNA aliases domain.DNA.
	DNA = domain.DNA
	// EntityID aliases domain.EntityID.
	EntityID = domain.EntityID
	// AccountID aliases domain.AccountID.
	AccountID = domain.AccountID
	// Call aliases domain.Call carrying caller identity and host entropy.
	Call = domain.Call
	// Event aliases domain.Event.
	Event = domain.Event
	// Result aliases domain.Result.
	Result = domain.Result
	// Rule aliases domain.Rule.
	Rule = domain.Rule
	// RulesEngine aliases domain.RulesEngine.
	RulesEngine = domain.RulesEngine
	// Violation aliases domain.Violation.
	Violation = domain.Violation
	// RuleViolationError aliases domain.RuleViolationError.
	RuleViolationError = domain.RuleViolationError
	// Transaction aliases domain.Transaction.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore.
	PersistentStore = domain.PersistentStore
)

// Operation names reported to loggers, metrics, tracers and audit recorders.
const (
	OperationCreate   = "create_kitty"
	OperationBreed    = "breed_kitty"
	OperationTransfer = "transfer_kitty"
)
