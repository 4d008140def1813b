package domain

import (
	"context"
	"errors"
)

// ErrConcurrentModification is returned when an optimistic version check
// fails while saving an aggregate.
var ErrConcurrentModification = errors.New("aggregate was modified concurrently")

// ProcessRepository defines persistence for service processes. Save variants
// run inside a transaction and append the aggregate's domain events to the
// outbox; nil results without error mean the document was not found or the
// guarded update did not match.
type ProcessRepository interface {
	// Save inserts a new process or replaces an existing one guarded by its
	// version.
	Save(ctx context.Context, process *ServiceProcess) error

	// SaveCompleted replaces a finalized process and credits the warehouse
	// counter for its sub-item in the same transaction.
	SaveCompleted(ctx context.Context, process *ServiceProcess) error

	// SaveWithRecovery replaces a process closed by disassembly, records the
	// recovery, and credits the receiving employee's stock atomically.
	SaveWithRecovery(ctx context.Context, process *ServiceProcess, recovery *DisassembleRecovery) error

	// AcceptCurrentActivity atomically claims the current pending unassigned
	// activity for an employee. Returns nil when no document matched.
	AcceptCurrentActivity(ctx context.Context, processID, employeeID string) (*ServiceProcess, error)

	// StartCurrentActivity atomically stamps startedAt on the employee's
	// accepted activity. Returns nil when no document matched.
	StartCurrentActivity(ctx context.Context, processID, employeeID string) (*ServiceProcess, error)

	FindByProcessID(ctx context.Context, processID string) (*ServiceProcess, error)
	FindSameDayUnit(ctx context.Context, productName, itemName, subItemName, serialNumber, createdDate string) (*ServiceProcess, error)

	// FindAll lists processes newest first. An empty status matches all.
	FindAll(ctx context.Context, status ProcessStatus, limit, offset int) ([]*ServiceProcess, error)
}

// StageConfigRepository resolves stage flows and failure redirects
type StageConfigRepository interface {
	// FlowsFor returns all flow hops configured for a product and item type.
	FlowsFor(ctx context.Context, productName string, itemType ItemType) ([]StageFlow, error)

	// RedirectFor returns the redirect for a failure reason, or nil when no
	// row matches.
	RedirectFor(ctx context.Context, productName string, itemType ItemType, reason string) (*FailureRedirect, error)

	// HasRedirects reports whether any redirect rows exist for the product
	// and item type at all.
	HasRedirects(ctx context.Context, productName string, itemType ItemType) (bool, error)
}

// RawMaterialRepository reads central store stock
type RawMaterialRepository interface {
	FindByMaterialID(ctx context.Context, materialID string) (*RawMaterial, error)
	FindAll(ctx context.Context) ([]*RawMaterial, error)
}

// ItemRequestRepository persists material requests. The decision flags and
// the hand-over flag are set-once: the conditional writes fail with a domain
// sentinel when a racing caller got there first.
type ItemRequestRepository interface {
	// Save inserts a newly filed request.
	Save(ctx context.Context, request *ItemRequest) error

	// SaveDecision persists an approval or decline guarded on the request
	// still being undecided. Returns ErrRequestAlreadyProcessed when another
	// caller decided it first.
	SaveDecision(ctx context.Context, request *ItemRequest) error

	// Sanction decrements raw material stock for every line, credits the
	// requester's personal stock, and marks the request given, all or
	// nothing. The mark is guarded on materialGiven still being false;
	// returns ErrMaterialAlreadyGiven when a racing sanction won, and
	// ErrInsufficientStock when any line cannot be covered.
	Sanction(ctx context.Context, request *ItemRequest) error

	FindByRequestID(ctx context.Context, requestID string) (*ItemRequest, error)
	FindPending(ctx context.Context) ([]*ItemRequest, error)
}

// UserStockRepository tracks per-employee material holdings
type UserStockRepository interface {
	Find(ctx context.Context, employeeID, materialID string) (*UserItemStock, error)
	FindByEmployee(ctx context.Context, employeeID string) ([]*UserItemStock, error)

	// Consume debits the employee's stock for every usage line and appends
	// the usage records, all in one transaction. Any line the employee does
	// not hold aborts with ErrStockNotHeld; any short holding aborts with
	// ErrInsufficientPersonalStock. All lines must belong to one employee.
	Consume(ctx context.Context, usages []*ItemUsage) error
}

// EmployeeDirectory answers role membership questions
type EmployeeDirectory interface {
	HasRole(ctx context.Context, employeeID, role string) (bool, error)
}

// WarehouseStockRepository reads finished-goods counters
type WarehouseStockRepository interface {
	Find(ctx context.Context, productName, itemName, subItemName string) (*WarehouseStock, error)
	FindByProduct(ctx context.Context, productName string) ([]*WarehouseStock, error)
}
