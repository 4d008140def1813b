package application

import "github.com/rms-platform/pipeline-service/internal/domain"

// CreateProcessCommand registers a unit in the pipeline. The creator's role
// selects the item type and initial stage.
type CreateProcessCommand struct {
	Role         string
	ProductName  string
	ItemName     string
	SubItemName  string
	SerialNumber string
	Quantity     int
}

// AcceptActivityCommand claims the current pending activity
type AcceptActivityCommand struct {
	ProcessID  string
	EmployeeID string
}

// StartActivityCommand begins work on an accepted activity
type StartActivityCommand struct {
	ProcessID  string
	EmployeeID string
}

// CompleteActivityCommand closes the current activity with an outcome
type CompleteActivityCommand struct {
	ProcessID     string
	EmployeeID    string
	Outcome       domain.ActivityStatus
	FailureReason string
	Remarks       string
}

// SubmitDisassemblyCommand files the recovery report for a rejected unit
type SubmitDisassemblyCommand struct {
	ProcessID           string
	SessionID           string
	EmployeeID          string
	ReceivingEmployeeID string
	Items               []domain.RecoveredItem
	Remarks             string
}

// GetProcessQuery retrieves a process by ID
type GetProcessQuery struct {
	ProcessID string
}

// ListProcessesQuery retrieves processes with an optional status filter and
// pagination
type ListProcessesQuery struct {
	Status string
	Limit  int
	Offset int
}

// RequestMaterialsCommand files a material request from an employee to a
// store keeper. Process requests name the process they draw materials for.
type RequestMaterialsCommand struct {
	EmployeeID       string
	StoreKeeperID    string
	Lines            []domain.RequestLine
	IsProcessRequest bool
	ProcessID        string
}

// DecideRequestCommand approves or declines a pending material request
type DecideRequestCommand struct {
	RequestID string
	DecidedBy string
	Decision  domain.RequestDecision
	Remarks   string
}

// SanctionRequestCommand hands approved materials over to the store keeper
type SanctionRequestCommand struct {
	RequestID string
}

// ConsumeMaterialCommand books materials used by an employee. All lines are
// debited together or not at all.
type ConsumeMaterialCommand struct {
	EmployeeID string
	ProcessID  string
	Lines      []domain.RequestLine
	Remarks    string
}

// GetRequestQuery retrieves a material request by ID
type GetRequestQuery struct {
	RequestID string
}

// GetEmployeeStockQuery retrieves an employee's held stock
type GetEmployeeStockQuery struct {
	EmployeeID string
}

// GetWarehouseStockQuery retrieves finished-goods counters for a product
type GetWarehouseStockQuery struct {
	ProductName string
}
