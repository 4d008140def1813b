package domain

import "time"

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// ProcessCreatedEvent is published when a unit is registered in the pipeline
type ProcessCreatedEvent struct {
	ProcessID    string    `json:"processId"`
	ProductName  string    `json:"productName"`
	ItemName     string    `json:"itemName"`
	SubItemName  string    `json:"subItemName"`
	SerialNumber string    `json:"serialNumber"`
	Quantity     int       `json:"quantity"`
	ItemType     string    `json:"itemType"`
	InitialStage string    `json:"initialStage"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (e *ProcessCreatedEvent) EventType() string     { return "rms.pipeline.process-created" }
func (e *ProcessCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }

// ActivityAcceptedEvent is published when an employee claims a stage activity
type ActivityAcceptedEvent struct {
	ProcessID  string    `json:"processId"`
	StageID    string    `json:"stageId"`
	EmployeeID string    `json:"employeeId"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

func (e *ActivityAcceptedEvent) EventType() string     { return "rms.pipeline.activity-accepted" }
func (e *ActivityAcceptedEvent) OccurredAt() time.Time { return e.AcceptedAt }

// ActivityStartedEvent is published when work on a stage activity begins
type ActivityStartedEvent struct {
	ProcessID  string    `json:"processId"`
	StageID    string    `json:"stageId"`
	EmployeeID string    `json:"employeeId"`
	StartedAt  time.Time `json:"startedAt"`
}

func (e *ActivityStartedEvent) EventType() string     { return "rms.pipeline.activity-started" }
func (e *ActivityStartedEvent) OccurredAt() time.Time { return e.StartedAt }

// StageAdvancedEvent is published when a process moves to its next stage
type StageAdvancedEvent struct {
	ProcessID  string    `json:"processId"`
	FromStage  string    `json:"fromStage"`
	ToStage    string    `json:"toStage"`
	AdvancedAt time.Time `json:"advancedAt"`
}

func (e *StageAdvancedEvent) EventType() string     { return "rms.pipeline.stage-advanced" }
func (e *StageAdvancedEvent) OccurredAt() time.Time { return e.AdvancedAt }

// ProcessRedirectedEvent is published when a failure reroutes a process
type ProcessRedirectedEvent struct {
	ProcessID    string    `json:"processId"`
	FromStage    string    `json:"fromStage"`
	ToStage      string    `json:"toStage"`
	Reason       string    `json:"reason"`
	RedirectedAt time.Time `json:"redirectedAt"`
}

func (e *ProcessRedirectedEvent) EventType() string     { return "rms.pipeline.process-redirected" }
func (e *ProcessRedirectedEvent) OccurredAt() time.Time { return e.RedirectedAt }

// ProcessCompletedEvent is published when a process reaches a terminal state
type ProcessCompletedEvent struct {
	ProcessID   string    `json:"processId"`
	FinalStatus string    `json:"finalStatus"`
	ItemType    string    `json:"itemType"`
	IsRepaired  bool      `json:"isRepaired"`
	CompletedAt time.Time `json:"completedAt"`
}

func (e *ProcessCompletedEvent) EventType() string     { return "rms.pipeline.process-completed" }
func (e *ProcessCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }

// DisassembleSubmittedEvent is published when a disassembly report is filed
type DisassembleSubmittedEvent struct {
	ProcessID               string    `json:"processId"`
	DisassemblingEmployeeID string    `json:"disassemblingEmployeeId"`
	ReceivingEmployeeID     string    `json:"receivingEmployeeId"`
	RecoveredItems          int       `json:"recoveredItems"`
	SubmittedAt             time.Time `json:"submittedAt"`
}

func (e *DisassembleSubmittedEvent) EventType() string     { return "rms.pipeline.disassemble-submitted" }
func (e *DisassembleSubmittedEvent) OccurredAt() time.Time { return e.SubmittedAt }

// MaterialRequestedEvent is published when an employee files a material request
type MaterialRequestedEvent struct {
	RequestID     string    `json:"requestId"`
	RequestedBy   string    `json:"requestedBy"`
	StoreKeeperID string    `json:"storeKeeperId"`
	Lines         int       `json:"lines"`
	ProcessID     string    `json:"processId,omitempty"`
	RequestedAt   time.Time `json:"requestedAt"`
}

func (e *MaterialRequestedEvent) EventType() string     { return "rms.ledger.material-requested" }
func (e *MaterialRequestedEvent) OccurredAt() time.Time { return e.RequestedAt }

// RequestDecidedEvent is published when a material request is approved or declined
type RequestDecidedEvent struct {
	RequestID string    `json:"requestId"`
	Decision  string    `json:"decision"`
	DecidedBy string    `json:"decidedBy"`
	DecidedAt time.Time `json:"decidedAt"`
}

func (e *RequestDecidedEvent) EventType() string     { return "rms.ledger.request-decided" }
func (e *RequestDecidedEvent) OccurredAt() time.Time { return e.DecidedAt }

// MaterialSanctionedEvent is published when approved materials are handed over
type MaterialSanctionedEvent struct {
	RequestID     string    `json:"requestId"`
	RequestedBy   string    `json:"requestedBy"`
	StoreKeeperID string    `json:"storeKeeperId"`
	SanctionedAt  time.Time `json:"sanctionedAt"`
}

func (e *MaterialSanctionedEvent) EventType() string     { return "rms.ledger.material-sanctioned" }
func (e *MaterialSanctionedEvent) OccurredAt() time.Time { return e.SanctionedAt }
