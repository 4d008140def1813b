package domain

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Errors
var (
	ErrProcessClosed           = errors.New("process is closed")
	ErrNoCurrentActivity       = errors.New("no current stage activity")
	ErrActivityNotPending      = errors.New("stage activity is not pending")
	ErrActivityNotInProgress   = errors.New("stage activity is not in progress")
	ErrActivityAlreadyAssigned = errors.New("stage activity is already assigned")
	ErrActivityAlreadyStarted  = errors.New("stage activity has already been started")
	ErrActivityNotOwned        = errors.New("stage activity is assigned to another employee")
	ErrFailureReasonRequired   = errors.New("failure reason is required for this outcome")
	ErrDisassembleNotPending   = errors.New("process has no pending disassembly")
	ErrInvalidSessionToken     = errors.New("disassemble session token is invalid")
	ErrDuplicateSameDayUnit    = errors.New("unit is already registered for today")
)

// ItemType distinguishes freshly built units from returned ones
type ItemType string

const (
	ItemTypeNew     ItemType = "NEW"
	ItemTypeService ItemType = "SERVICE"
)

// ProcessStatus represents the lifecycle status of a service process
type ProcessStatus string

const (
	ProcessStatusInProgress ProcessStatus = "IN_PROGRESS"
	ProcessStatusRedirected ProcessStatus = "REDIRECTED"
	ProcessStatusCompleted  ProcessStatus = "COMPLETED"
)

// FinalStatus is the terminal disposition of a completed process
type FinalStatus string

const (
	FinalStatusSuccess  FinalStatus = "SUCCESS"
	FinalStatusRejected FinalStatus = "REJECTED"
)

// ActivityStatus represents the status of a single stage activity
type ActivityStatus string

const (
	ActivityStatusPending    ActivityStatus = "PENDING"
	ActivityStatusInProgress ActivityStatus = "IN_PROGRESS"
	ActivityStatusCompleted  ActivityStatus = "COMPLETED"
	ActivityStatusFailed     ActivityStatus = "FAILED"
	ActivityStatusRejected   ActivityStatus = "REJECTED"
	ActivityStatusSkipped    ActivityStatus = "SKIPPED"
)

// DisassembleStatus tracks a unit routed through disassembly
type DisassembleStatus string

const (
	DisassembleStatusPending   DisassembleStatus = "PENDING"
	DisassembleStatusCompleted DisassembleStatus = "COMPLETED"
)

// Well-known stage names with hardwired behavior
const (
	StageTesting     = "Testing"
	StageDisassemble = "Disassemble"
)

// RedirectReasonRejected is the reserved redirect reason used when a unit is
// rejected at the testing stage.
const RedirectReasonRejected = "REJECTED"

// StageActivity is one entry in a process's append-only stage history
type StageActivity struct {
	StageID       string         `bson:"stageId"`
	Status        ActivityStatus `bson:"status"`
	EmployeeID    string         `bson:"employeeId,omitempty"`
	IsCurrent     bool           `bson:"isCurrent"`
	FailureReason string         `bson:"failureReason,omitempty"`
	Remarks       string         `bson:"remarks,omitempty"`
	AcceptedAt    *time.Time     `bson:"acceptedAt,omitempty"`
	StartedAt     *time.Time     `bson:"startedAt,omitempty"`
	CompletedAt   *time.Time     `bson:"completedAt,omitempty"`
	CreatedAt     time.Time      `bson:"createdAt"`
}

// ServiceProcess is the aggregate root for a unit moving through the repair
// and assembly pipeline. Exactly one activity has IsCurrent set while the
// process is open; none once it completes.
type ServiceProcess struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	ProcessID    string             `bson:"processId"`
	ProductName  string             `bson:"productName"`
	ItemName     string             `bson:"itemName"`
	SubItemName  string             `bson:"subItemName"`
	SerialNumber string             `bson:"serialNumber"`
	Quantity     int                `bson:"quantity"`
	ItemType     ItemType           `bson:"itemType"`

	CurrentStageID       string `bson:"currentStageId"`
	InitialStageID       string `bson:"initialStageId"`
	RestartedFromStageID string `bson:"restartedFromStageId,omitempty"`

	Status      ProcessStatus `bson:"status"`
	FinalStatus FinalStatus   `bson:"finalStatus,omitempty"`
	IsClosed    bool          `bson:"isClosed"`
	IsRepaired  bool          `bson:"isRepaired"`

	IsDisassemblePending bool              `bson:"isDisassemblePending"`
	DisassembleSessionID string            `bson:"disassembleSessionId,omitempty"`
	DisassembleStatus    DisassembleStatus `bson:"disassembleStatus,omitempty"`

	Activities []StageActivity `bson:"activities"`

	// CreatedDate is the calendar day of registration, used to reject
	// same-day duplicates of the same physical unit.
	CreatedDate string `bson:"createdDate"`

	Version   int64     `bson:"version"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`

	DomainEvents []DomainEvent `bson:"-"`
}

// NewServiceProcess registers a unit at its initial stage with a pending
// current activity.
func NewServiceProcess(processID, productName, itemName, subItemName, serialNumber string, quantity int, itemType ItemType, initialStage string) *ServiceProcess {
	now := time.Now().UTC()

	p := &ServiceProcess{
		ProcessID:      processID,
		ProductName:    productName,
		ItemName:       itemName,
		SubItemName:    subItemName,
		SerialNumber:   serialNumber,
		Quantity:       quantity,
		ItemType:       itemType,
		CurrentStageID: initialStage,
		InitialStageID: initialStage,
		Status:         ProcessStatusInProgress,
		Activities: []StageActivity{{
			StageID:   initialStage,
			Status:    ActivityStatusPending,
			IsCurrent: true,
			CreatedAt: now,
		}},
		CreatedDate:  now.Format("2006-01-02"),
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
		DomainEvents: make([]DomainEvent, 0),
	}

	p.AddDomainEvent(&ProcessCreatedEvent{
		ProcessID:    processID,
		ProductName:  productName,
		ItemName:     itemName,
		SubItemName:  subItemName,
		SerialNumber: serialNumber,
		Quantity:     quantity,
		ItemType:     string(itemType),
		InitialStage: initialStage,
		CreatedAt:    now,
	})

	return p
}

// CurrentActivity returns the activity marked current, or nil once the
// process has completed.
func (p *ServiceProcess) CurrentActivity() *StageActivity {
	for i := range p.Activities {
		if p.Activities[i].IsCurrent {
			return &p.Activities[i]
		}
	}
	return nil
}

// Accept claims the current pending activity for an employee
func (p *ServiceProcess) Accept(employeeID string) error {
	if p.IsClosed {
		return ErrProcessClosed
	}

	activity := p.CurrentActivity()
	if activity == nil {
		return ErrNoCurrentActivity
	}
	if activity.EmployeeID != "" {
		return ErrActivityAlreadyAssigned
	}
	if activity.Status != ActivityStatusPending {
		return ErrActivityNotPending
	}

	now := time.Now().UTC()
	activity.EmployeeID = employeeID
	activity.Status = ActivityStatusInProgress
	activity.AcceptedAt = &now
	p.UpdatedAt = now

	p.AddDomainEvent(&ActivityAcceptedEvent{
		ProcessID:  p.ProcessID,
		StageID:    activity.StageID,
		EmployeeID: employeeID,
		AcceptedAt: now,
	})

	return nil
}

// Start marks the accepted current activity as started by its owner
func (p *ServiceProcess) Start(employeeID string) error {
	if p.IsClosed {
		return ErrProcessClosed
	}

	activity := p.CurrentActivity()
	if activity == nil {
		return ErrNoCurrentActivity
	}
	if activity.EmployeeID == "" || activity.EmployeeID != employeeID {
		return ErrActivityNotOwned
	}
	if activity.Status != ActivityStatusInProgress {
		return ErrActivityNotInProgress
	}
	if activity.StartedAt != nil {
		return ErrActivityAlreadyStarted
	}

	now := time.Now().UTC()
	activity.StartedAt = &now
	p.UpdatedAt = now

	p.AddDomainEvent(&ActivityStartedEvent{
		ProcessID:  p.ProcessID,
		StageID:    activity.StageID,
		EmployeeID: employeeID,
		StartedAt:  now,
	})

	return nil
}

// CloseCurrentActivity records the outcome of the current activity and drops
// its current flag. The failure reason is kept only for FAILED and REJECTED
// outcomes.
func (p *ServiceProcess) CloseCurrentActivity(outcome ActivityStatus, failureReason, remarks string) (*StageActivity, error) {
	if p.IsClosed {
		return nil, ErrProcessClosed
	}

	activity := p.CurrentActivity()
	if activity == nil {
		return nil, ErrNoCurrentActivity
	}

	now := time.Now().UTC()
	activity.IsCurrent = false
	activity.Status = outcome
	activity.CompletedAt = &now
	activity.Remarks = remarks
	if outcome == ActivityStatusFailed || outcome == ActivityStatusRejected {
		activity.FailureReason = failureReason
	} else {
		activity.FailureReason = ""
	}
	p.UpdatedAt = now

	return activity, nil
}

// AdvanceTo moves the process to the next stage of its normal flow, opening a
// fresh pending activity there.
func (p *ServiceProcess) AdvanceTo(stageID string) {
	now := time.Now().UTC()
	fromStage := p.CurrentStageID

	p.CurrentStageID = stageID
	p.Status = ProcessStatusInProgress
	p.Activities = append(p.Activities, StageActivity{
		StageID:   stageID,
		Status:    ActivityStatusPending,
		IsCurrent: true,
		CreatedAt: now,
	})
	p.UpdatedAt = now

	p.AddDomainEvent(&StageAdvancedEvent{
		ProcessID:  p.ProcessID,
		FromStage:  fromStage,
		ToStage:    stageID,
		AdvancedAt: now,
	})
}

// RedirectTo reroutes the process to a recovery stage after a failure or
// rejection at testing. Redirecting to disassembly arms the one-shot session
// token that the disassembly station must present.
func (p *ServiceProcess) RedirectTo(stageID, reason string) {
	now := time.Now().UTC()
	fromStage := p.CurrentStageID

	p.CurrentStageID = stageID
	p.RestartedFromStageID = fromStage
	p.Status = ProcessStatusRedirected
	p.Activities = append(p.Activities, StageActivity{
		StageID:   stageID,
		Status:    ActivityStatusPending,
		IsCurrent: true,
		CreatedAt: now,
	})

	if stageID == StageDisassemble {
		p.IsDisassemblePending = true
		p.DisassembleSessionID = newSessionToken()
		p.DisassembleStatus = DisassembleStatusPending
	}
	p.UpdatedAt = now

	p.AddDomainEvent(&ProcessRedirectedEvent{
		ProcessID:    p.ProcessID,
		FromStage:    fromStage,
		ToStage:      stageID,
		Reason:       reason,
		RedirectedAt: now,
	})
}

// FinalizeSuccess closes the process as a successful unit. Serviced units
// count as repaired; new builds do not.
func (p *ServiceProcess) FinalizeSuccess() {
	now := time.Now().UTC()

	p.Status = ProcessStatusCompleted
	p.FinalStatus = FinalStatusSuccess
	p.IsClosed = true
	p.IsRepaired = p.ItemType == ItemTypeService
	p.UpdatedAt = now

	p.AddDomainEvent(&ProcessCompletedEvent{
		ProcessID:   p.ProcessID,
		FinalStatus: string(FinalStatusSuccess),
		ItemType:    string(p.ItemType),
		IsRepaired:  p.IsRepaired,
		CompletedAt: now,
	})
}

// SubmitDisassembly validates the session token and closes the process as
// rejected, consuming the token. The submitting employee must own the current
// in-progress activity; it is closed as completed.
func (p *ServiceProcess) SubmitDisassembly(sessionID, employeeID, remarks string) error {
	if p.IsClosed {
		return ErrProcessClosed
	}
	if !p.IsDisassemblePending {
		return ErrDisassembleNotPending
	}
	if sessionID == "" || sessionID != p.DisassembleSessionID {
		return ErrInvalidSessionToken
	}

	activity := p.CurrentActivity()
	if activity == nil || activity.EmployeeID != employeeID {
		return ErrActivityNotOwned
	}
	if activity.Status != ActivityStatusInProgress {
		return ErrActivityNotInProgress
	}

	now := time.Now().UTC()

	activity.IsCurrent = false
	activity.Status = ActivityStatusCompleted
	activity.CompletedAt = &now
	activity.Remarks = remarks

	p.Status = ProcessStatusCompleted
	p.FinalStatus = FinalStatusRejected
	p.IsClosed = true
	p.IsRepaired = false
	p.IsDisassemblePending = false
	p.DisassembleSessionID = ""
	p.DisassembleStatus = DisassembleStatusCompleted
	p.UpdatedAt = now

	p.AddDomainEvent(&ProcessCompletedEvent{
		ProcessID:   p.ProcessID,
		FinalStatus: string(FinalStatusRejected),
		ItemType:    string(p.ItemType),
		IsRepaired:  false,
		CompletedAt: now,
	})

	return nil
}

// ValidateOutcome checks an outcome and its failure reason before any state
// is touched.
func ValidateOutcome(outcome ActivityStatus, failureReason string) error {
	switch outcome {
	case ActivityStatusCompleted, ActivityStatusSkipped, ActivityStatusRejected:
		return nil
	case ActivityStatusFailed:
		if failureReason == "" {
			return ErrFailureReasonRequired
		}
		return nil
	default:
		return fmt.Errorf("outcome %q cannot close a stage activity", outcome)
	}
}

// WarehouseCounterField returns the warehouse stock counter credited when a
// unit of the given type completes successfully.
func WarehouseCounterField(itemType ItemType) string {
	if itemType == ItemTypeNew {
		return "newStock"
	}
	return "quantity"
}

// AddDomainEvent adds a domain event
func (p *ServiceProcess) AddDomainEvent(event DomainEvent) {
	p.DomainEvents = append(p.DomainEvents, event)
}

// ClearDomainEvents clears all domain events
func (p *ServiceProcess) ClearDomainEvents() {
	p.DomainEvents = make([]DomainEvent, 0)
}

// newSessionToken mints a 256-bit random token, hex encoded
func newSessionToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the platform source is broken
		panic(fmt.Sprintf("session token entropy unavailable: %v", err))
	}
	return hex.EncodeToString(buf)
}
