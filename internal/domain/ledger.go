package domain

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Ledger errors
var (
	ErrRequestAlreadyProcessed   = errors.New("material request has already been decided")
	ErrRequestNotApproved        = errors.New("material request is not approved")
	ErrRequestDeclined           = errors.New("material request was declined")
	ErrMaterialAlreadyGiven      = errors.New("material has already been handed over")
	ErrDeclineRemarksRequired    = errors.New("remarks are required when declining a request")
	ErrInsufficientStock         = errors.New("insufficient raw material stock")
	ErrInsufficientPersonalStock = errors.New("insufficient personal stock")
	ErrStockNotHeld              = errors.New("employee holds no stock of this material")
)

// RequestDecision is the verdict passed on a pending material request
type RequestDecision string

const (
	DecisionApprove RequestDecision = "APPROVE"
	DecisionDecline RequestDecision = "DECLINE"
)

// RawMaterial is a stocked material in the central store
type RawMaterial struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	MaterialID string             `bson:"materialId"`
	Name       string             `bson:"name"`
	Unit       string             `bson:"unit,omitempty"`
	Stock      int                `bson:"stock"`
	CreatedAt  time.Time          `bson:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt"`
}

// RequestLine is one material line of a request
type RequestLine struct {
	MaterialID string `bson:"materialId" json:"materialId"`
	Quantity   int    `bson:"quantity" json:"quantity"`
}

// ItemRequest is an employee's request for raw materials, addressed to a
// store keeper who hands the stock over once the request is approved.
// Approval, decline, and hand-over are each recorded exactly once.
type ItemRequest struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	RequestID        string             `bson:"requestId"`
	RequestedBy      string             `bson:"requestedBy"`
	StoreKeeperID    string             `bson:"storeKeeperId"`
	Lines            []RequestLine      `bson:"lines"`
	IsProcessRequest bool               `bson:"isProcessRequest"`
	ProcessID        string             `bson:"processId,omitempty"`
	Approved         *bool              `bson:"approved"`
	Declined         *bool              `bson:"declined"`
	DecidedBy        string             `bson:"decidedBy,omitempty"`
	DecisionNote     string             `bson:"decisionNote,omitempty"`
	MaterialGiven    bool               `bson:"materialGiven"`
	SanctionedAt     *time.Time         `bson:"sanctionedAt,omitempty"`
	CreatedAt        time.Time          `bson:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt"`

	DomainEvents []DomainEvent `bson:"-"`
}

// NewItemRequest files a request with both decision flags unset. Process
// requests carry the process they draw materials for.
func NewItemRequest(requestID, requestedBy, storeKeeperID string, lines []RequestLine, isProcessRequest bool, processID string) *ItemRequest {
	now := time.Now().UTC()

	r := &ItemRequest{
		RequestID:        requestID,
		RequestedBy:      requestedBy,
		StoreKeeperID:    storeKeeperID,
		Lines:            lines,
		IsProcessRequest: isProcessRequest,
		ProcessID:        processID,
		CreatedAt:        now,
		UpdatedAt:        now,
		DomainEvents:     make([]DomainEvent, 0),
	}

	r.AddDomainEvent(&MaterialRequestedEvent{
		RequestID:     requestID,
		RequestedBy:   requestedBy,
		StoreKeeperID: storeKeeperID,
		Lines:         len(lines),
		ProcessID:     processID,
		RequestedAt:   now,
	})

	return r
}

// IsDecided reports whether either decision flag has been set
func (r *ItemRequest) IsDecided() bool {
	return r.Approved != nil || r.Declined != nil
}

// Decide records an approval or decline. Declining requires remarks.
func (r *ItemRequest) Decide(decision RequestDecision, decidedBy, remarks string) error {
	if r.IsDecided() {
		return ErrRequestAlreadyProcessed
	}

	now := time.Now().UTC()
	yes, no := true, false

	switch decision {
	case DecisionApprove:
		r.Approved = &yes
		r.Declined = &no
	case DecisionDecline:
		if remarks == "" {
			return ErrDeclineRemarksRequired
		}
		r.Approved = &no
		r.Declined = &yes
	default:
		return errors.New("unknown request decision")
	}

	r.DecidedBy = decidedBy
	r.DecisionNote = remarks
	r.UpdatedAt = now

	r.AddDomainEvent(&RequestDecidedEvent{
		RequestID: r.RequestID,
		Decision:  string(decision),
		DecidedBy: decidedBy,
		DecidedAt: now,
	})

	return nil
}

// CanSanction checks the gate for handing materials over
func (r *ItemRequest) CanSanction() error {
	if r.MaterialGiven {
		return ErrMaterialAlreadyGiven
	}
	if r.Declined != nil && *r.Declined {
		return ErrRequestDeclined
	}
	if r.Approved == nil || !*r.Approved {
		return ErrRequestNotApproved
	}
	return nil
}

// MarkSanctioned records the hand-over after stock was moved
func (r *ItemRequest) MarkSanctioned() {
	now := time.Now().UTC()
	r.MaterialGiven = true
	r.SanctionedAt = &now
	r.UpdatedAt = now

	r.AddDomainEvent(&MaterialSanctionedEvent{
		RequestID:     r.RequestID,
		RequestedBy:   r.RequestedBy,
		StoreKeeperID: r.StoreKeeperID,
		SanctionedAt:  now,
	})
}

// AddDomainEvent adds a domain event
func (r *ItemRequest) AddDomainEvent(event DomainEvent) {
	r.DomainEvents = append(r.DomainEvents, event)
}

// ClearDomainEvents clears all domain events
func (r *ItemRequest) ClearDomainEvents() {
	r.DomainEvents = make([]DomainEvent, 0)
}

// UserItemStock is material held personally by an employee
type UserItemStock struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	EmployeeID string             `bson:"employeeId"`
	MaterialID string             `bson:"materialId"`
	Quantity   int                `bson:"quantity"`
	UpdatedAt  time.Time          `bson:"updatedAt"`
}

// ItemUsage is an append-only record of material consumed by an employee
type ItemUsage struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	EmployeeID string             `bson:"employeeId"`
	MaterialID string             `bson:"materialId"`
	Quantity   int                `bson:"quantity"`
	ProcessID  string             `bson:"processId,omitempty"`
	Remarks    string             `bson:"remarks,omitempty"`
	UsedAt     time.Time          `bson:"usedAt"`
}

// RecoveredItem is one reusable part pulled out during disassembly
type RecoveredItem struct {
	MaterialID string `bson:"materialId" json:"materialId"`
	Quantity   int    `bson:"quantity" json:"quantity"`
}

// DisassembleRecovery records the parts recovered from a rejected unit and
// who received them.
type DisassembleRecovery struct {
	ID                      primitive.ObjectID `bson:"_id,omitempty"`
	ProcessID               string             `bson:"processId"`
	DisassemblingEmployeeID string             `bson:"disassemblingEmployeeId"`
	ReceivingEmployeeID     string             `bson:"receivingEmployeeId"`
	Items                   []RecoveredItem    `bson:"items"`
	Remarks                 string             `bson:"remarks,omitempty"`
	CreatedAt               time.Time          `bson:"createdAt"`
}

// WarehouseStock is the finished-goods counter row for a sub-item. Quantity
// counts repaired serviced units, NewStock counts completed new builds.
type WarehouseStock struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	ProductName string             `bson:"productName"`
	ItemName    string             `bson:"itemName"`
	SubItemName string             `bson:"subItemName"`
	Quantity    int                `bson:"quantity"`
	NewStock    int                `bson:"newStock"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}
