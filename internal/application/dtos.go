package application

import (
	"time"

	"github.com/rms-platform/pipeline-service/internal/domain"
)

// ProcessDTO represents a service process in responses
type ProcessDTO struct {
	ProcessID    string `json:"processId"`
	ProductName  string `json:"productName"`
	ItemName     string `json:"itemName"`
	SubItemName  string `json:"subItemName"`
	SerialNumber string `json:"serialNumber"`
	Quantity     int    `json:"quantity"`
	ItemType     string `json:"itemType"`

	CurrentStageID       string `json:"currentStageId"`
	InitialStageID       string `json:"initialStageId"`
	RestartedFromStageID string `json:"restartedFromStageId,omitempty"`

	Status      string `json:"status"`
	FinalStatus string `json:"finalStatus,omitempty"`
	IsClosed    bool   `json:"isClosed"`
	IsRepaired  bool   `json:"isRepaired"`

	IsDisassemblePending bool   `json:"isDisassemblePending"`
	DisassembleSessionID string `json:"disassembleSessionId,omitempty"`
	DisassembleStatus    string `json:"disassembleStatus,omitempty"`

	Activities []StageActivityDTO `json:"activities"`

	CreatedDate string    `json:"createdDate"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// StageActivityDTO represents one stage activity in responses
type StageActivityDTO struct {
	StageID       string     `json:"stageId"`
	Status        string     `json:"status"`
	EmployeeID    string     `json:"employeeId,omitempty"`
	IsCurrent     bool       `json:"isCurrent"`
	FailureReason string     `json:"failureReason,omitempty"`
	Remarks       string     `json:"remarks,omitempty"`
	AcceptedAt    *time.Time `json:"acceptedAt,omitempty"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// ItemRequestDTO represents a material request in responses
type ItemRequestDTO struct {
	RequestID        string           `json:"requestId"`
	RequestedBy      string           `json:"requestedBy"`
	StoreKeeperID    string           `json:"storeKeeperId"`
	Lines            []RequestLineDTO `json:"lines"`
	IsProcessRequest bool             `json:"isProcessRequest"`
	ProcessID        string           `json:"processId,omitempty"`
	Approved         *bool            `json:"approved"`
	Declined         *bool            `json:"declined"`
	DecidedBy        string           `json:"decidedBy,omitempty"`
	DecisionNote     string           `json:"decisionNote,omitempty"`
	MaterialGiven    bool             `json:"materialGiven"`
	SanctionedAt     *time.Time       `json:"sanctionedAt,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// RequestLineDTO represents one material line of a request
type RequestLineDTO struct {
	MaterialID string `json:"materialId"`
	Quantity   int    `json:"quantity"`
}

// RawMaterialDTO represents central store stock in responses
type RawMaterialDTO struct {
	MaterialID string `json:"materialId"`
	Name       string `json:"name"`
	Unit       string `json:"unit,omitempty"`
	Stock      int    `json:"stock"`
}

// UserItemStockDTO represents an employee's held material in responses
type UserItemStockDTO struct {
	EmployeeID string    `json:"employeeId"`
	MaterialID string    `json:"materialId"`
	Quantity   int       `json:"quantity"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// WarehouseStockDTO represents a finished-goods counter row in responses
type WarehouseStockDTO struct {
	ProductName string    `json:"productName"`
	ItemName    string    `json:"itemName"`
	SubItemName string    `json:"subItemName"`
	Quantity    int       `json:"quantity"`
	NewStock    int       `json:"newStock"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ToProcessDTO converts a domain process to a DTO
func ToProcessDTO(p *domain.ServiceProcess) *ProcessDTO {
	activities := make([]StageActivityDTO, 0, len(p.Activities))
	for _, a := range p.Activities {
		activities = append(activities, StageActivityDTO{
			StageID:       a.StageID,
			Status:        string(a.Status),
			EmployeeID:    a.EmployeeID,
			IsCurrent:     a.IsCurrent,
			FailureReason: a.FailureReason,
			Remarks:       a.Remarks,
			AcceptedAt:    a.AcceptedAt,
			StartedAt:     a.StartedAt,
			CompletedAt:   a.CompletedAt,
			CreatedAt:     a.CreatedAt,
		})
	}

	return &ProcessDTO{
		ProcessID:            p.ProcessID,
		ProductName:          p.ProductName,
		ItemName:             p.ItemName,
		SubItemName:          p.SubItemName,
		SerialNumber:         p.SerialNumber,
		Quantity:             p.Quantity,
		ItemType:             string(p.ItemType),
		CurrentStageID:       p.CurrentStageID,
		InitialStageID:       p.InitialStageID,
		RestartedFromStageID: p.RestartedFromStageID,
		Status:               string(p.Status),
		FinalStatus:          string(p.FinalStatus),
		IsClosed:             p.IsClosed,
		IsRepaired:           p.IsRepaired,
		IsDisassemblePending: p.IsDisassemblePending,
		DisassembleSessionID: p.DisassembleSessionID,
		DisassembleStatus:    string(p.DisassembleStatus),
		Activities:           activities,
		CreatedDate:          p.CreatedDate,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

// ToProcessDTOs converts a slice of domain processes to DTOs
func ToProcessDTOs(processes []*domain.ServiceProcess) []ProcessDTO {
	dtos := make([]ProcessDTO, 0, len(processes))
	for _, p := range processes {
		dtos = append(dtos, *ToProcessDTO(p))
	}
	return dtos
}

// ToItemRequestDTO converts a domain request to a DTO
func ToItemRequestDTO(r *domain.ItemRequest) *ItemRequestDTO {
	lines := make([]RequestLineDTO, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, RequestLineDTO{MaterialID: l.MaterialID, Quantity: l.Quantity})
	}

	return &ItemRequestDTO{
		RequestID:        r.RequestID,
		RequestedBy:      r.RequestedBy,
		StoreKeeperID:    r.StoreKeeperID,
		Lines:            lines,
		IsProcessRequest: r.IsProcessRequest,
		ProcessID:        r.ProcessID,
		Approved:         r.Approved,
		Declined:         r.Declined,
		DecidedBy:        r.DecidedBy,
		DecisionNote:     r.DecisionNote,
		MaterialGiven:    r.MaterialGiven,
		SanctionedAt:     r.SanctionedAt,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// ToItemRequestDTOs converts a slice of domain requests to DTOs
func ToItemRequestDTOs(requests []*domain.ItemRequest) []ItemRequestDTO {
	dtos := make([]ItemRequestDTO, 0, len(requests))
	for _, r := range requests {
		dtos = append(dtos, *ToItemRequestDTO(r))
	}
	return dtos
}

// ToRawMaterialDTO converts a domain raw material to a DTO
func ToRawMaterialDTO(m *domain.RawMaterial) *RawMaterialDTO {
	return &RawMaterialDTO{
		MaterialID: m.MaterialID,
		Name:       m.Name,
		Unit:       m.Unit,
		Stock:      m.Stock,
	}
}

// ToRawMaterialDTOs converts a slice of raw materials to DTOs
func ToRawMaterialDTOs(materials []*domain.RawMaterial) []RawMaterialDTO {
	dtos := make([]RawMaterialDTO, 0, len(materials))
	for _, m := range materials {
		dtos = append(dtos, *ToRawMaterialDTO(m))
	}
	return dtos
}

// ToUserItemStockDTOs converts a slice of holdings to DTOs
func ToUserItemStockDTOs(stocks []*domain.UserItemStock) []UserItemStockDTO {
	dtos := make([]UserItemStockDTO, 0, len(stocks))
	for _, s := range stocks {
		dtos = append(dtos, UserItemStockDTO{
			EmployeeID: s.EmployeeID,
			MaterialID: s.MaterialID,
			Quantity:   s.Quantity,
			UpdatedAt:  s.UpdatedAt,
		})
	}
	return dtos
}

// ToWarehouseStockDTOs converts a slice of counter rows to DTOs
func ToWarehouseStockDTOs(stocks []*domain.WarehouseStock) []WarehouseStockDTO {
	dtos := make([]WarehouseStockDTO, 0, len(stocks))
	for _, s := range stocks {
		dtos = append(dtos, WarehouseStockDTO{
			ProductName: s.ProductName,
			ItemName:    s.ItemName,
			SubItemName: s.SubItemName,
			Quantity:    s.Quantity,
			NewStock:    s.NewStock,
			UpdatedAt:   s.UpdatedAt,
		})
	}
	return dtos
}
