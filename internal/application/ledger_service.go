package application

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rms-platform/pipeline-service/pkg/errors"
	"github.com/rms-platform/pipeline-service/pkg/logging"
	"github.com/rms-platform/pipeline-service/pkg/metrics"

	"github.com/rms-platform/pipeline-service/internal/domain"
)

// RoleStoreKeeper is the role required to file material requests
const RoleStoreKeeper = "Store"

// LedgerService handles raw material ledger use cases: requesting, deciding,
// sanctioning, and consuming materials.
type LedgerService struct {
	requests  domain.ItemRequestRepository
	materials domain.RawMaterialRepository
	userStock domain.UserStockRepository
	employees domain.EmployeeDirectory
	warehouse domain.WarehouseStockRepository
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(
	requests domain.ItemRequestRepository,
	materials domain.RawMaterialRepository,
	userStock domain.UserStockRepository,
	employees domain.EmployeeDirectory,
	warehouse domain.WarehouseStockRepository,
	m *metrics.Metrics,
	logger *logging.Logger,
) *LedgerService {
	return &LedgerService{
		requests:  requests,
		materials: materials,
		userStock: userStock,
		employees: employees,
		warehouse: warehouse,
		metrics:   m,
		logger:    logger,
	}
}

// RequestMaterials files a material request from an employee to a store
// keeper. Stock is only checked softly here, against currently visible
// quantities with no reservation; the strict check happens at sanction time.
func (s *LedgerService) RequestMaterials(ctx context.Context, cmd RequestMaterialsCommand) (*ItemRequestDTO, error) {
	if len(cmd.Lines) == 0 {
		return nil, errors.ErrValidation("a material request needs at least one line")
	}

	// The addressee hands stock over later, so they must be a store keeper.
	hasRole, err := s.employees.HasRole(ctx, cmd.StoreKeeperID, RoleStoreKeeper)
	if err != nil {
		s.logger.WithError(err).Error("Failed to check employee role", "employeeId", cmd.StoreKeeperID)
		return nil, fmt.Errorf("failed to check employee role: %w", err)
	}
	if !hasRole {
		return nil, errors.ErrUnauthorized(
			fmt.Sprintf("employee %s does not hold the %q role", cmd.StoreKeeperID, RoleStoreKeeper))
	}

	for _, line := range cmd.Lines {
		if line.Quantity <= 0 {
			return nil, errors.ErrValidation("requested quantities must be positive").
				WithDetail("materialId", line.MaterialID)
		}

		material, err := s.materials.FindByMaterialID(ctx, line.MaterialID)
		if err != nil {
			s.logger.WithError(err).Error("Failed to get raw material", "materialId", line.MaterialID)
			return nil, fmt.Errorf("failed to get raw material: %w", err)
		}
		if material == nil {
			return nil, errors.ErrNotFound("RawMaterial").WithDetail("materialId", line.MaterialID)
		}
		if material.Stock < line.Quantity {
			return nil, errors.ErrInsufficientStock(
				fmt.Sprintf("material %s has %d in stock, %d requested", line.MaterialID, material.Stock, line.Quantity))
		}
	}

	request := domain.NewItemRequest(uuid.NewString(), cmd.EmployeeID, cmd.StoreKeeperID, cmd.Lines, cmd.IsProcessRequest, cmd.ProcessID)
	if err := s.requests.Save(ctx, request); err != nil {
		s.logger.WithError(err).Error("Failed to save material request", "requestId", request.RequestID)
		return nil, fmt.Errorf("failed to save material request: %w", err)
	}

	s.logger.Info("Filed material request",
		"requestId", request.RequestID,
		"requestedBy", cmd.EmployeeID,
		"storeKeeperId", cmd.StoreKeeperID,
		"lines", len(cmd.Lines))
	return ToItemRequestDTO(request), nil
}

// DecideRequest records the approval or decline of a pending request
func (s *LedgerService) DecideRequest(ctx context.Context, cmd DecideRequestCommand) (*ItemRequestDTO, error) {
	request, err := s.requests.FindByRequestID(ctx, cmd.RequestID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get material request", "requestId", cmd.RequestID)
		return nil, fmt.Errorf("failed to get material request: %w", err)
	}
	if request == nil {
		return nil, errors.ErrNotFound("ItemRequest")
	}

	if err := request.Decide(cmd.Decision, cmd.DecidedBy, cmd.Remarks); err != nil {
		switch {
		case stderrors.Is(err, domain.ErrRequestAlreadyProcessed):
			return nil, errors.ErrAlreadyProcessed("material request has already been decided")
		case stderrors.Is(err, domain.ErrDeclineRemarksRequired):
			return nil, errors.ErrValidation(err.Error())
		default:
			return nil, errors.ErrValidation(err.Error())
		}
	}

	// The write is guarded on the request still being undecided, so a racing
	// decider that slipped past the read above still loses here.
	if err := s.requests.SaveDecision(ctx, request); err != nil {
		if stderrors.Is(err, domain.ErrRequestAlreadyProcessed) {
			return nil, errors.ErrAlreadyProcessed("material request has already been decided")
		}
		s.logger.WithError(err).Error("Failed to save material request", "requestId", cmd.RequestID)
		return nil, fmt.Errorf("failed to save material request: %w", err)
	}

	s.logger.Info("Decided material request",
		"requestId", cmd.RequestID,
		"decision", cmd.Decision,
		"decidedBy", cmd.DecidedBy)
	return ToItemRequestDTO(request), nil
}

// SanctionRequest hands approved materials over to the store keeper. The
// guarded stock decrements, the personal stock credits, and the given flag are
// applied in one transaction; any short line aborts the whole hand-over.
func (s *LedgerService) SanctionRequest(ctx context.Context, cmd SanctionRequestCommand) (*ItemRequestDTO, error) {
	request, err := s.requests.FindByRequestID(ctx, cmd.RequestID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get material request", "requestId", cmd.RequestID)
		return nil, fmt.Errorf("failed to get material request: %w", err)
	}
	if request == nil {
		return nil, errors.ErrNotFound("ItemRequest")
	}

	if err := request.CanSanction(); err != nil {
		switch {
		case stderrors.Is(err, domain.ErrMaterialAlreadyGiven):
			return nil, errors.ErrAlreadyProcessed("material has already been handed over")
		case stderrors.Is(err, domain.ErrRequestDeclined), stderrors.Is(err, domain.ErrRequestNotApproved):
			return nil, errors.ErrInvalidState(err.Error())
		default:
			return nil, errors.ErrInvalidState(err.Error())
		}
	}

	request.MarkSanctioned()
	// The hand-over mark is guarded in the store, so of two racing sanctions
	// exactly one moves stock.
	if err := s.requests.Sanction(ctx, request); err != nil {
		if stderrors.Is(err, domain.ErrMaterialAlreadyGiven) {
			return nil, errors.ErrAlreadyProcessed("material has already been handed over")
		}
		if stderrors.Is(err, domain.ErrInsufficientStock) {
			return nil, errors.ErrInsufficientStock("raw material stock cannot cover the request")
		}
		s.logger.WithError(err).Error("Failed to sanction material request", "requestId", cmd.RequestID)
		return nil, fmt.Errorf("failed to sanction material request: %w", err)
	}

	s.metrics.RecordStockMovement("sanction")
	for _, line := range request.Lines {
		s.logger.StockMovement(ctx, "sanction", line.MaterialID, line.Quantity, request.RequestedBy)
	}
	return ToItemRequestDTO(request), nil
}

// ConsumeMaterial books materials used by an employee against their held
// stock. Every line is debited in one transaction; any line the employee
// cannot cover aborts the whole booking.
func (s *LedgerService) ConsumeMaterial(ctx context.Context, cmd ConsumeMaterialCommand) error {
	if len(cmd.Lines) == 0 {
		return errors.ErrValidation("a consumption needs at least one line")
	}

	usages := make([]*domain.ItemUsage, 0, len(cmd.Lines))
	for _, line := range cmd.Lines {
		if line.Quantity <= 0 {
			return errors.ErrValidation("consumed quantities must be positive").
				WithDetail("materialId", line.MaterialID)
		}
		usages = append(usages, &domain.ItemUsage{
			EmployeeID: cmd.EmployeeID,
			MaterialID: line.MaterialID,
			Quantity:   line.Quantity,
			ProcessID:  cmd.ProcessID,
			Remarks:    cmd.Remarks,
		})
	}

	if err := s.userStock.Consume(ctx, usages); err != nil {
		if stderrors.Is(err, domain.ErrInsufficientPersonalStock) {
			return errors.ErrInsufficientPersonalStock(
				fmt.Sprintf("employee %s cannot cover every requested line", cmd.EmployeeID))
		}
		if stderrors.Is(err, domain.ErrStockNotHeld) {
			return errors.ErrNotFound("UserItemStock")
		}
		s.logger.WithError(err).Error("Failed to consume materials",
			"employeeId", cmd.EmployeeID, "lines", len(cmd.Lines))
		return fmt.Errorf("failed to consume materials: %w", err)
	}

	s.metrics.RecordStockMovement("consume")
	for _, line := range cmd.Lines {
		s.logger.StockMovement(ctx, "consume", line.MaterialID, line.Quantity, cmd.EmployeeID)
	}
	return nil
}

// GetRequest retrieves a material request by ID
func (s *LedgerService) GetRequest(ctx context.Context, query GetRequestQuery) (*ItemRequestDTO, error) {
	request, err := s.requests.FindByRequestID(ctx, query.RequestID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get material request", "requestId", query.RequestID)
		return nil, fmt.Errorf("failed to get material request: %w", err)
	}
	if request == nil {
		return nil, errors.ErrNotFound("ItemRequest")
	}
	return ToItemRequestDTO(request), nil
}

// ListPendingRequests retrieves requests awaiting a decision
func (s *LedgerService) ListPendingRequests(ctx context.Context) ([]ItemRequestDTO, error) {
	requests, err := s.requests.FindPending(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list pending requests")
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	return ToItemRequestDTOs(requests), nil
}

// GetEmployeeStock retrieves an employee's held materials
func (s *LedgerService) GetEmployeeStock(ctx context.Context, query GetEmployeeStockQuery) ([]UserItemStockDTO, error) {
	stocks, err := s.userStock.FindByEmployee(ctx, query.EmployeeID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get employee stock", "employeeId", query.EmployeeID)
		return nil, fmt.Errorf("failed to get employee stock: %w", err)
	}
	return ToUserItemStockDTOs(stocks), nil
}

// ListMaterials retrieves the central store catalog with current stock
func (s *LedgerService) ListMaterials(ctx context.Context) ([]RawMaterialDTO, error) {
	materials, err := s.materials.FindAll(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list raw materials")
		return nil, fmt.Errorf("failed to list raw materials: %w", err)
	}
	return ToRawMaterialDTOs(materials), nil
}

// GetMaterial retrieves one catalog entry by material ID
func (s *LedgerService) GetMaterial(ctx context.Context, materialID string) (*RawMaterialDTO, error) {
	material, err := s.materials.FindByMaterialID(ctx, materialID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get raw material", "materialId", materialID)
		return nil, fmt.Errorf("failed to get raw material: %w", err)
	}
	if material == nil {
		return nil, errors.ErrNotFound("RawMaterial").WithDetail("materialId", materialID)
	}
	return ToRawMaterialDTO(material), nil
}

// GetWarehouseStock retrieves finished-goods counters for a product
func (s *LedgerService) GetWarehouseStock(ctx context.Context, query GetWarehouseStockQuery) ([]WarehouseStockDTO, error) {
	stocks, err := s.warehouse.FindByProduct(ctx, query.ProductName)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get warehouse stock", "productName", query.ProductName)
		return nil, fmt.Errorf("failed to get warehouse stock: %w", err)
	}
	return ToWarehouseStockDTOs(stocks), nil
}
