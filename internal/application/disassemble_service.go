package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/rms-platform/pipeline-service/pkg/errors"
	"github.com/rms-platform/pipeline-service/pkg/logging"
	"github.com/rms-platform/pipeline-service/pkg/metrics"

	"github.com/rms-platform/pipeline-service/internal/domain"
)

// DisassembleService handles the one-time recovery of reusable parts from a
// rejected unit. Submitting consumes the session token, closes the process as
// rejected, and credits the receiving employee's stock, all in one
// transaction.
type DisassembleService struct {
	processes domain.ProcessRepository
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

// NewDisassembleService creates a new DisassembleService
func NewDisassembleService(
	processes domain.ProcessRepository,
	m *metrics.Metrics,
	logger *logging.Logger,
) *DisassembleService {
	return &DisassembleService{
		processes: processes,
		metrics:   m,
		logger:    logger,
	}
}

// SubmitRecovery files the disassembly report for a pending rejected unit
func (s *DisassembleService) SubmitRecovery(ctx context.Context, cmd SubmitDisassemblyCommand) (*ProcessDTO, error) {
	for _, item := range cmd.Items {
		if item.Quantity <= 0 {
			return nil, errors.ErrValidation("recovered quantities must be positive").
				WithDetail("materialId", item.MaterialID)
		}
	}

	process, err := s.processes.FindByProcessID(ctx, cmd.ProcessID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get process", "processId", cmd.ProcessID)
		return nil, fmt.Errorf("failed to get process: %w", err)
	}
	if process == nil {
		return nil, errors.ErrNotFound("Process")
	}

	if err := process.SubmitDisassembly(cmd.SessionID, cmd.EmployeeID, cmd.Remarks); err != nil {
		switch {
		case stderrors.Is(err, domain.ErrInvalidSessionToken):
			return nil, errors.ErrInvalidSession("disassemble session token is invalid or already used")
		case stderrors.Is(err, domain.ErrProcessClosed):
			return nil, errors.ErrInvalidState("process is already completed")
		case stderrors.Is(err, domain.ErrDisassembleNotPending):
			return nil, errors.ErrInvalidState("process has no pending disassembly")
		case stderrors.Is(err, domain.ErrActivityNotOwned):
			return nil, errors.ErrUnauthorized("disassembly must be submitted by the employee working the current activity")
		case stderrors.Is(err, domain.ErrActivityNotInProgress):
			return nil, errors.ErrInvalidState("current activity has not been started")
		default:
			return nil, errors.ErrValidation(err.Error())
		}
	}

	recovery := &domain.DisassembleRecovery{
		ProcessID:               process.ProcessID,
		DisassemblingEmployeeID: cmd.EmployeeID,
		ReceivingEmployeeID:     cmd.ReceivingEmployeeID,
		Items:                   cmd.Items,
		Remarks:                 cmd.Remarks,
		CreatedAt:               time.Now().UTC(),
	}

	process.AddDomainEvent(&domain.DisassembleSubmittedEvent{
		ProcessID:               process.ProcessID,
		DisassemblingEmployeeID: cmd.EmployeeID,
		ReceivingEmployeeID:     cmd.ReceivingEmployeeID,
		RecoveredItems:          len(cmd.Items),
		SubmittedAt:             recovery.CreatedAt,
	})

	if err := s.processes.SaveWithRecovery(ctx, process, recovery); err != nil {
		s.logger.WithError(err).Error("Failed to save disassembly", "processId", cmd.ProcessID)
		return nil, fmt.Errorf("failed to save disassembly: %w", err)
	}

	s.metrics.RecordProcessCompleted(string(process.FinalStatus), string(process.ItemType))
	s.metrics.RecordStockMovement("recovery_credit")
	for _, item := range cmd.Items {
		s.logger.StockMovement(ctx, "recovery_credit", item.MaterialID, item.Quantity, cmd.ReceivingEmployeeID)
	}
	s.logger.Info("Submitted disassembly",
		"processId", cmd.ProcessID,
		"recoveredItems", len(cmd.Items),
		"receivingEmployeeId", cmd.ReceivingEmployeeID)
	return ToProcessDTO(process), nil
}
