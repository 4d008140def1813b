package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rms-platform/pipeline-service/pkg/errors"
	"github.com/rms-platform/pipeline-service/pkg/logging"
	"github.com/rms-platform/pipeline-service/pkg/metrics"

	"github.com/rms-platform/pipeline-service/internal/domain"
)

// ProcessService handles process lifecycle use cases. Stage transitions are
// persisted through the repository, which appends domain events to the outbox
// in the same transaction.
type ProcessService struct {
	processes    domain.ProcessRepository
	stageConfig  domain.StageConfigRepository
	roleProfiles map[string]domain.RoleProfile
	metrics      *metrics.Metrics
	logger       *logging.Logger
}

// NewProcessService creates a new ProcessService
func NewProcessService(
	processes domain.ProcessRepository,
	stageConfig domain.StageConfigRepository,
	roleProfiles map[string]domain.RoleProfile,
	m *metrics.Metrics,
	logger *logging.Logger,
) *ProcessService {
	if roleProfiles == nil {
		roleProfiles = domain.DefaultRoleProfiles()
	}
	return &ProcessService{
		processes:    processes,
		stageConfig:  stageConfig,
		roleProfiles: roleProfiles,
		metrics:      m,
		logger:       logger,
	}
}

// CreateProcess registers a unit in the pipeline. The creator's role selects
// the item type and initial stage; the same physical unit can be registered at
// most once per calendar day.
func (s *ProcessService) CreateProcess(ctx context.Context, cmd CreateProcessCommand) (*ProcessDTO, error) {
	profile, ok := s.roleProfiles[cmd.Role]
	if !ok {
		return nil, errors.ErrUnknownRole(cmd.Role)
	}

	createdDate := time.Now().UTC().Format("2006-01-02")
	existing, err := s.processes.FindSameDayUnit(ctx, cmd.ProductName, cmd.ItemName, cmd.SubItemName, cmd.SerialNumber, createdDate)
	if err != nil {
		s.logger.WithError(err).Error("Failed to check same-day duplicates", "serialNumber", cmd.SerialNumber)
		return nil, fmt.Errorf("failed to check same-day duplicates: %w", err)
	}
	if existing != nil {
		return nil, errors.ErrDuplicateProcess(
			fmt.Sprintf("unit %s/%s/%s serial %s was already registered today",
				cmd.ProductName, cmd.ItemName, cmd.SubItemName, cmd.SerialNumber)).
			WithDetail("processId", existing.ProcessID)
	}

	process := domain.NewServiceProcess(
		uuid.NewString(),
		cmd.ProductName,
		cmd.ItemName,
		cmd.SubItemName,
		cmd.SerialNumber,
		cmd.Quantity,
		profile.ItemType,
		profile.InitialStage,
	)

	if err := s.processes.Save(ctx, process); err != nil {
		// A racing registration can slip past the soft check above and lose
		// on the per-day unique index instead.
		if stderrors.Is(err, domain.ErrDuplicateSameDayUnit) {
			return nil, errors.ErrDuplicateProcess(
				fmt.Sprintf("unit %s/%s/%s serial %s was already registered today",
					cmd.ProductName, cmd.ItemName, cmd.SubItemName, cmd.SerialNumber))
		}
		s.logger.WithError(err).Error("Failed to save process", "processId", process.ProcessID)
		return nil, fmt.Errorf("failed to save process: %w", err)
	}

	s.metrics.RecordProcessCreated(string(process.ItemType), process.InitialStageID)
	s.logger.Info("Created process",
		"processId", process.ProcessID,
		"itemType", process.ItemType,
		"initialStage", process.InitialStageID)
	return ToProcessDTO(process), nil
}

// GetProcess retrieves a process by ID
func (s *ProcessService) GetProcess(ctx context.Context, query GetProcessQuery) (*ProcessDTO, error) {
	process, err := s.processes.FindByProcessID(ctx, query.ProcessID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get process", "processId", query.ProcessID)
		return nil, fmt.Errorf("failed to get process: %w", err)
	}
	if process == nil {
		return nil, errors.ErrNotFound("Process")
	}
	return ToProcessDTO(process), nil
}

// ListProcesses retrieves processes with an optional status filter and
// pagination
func (s *ProcessService) ListProcesses(ctx context.Context, query ListProcessesQuery) ([]ProcessDTO, error) {
	status := domain.ProcessStatus(query.Status)
	switch status {
	case "", domain.ProcessStatusInProgress, domain.ProcessStatusRedirected, domain.ProcessStatusCompleted:
	default:
		return nil, errors.ErrValidation(fmt.Sprintf("unknown process status %q", query.Status))
	}

	limit := query.Limit
	if limit <= 0 {
		limit = 50
	}

	processes, err := s.processes.FindAll(ctx, status, limit, query.Offset)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list processes")
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	return ToProcessDTOs(processes), nil
}

// AcceptActivity claims the current pending activity for an employee. The
// claim is a conditional update in the store, so of two racing callers exactly
// one wins; the loser gets a conflict explaining what it lost to.
func (s *ProcessService) AcceptActivity(ctx context.Context, cmd AcceptActivityCommand) (*ProcessDTO, error) {
	process, err := s.processes.AcceptCurrentActivity(ctx, cmd.ProcessID, cmd.EmployeeID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to accept activity", "processId", cmd.ProcessID)
		return nil, fmt.Errorf("failed to accept activity: %w", err)
	}
	if process == nil {
		return nil, s.classifyAcceptMiss(ctx, cmd.ProcessID)
	}

	s.logger.Info("Accepted activity",
		"processId", cmd.ProcessID,
		"stageId", process.CurrentStageID,
		"employeeId", cmd.EmployeeID)
	return ToProcessDTO(process), nil
}

// classifyAcceptMiss re-reads the process to explain why the conditional claim
// did not match.
func (s *ProcessService) classifyAcceptMiss(ctx context.Context, processID string) error {
	process, err := s.processes.FindByProcessID(ctx, processID)
	if err != nil {
		return fmt.Errorf("failed to get process: %w", err)
	}
	if process == nil {
		return errors.ErrNotFound("Process")
	}
	if process.IsClosed {
		return errors.ErrInvalidState("process is already completed")
	}

	activity := process.CurrentActivity()
	if activity == nil {
		return errors.ErrInvalidState("process has no current stage activity")
	}
	if activity.EmployeeID != "" {
		return errors.ErrAlreadyAssigned(
			fmt.Sprintf("stage activity at %q is already assigned", activity.StageID))
	}
	return errors.ErrInvalidState(
		fmt.Sprintf("stage activity at %q is %s, not PENDING", activity.StageID, activity.Status))
}

// StartActivity stamps the start time on the employee's accepted activity
func (s *ProcessService) StartActivity(ctx context.Context, cmd StartActivityCommand) (*ProcessDTO, error) {
	process, err := s.processes.StartCurrentActivity(ctx, cmd.ProcessID, cmd.EmployeeID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to start activity", "processId", cmd.ProcessID)
		return nil, fmt.Errorf("failed to start activity: %w", err)
	}
	if process == nil {
		return nil, s.classifyStartMiss(ctx, cmd.ProcessID, cmd.EmployeeID)
	}

	s.logger.Info("Started activity",
		"processId", cmd.ProcessID,
		"stageId", process.CurrentStageID,
		"employeeId", cmd.EmployeeID)
	return ToProcessDTO(process), nil
}

func (s *ProcessService) classifyStartMiss(ctx context.Context, processID, employeeID string) error {
	process, err := s.processes.FindByProcessID(ctx, processID)
	if err != nil {
		return fmt.Errorf("failed to get process: %w", err)
	}
	if process == nil {
		return errors.ErrNotFound("Process")
	}
	if process.IsClosed {
		return errors.ErrInvalidState("process is already completed")
	}

	activity := process.CurrentActivity()
	if activity == nil {
		return errors.ErrInvalidState("process has no current stage activity")
	}
	if activity.EmployeeID != employeeID {
		return errors.ErrUnauthorized("stage activity is not assigned to this employee")
	}
	if activity.StartedAt != nil {
		return errors.ErrInvalidState("stage activity has already been started")
	}
	return errors.ErrInvalidState(
		fmt.Sprintf("stage activity at %q is %s, not IN_PROGRESS", activity.StageID, activity.Status))
}

// CompleteActivity closes the current activity with an outcome and resolves
// the process's next step: finalize, redirect, or advance.
func (s *ProcessService) CompleteActivity(ctx context.Context, cmd CompleteActivityCommand) (*ProcessDTO, error) {
	if err := domain.ValidateOutcome(cmd.Outcome, cmd.FailureReason); err != nil {
		return nil, errors.ErrValidation(err.Error())
	}

	process, err := s.processes.FindByProcessID(ctx, cmd.ProcessID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get process", "processId", cmd.ProcessID)
		return nil, fmt.Errorf("failed to get process: %w", err)
	}
	if process == nil {
		return nil, errors.ErrNotFound("Process")
	}
	if process.IsClosed {
		return nil, errors.ErrInvalidState("process is already completed")
	}

	activity := process.CurrentActivity()
	if activity == nil {
		return nil, errors.ErrInvalidState("process has no current stage activity")
	}
	if activity.EmployeeID != cmd.EmployeeID {
		return nil, errors.ErrUnauthorized("stage activity is not assigned to this employee")
	}
	if activity.Status != domain.ActivityStatusInProgress {
		return nil, errors.ErrInvalidState(
			fmt.Sprintf("stage activity at %q is %s, not IN_PROGRESS", activity.StageID, activity.Status))
	}

	if err := s.resolveStageOutcome(ctx, process, cmd.Outcome, cmd.FailureReason, cmd.Remarks); err != nil {
		return nil, err
	}
	return ToProcessDTO(process), nil
}

// resolveStageOutcome is the core branching step after an activity's work
// finishes. Success at the terminal testing stage finalizes the process and
// credits the warehouse counter; failures and rejections redirect through the
// configured failure routes; everything else follows the stage flow.
func (s *ProcessService) resolveStageOutcome(ctx context.Context, process *domain.ServiceProcess, outcome domain.ActivityStatus, failureReason, remarks string) error {
	fromStage := process.CurrentStageID

	if _, err := process.CloseCurrentActivity(outcome, failureReason, remarks); err != nil {
		return errors.ErrInvalidState(err.Error())
	}

	switch outcome {
	case domain.ActivityStatusCompleted:
		if fromStage == domain.StageTesting {
			return s.finalizeProcess(ctx, process, fromStage, outcome)
		}
		return s.followStageFlow(ctx, process, fromStage, outcome)

	case domain.ActivityStatusSkipped:
		return s.followStageFlow(ctx, process, fromStage, outcome)

	case domain.ActivityStatusRejected:
		// Rejection always redirects with the reserved reason, regardless
		// of any caller-supplied one.
		return s.redirectProcess(ctx, process, fromStage, outcome, domain.RedirectReasonRejected)

	case domain.ActivityStatusFailed:
		return s.redirectProcess(ctx, process, fromStage, outcome, failureReason)

	default:
		return errors.ErrValidation(fmt.Sprintf("outcome %q cannot close a stage activity", outcome))
	}
}

// followStageFlow advances to the configured next stage, or finalizes when the
// current stage has no outgoing hop.
func (s *ProcessService) followStageFlow(ctx context.Context, process *domain.ServiceProcess, fromStage string, outcome domain.ActivityStatus) error {
	flows, err := s.stageConfig.FlowsFor(ctx, process.ProductName, process.ItemType)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load stage flows", "productName", process.ProductName)
		return fmt.Errorf("failed to load stage flows: %w", err)
	}
	if len(flows) == 0 {
		return errors.ErrStageFlowNotConfigured(process.ProductName, string(process.ItemType))
	}

	nextStage, ok := domain.NextStageFor(flows, fromStage)
	if !ok {
		return s.finalizeProcess(ctx, process, fromStage, outcome)
	}

	process.AdvanceTo(nextStage)
	if err := s.processes.Save(ctx, process); err != nil {
		s.logger.WithError(err).Error("Failed to save process", "processId", process.ProcessID)
		return fmt.Errorf("failed to save process: %w", err)
	}

	s.metrics.RecordStageTransition(fromStage, nextStage, string(outcome))
	s.logger.StageTransition(ctx, process.ProcessID, fromStage, nextStage, string(outcome))
	return nil
}

// finalizeProcess closes the process as successful and credits the warehouse
// counter in the same transaction.
func (s *ProcessService) finalizeProcess(ctx context.Context, process *domain.ServiceProcess, fromStage string, outcome domain.ActivityStatus) error {
	process.FinalizeSuccess()

	if err := s.processes.SaveCompleted(ctx, process); err != nil {
		s.logger.WithError(err).Error("Failed to save completed process", "processId", process.ProcessID)
		return fmt.Errorf("failed to save completed process: %w", err)
	}

	s.metrics.RecordProcessCompleted(string(process.FinalStatus), string(process.ItemType))
	s.metrics.RecordStockMovement("warehouse_credit")
	s.logger.StageTransition(ctx, process.ProcessID, fromStage, "", string(outcome))
	s.logger.Info("Completed process",
		"processId", process.ProcessID,
		"finalStatus", process.FinalStatus,
		"isRepaired", process.IsRepaired)
	return nil
}

// redirectProcess reroutes the process through the failure redirect configured
// for the reason.
func (s *ProcessService) redirectProcess(ctx context.Context, process *domain.ServiceProcess, fromStage string, outcome domain.ActivityStatus, reason string) error {
	redirect, err := s.stageConfig.RedirectFor(ctx, process.ProductName, process.ItemType, reason)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load failure redirect", "productName", process.ProductName, "reason", reason)
		return fmt.Errorf("failed to load failure redirect: %w", err)
	}
	if redirect == nil {
		hasAny, err := s.stageConfig.HasRedirects(ctx, process.ProductName, process.ItemType)
		if err != nil {
			return fmt.Errorf("failed to load failure redirects: %w", err)
		}
		if !hasAny {
			return errors.ErrNotFound("Product")
		}
		return errors.ErrRedirectNotConfigured(process.ProductName, string(process.ItemType), reason)
	}

	process.RedirectTo(redirect.RedirectStage, reason)
	if err := s.processes.Save(ctx, process); err != nil {
		s.logger.WithError(err).Error("Failed to save process", "processId", process.ProcessID)
		return fmt.Errorf("failed to save process: %w", err)
	}

	s.metrics.RecordStageTransition(fromStage, redirect.RedirectStage, string(outcome))
	s.logger.StageTransition(ctx, process.ProcessID, fromStage, redirect.RedirectStage, reason)
	return nil
}
